package receiptcheck

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/okian/receipt-points/internal/domain/model"
	"github.com/okian/receipt-points/internal/domain/points"
	"github.com/okian/receipt-points/pkg/logger"
	"github.com/shopspring/decimal"
)

// Fixture is a receipt whose score is known ahead of time.
type Fixture struct {
	Name    string
	Receipt model.Receipt
	Points  int
}

// Fixtures returns the reference receipts every run submits first.
func Fixtures() []Fixture {
	return []Fixture{
		{
			Name: "target",
			Receipt: model.Receipt{
				Retailer:     "Target",
				PurchaseDate: "2022-01-01",
				PurchaseTime: "13:01",
				Items: []model.Item{
					{ShortDescription: "Mountain Dew 12PK", Price: "6.49"},
					{ShortDescription: "Emils Cheese Pizza", Price: "12.25"},
					{ShortDescription: "Knorr Creamy Chicken", Price: "1.26"},
					{ShortDescription: "Doritos Nacho Cheese", Price: "3.35"},
					{ShortDescription: "   Klarbrunn 12-PK 12 FL OZ  ", Price: "12.00"},
				},
				Total: "35.35",
			},
			Points: 28,
		},
		{
			Name: "corner-market",
			Receipt: model.Receipt{
				Retailer:     "M&M Corner Market",
				PurchaseDate: "2022-03-20",
				PurchaseTime: "14:33",
				Items: []model.Item{
					{ShortDescription: "Gatorade", Price: "2.25"},
					{ShortDescription: "Gatorade", Price: "2.25"},
					{ShortDescription: "Gatorade", Price: "2.25"},
					{ShortDescription: "Gatorade", Price: "2.25"},
				},
				Total: "9.00",
			},
			Points: 109,
		},
		{
			Name: "morning",
			Receipt: model.Receipt{
				Retailer:     "Walgreens",
				PurchaseDate: "2022-01-02",
				PurchaseTime: "08:13",
				Items: []model.Item{
					{ShortDescription: "Pepsi - 12-oz", Price: "1.25"},
					{ShortDescription: "Dasani", Price: "1.40"},
				},
				Total: "2.65",
			},
			Points: 15,
		},
		{
			Name: "simple",
			Receipt: model.Receipt{
				Retailer:     "Target",
				PurchaseDate: "2022-01-02",
				PurchaseTime: "13:13",
				Items: []model.Item{
					{ShortDescription: "Pepsi - 12-oz", Price: "1.25"},
				},
				Total: "1.25",
			},
			Points: 31,
		},
	}
}

var retailers = []string{
	"Target", "Walgreens", "M&M Corner Market", "Trader Joe's", "7-Eleven #42",
	"Whole Foods", "CVS Pharmacy", "Costco Wholesale", "Café Olé",
}

var descriptions = []string{
	"Mountain Dew 12PK", "Emils Cheese Pizza", "Knorr Creamy Chicken",
	"Doritos Nacho Cheese", "   Klarbrunn 12-PK 12 FL OZ  ", "Gatorade",
	"Pepsi - 12-oz", "Dasani", "Bananas", "Organic Milk 1gal", "Eggs",
	"Sourdough", "Coffee Beans 2lb",
}

const (
	maxItems         = 8
	maxPriceCents    = 2500
	roundTotalChance = 5 // one in N receipts gets a whole-dollar last item
)

// randInt returns a uniform value in [0, n).
func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// generateSubmissions builds the fixtures followed by random receipts, each
// with a fresh idempotency key and its locally computed score.
func generateSubmissions(ctx context.Context, config *Config, stats *Stats) ([]Submission, error) {
	logger.Get().Info(ctx, "generating receipts", logger.Int("numReceipts", config.NumReceipts))

	subs := make([]Submission, 0, config.NumReceipts)
	for _, f := range Fixtures() {
		if len(subs) == config.NumReceipts {
			break
		}
		subs = append(subs, Submission{
			Name:     f.Name,
			Key:      uuid.NewString(),
			Receipt:  f.Receipt,
			Expected: f.Points,
		})
	}

	for i := len(subs); i < config.NumReceipts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		r := generateReceipt()
		p, err := points.Calculate(r)
		if err != nil {
			return nil, fmt.Errorf("score generated receipt %d: %w", i, err)
		}
		subs = append(subs, Submission{Key: uuid.NewString(), Receipt: r, Expected: p})
	}

	stats.ReceiptsGenerated = len(subs)
	logger.Get().Info(ctx, "generated receipts successfully", logger.Int("count", len(subs)))
	return subs, nil
}

func generateReceipt() model.Receipt {
	n := randInt(maxItems + 1)
	items := make([]model.Item, n)
	total := decimal.Zero
	for i := range items {
		cents := int64(randInt(maxPriceCents) + 1)
		if i == n-1 && randInt(roundTotalChance) == 0 {
			cents = cents / 100 * 100
		}
		price := decimal.New(cents, -2)
		total = total.Add(price)
		items[i] = model.Item{
			ShortDescription: descriptions[randInt(len(descriptions))],
			Price:            model.Amount(price.StringFixed(2)),
		}
	}

	return model.Receipt{
		Retailer:     retailers[randInt(len(retailers))],
		PurchaseDate: fmt.Sprintf("2022-%02d-%02d", randInt(12)+1, randInt(28)+1),
		PurchaseTime: fmt.Sprintf("%02d:%02d", randInt(24), randInt(60)),
		Items:        items,
		Total:        model.Amount(total.StringFixed(2)),
	}
}
