// Package points implements the loyalty points rules applied to receipts.
//
// Every rule is evaluated independently and the contributions are summed.
// Rules run in a fixed order so that breakdowns read the same way every time.
package points

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/okian/receipt-points/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Breakdown keys, one per rule, in evaluation order.
const (
	KeyAlphaNumChars = "alphaNumChars"
	KeyWholeRound    = "wholeRound"
	KeyQuarterRound  = "quarterRound"
	KeyItemCount     = "itemCountPoints"
	KeyTrimmedDesc   = "trimmedDescPoints"
	KeyLLMCheck      = "llmCheck"
	KeyPurchaseDate  = "purchaseDate"
	KeyPurchaseTime  = "purchaseTime"
)

const (
	llmCheckNote      = "no llm detected"
	roundDollarPoints = 50
	quarterPoints     = 25
	pairPoints        = 5
	oddDayPoints      = 6
	afternoonPoints   = 10
	afternoonStart    = 14 * 60 // inclusive, minutes since midnight
	afternoonEnd      = 16 * 60 // exclusive
	centsPerItemPoint = 500     // ceil(cents * 0.2 / 100) == ceil(cents / 500)

	// Amount bounds. Anything outside them is malformed.
	maxAmountLen      = 32
	maxAmountExponent = 20
)

// maxAmount bounds |amount| so that cents and per-item sums stay within int64.
var maxAmount = decimal.New(1, 12)

// ErrMalformedAmount is returned when a total or a scored item price is not a
// decimal number, or is too long, too precise or too large to score.
var ErrMalformedAmount = errors.New("malformed amount")

// Breakdown maps rule keys to their contribution. KeyLLMCheck holds a note
// rather than points.
type Breakdown map[string]any

// Result is the verbose form of a calculation.
type Result struct {
	Points    int       `json:"points"`
	Breakdown Breakdown `json:"breakdown,omitempty"`
}

// Calculator scores receipts.
type Calculator interface {
	// Calculate returns the point total for r.
	Calculate(r model.Receipt) (int, error)
	// Explain returns the total together with a per-rule breakdown.
	Explain(r model.Receipt) (Result, error)
}

type rule struct {
	name        string
	verboseOnly bool
	apply       func(r *model.Receipt, b Breakdown) (int, error)
}

// Engine evaluates the fixed rule set. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	rules []rule
}

// New returns an Engine with the standard rules.
func New() *Engine {
	return &Engine{rules: []rule{
		{name: KeyAlphaNumChars, apply: retailerChars},
		{name: KeyWholeRound, apply: roundDollar},
		{name: KeyQuarterRound, apply: quarterMultiple},
		{name: KeyItemCount, apply: itemPairs},
		{name: KeyTrimmedDesc, apply: descriptionLength},
		{name: KeyLLMCheck, verboseOnly: true, apply: llmCheck},
		{name: KeyPurchaseDate, apply: oddDay},
		{name: KeyPurchaseTime, apply: afternoon},
	}}
}

// Calculate implements Calculator.
func (e *Engine) Calculate(r model.Receipt) (int, error) {
	res, err := e.evaluate(&r, false)
	return res.Points, err
}

// Explain implements Calculator.
func (e *Engine) Explain(r model.Receipt) (Result, error) {
	return e.evaluate(&r, true)
}

func (e *Engine) evaluate(r *model.Receipt, verbose bool) (Result, error) {
	b := Breakdown{}
	total := 0
	for _, rl := range e.rules {
		if rl.verboseOnly && !verbose {
			continue
		}
		p, err := rl.apply(r, b)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rl.name, err)
		}
		total += p
	}

	res := Result{Points: total}
	if verbose {
		res.Breakdown = b
	}
	return res, nil
}

var defaultEngine = New()

// Calculate scores r with the standard rules.
func Calculate(r model.Receipt) (int, error) { return defaultEngine.Calculate(r) }

// Explain scores r with the standard rules and returns the breakdown.
func Explain(r model.Receipt) (Result, error) { return defaultEngine.Explain(r) }

// One point per ASCII letter or digit in the retailer name.
func retailerChars(r *model.Receipt, b Breakdown) (int, error) {
	if r.Retailer == "" {
		return 0, nil
	}
	n := 0
	for i := 0; i < len(r.Retailer); i++ {
		c := r.Retailer[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			n++
		}
	}
	b[KeyAlphaNumChars] = n
	return n, nil
}

func roundDollar(r *model.Receipt, b Breakdown) (int, error) {
	c, err := cents(r.Total)
	if err != nil {
		return 0, err
	}
	if c%100 != 0 {
		return 0, nil
	}
	b[KeyWholeRound] = roundDollarPoints
	return roundDollarPoints, nil
}

func quarterMultiple(r *model.Receipt, b Breakdown) (int, error) {
	c, err := cents(r.Total)
	if err != nil {
		return 0, err
	}
	if c%25 != 0 {
		return 0, nil
	}
	b[KeyQuarterRound] = quarterPoints
	return quarterPoints, nil
}

func itemPairs(r *model.Receipt, b Breakdown) (int, error) {
	if r.Items == nil {
		return 0, nil
	}
	p := len(r.Items) / 2 * pairPoints
	b[KeyItemCount] = p
	return p, nil
}

// Items with both a description and a price whose trimmed description length
// is a multiple of three earn ceil(price * 0.2). A description of only
// whitespace trims to length zero and qualifies.
func descriptionLength(r *model.Receipt, b Breakdown) (int, error) {
	if r.Items == nil {
		return 0, nil
	}
	sum := 0
	for i, it := range r.Items {
		if it.ShortDescription == "" || it.Price == "" {
			continue
		}
		if utf8.RuneCountInString(strings.TrimSpace(it.ShortDescription))%3 != 0 {
			continue
		}
		c, err := cents(it.Price)
		if err != nil {
			return 0, fmt.Errorf("item %d: %w", i, err)
		}
		sum += int(decimal.NewFromInt(c).Div(decimal.NewFromInt(centsPerItemPoint)).Ceil().IntPart())
	}
	b[KeyTrimmedDesc] = sum
	return sum, nil
}

func llmCheck(_ *model.Receipt, b Breakdown) (int, error) {
	b[KeyLLMCheck] = llmCheckNote
	return 0, nil
}

func oddDay(r *model.Receipt, b Breakdown) (int, error) {
	parts := strings.Split(r.PurchaseDate, "-")
	if len(parts) != 3 {
		return 0, nil
	}
	day, ok := leadingInt(parts[2])
	if !ok || day%2 != 1 {
		return 0, nil
	}
	b[KeyPurchaseDate] = oddDayPoints
	return oddDayPoints, nil
}

func afternoon(r *model.Receipt, b Breakdown) (int, error) {
	parts := strings.Split(r.PurchaseTime, ":")
	if len(parts) < 2 {
		return 0, nil
	}
	hour, okH := leadingInt(parts[0])
	minute, okM := leadingInt(parts[1])
	if !okH || !okM {
		return 0, nil
	}
	if m := hour*60 + minute; m < afternoonStart || m >= afternoonEnd {
		return 0, nil
	}
	b[KeyPurchaseTime] = afternoonPoints
	return afternoonPoints, nil
}

// cents converts a decimal amount to integer cents, rounding half away from zero.
// Length, exponent and magnitude are bounded before any rescaling.
func cents(a model.Amount) (int64, error) {
	s := strings.TrimSpace(string(a))
	if len(s) > maxAmountLen {
		return 0, fmt.Errorf("%w: longer than %d characters", ErrMalformedAmount, maxAmountLen)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return 0, fmt.Errorf("%w: %q out of range", ErrMalformedAmount, s)
	}
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return 0, fmt.Errorf("%w: %q out of range", ErrMalformedAmount, s)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// leadingInt parses the optionally signed run of digits at the start of s,
// after leading whitespace, and ignores anything that follows ("07T10" is 7).
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\r\n\v\f")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && '0' <= s[end] && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}
