package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/receipt-points/internal/adapters/repository"
	"github.com/okian/receipt-points/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func sample(id string) model.StoredReceipt {
	return model.StoredReceipt{
		ID: id,
		Receipt: model.Receipt{
			Retailer:     "Target",
			PurchaseDate: "2022-01-02",
			PurchaseTime: "13:13",
			Items:        []model.Item{{ShortDescription: "Pepsi - 12-oz", Price: "1.25"}},
			Total:        "1.25",
		},
		Points:      31,
		ProcessedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func backends() map[string]func() (repository.Store, error) {
	return map[string]func() (repository.Store, error){
		repository.BackendMemory: func() (repository.Store, error) {
			return repository.Open(repository.BackendMemory, repository.WithShardCount(4))
		},
		repository.BackendBuntDB: func() (repository.Store, error) {
			return repository.Open(repository.BackendBuntDB)
		},
	}
}

func TestStoreBackends(t *testing.T) {
	ctx := context.Background()

	for name, open := range backends() {
		Convey(fmt.Sprintf("Given a %s store", name), t, func() {
			store, err := open()
			So(err, ShouldBeNil)
			defer store.Close()

			Convey("When it is empty", func() {
				Convey("Then lookups miss", func() {
					So(store.Count(ctx), ShouldEqual, 0)
					_, err := store.Get(ctx, "missing")
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				})
			})

			Convey("When a receipt is saved", func() {
				So(store.Save(ctx, sample("r1")), ShouldBeNil)

				Convey("Then it can be read back", func() {
					got, err := store.Get(ctx, "r1")
					So(err, ShouldBeNil)
					So(got.ID, ShouldEqual, "r1")
					So(got.Points, ShouldEqual, 31)
					So(got.Retailer, ShouldEqual, "Target")
					So(got.Items, ShouldResemble, sample("r1").Items)
					So(got.Total, ShouldEqual, model.Amount("1.25"))
					So(got.ProcessedAt.Equal(sample("r1").ProcessedAt), ShouldBeTrue)
					So(store.Count(ctx), ShouldEqual, 1)
				})

				Convey("Then saving the same id again fails", func() {
					dup := sample("r1")
					dup.Points = 99
					err := store.Save(ctx, dup)
					So(errors.Is(err, repository.ErrExists), ShouldBeTrue)

					got, _ := store.Get(ctx, "r1")
					So(got.Points, ShouldEqual, 31)
					So(store.Count(ctx), ShouldEqual, 1)
				})

				Convey("Then mutating the returned value leaves the store intact", func() {
					got, _ := store.Get(ctx, "r1")
					got.Items[0].Price = "9.99"

					again, _ := store.Get(ctx, "r1")
					So(again.Items[0].Price, ShouldEqual, model.Amount("1.25"))
				})
			})

			Convey("When an empty item list is saved", func() {
				rec := sample("r2")
				rec.Items = []model.Item{}
				So(store.Save(ctx, rec), ShouldBeNil)

				Convey("Then it comes back as an empty, non-nil list", func() {
					got, err := store.Get(ctx, "r2")
					So(err, ShouldBeNil)
					So(got.Items, ShouldNotBeNil)
					So(got.Items, ShouldBeEmpty)
				})
			})

			Convey("When many goroutines save distinct ids", func() {
				const n = 100
				var wg sync.WaitGroup
				errs := make([]error, n)
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						errs[i] = store.Save(ctx, sample(fmt.Sprintf("id-%d", i)))
					}(i)
				}
				wg.Wait()

				Convey("Then every receipt is stored", func() {
					for _, err := range errs {
						So(err, ShouldBeNil)
					}
					So(store.Count(ctx), ShouldEqual, n)
				})
			})

			Convey("When the store is closed", func() {
				So(store.Close(), ShouldBeNil)

				Convey("Then operations fail", func() {
					err := store.Save(ctx, sample("late"))
					So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
					_, err = store.Get(ctx, "late")
					So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
				})
			})
		})
	}
}

func TestOpen(t *testing.T) {
	Convey("Given an unknown backend name", t, func() {
		_, err := repository.Open("redis")

		Convey("Then Open fails", func() {
			So(errors.Is(err, repository.ErrUnknownBackend), ShouldBeTrue)
		})
	})
}
