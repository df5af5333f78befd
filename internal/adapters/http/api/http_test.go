package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/okian/receipt-points/internal/adapters/http/api"
	service "github.com/okian/receipt-points/internal/app"
	"github.com/okian/receipt-points/internal/domain/model"
	"github.com/okian/receipt-points/internal/domain/points"
	"github.com/okian/receipt-points/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const targetJSON = `{
  "retailer": "Target",
  "purchaseDate": "2022-01-01",
  "purchaseTime": "13:01",
  "items": [
    {"shortDescription": "Mountain Dew 12PK", "price": "6.49"},
    {"shortDescription": "Emils Cheese Pizza", "price": "12.25"},
    {"shortDescription": "Knorr Creamy Chicken", "price": "1.26"},
    {"shortDescription": "Doritos Nacho Cheese", "price": "3.35"},
    {"shortDescription": "   Klarbrunn 12-PK 12 FL OZ  ", "price": "12.00"}
  ],
  "total": "35.35"
}`

// Same as the corner market receipt, with amounts sent as JSON numbers.
const cornerMarketJSON = `{
  "retailer": "M&M Corner Market",
  "purchaseDate": "2022-03-20",
  "purchaseTime": "14:33",
  "items": [
    {"shortDescription": "Gatorade", "price": 2.25},
    {"shortDescription": "Gatorade", "price": 2.25},
    {"shortDescription": "Gatorade", "price": 2.25},
    {"shortDescription": "Gatorade", "price": 2.25}
  ],
  "total": 9.00
}`

// stubDeps lets tests force failures the real service cannot produce.
type stubDeps struct {
	err   error
	panic bool
}

func (s stubDeps) ProcessIdempotent(context.Context, string, model.Receipt) (string, bool, error) {
	if s.panic {
		panic("boom")
	}
	return "", false, s.err
}

func (s stubDeps) GetPoints(context.Context, string) (int, error) { return 0, s.err }

func (s stubDeps) Explain(context.Context, string) (points.Result, error) {
	return points.Result{}, s.err
}

func (s stubDeps) GetReceipt(context.Context, string) (model.StoredReceipt, error) {
	return model.StoredReceipt{}, s.err
}

func newRouter(deps api.Dependencies, stats api.StatsProvider, opts ...api.ServerOption) *mux.Router {
	router := mux.NewRouter()
	api.NewServer(deps, stats, opts...).Register(context.Background(), router)
	return router
}

func do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestReceiptRoutes(t *testing.T) {
	Convey("Given the API on a started service", t, func() {
		svc := service.New()
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		router := newRouter(svc, svc)

		Convey("When processing the Target receipt", func() {
			w := do(router, http.MethodPost, "/api/v1/receipts/process", targetJSON)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
			id, _ := decode(w)["id"].(string)
			So(id, ShouldNotBeBlank)

			Convey("Then its points are 28", func() {
				w := do(router, http.MethodGet, "/api/v1/receipts/"+id+"/points", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w), ShouldResemble, map[string]any{"points": 28.0})
			})

			Convey("Then the verbose form carries the breakdown", func() {
				w := do(router, http.MethodGet, "/api/v1/receipts/"+id+"/points?verbose=true", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["points"], ShouldEqual, 28.0)
				breakdown, ok := body["breakdown"].(map[string]any)
				So(ok, ShouldBeTrue)
				So(breakdown["alphaNumChars"], ShouldEqual, 6.0)
				So(breakdown["trimmedDescPoints"], ShouldEqual, 6.0)
				So(breakdown["llmCheck"], ShouldEqual, "no llm detected")
			})

			Convey("Then verbose=false returns the plain form", func() {
				w := do(router, http.MethodGet, "/api/v1/receipts/"+id+"/points?verbose=false", "")
				So(decode(w), ShouldResemble, map[string]any{"points": 28.0})
			})

			Convey("Then the stored record can be fetched", func() {
				w := do(router, http.MethodGet, "/api/v1/receipts/"+id, "")
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["id"], ShouldEqual, id)
				So(body["retailer"], ShouldEqual, "Target")
				So(body["total"], ShouldEqual, "35.35")
				So(body["points"], ShouldEqual, 28.0)
			})
		})

		Convey("When amounts arrive as JSON numbers", func() {
			w := do(router, http.MethodPost, "/api/v1/receipts/process", cornerMarketJSON)
			So(w.Code, ShouldEqual, http.StatusOK)
			id, _ := decode(w)["id"].(string)

			Convey("Then they are scored like strings", func() {
				w := do(router, http.MethodGet, "/api/v1/receipts/"+id+"/points", "")
				So(decode(w)["points"], ShouldEqual, 109.0)
			})
		})

		Convey("When a required field is missing", func() {
			body := strings.Replace(targetJSON, `"retailer": "Target",`, "", 1)
			w := do(router, http.MethodPost, "/api/v1/receipts/process", body)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["error"], ShouldEqual, "Bad Request. Please verify input.")
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(router, http.MethodPost, "/api/v1/receipts/process", "{not json")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["error"], ShouldEqual, "Bad Request. Please verify input.")
			})
		})

		Convey("When the total is malformed", func() {
			body := strings.Replace(targetJSON, `"total": "35.35"`, `"total": "35.3x"`, 1)
			w := do(router, http.MethodPost, "/api/v1/receipts/process", body)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the retailer is the sentinel", func() {
			body := strings.Replace(targetJSON, `"Target"`, `"dont-save-me"`, 1)
			w := do(router, http.MethodPost, "/api/v1/receipts/process", body)

			Convey("Then it fails without storing", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["error"], ShouldEqual, "special receipt, not save-able")
				So(svc.GetStats()["receiptsStored"], ShouldEqual, 0)
			})
		})

		Convey("When asking for an unknown id", func() {
			w := do(router, http.MethodGet, "/api/v1/receipts/nope/points", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decode(w)["error"], ShouldEqual, "No receipt found for that ID.")
			})

			Convey("Then the verbose and record routes agree", func() {
				So(do(router, http.MethodGet, "/api/v1/receipts/nope/points?verbose=true", "").Code,
					ShouldEqual, http.StatusNotFound)
				So(do(router, http.MethodGet, "/api/v1/receipts/nope", "").Code,
					ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When verbose is not a boolean", func() {
			w := do(router, http.MethodGet, "/api/v1/receipts/any/points?verbose=maybe", "")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the same idempotency key is sent twice", func() {
			first := do(router, http.MethodPost, "/api/v1/receipts/process", targetJSON,
				api.IdempotencyKeyHeader, "abc-123")
			second := do(router, http.MethodPost, "/api/v1/receipts/process", targetJSON,
				api.IdempotencyKeyHeader, "abc-123")

			Convey("Then the second response replays the first id", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(decode(second)["id"], ShouldEqual, decode(first)["id"])
				So(first.Header().Get(api.ReplayedHeader), ShouldBeBlank)
				So(second.Header().Get(api.ReplayedHeader), ShouldEqual, "true")
				So(svc.GetStats()["receiptsStored"], ShouldEqual, 1)
			})
		})
	})
}

func TestRouting(t *testing.T) {
	Convey("Given the API router", t, func() {
		svc := service.New()
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		router := newRouter(svc, svc, api.WithPrefix("/v2"), api.WithMaxBodyBytes(64))

		Convey("Then the prefix is honored", func() {
			So(do(router, http.MethodGet, "/v2/receipts/x/points", "").Code, ShouldEqual, http.StatusNotFound)
			w := do(router, http.MethodGet, "/api/v1/receipts/x/points", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["error"], ShouldEqual, "Not Found")
		})

		Convey("Then an unknown route is a JSON 404", func() {
			w := do(router, http.MethodGet, "/nowhere", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["error"], ShouldEqual, "Not Found")
		})

		Convey("Then a wrong method is a JSON 405", func() {
			w := do(router, http.MethodGet, "/v2/receipts/process/points/extra", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)

			w = do(router, http.MethodDelete, "/v2/receipts/abc", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(decode(w)["error"], ShouldEqual, "Method Not Allowed")

			for _, tc := range []struct{ method, path string }{
				{http.MethodPost, "/v2/receipts/abc/points"},
				{http.MethodDelete, "/v2/receipts/process"},
				{http.MethodPut, "/v2/receipts/abc"},
				{http.MethodPost, "/healthz"},
			} {
				w = do(router, tc.method, tc.path, "")
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(decode(w)["error"], ShouldEqual, "Method Not Allowed")
			}
		})

		Convey("Then a total with a huge exponent is a bad request", func() {
			body := `{"retailer":"T","purchaseDate":"2022-01-01","purchaseTime":"13:01","items":[],"total":"1e300000000"}`
			router := newRouter(svc, svc)
			w := do(router, http.MethodPost, "/api/v1/receipts/process", body)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(w)["error"], ShouldEqual, "Bad Request. Please verify input.")
		})

		Convey("Then an oversized body is refused", func() {
			w := do(router, http.MethodPost, "/v2/receipts/process", targetJSON)
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})

		Convey("Then health, stats and metrics are served", func() {
			w := do(router, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "ok")

			w = do(router, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)

			w = do(router, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "receipts_processor_")
		})
	})
}

func TestFailures(t *testing.T) {
	Convey("Given dependencies that fail unexpectedly", t, func() {
		router := newRouter(stubDeps{err: errors.New("disk on fire")}, nil)

		Convey("Then the client sees a generic internal error", func() {
			w := do(router, http.MethodGet, "/api/v1/receipts/abc/points", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decode(w)["error"], ShouldEqual, "Internal Server Error")
		})
	})

	Convey("Given dependencies that panic", t, func() {
		router := newRouter(stubDeps{panic: true}, nil)

		Convey("Then the panic becomes a 500", func() {
			var w *httptest.ResponseRecorder
			So(func() {
				w = do(router, http.MethodPost, "/api/v1/receipts/process", targetJSON)
			}, ShouldNotPanic)
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(decode(w)["error"], ShouldEqual, "Internal Server Error")
		})
	})

	Convey("Given a nil router", t, func() {
		srv := api.NewServer(stubDeps{}, nil)

		Convey("Then Register panics", func() {
			So(func() { srv.Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Given kind errors", t, func() {
		cause := errors.New("eof")
		err := api.WrapKind("api.op", api.ErrBadRequest, cause)

		Convey("Then both kind and cause match", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: eof")
		})

		Convey("Then NewKind and Wrap format as expected", func() {
			So(api.NewKind("api.op", api.ErrBadRequest).Error(), ShouldEqual, "api.op: bad request")
			So(api.Wrap("api.op", nil), ShouldBeNil)
			So(errors.Is(api.Wrap("api.op", cause), cause), ShouldBeTrue)
		})
	})
}
