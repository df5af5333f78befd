package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/okian/receipt-points/internal/domain/model"
	"github.com/okian/receipt-points/pkg/logger"
)

// IdempotencyKeyHeader carries the client's idempotency key on process requests.
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayedHeader is set to "true" when a process response was answered from
// an earlier request with the same idempotency key.
const ReplayedHeader = "Idempotent-Replayed"

type processResponse struct {
	ID string `json:"id"`
}

type pointsResponse struct {
	Points int `json:"points"`
}

// ReceiptsHandler serves the receipt routes.
type ReceiptsHandler struct {
	deps         Dependencies
	maxBodyBytes int64
	logger       logger.Logger
}

// NewReceiptsHandler creates a receipts handler.
func NewReceiptsHandler(deps Dependencies, maxBodyBytes int64, l logger.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{deps: deps, maxBodyBytes: maxBodyBytes, logger: l}
}

// HandleProcess handles POST /receipts/process.
func (h *ReceiptsHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	const op = "api.process_receipt"

	var req model.Receipt
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, WrapKind(op, ErrPayloadTooLarge, err))
			return
		}
		h.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	id, replayed, err := h.deps.ProcessIdempotent(r.Context(), key, req)
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	if replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	writeJSON(w, http.StatusOK, processResponse{ID: id})
}

// HandleGetPoints handles GET /receipts/{id}/points. With verbose=true the
// per-rule breakdown is included.
func (h *ReceiptsHandler) HandleGetPoints(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_points"
	id := mux.Vars(r)["id"]

	verbose := false
	if v := r.URL.Query().Get("verbose"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.fail(w, r, WrapKind(op, ErrBadRequest, err))
			return
		}
		verbose = b
	}

	if verbose {
		res, err := h.deps.Explain(r.Context(), id)
		if err != nil {
			h.fail(w, r, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	p, err := h.deps.GetPoints(r.Context(), id)
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{Points: p})
}

// HandleGetReceipt handles GET /receipts/{id}.
func (h *ReceiptsHandler) HandleGetReceipt(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_receipt"

	rec, err := h.deps.GetReceipt(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ReceiptsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError && msg == msgInternal {
		h.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	} else {
		h.logger.Debug(r.Context(), "request rejected",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	writeError(w, status, msg)
}
