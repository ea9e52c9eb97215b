package pocketmoney

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/platform/httpx"
	"github.com/shopledger/shopledger/internal/shared"
)

// Handler exposes pocket-money endpoints.
type Handler struct {
	logger    *slog.Logger
	subledger *Subledger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, subledger *Subledger) *Handler {
	return &Handler{logger: logger, subledger: subledger}
}

// MountRoutes registers pocket-money routes under /{customerID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{customerID}", h.status)
	r.Get("/{customerID}/transactions", h.history)
	r.Post("/{customerID}/purchase", h.purchase)
	r.Post("/{customerID}/top-up", h.topUp)
	r.Post("/{customerID}/deduct", h.deduct)
	r.Post("/{customerID}/enable", h.enable)
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "customerID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	amount := decimal.Zero
	if raw := r.URL.Query().Get("amount"); raw != "" {
		amount, err = decimal.NewFromString(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, shared.Invalid("pocketmoney", "invalid amount %q", raw))
			return
		}
	}
	st, err := h.subledger.Status(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, StatusView{Status: st, Amount: amount, HasSufficientBalance: st.HasSufficientBalance(amount)})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "customerID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	txns, err := h.subledger.History(r.Context(), id, httpx.PageFrom(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txns)
}

func (h *Handler) purchase(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	var in PurchaseInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	in.CustomerID = id
	in.Actor = actor
	result, err := h.subledger.Purchase(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) topUp(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.subledger.TopUp)
}

func (h *Handler) deduct(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.subledger.Deduct)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, in AdjustInput) (Transaction, error)) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	var in AdjustInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	in.CustomerID = id
	in.Actor = actor
	txn, err := apply(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) enable(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	var req enableRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.subledger.SetEnabled(r.Context(), id, req.Enabled, actor); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// target resolves the customer id and actor of a mutation, writing the
// error response itself when either is missing.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (int64, shared.Actor, bool) {
	id, err := httpx.IDParam(r, "customerID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return 0, shared.Actor{}, false
	}
	actor, err := httpx.ActorFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return 0, shared.Actor{}, false
	}
	return id, actor, true
}
