package sales

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopledger/shopledger/internal/platform/httpx"
)

// Handler exposes checkout and refund endpoints.
type Handler struct {
	logger    *slog.Logger
	processor *Processor
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, processor *Processor) *Handler {
	return &Handler{logger: logger, processor: processor}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createSale)
	r.Get("/{id}", h.getSale)
	r.Get("/{id}/refunds", h.listRefunds)
	r.Post("/{id}/refunds", h.createRefund)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in SaleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	in.Actor = actor
	in.IdempotencyKey = r.Header.Get(httpx.HeaderIdempotencyKey)
	result, err := h.processor.ProcessSale(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.processor.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.processor.ListRefunds(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, refunds)
}

func (h *Handler) createRefund(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in RefundInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	in.SaleID = chi.URLParam(r, "id")
	in.Actor = actor
	result, err := h.processor.ProcessRefund(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}
