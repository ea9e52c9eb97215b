package allocation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopledger/shopledger/internal/platform/httpx"
)

// Handler exposes allocation endpoints.
type Handler struct {
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, scheduler *Scheduler) *Handler {
	return &Handler{logger: logger, scheduler: scheduler}
}

// MountRoutes registers allocation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/due", h.listDue)
	r.Get("/{id}", h.get)
	r.Post("/{id}/fulfil", h.fulfil)
	r.Post("/{id}/cancel", h.cancel)
	r.Get("/{id}/history", h.history)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.ActorFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	in.Actor = actor
	a, err := h.scheduler.CreateAllocation(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	item, err := h.scheduler.GetAllocation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

// fulfil hands out an allocation. An allocation that is not yet due is
// refused with 422 invalid_state unless the body sets {"force": true}.
func (h *Handler) fulfil(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, err := httpx.ActorFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in FulfilInput
	if err := httpx.DecodeOptionalJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	in.AllocationID = id
	in.Actor = actor
	result, err := h.scheduler.FulfilAllocation(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, err := httpx.ActorFrom(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.scheduler.CancelAllocation(r.Context(), id, actor); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listDue(w http.ResponseWriter, r *http.Request) {
	due, err := h.scheduler.ListDue(r.Context(), h.scheduler.Now())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, due)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entries, err := h.scheduler.History(r.Context(), id, httpx.PageFrom(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
