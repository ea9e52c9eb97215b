package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/shopledger/shopledger/internal/platform/httpx"
	"github.com/shopledger/shopledger/internal/shared"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
	defaultRange     = 7 * 24 * time.Hour
	maxRangeDays     = 90
	dateLayout       = "2006-01-02"
)

// TimelineService is the contract the handler reads from.
type TimelineService interface {
	Timeline(ctx context.Context, f Filters) (Result, error)
	Export(ctx context.Context, f Filters) ([]Entry, error)
}

// Handler exposes the audit trail.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	loc     *time.Location
	now     func() time.Time
}

// NewHandler builds the audit handler. Dates in filters are read in loc.
func NewHandler(logger *slog.Logger, service TimelineService, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{logger: logger, service: service, loc: loc, now: time.Now}
}

// MountRoutes registers the timeline and its exports. Exports are rate
// limited per actor.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			httpx.ProblemOf(w, http.StatusTooManyRequests, "rate_limited", "Too Many Requests", "export limit reached")
		}),
	)
	r.Get("/", h.timeline)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/export.csv", h.exportCSV)
		gr.Get("/export.xlsx", h.exportXLSX)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := strings.TrimSpace(r.Header.Get(httpx.HeaderActorName)); actor != "" {
		return "actor:" + strings.ToLower(actor), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	res, err := h.service.Timeline(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, WriteCSV, "text/csv; charset=utf-8", "audit-trail.csv")
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, WriteXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "audit-trail.xlsx")
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, render func([]Entry) ([]byte, error), contentType, filename string) {
	f, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	rows, err := h.service.Export(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	body, err := render(rows)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := w.Write(body); err != nil && h.logger != nil {
		h.logger.Warn("write audit export", slog.String("file", filename), slog.Any("error", err))
	}
}

// parseFilters reads from/to as inclusive calendar days. Missing bounds
// default to the last seven days.
func (h *Handler) parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	today := h.now().In(h.loc)
	to := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, h.loc)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.ParseInLocation(dateLayout, v, h.loc)
		if err != nil {
			return Filters{}, shared.Invalid("audit", "to must be YYYY-MM-DD")
		}
		to = parsed
	}
	from := to.Add(-defaultRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.ParseInLocation(dateLayout, v, h.loc)
		if err != nil {
			return Filters{}, shared.Invalid("audit", "from must be YYYY-MM-DD")
		}
		from = parsed
	}
	if from.After(to) {
		return Filters{}, shared.Invalid("audit", "from is after to")
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return Filters{}, shared.Invalid("audit", "range exceeds %d days", maxRangeDays)
	}

	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		return Filters{}, shared.Invalid("audit", "page must be a positive integer")
	}
	pageSize, err := positiveInt(q.Get("page_size"), defaultPageSize)
	if err != nil {
		return Filters{}, shared.Invalid("audit", "page_size must be a positive integer")
	}

	return Filters{
		From:     from,
		To:       to.AddDate(0, 0, 1),
		Actor:    strings.TrimSpace(q.Get("actor")),
		Entity:   strings.TrimSpace(q.Get("entity")),
		EntityID: strings.TrimSpace(q.Get("entity_id")),
		Action:   strings.TrimSpace(q.Get("action")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func positiveInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
