package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	_ = metrics.Jobs().Track("allocations:due_scan").End(nil)
	_ = metrics.Jobs().Track("stock:low_stock_scan").End(errors.New("redis down"))
	metrics.Jobs().SetFindings("allocations_overdue", 3)

	body := scrape(t, metrics)
	for _, want := range []string{
		`shopledger_jobs_total{job="allocations:due_scan",status="success"} 1`,
		`shopledger_jobs_failures_total{job="stock:low_stock_scan"} 1`,
		`shopledger_scan_findings{kind="allocations_overdue"} 3`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %s, got: %s", want, body)
		}
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/sales/{id}/refunds")

	req := httptest.NewRequest(http.MethodPost, "/sales/SL-1/refunds", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `shopledger_http_requests_total{code="409",route="/sales/{id}/refunds"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `shopledger_http_request_duration_seconds_bucket{route="/sales/{id}/refunds"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}
