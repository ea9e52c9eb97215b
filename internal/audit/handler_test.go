package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/platform/httpx"
)

type stubService struct {
	result Result
	rows   []Entry
	last   Filters
}

func (s *stubService) Timeline(_ context.Context, f Filters) (Result, error) {
	s.last = f
	return s.result, nil
}

func (s *stubService) Export(_ context.Context, f Filters) ([]Entry, error) {
	s.last = f
	return s.rows, nil
}

func newRouter(svc *stubService, loc *time.Location) http.Handler {
	h := NewHandler(nil, svc, loc)
	h.now = func() time.Time { return time.Date(2025, time.March, 10, 22, 30, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)
	return r
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	nairobi, err := time.LoadLocation("Africa/Nairobi")
	require.NoError(t, err)
	svc := &stubService{result: Result{Rows: []Entry{{ID: 1, Action: "sale.created"}}, Paging: Paging{Page: 1, PageSize: 20}}}
	router := newRouter(svc, nairobi)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?entity=sale&actor=auma", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	// 22:30 UTC is already the 11th in Nairobi.
	require.Equal(t, time.Date(2025, time.March, 12, 0, 0, 0, 0, nairobi), svc.last.To)
	require.Equal(t, time.Date(2025, time.March, 4, 0, 0, 0, 0, nairobi), svc.last.From)
	require.Equal(t, "sale", svc.last.Entity)
	require.Equal(t, "auma", svc.last.Actor)
	require.Equal(t, 1, svc.last.Page)

	var res Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Rows, 1)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	router := newRouter(&stubService{}, time.UTC)
	for _, query := range []string{
		"from=2025-03-10&to=2025-03-01",
		"from=2024-01-01&to=2025-03-01",
		"to=10/03/2025",
		"page=0",
		"page_size=abc",
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?"+query, nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, query)
	}
}

func TestExportCSVIsRateLimited(t *testing.T) {
	svc := &stubService{rows: []Entry{{ID: 7, Action: "stock.adjusted", Entity: "product", EntityID: "3"}}}
	router := newRouter(svc, time.UTC)

	for i := 0; i < exportRateLimit; i++ {
		req := httptest.NewRequest(http.MethodGet, "/audit/export.csv?from=2025-03-01&to=2025-03-10", nil)
		req.Header.Set(httpx.HeaderActorName, "bursar")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
		require.Contains(t, rr.Body.String(), "stock.adjusted")
	}

	req := httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil)
	req.Header.Set(httpx.HeaderActorName, "Bursar")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil)
	req.Header.Set(httpx.HeaderActorName, "matron")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestExportXLSX(t *testing.T) {
	svc := &stubService{rows: []Entry{{ID: 2, Action: "supplier:restocked", Entity: "supplier", EntityID: "4"}}}
	router := newRouter(svc, time.UTC)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.xlsx?entity=supplier", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "audit-trail.xlsx")
	require.Equal(t, "supplier", svc.last.Entity)
	require.Greater(t, rr.Body.Len(), 0)
}
