package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubRepo struct {
	rows []Entry
	last Query
}

func (s *stubRepo) List(_ context.Context, q Query) ([]Entry, error) {
	s.last = q
	rows := s.rows
	if q.Offset < len(rows) {
		rows = rows[q.Offset:]
	} else {
		rows = nil
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func entries(n int) []Entry {
	out := make([]Entry, n)
	base := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = Entry{ID: int64(n - i), At: base.Add(-time.Duration(i) * time.Hour), ActorName: "auma", Action: "sale.created", Entity: "sale", EntityID: "SL-1"}
	}
	return out
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: entries(5)}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), Filters{PageSize: 2, Entity: "sale"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.True(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.NextPage)
	require.Zero(t, res.Paging.PrevPage)
	require.Equal(t, 3, repo.last.Limit)
	require.Equal(t, 0, repo.last.Offset)
	require.Equal(t, "sale", repo.last.Entity)

	res, err = svc.Timeline(context.Background(), Filters{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.False(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.PrevPage)
	require.Equal(t, 4, repo.last.Offset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	res, err := NewService(repo).Timeline(context.Background(), Filters{PageSize: 1000})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, res.Paging.PageSize)
	require.Equal(t, maxPageSize+1, repo.last.Limit)
	require.NotNil(t, res.Rows)
}

func TestExportReturnsEverything(t *testing.T) {
	repo := &stubRepo{rows: entries(30)}
	rows, err := NewService(repo).Export(context.Background(), Filters{Actor: "auma", Page: 2, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, rows, 30)
	require.Zero(t, repo.last.Limit)
	require.Equal(t, "auma", repo.last.Actor)
}

func TestServiceWithoutRepository(t *testing.T) {
	_, err := NewService(nil).Timeline(context.Background(), Filters{})
	require.Error(t, err)
	_, err = NewService(nil).Export(context.Background(), Filters{})
	require.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	rows := entries(2)
	rows[0].Meta = map[string]any{"total": "300"}
	out, err := WriteCSV(rows)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, csvHeader, records[0])
	require.Equal(t, "2025-03-10T09:00:00Z", records[1][1])
	require.Equal(t, `{"total":"300"}`, records[1][7])
	require.Empty(t, records[2][7])
}

func TestWriteXLSX(t *testing.T) {
	rows := entries(3)
	rows[1].Meta = map[string]any{"reason": "stock count"}
	out, err := WriteXLSX(rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	got, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, csvHeader, got[0])
	require.Equal(t, "3", got[1][0])
	require.Equal(t, `{"reason":"stock count"}`, got[2][7])
}
