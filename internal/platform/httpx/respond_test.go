package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.E(shared.KindNotFound, "t", "gone"), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", shared.ErrInsufficientStock), http.StatusConflict},
		{shared.E(shared.KindInsufficientBalance, "t", "short"), http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusUnprocessableEntity},
		{shared.Invalid("t", "bad"), http.StatusBadRequest},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, nil, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "password")

	rr = httptest.NewRecorder()
	RespondError(rr, nil, shared.E(shared.KindInvalidState, "sales", "sale %s fully refunded", "SL-1"))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "invalid_state", problem.Type)
	require.Contains(t, problem.Detail, "fully refunded")
}

func TestActorFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	_, err := ActorFrom(req)
	require.ErrorIs(t, err, shared.ErrValidation)

	req.Header.Set(HeaderActorName, " auma ")
	req.Header.Set(HeaderActorRole, "cashier")
	actor, err := ActorFrom(req)
	require.NoError(t, err)
	require.Equal(t, shared.Actor{Name: "auma", Role: "cashier"}, actor)
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	require.ErrorIs(t, DecodeJSON(req, &target), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	require.ErrorIs(t, DecodeJSON(req, &target), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	require.NoError(t, DecodeOptionalJSON(req, &target))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	require.NoError(t, DecodeOptionalJSON(req, &target))
	require.Equal(t, "ok", target.Name)
}

func TestIDParamAndPage(t *testing.T) {
	r := chi.NewRouter()
	var gotID int64
	var gotErr error
	var page shared.Page
	r.Get("/things/{id}", func(w http.ResponseWriter, req *http.Request) {
		gotID, gotErr = IDParam(req, "id")
		page = PageFrom(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/42?limit=5&offset=10", nil))
	require.NoError(t, gotErr)
	require.Equal(t, int64(42), gotID)
	require.Equal(t, shared.NewPage(5, 10), page)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/-3", nil))
	require.ErrorIs(t, gotErr, shared.ErrValidation)
}
