// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopledger/shopledger/internal/shared"
)

// Actor headers carry the caller's identity for the audit trail.
const (
	HeaderActorName      = "X-Actor-Name"
	HeaderActorRole      = "X-Actor-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	ProblemOf(w, status, "", title, detail)
}

// ProblemOf sends a problem response with an explicit type.
func ProblemOf(w http.ResponseWriter, status int, problemType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes JSON request body into the target struct. Unknown
// fields are rejected.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.Invalid("httpx", "request body required")
		}
		return &shared.Error{Kind: shared.KindValidation, Op: "httpx", Message: "malformed request body", Err: err}
	}
	return nil
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be empty.
func DecodeOptionalJSON(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return &shared.Error{Kind: shared.KindValidation, Op: "httpx", Message: "malformed request body", Err: err}
	}
	return nil
}

// ActorFrom reads the actor headers. Both are required.
func ActorFrom(r *http.Request) (shared.Actor, error) {
	actor := shared.Actor{
		Name: strings.TrimSpace(r.Header.Get(HeaderActorName)),
		Role: strings.TrimSpace(r.Header.Get(HeaderActorRole)),
	}
	if !actor.Valid() {
		return shared.Actor{}, shared.Invalid("httpx", "%s and %s headers required", HeaderActorName, HeaderActorRole)
	}
	return actor, nil
}

// IDParam parses a positive integer URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Invalid("httpx", "invalid %s %q", name, raw)
	}
	return id, nil
}

// PageFrom reads limit/offset query parameters.
func PageFrom(r *http.Request) shared.Page {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return shared.NewPage(limit, offset)
}
