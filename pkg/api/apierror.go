// Package api serves the spur engine over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/josephblackelite/spur-protocol/pkg/schema"
)

// ProblemDetail is an RFC 7807 error body. Every error response uses it.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`

	// Kind is the compilation error kind, when there is one.
	Kind string `json:"kind,omitempty"`
	// Errors lists schema validation causes.
	Errors []schema.Cause `json:"errors,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func newProblem(r *http.Request, w http.ResponseWriter, status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:     fmt.Sprintf("https://spur.schemas.local/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get(headerRequestID),
	}
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError writes a problem built from the request.
func WriteError(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	WriteProblem(w, newProblem(r, w, status, title, detail))
}

func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusBadRequest, "Bad Request", detail)
}

func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusNotFound, "Not Found", detail)
}

func WriteConflict(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusConflict, "Conflict", detail)
}

// WriteValidation writes a 422 carrying schema causes.
func WriteValidation(w http.ResponseWriter, r *http.Request, ve *schema.ValidationError) {
	p := newProblem(r, w, http.StatusUnprocessableEntity, "Invalid Document", ve.Error())
	p.Errors = ve.Causes
	WriteProblem(w, p)
}

// WriteTooManyRequests writes a 429 with Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, r, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal logs err and writes a generic 500. err is never sent to the
// client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "internal server error",
		"error", err,
		"path", r.URL.Path,
		"request_id", w.Header().Get(headerRequestID),
	)
	WriteError(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
