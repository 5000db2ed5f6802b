// internal/api/respond.go
//
// JSON response helpers shared by every component.
//
// Context
// -------
// Handlers return domain errors as values.  Error maps them onto HTTP
// status codes in one place so that a validation failure always answers
// 422 with field-scoped messages, a missing record always answers 404,
// and a failed write query answers 500 with an argument-free excerpt that
// only administrators get to see.
//
// Notes
// -----
// • Unexpected errors are logged through the request-scoped logger and
//   answered with the generic status text.
// • Oxford commas, two spaces after periods.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/participants/internal/adminlist"
	"github.com/yanizio/participants/internal/auth"
	"github.com/yanizio/participants/internal/dynamic"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/form"
	"github.com/yanizio/participants/internal/logger"
	"github.com/yanizio/participants/internal/query"
	"github.com/yanizio/participants/internal/record"
)

// ErrorBody is the JSON shape of every failure.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields []form.ErrorField `json:"fields,omitempty"`
	Query  string            `json:"query,omitempty"`
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Fail writes a bare error message.
func Fail(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorBody{Error: msg})
}

// Error maps err to a status and writes it.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var qe *query.QueryError
	switch {
	case form.IsValidationError(err):
		JSON(w, http.StatusUnprocessableEntity, ErrorBody{
			Error:  "The submission has errors.",
			Fields: form.FieldErrors(err),
		})
	case errors.Is(err, form.ErrBadBody):
		Fail(w, http.StatusBadRequest, "Malformed request body.")
	case errors.Is(err, record.ErrNotFound):
		Fail(w, http.StatusNotFound, "No such record.")
	case errors.Is(err, field.ErrUnknownField):
		Fail(w, http.StatusNotFound, "No such field.")
	case errors.Is(err, dynamic.ErrInvalidTemplate):
		Fail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, dynamic.ErrNotDynamic),
		errors.Is(err, query.ErrNoRecord),
		errors.Is(err, adminlist.ErrInvalidSort):
		Fail(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &qe):
		body := ErrorBody{Error: "The record could not be saved."}
		if auth.ActorFrom(r.Context()).AtLeast(auth.Administrator) {
			body.Query = qe.Query
		}
		JSON(w, http.StatusInternalServerError, body)
	default:
		logger.FromContext(r.Context()).Errorw("request failed", "path", r.URL.Path, "err", err)
		Fail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

// Decode reads a JSON body of at most form.MaxBody bytes into v.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, form.MaxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", form.ErrBadBody, err)
	}
	return nil
}

// ReadBody returns the raw body, capped at form.MaxBody bytes.
func ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, form.MaxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", form.ErrBadBody, err)
	}
	return b, nil
}

// PathID parses a positive integer URL parameter.
func PathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}
