package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/malbeclabs/census/api/handlers/dberror"
	"github.com/malbeclabs/census/census/pkg/catalog"
	"github.com/malbeclabs/census/census/pkg/executor"
	"github.com/malbeclabs/census/census/pkg/query"
	"github.com/malbeclabs/census/census/pkg/schema"
)

// StatusClientClosedRequest is logged when the caller went away before the
// response was ready.
const StatusClientClosedRequest = 499

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// classifyError maps a service error to its status and error kind.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrUnknownDatasetType):
		return http.StatusNotFound, "unknown_dataset_type"
	case errors.Is(err, schema.ErrUnsupportedLevel):
		return http.StatusBadRequest, "unsupported_level"
	case errors.Is(err, schema.ErrUnsupportedYear):
		return http.StatusBadRequest, "unsupported_year"
	case errors.Is(err, query.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, executor.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, executor.ErrExecution):
		return dberror.StatusCode(err), "execution_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("handlers: failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classifyError(err)
	switch {
	case status == StatusClientClosedRequest:
		h.log.Debug("handlers: request canceled", "path", r.URL.Path)
		w.WriteHeader(status)
		return
	case status >= http.StatusInternalServerError:
		h.log.Error("handlers: request failed", "path", r.URL.Path, "kind", kind, "class", dberror.Classify(err).String(), "error", err)
		captureError(r, err)
	default:
		h.log.Debug("handlers: request rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}
	writeJSON(h.log, w, status, ErrorResponse{Error: kind, Message: err.Error()})
}

func captureError(r *http.Request, err error) {
	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(r)
		scope.SetTag("error_class", dberror.Classify(err).String())
		hub.CaptureException(err)
	})
}

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return query.ErrInvalidRequest }
