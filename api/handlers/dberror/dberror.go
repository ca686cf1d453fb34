// Package dberror classifies engine errors for status codes and user-facing
// messages.
package dberror

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrorType classifies engine errors for appropriate handling.
type ErrorType int

const (
	// ErrorTypeUnknown is an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConnectivity indicates the engine is unreachable.
	ErrorTypeConnectivity
	// ErrorTypeTimeout indicates the operation timed out.
	ErrorTypeTimeout
	// ErrorTypeAuth indicates authentication/authorization failure.
	ErrorTypeAuth
	// ErrorTypeQuery indicates a query/syntax error.
	ErrorTypeQuery
	// ErrorTypeResource indicates the engine ran out of memory or disk.
	ErrorTypeResource
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConnectivity:
		return "connectivity"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeQuery:
		return "query"
	case ErrorTypeResource:
		return "resource"
	default:
		return "unknown"
	}
}

var (
	connectivityPatterns = []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"no such host",
		"dial tcp",
		"dial unix",
		"eof",
		"broken pipe",
		"network is unreachable",
		"no route to host",
		"read/write on closed",
		"database is closed",
		"sql: connection is already closed",
		"could not set lock on file",
		"executor is closed",
	}
	timeoutPatterns = []string{
		"timeout",
		"deadline exceeded",
		"timed out",
		"interrupted",
	}
	authPatterns = []string{
		"unauthorized",
		"authentication failed",
		"invalid credentials",
		"access denied",
		"permission denied",
	}
	queryPatterns = []string{
		"syntax error",
		"parser error",
		"binder error",
		"catalog error",
		"conversion error",
		"unknown identifier",
		"unknown column",
		"table not found",
		"unknown table",
		"does not exist",
	}
	resourcePatterns = []string{
		"out of memory",
		"memory limit",
		"no space left",
		"memory_limit_exceeded",
	}
)

// IsTransient returns true if the error is likely transient and worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not transient (user cancelled or deadline exceeded)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch Classify(err) {
	case ErrorTypeConnectivity, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// Classify determines the type of engine error.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeConnectivity
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case containsAny(errStr, connectivityPatterns):
		return ErrorTypeConnectivity
	case containsAny(errStr, timeoutPatterns):
		return ErrorTypeTimeout
	case containsAny(errStr, authPatterns):
		return ErrorTypeAuth
	case containsAny(errStr, resourcePatterns):
		return ErrorTypeResource
	case containsAny(errStr, queryPatterns):
		return ErrorTypeQuery
	}
	return ErrorTypeUnknown
}

// StatusCode maps an engine error to an HTTP status.
func StatusCode(err error) int {
	switch Classify(err) {
	case ErrorTypeConnectivity:
		return http.StatusServiceUnavailable
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns a user-friendly error message based on the error type.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	switch Classify(err) {
	case ErrorTypeConnectivity:
		return "Database temporarily unavailable. Please try again in a moment."
	case ErrorTypeTimeout:
		return "Request timed out. Please try again."
	case ErrorTypeAuth:
		return "Database authentication error. Please contact support."
	case ErrorTypeQuery:
		return "The query could not be executed against this table."
	case ErrorTypeResource:
		return "The query exceeded available resources. Try a smaller limit."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
