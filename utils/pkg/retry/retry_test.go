package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts: attempts,
		BaseBackoff: 5 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
	}
}

func TestCensus_Retry_DefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, cfg.BaseBackoff)
	require.Equal(t, 5*time.Second, cfg.MaxBackoff)
	require.Nil(t, cfg.Retryable)
}

func TestCensus_Retry_Do_SuccessAfterRetries(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Do(t.Context(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestCensus_Retry_Do_ExhaustsAllAttempts(t *testing.T) {
	t.Parallel()

	attempts := 0
	originalErr := errors.New("connection reset")
	err := Do(t.Context(), fastConfig(3), func() error {
		attempts++
		return originalErr
	})
	require.ErrorIs(t, err, originalErr)
	require.Equal(t, 3, attempts)
}

func TestCensus_Retry_Do_NonRetryableError(t *testing.T) {
	t.Parallel()

	attempts := 0
	originalErr := errors.New("invalid input")
	err := Do(t.Context(), fastConfig(3), func() error {
		attempts++
		return originalErr
	})
	require.Equal(t, originalErr, err)
	require.Equal(t, 1, attempts)
}

func TestCensus_Retry_Do_CustomClassifier(t *testing.T) {
	t.Parallel()

	cfg := fastConfig(4)
	cfg.Retryable = func(err error) bool { return err.Error() == "handshake" }

	attempts := 0
	err := Do(t.Context(), cfg, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("handshake")
		}
		return errors.New("connection reset")
	})
	require.EqualError(t, err, "connection reset")
	require.Equal(t, 2, attempts)
}

func TestCensus_Retry_Do_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	cfg := Config{MaxAttempts: 5, BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("connection reset")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, attempts)
}

func TestCensus_Retry_DoValue(t *testing.T) {
	t.Parallel()

	attempts := 0
	v, err := DoValue(t.Context(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("temporary failure")
		}
		return "/cache/pc11_pca_clean_shrid.parquet", nil
	})
	require.NoError(t, err)
	require.Equal(t, "/cache/pc11_pca_clean_shrid.parquet", v)
	require.Equal(t, 2, attempts)
}

type httpError struct {
	statusCode int
}

func (e *httpError) Error() string   { return fmt.Sprintf("http error %d", e.statusCode) }
func (e *httpError) StatusCode() int { return e.statusCode }

type awsResponseError struct {
	status int
}

func (e *awsResponseError) Error() string       { return fmt.Sprintf("operation error S3: GetObject, https response error StatusCode: %d", e.status) }
func (e *awsResponseError) HTTPStatusCode() int { return e.status }

func TestCensus_Retry_IsRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"wrapped deadline", fmt.Errorf("get object: %w", context.DeadlineExceeded), false},
		{"net timeout", &net.OpError{Op: "read", Err: &timeoutErr{}}, true},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"plain", errors.New("invalid input"), false},
		{"429", &httpError{statusCode: http.StatusTooManyRequests}, true},
		{"503", &httpError{statusCode: http.StatusServiceUnavailable}, true},
		{"404", &httpError{statusCode: http.StatusNotFound}, false},
		{"aws 500", &awsResponseError{status: http.StatusInternalServerError}, true},
		{"aws 403", &awsResponseError{status: http.StatusForbidden}, false},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate", Fault: smithy.FaultClient}, true},
		{"server fault", &smithy.GenericAPIError{Code: "Whatever", Message: "boom", Fault: smithy.FaultServer}, true},
		{"no such key", &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing", Fault: smithy.FaultClient}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

type timeoutErr struct{}

func (*timeoutErr) Error() string   { return "i/o timeout" }
func (*timeoutErr) Timeout() bool   { return true }
func (*timeoutErr) Temporary() bool { return true }

func TestCensus_Retry_CalculateBackoff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		base, max      time.Duration
		attempt        int
		minExp, maxExp time.Duration
	}{
		{500 * time.Millisecond, 5 * time.Second, 1, 500 * time.Millisecond, time.Second},
		{500 * time.Millisecond, 5 * time.Second, 3, 2 * time.Second, 4 * time.Second},
		{500 * time.Millisecond, 5 * time.Second, 4, 2500 * time.Millisecond, 5 * time.Second},
	}
	for _, tt := range tests {
		for range 20 {
			got := calculateBackoff(tt.base, tt.max, tt.attempt)
			require.GreaterOrEqual(t, got, tt.minExp)
			require.LessOrEqual(t, got, tt.maxExp)
		}
	}
}
