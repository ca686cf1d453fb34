package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/census/api/handlers"
	"github.com/malbeclabs/census/api/server"
	"github.com/malbeclabs/census/census/pkg/query"
	"github.com/malbeclabs/census/census/pkg/schema"
	censustesting "github.com/malbeclabs/census/utils/pkg/testing"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type stubService struct{}

func (stubService) Datasets() []query.DatasetSummary {
	return []query.DatasetSummary{{Type: "population", Years: []int{2011}}}
}

func (stubService) Levels(string, int) ([]schema.Level, error) {
	return []schema.Level{schema.LevelShrid}, nil
}

func (stubService) ListVariables(context.Context, string, int, schema.Level) ([]string, error) {
	return []string{"tot_p"}, nil
}

func (stubService) Query(context.Context, query.Request) (*query.Records, error) {
	return &query.Records{Columns: []string{"id"}, Rows: []map[string]any{}}, nil
}

func (stubService) QueryYears(context.Context, query.MultiYearRequest) (*query.MultiYearResult, error) {
	return &query.MultiYearResult{}, nil
}

func newServer(t *testing.T, limiter *handlers.RateLimiter) *server.Server {
	t.Helper()
	log := censustesting.NewLogger()
	h, err := handlers.NewHandler(log, stubService{})
	require.NoError(t, err)
	srv, err := server.New(server.Config{
		Logger:      log,
		ListenAddr:  "127.0.0.1:0",
		VersionInfo: handlers.VersionInfo{Version: "1.2.3", Commit: "abc", Date: "2026-01-01"},
		Handler:     h,
		RateLimiter: limiter,
	})
	require.NoError(t, err)
	return srv
}

func serve(srv *server.Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCensus_Server_ConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := server.Config{}
	require.Error(t, cfg.Validate())
	cfg.Logger = censustesting.NewLogger()
	require.Error(t, cfg.Validate())
	cfg.ListenAddr = ":8080"
	require.Error(t, cfg.Validate())

	h, err := handlers.NewHandler(cfg.Logger, stubService{})
	require.NoError(t, err)
	cfg.Handler = h
	require.NoError(t, cfg.Validate())
	require.Equal(t, server.DefaultShutdownTimeout, cfg.ShutdownTimeout)
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestCensus_Server_HealthAndReadiness(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	srv.SetReady(true)
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCensus_Server_VersionAndMetrics(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info handlers.VersionInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "1.2.3", info.Version)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "census_api_http_requests_total")
}

func TestCensus_Server_CensusRoutesAndRequestID(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/census/datasets", nil)
	req.Header.Set("Origin", "https://example.org")
	rec := serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	id := "7f1d7e0c-2a3b-4c5d-8e9f-0a1b2c3d4e5f"
	req = httptest.NewRequest(http.MethodGet, "/api/census/population/2011/shrid/query", nil)
	req.Header.Set("X-Request-ID", id)
	rec = serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "[]\n", rec.Body.String())
	require.Equal(t, id, rec.Header().Get("X-Request-ID"))
}

func TestCensus_Server_RateLimitsCensusRoutesOnly(t *testing.T) {
	t.Parallel()
	limiter := handlers.NewRateLimiterWithClock(rate.Limit(1), 1, clockwork.NewFakeClock())
	t.Cleanup(limiter.Stop)
	srv := newServer(t, limiter)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/api/census/datasets", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		require.Equal(t, want, serve(srv, req).Code, "request %d", i)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	require.Equal(t, http.StatusOK, serve(srv, req).Code)
}

func TestCensus_Server_ServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	srv := newServer(t, nil)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
