package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/malbeclabs/census/api/handlers"
)

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
)

type Config struct {
	Logger            *slog.Logger
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	VersionInfo       handlers.VersionInfo
	Handler           *handlers.Handler
	// RateLimiter applies to the census routes. Nil disables rate limiting.
	RateLimiter *handlers.RateLimiter
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
	// QueryTimeout bounds each census request. Zero means no bound.
	QueryTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	if cfg.Handler == nil {
		return errors.New("handler is required")
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return nil
}
