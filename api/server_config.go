package api

import (
	"log/slog"
	"time"
)

// DefaultReadyTimeout bounds the dependency probe behind /readyz.
const DefaultReadyTimeout = 5 * time.Second

// HTTPServerConfig configures the custody HTTP server.
type HTTPServerConfig struct {
	ListenAddr string
	// MetricsAddr serves /metrics on a separate listener; empty disables it.
	MetricsAddr string
	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long /readyz reports not ready before shutdown
	// starts, so load balancers stop routing first.
	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration

	ReadTimeout time.Duration
	// WriteTimeout must cover a full ledger round trip: account creation and
	// mints block on the receipt.
	WriteTimeout time.Duration

	// ReadyTimeout bounds Routes.Ready. Zero means DefaultReadyTimeout.
	ReadyTimeout time.Duration
}
