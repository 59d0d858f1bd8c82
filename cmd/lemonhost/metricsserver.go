package main

import (
	"context"
	"net/http"
	"time"

	"github.com/oriys/lemonhost/internal/logging"
	"github.com/oriys/lemonhost/internal/metrics"
)

// metricsHTTPServer is the loopback-only observability endpoint: JSON and
// Prometheus views of the same counters, never part of the guest-facing
// wire contract.
type metricsHTTPServer struct {
	server *http.Server
}

func startMetricsServer(addr string) *metricsHTTPServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.PrometheusHandler())
	mux.Handle("/metrics.json", metrics.Global().JSONHandler())
	mux.Handle("/metrics/timeseries", metrics.Global().TimeSeriesHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Warn("metrics server stopped", "error", err)
		}
	}()

	return &metricsHTTPServer{server: srv}
}

func (s *metricsHTTPServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}
