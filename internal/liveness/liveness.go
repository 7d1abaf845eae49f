/*
Copyright 2024 The ember-csi-go Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package liveness serves a Prometheus gauge reflecting the plugin's own
// Probe result and a /healthz endpoint backed by the same check. The
// teacher runs this as a separate sidecar process polling the driver
// over its own gRPC connection (internal/liveness.Run); this plugin
// instead runs Probe in-process, so the gauge is updated directly by
// whoever calls Check rather than through a second gRPC round trip.
package liveness

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/embercsi/ember-csi-go/internal/log"
)

var gauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "csi",
	Name:      "liveness",
	Help:      "Whether the plugin's last Probe call succeeded (1) or failed (0).",
})

// CheckFunc performs the same readiness check the Identity service's
// Probe RPC performs, without going over gRPC.
type CheckFunc func(ctx context.Context) error

// Server serves /metrics and /healthz, tracking the result of periodic
// calls to a CheckFunc in the csi_liveness gauge.
type Server struct {
	addr  string
	check CheckFunc
}

// NewServer builds a liveness Server. addr is the host:port to listen
// on; an empty addr disables the server (Run becomes a no-op).
func NewServer(addr string, check CheckFunc) *Server {
	return &Server{addr: addr, check: check}
}

// Run registers the liveness gauge, starts polling check at the given
// interval, and serves the HTTP endpoints until ctx is done. It blocks;
// callers should run it in its own goroutine.
func (s *Server) Run(ctx context.Context, pollInterval time.Duration) {
	if s.addr == "" {
		return
	}

	if err := prometheus.Register(gauge); err != nil {
		log.WarningLogMsg("liveness: gauge already registered: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	httpServer := &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go s.poll(ctx, pollInterval)

	log.ExtendedLogMsg("liveness: serving /metrics and /healthz on %s", s.addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.ErrorLogMsg("liveness: server exited: %v", err)
	}
}

func (s *Server) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.record(ctx)
		}
	}
}

func (s *Server) record(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.check(checkCtx); err != nil {
		gauge.Set(0)
		log.ErrorLogMsg("liveness: check failed: %v", err)

		return
	}

	gauge.Set(1)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.check(ctx); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(err.Error()))

		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
