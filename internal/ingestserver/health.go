package ingestserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/ehl-ingestd/internal/storage"
)

// probeTimeout bounds each individual readiness probe.
const probeTimeout = 5 * time.Second

// Pinger is implemented by any dependency that can report its own
// reachability. Implementations must be safe to call concurrently.
type Pinger interface {
	Ping(ctx context.Context) error
	Name() string
}

// MultiPinger aggregates Pingers and reports their combined readiness.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger from the given Pingers.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping runs all registered probes and returns the first error encountered.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// Name returns a combined label for logging.
func (m *MultiPinger) Name() string { return "multi" }

// storePinger adapts *storage.Store to the Pinger contract.
type storePinger struct {
	store *storage.Store
}

func (p storePinger) Ping(ctx context.Context) error { return p.store.Ping(ctx) }
func (p storePinger) Name() string                   { return "storage" }

// listenerPinger reports whether the Unix socket listener is currently
// bound, as a liveness signal distinct from the storage dependency.
type listenerPinger struct {
	server *Server
}

func (p listenerPinger) Ping(ctx context.Context) error {
	if p.server.listener == nil {
		return fmt.Errorf("socket listener not yet started")
	}
	return nil
}
func (p listenerPinger) Name() string { return "socket" }

type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// ServeMetrics runs an auxiliary loopback HTTP server exposing GET
// /metrics, /healthz (liveness), and /readyz (dependency readiness) until
// ctx is cancelled.
func (s *Server) ServeMetrics(ctx context.Context, addr string) error {
	pinger := NewMultiPinger(storePinger{store: s.store}, listenerPinger{server: s})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		s.handleReadyz(w, r, pinger)
	})

	httpServer := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ingestserver: metrics listener failed: %w", err)
		}
		return nil
	}
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request, pinger *MultiPinger) {
	resp := readyResponse{Ready: true}
	allOK := true

	for _, p := range pinger.pingers {
		probeCtx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Ping(probeCtx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			allOK = false
			s.log.Warn("ingestserver: readiness probe failed", slog.String("dependency", p.Name()), slog.Any("error", err))
		}
		resp.Checks = append(resp.Checks, check)
	}
	resp.Ready = allOK

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("ingestserver: readyz encode error", slog.Any("error", err))
	}
}
