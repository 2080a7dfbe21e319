// internal/server/server.go

// Package server exposes the read API: the latest snapshot as JSON, a
// health summary, a websocket push feed and the Prometheus endpoint.
// Handlers only ever read the store; nothing here writes.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/tamzrod/modbus-bridge/internal/breaker"
	"github.com/tamzrod/modbus-bridge/internal/snapshot"
)

const shutdownGrace = 5 * time.Second

// Config wires the server to the state it reports.
type Config struct {
	Addr      string
	Store     *snapshot.Store
	Breaker   *breaker.Breaker
	Hub       *Hub
	Gatherer  prometheus.Gatherer
	Registers int // entries loaded from the table
	Decimals  int

	now func() time.Time // test override
}

// Server is the HTTP front. Build with New, drive with Run.
type Server struct {
	cfg Config
	mux *http.ServeMux
}

// New builds the route table.
func New(cfg Config) *Server {
	if cfg.now == nil {
		cfg.now = time.Now
	}
	s := &Server{cfg: cfg, mux: http.NewServeMux()}

	s.mux.HandleFunc("/deye-registers", s.handleRegisters)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/", s.handleIndex)
	if cfg.Hub != nil {
		s.mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			cfg.Hub.ServeWS(w, r, cfg.Store.Get())
		})
	}
	if cfg.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler exposes the route table, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		klog.Infof("http: listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		if s.cfg.Hub != nil {
			s.cfg.Hub.Close()
		}
		shctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shctx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// handleRegisters serves the latest snapshot as the flat group array.
// Before the first successful poll there is nothing to serve and the
// endpoint says so instead of inventing zeros.
func (s *Server) handleRegisters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	snap := s.cfg.Store.Get()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no data yet"})
		return
	}
	writeJSON(w, http.StatusOK, snap.Groups)
}

type healthPayload struct {
	CacheAgeS        *float64 `json:"cache_age_s"`
	CacheTS          *float64 `json:"cache_ts"`
	SnapshotSeq      uint64   `json:"snapshot_seq"`
	BreakerFailures  int      `json:"breaker_failures"`
	BreakerOpenUntil float64  `json:"breaker_open_until"`
	RegsLoaded       int      `json:"regs_loaded"`
	RoundDecimals    int      `json:"round_decimals"`
}

// handleHealth reports the bridge's own state. Always 200: an open
// breaker or an empty cache is something to report, not an outage of
// this process.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.cfg.now()
	failures, openUntil := s.cfg.Breaker.Stats()

	p := healthPayload{
		BreakerFailures: failures,
		RegsLoaded:      s.cfg.Registers,
		RoundDecimals:   s.cfg.Decimals,
	}
	if !openUntil.IsZero() {
		p.BreakerOpenUntil = float64(openUntil.UnixNano()) / 1e9
	}
	if snap := s.cfg.Store.Get(); snap != nil {
		age := snap.Age(now).Seconds()
		ts := float64(snap.Taken.UnixNano()) / 1e9
		p.CacheAgeS = &age
		p.CacheTS = &ts
		p.SnapshotSeq = snap.Seq
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "modbus-bridge",
		"endpoints": []string{
			"/deye-registers", "/health", "/ws", "/metrics",
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Warningf("http: encode response: %v", err)
	}
}
