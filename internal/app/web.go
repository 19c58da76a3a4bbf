// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relabs-tech/step_computer/internal/config"
	applog "github.com/relabs-tech/step_computer/internal/log"
	"github.com/relabs-tech/step_computer/internal/step"
	"github.com/relabs-tech/step_computer/internal/store"
)

// StepSnapshot is the /api/steps payload.
type StepSnapshot struct {
	Session        string    `json:"session"`
	Baseline       int64     `json:"baseline"`
	Fused          int64     `json:"fused"`
	LastFusedNanos int64     `json:"last_fused_ns"`
	LastDecision   string    `json:"last_decision,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Totals across sessions, seeded from the step log at startup.
	AllTimeBaseline int64 `json:"all_time_baseline"`
	AllTimeFused    int64 `json:"all_time_fused"`
}

// StepHistory is the persisted step log, e.g. store.RedisStepLog.
type StepHistory interface {
	Total(ctx context.Context, kind step.EventKind) (int64, error)
	Recent(ctx context.Context, kind step.EventKind, count int64) ([]step.Event, error)
}

const (
	defaultRecentSteps = 20
	maxRecentSteps     = 1000
)

// StepState tracks the latest counts seen on the event stream. Events from
// a new session reset the counts.
type StepState struct {
	mu   sync.RWMutex
	snap StepSnapshot
	have bool
}

// Apply folds one event into the state.
func (s *StepState) Apply(ev step.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Session != s.snap.Session {
		s.snap = StepSnapshot{
			Session:         ev.Session,
			AllTimeBaseline: s.snap.AllTimeBaseline,
			AllTimeFused:    s.snap.AllTimeFused,
		}
	}
	switch ev.Kind {
	case step.EventCandidate:
		s.snap.AllTimeBaseline++
		if ev.Count > s.snap.Baseline {
			s.snap.Baseline = ev.Count
		}
	case step.EventFused:
		s.snap.AllTimeFused++
		if ev.Count > s.snap.Fused {
			s.snap.Fused = ev.Count
		}
		s.snap.LastFusedNanos = ev.TimestampNanos
		s.snap.LastDecision = ev.Decision
	}
	s.snap.UpdatedAt = time.Now().UTC()
	s.have = true
}

// Seed replaces the state, e.g. with what the step log held at startup.
func (s *StepState) Seed(snap StepSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.have = true
}

// Snapshot returns the current state and whether any event was seen.
func (s *StepState) Snapshot() (StepSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.have
}

// WebServer serves the step API, the live stream, metrics and the static
// dashboard.
type WebServer struct {
	router  *mux.Router
	state   *StepState
	hub     *StepHub
	metrics *Metrics
	log     *zap.Logger

	historyMu sync.RWMutex
	history   StepHistory
}

// NewWebServer wires the routes. staticDir may be empty.
func NewWebServer(metrics *Metrics, gatherer prometheus.Gatherer, staticDir string, log *zap.Logger) *WebServer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &WebServer{
		router:  mux.NewRouter(),
		state:   &StepState{},
		hub:     NewStepHub(metrics, log),
		metrics: metrics,
		log:     log,
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/steps", s.handleSteps).Methods(http.MethodGet)
	s.router.HandleFunc("/api/steps/recent", s.handleRecent).Methods(http.MethodGet)
	s.router.Handle("/ws/steps", s.hub)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if staticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *WebServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HandleEvent updates the state and pushes ev to websocket clients.
func (s *WebServer) HandleEvent(ev step.Event) {
	s.state.Apply(ev)
	s.hub.Broadcast(ev)
	if s.metrics != nil {
		s.metrics.WebEvents.WithLabelValues(string(ev.Kind)).Inc()
	}
}

// Seed loads totals and the latest events from h so /api/steps answers
// before the first live event, and enables /api/steps/recent.
func (s *WebServer) Seed(ctx context.Context, h StepHistory) error {
	s.historyMu.Lock()
	s.history = h
	s.historyMu.Unlock()

	var snap StepSnapshot
	var err error
	if snap.AllTimeBaseline, err = h.Total(ctx, step.EventCandidate); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if snap.AllTimeFused, err = h.Total(ctx, step.EventFused); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fused, err := h.Recent(ctx, step.EventFused, 1)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	candidates, err := h.Recent(ctx, step.EventCandidate, 1)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	if len(fused) == 0 && len(candidates) == 0 {
		return nil
	}
	if len(fused) > 0 {
		last := fused[0]
		snap.Session = last.Session
		snap.Fused = last.Count
		snap.LastFusedNanos = last.TimestampNanos
		snap.LastDecision = last.Decision
	}
	if len(candidates) > 0 {
		if snap.Session == "" {
			snap.Session = candidates[0].Session
		}
		if candidates[0].Session == snap.Session {
			snap.Baseline = candidates[0].Count
		}
	}
	snap.UpdatedAt = time.Now().UTC()
	s.state.Seed(snap)
	return nil
}

func (s *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"clients":   s.hub.Clients(),
	})
}

func (s *WebServer) handleSteps(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.state.Snapshot()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.log, snap)
}

func (s *WebServer) handleRecent(w http.ResponseWriter, r *http.Request) {
	s.historyMu.RLock()
	h := s.history
	s.historyMu.RUnlock()
	if h == nil {
		http.Error(w, "no step history configured", http.StatusNotFound)
		return
	}

	kind := step.EventFused
	switch q := r.URL.Query().Get("kind"); q {
	case "", string(step.EventFused):
	case string(step.EventCandidate):
		kind = step.EventCandidate
	default:
		http.Error(w, fmt.Sprintf("unknown kind %q", q), http.StatusBadRequest)
		return
	}

	n := int64(defaultRecentSteps)
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.ParseInt(q, 10, 64)
		if err != nil || v < 1 || v > maxRecentSteps {
			http.Error(w, fmt.Sprintf("n must be 1..%d", maxRecentSteps), http.StatusBadRequest)
			return
		}
		n = v
	}

	events, err := h.Recent(r.Context(), kind, n)
	if err != nil {
		s.log.Warn("http: step history read failed", zap.Error(err))
		http.Error(w, "step history unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.log, events)
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("http: json encode error", zap.Error(err))
	}
}

// serveHTTP runs an HTTP server until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http: listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.SetKeepAlivesEnabled(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", addr, err)
	}
	return nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// RunWeb subscribes to step events over MQTT and serves them over HTTP.
func RunWeb() error {
	cfg := config.Get()
	log := applog.Named("web")

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	srv := NewWebServer(metrics, reg, "web", log)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}
	defer client.Disconnect(250)
	log.Info("connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

	ctx, stop := signalContext()
	defer stop()

	if cfg.RedisAddr != "" {
		steplog, err := store.NewRedisStepLog(ctx, cfg.RedisAddr, cfg.RedisKeyPrefix, cfg.RedisStepLogLen)
		if err != nil {
			return fmt.Errorf("web: %w", err)
		}
		defer steplog.Close()
		// Seed before subscribing so live events land on top of the stored state.
		if err := srv.Seed(ctx, steplog); err != nil {
			log.Warn("step history seed failed", zap.Error(err))
		}
	}

	for _, topic := range []string{cfg.TopicStepCandidate, cfg.TopicStepFused} {
		if err := subscribeJSON(client, topic, log, srv.HandleEvent); err != nil {
			return fmt.Errorf("web: %w", err)
		}
	}

	return serveHTTP(ctx, fmt.Sprintf(":%d", cfg.WebServerPort), srv, log)
}
