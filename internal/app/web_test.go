// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/step_computer/internal/step"
)

func newTestWebServer(t *testing.T) (*WebServer, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	srv := NewWebServer(NewMetrics(reg), reg, "", nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestWeb_Health(t *testing.T) {
	_, ts := newTestWebServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestWeb_Steps(t *testing.T) {
	srv, ts := newTestWebServer(t)

	resp, err := http.Get(ts.URL + "/api/steps")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	srv.HandleEvent(step.Event{Session: "a", Kind: step.EventCandidate, Count: 3})
	srv.HandleEvent(step.Event{Session: "a", Kind: step.EventFused, Count: 2, TimestampNanos: 99, Decision: "accepted"})

	resp, err = http.Get(ts.URL + "/api/steps")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap StepSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "a", snap.Session)
	assert.Equal(t, int64(3), snap.Baseline)
	assert.Equal(t, int64(2), snap.Fused)
	assert.Equal(t, int64(99), snap.LastFusedNanos)
	assert.Equal(t, "accepted", snap.LastDecision)
}

func TestWeb_MethodNotAllowed(t *testing.T) {
	_, ts := newTestWebServer(t)

	resp, err := http.Post(ts.URL+"/api/steps", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWeb_Metrics(t *testing.T) {
	srv, ts := newTestWebServer(t)
	srv.HandleEvent(step.Event{Kind: step.EventFused, Count: 1})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `step_web_events_total{kind="fused"} 1`)
}

func TestStepState_NewSessionResets(t *testing.T) {
	var s StepState
	s.Apply(step.Event{Session: "a", Kind: step.EventFused, Count: 10})
	s.Apply(step.Event{Session: "b", Kind: step.EventCandidate, Count: 1})

	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "b", snap.Session)
	assert.Equal(t, int64(1), snap.Baseline)
	assert.Zero(t, snap.Fused)
}

func TestWeb_StepStream(t *testing.T) {
	srv, ts := newTestWebServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/steps"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	want := step.Event{Session: "s", Kind: step.EventFused, TimestampNanos: 7, Count: 1, Decision: "accepted"}
	srv.HandleEvent(want)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got step.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, want, got)

	conn.Close()
	assert.Eventually(t, func() bool { return srv.hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

type fakeHistory struct {
	totals map[step.EventKind]int64
	recent map[step.EventKind][]step.Event // newest first
	err    error
}

func (f *fakeHistory) Total(_ context.Context, kind step.EventKind) (int64, error) {
	return f.totals[kind], f.err
}

func (f *fakeHistory) Recent(_ context.Context, kind step.EventKind, count int64) ([]step.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	evs := f.recent[kind]
	if int64(len(evs)) > count {
		evs = evs[:count]
	}
	return evs, nil
}

func TestWeb_SeedFromHistory(t *testing.T) {
	srv, ts := newTestWebServer(t)
	h := &fakeHistory{
		totals: map[step.EventKind]int64{step.EventCandidate: 40, step.EventFused: 37},
		recent: map[step.EventKind][]step.Event{
			step.EventFused: {
				{Session: "old", Kind: step.EventFused, TimestampNanos: 900, Count: 12, Decision: "accepted"},
				{Session: "old", Kind: step.EventFused, TimestampNanos: 800, Count: 11, Decision: "accepted"},
			},
			step.EventCandidate: {{Session: "old", Kind: step.EventCandidate, Count: 13}},
		},
	}
	require.NoError(t, srv.Seed(context.Background(), h))

	snap, ok := srv.state.Snapshot()
	require.True(t, ok, "a fresh web process answers from the step log")
	assert.Equal(t, "old", snap.Session)
	assert.Equal(t, int64(13), snap.Baseline)
	assert.Equal(t, int64(12), snap.Fused)
	assert.Equal(t, int64(900), snap.LastFusedNanos)
	assert.Equal(t, int64(37), snap.AllTimeFused)

	// A new detector session resets per-session counts but keeps totals.
	srv.HandleEvent(step.Event{Session: "new", Kind: step.EventFused, Count: 1})
	snap, _ = srv.state.Snapshot()
	assert.Equal(t, int64(1), snap.Fused)
	assert.Equal(t, int64(38), snap.AllTimeFused)
	assert.Equal(t, int64(40), snap.AllTimeBaseline)

	resp, err := http.Get(ts.URL + "/api/steps/recent?n=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var recent []step.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recent))
	require.Len(t, recent, 1)
	assert.Equal(t, int64(900), recent[0].TimestampNanos)
}

func TestWeb_SeedEmptyHistory(t *testing.T) {
	srv, _ := newTestWebServer(t)
	require.NoError(t, srv.Seed(context.Background(), &fakeHistory{}))

	_, ok := srv.state.Snapshot()
	assert.False(t, ok)
}

func TestWeb_SeedError(t *testing.T) {
	srv, _ := newTestWebServer(t)
	assert.Error(t, srv.Seed(context.Background(), &fakeHistory{err: errors.New("down")}))
}

func TestWeb_Recent(t *testing.T) {
	srv, ts := newTestWebServer(t)

	resp, err := http.Get(ts.URL + "/api/steps/recent")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no history configured")

	require.NoError(t, srv.Seed(context.Background(), &fakeHistory{}))

	tests := []struct {
		query string
		code  int
	}{
		{"", http.StatusOK},
		{"?kind=candidate&n=5", http.StatusOK},
		{"?kind=mag", http.StatusBadRequest},
		{"?n=0", http.StatusBadRequest},
		{"?n=abc", http.StatusBadRequest},
		{"?n=1001", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/steps/recent" + tt.query)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}
