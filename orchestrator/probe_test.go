package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitReadySucceedsAfterRetries(t *testing.T) {
	var calls int32
	probe := func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}

	err := WaitReady(context.Background(), probe, time.Millisecond, 5)
	if err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestWaitReadyExhaustsAttempts(t *testing.T) {
	probeErr := errors.New("still down")
	probe := func(context.Context) error { return probeErr }

	err := WaitReady(context.Background(), probe, time.Millisecond, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, probeErr) {
		t.Errorf("err = %v, want wrapped probe error", err)
	}
}

func TestWaitReadyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probe := func(context.Context) error { return errors.New("down") }
	err := WaitReady(ctx, probe, time.Minute, 10)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestHTTPProbe(t *testing.T) {
	healthy := atomic.Bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	probe := HTTPProbe(srv.Client(), srv.URL)

	if err := probe(context.Background()); err == nil {
		t.Error("expected failure while unhealthy")
	}
	healthy.Store(true)
	if err := probe(context.Background()); err != nil {
		t.Errorf("probe while healthy: %v", err)
	}
}
