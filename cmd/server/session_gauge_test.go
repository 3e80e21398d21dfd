package main

import (
	"context"
	"testing"
	"time"
)

type fakeCounter struct {
	services int
	sessions int
}

func (f *fakeCounter) SessionCounts() (int, int) {
	return f.services, f.sessions
}

type fakeSink struct {
	calls chan [2]int
}

func newFakeSink() *fakeSink {
	return &fakeSink{calls: make(chan [2]int, 1)}
}

func (f *fakeSink) SetSessionCounts(services, sessions int) {
	select {
	case f.calls <- [2]int{services, sessions}:
	default:
	}
}

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
}

func newManualTicker() *manualTicker {
	return &manualTicker{
		c:       make(chan time.Time, 1),
		stopped: make(chan struct{}),
	}
}

func (m *manualTicker) C() <-chan time.Time {
	return m.c
}

func (m *manualTicker) Stop() {
	select {
	case <-m.stopped:
		return
	default:
		close(m.stopped)
	}
}

func (m *manualTicker) Tick() {
	select {
	case m.c <- time.Now():
	default:
	}
}

func TestStartSessionGaugeWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := newManualTicker()
	counter := &fakeCounter{services: 2, sessions: 5}
	sink := newFakeSink()

	stop := startSessionGaugeWorkerWithTicker(ctx, counter, sink, time.Minute, func(time.Duration) gaugeTicker {
		return ticker
	})

	ticker.Tick()
	select {
	case counts := <-sink.calls:
		if counts != [2]int{2, 5} {
			t.Fatalf("expected counts [2 5], got %v", counts)
		}
	case <-time.After(time.Second):
		t.Fatal("expected gauge update to be published")
	}

	cancel()
	stop()

	select {
	case <-ticker.stopped:
	case <-time.After(time.Second):
		t.Fatal("expected ticker to stop after context cancellation")
	}
}

func TestStartSessionGaugeWorkerDisabled(t *testing.T) {
	stop := startSessionGaugeWorker(context.Background(), nil, newFakeSink(), time.Minute)
	stop()
	stop()
}
