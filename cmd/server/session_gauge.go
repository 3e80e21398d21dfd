package main

import (
	"context"
	"sync"
	"time"
)

type sessionCounter interface {
	SessionCounts() (services, sessions int)
}

type sessionGaugeSink interface {
	SetSessionCounts(services, sessions int)
}

type gaugeTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) gaugeTicker

// startSessionGaugeWorker periodically publishes the registry population to
// the metrics recorder. The returned stop function blocks until the worker
// has exited and is safe to call more than once.
func startSessionGaugeWorker(ctx context.Context, counter sessionCounter, sink sessionGaugeSink, interval time.Duration) func() {
	return startSessionGaugeWorkerWithTicker(ctx, counter, sink, interval, func(d time.Duration) gaugeTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startSessionGaugeWorkerWithTicker(
	ctx context.Context,
	counter sessionCounter,
	sink sessionGaugeSink,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if counter == nil || sink == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	done := make(chan struct{})
	go func() {
		defer func() {
			ticker.Stop()
			close(done)
		}()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				services, sessions := counter.SessionCounts()
				sink.SetSessionCounts(services, sessions)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
