package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchCredentialsEmptyPathReturns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		WatchCredentials(context.Background(), WatcherConfig{Logger: testLogger()}, func() error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected watcher to return immediately without a path")
	}
}

func TestWatchCredentialsReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"svc": "deploy-bot"}`), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan struct{}, 1)
	go WatchCredentials(ctx, WatcherConfig{
		Path:     path,
		Debounce: 10 * time.Millisecond,
		Logger:   testLogger(),
	}, func() error {
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return nil
	})

	// Give the watcher a moment to register before touching the file.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"svc": "roster-sync"}`), 0o600); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload after the file changed")
	}
}

func TestPollCredentialsReloadsOnModTimeChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"svc": "deploy-bot"}`), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan struct{}, 1)
	cfg := WatcherConfig{Path: path, PollInterval: 10 * time.Millisecond}
	go pollCredentials(ctx, cfg, func() error {
		select {
		case reloaded <- struct{}{}:
		default:
		}
		return nil
	}, testLogger())

	// Give the poller a moment to record the baseline mtime before touching the file.
	time.Sleep(50 * time.Millisecond)
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload after the mtime changed")
	}
}
