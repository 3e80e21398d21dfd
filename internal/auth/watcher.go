package auth

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig controls the credential reload scheduler.
type WatcherConfig struct {
	// Path is the credential file to watch.
	Path string
	// PollInterval is used when a filesystem watcher cannot be established.
	PollInterval time.Duration
	// Debounce coalesces bursts of change events into one reload.
	Debounce time.Duration
	Logger   *slog.Logger
}

// DefaultPollInterval is the mtime polling cadence of the fallback watcher.
const DefaultPollInterval = 10 * time.Second

const defaultDebounce = 250 * time.Millisecond

// WatchCredentials invokes reload whenever the credential file changes,
// using fsnotify on the file's directory with an mtime polling fallback.
// Reload failures are logged and never stop the watcher; it runs until the
// context is cancelled.
func WatchCredentials(ctx context.Context, cfg WatcherConfig, reload func() error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory rather than the file so atomic
		// rename-into-place updates keep being observed.
		if watchErr := watcher.Add(filepath.Dir(cfg.Path)); watchErr != nil {
			watcher.Close()
			watcher = nil
			err = watchErr
		}
	}
	if err != nil {
		logger.Warn("credential watcher unavailable, falling back to polling", "error", err, "interval", cfg.PollInterval)
		pollCredentials(ctx, cfg, reload, logger)
		return
	}
	defer watcher.Close()

	var (
		pending *time.Timer
		fire    <-chan time.Time
	)
	target := filepath.Clean(cfg.Path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(cfg.Debounce)
				fire = pending.C
			} else {
				pending.Reset(cfg.Debounce)
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("credential watcher error", "error", watchErr)
		case <-fire:
			pending = nil
			fire = nil
			runReload(reload, logger)
		}
	}
}

func pollCredentials(ctx context.Context, cfg WatcherConfig, reload func() error, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	lastMod := modTime(cfg.Path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := modTime(cfg.Path)
			if current.Equal(lastMod) {
				continue
			}
			lastMod = current
			runReload(reload, logger)
		}
	}
}

func runReload(reload func() error, logger *slog.Logger) {
	if err := reload(); err != nil {
		// The previously loaded credential set stays active.
		logger.Error("credential reload failed", "error", err)
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
