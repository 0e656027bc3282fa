// Package reload applies configuration file changes to a running router.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ppiankov/actiongate/internal/boundary"
	"github.com/ppiankov/actiongate/internal/config"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/risk"
)

// DefaultDebounce is the quiet period after the last write before a reload.
const DefaultDebounce = 500 * time.Millisecond

// Target receives reloaded policy. *router.Router implements it.
type Target interface {
	SetAutonomyLevel(model.AutonomyLevel) error
	UpdateBoundaries(boundary.Boundaries) error
	UpdateRiskConfig(risk.Config) error
}

// Option configures a Reloader.
type Option func(*Reloader)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reloader) { r.logger = l }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(r *Reloader) { r.debounce = d }
}

// WithOnReload registers a callback run after each applied reload.
func WithOnReload(fn func(cfg *config.Config, hash string)) Option {
	return func(r *Reloader) { r.onReload = fn }
}

// Reloader watches one config file and pushes its autonomy level,
// risk tuning and boundaries into a Target. A file that fails to load
// or validate leaves the previous policy in force.
type Reloader struct {
	path     string
	target   Target
	logger   *slog.Logger
	debounce time.Duration
	onReload func(*config.Config, string)

	mu   sync.Mutex
	hash string
}

// New creates a Reloader for path. hash is the digest of the config
// currently applied, as returned by config.LoadWithHash.
func New(path string, target Target, hash string, opts ...Option) *Reloader {
	r := &Reloader{path: path, target: target, hash: hash, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r
}

// Hash returns the digest of the config currently applied.
func (r *Reloader) Hash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hash
}

// Reload loads the file and applies it. It reports whether anything was
// applied; an unchanged file is skipped.
func (r *Reloader) Reload() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, hash, err := config.LoadWithHash(r.path)
	if err != nil {
		return false, err
	}
	if hash == r.hash {
		return false, nil
	}
	// Validated as a whole by LoadWithHash, so these only fail on
	// programming errors; stop at the first to keep state coherent.
	if err := r.target.UpdateRiskConfig(cfg.Risk); err != nil {
		return false, fmt.Errorf("apply risk config: %w", err)
	}
	if err := r.target.UpdateBoundaries(cfg.Boundaries); err != nil {
		return false, fmt.Errorf("apply boundaries: %w", err)
	}
	if err := r.target.SetAutonomyLevel(cfg.AutonomyLevel); err != nil {
		return false, fmt.Errorf("apply autonomy level: %w", err)
	}
	r.hash = hash
	if r.onReload != nil {
		r.onReload(cfg, hash)
	}
	return true, nil
}

// Run watches the file's directory and reloads after writes settle.
// Watching the directory survives editors that replace the file by
// rename. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %q: %w", dir, err)
	}
	name := filepath.Clean(r.path)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(r.debounce, r.reloadAndLog)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (r *Reloader) reloadAndLog() {
	applied, err := r.Reload()
	switch {
	case err != nil:
		r.logger.Error("config reload rejected, keeping previous policy", "path", r.path, "error", err)
	case applied:
		r.logger.Info("config reloaded", "path", r.path, "hash", r.Hash())
	}
}
