package reload

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/actiongate/internal/config"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/router"
	"github.com/ppiankov/actiongate/internal/usage"
)

func setup(t *testing.T, body string) (string, *router.Router, *Reloader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	write(t, path, body)
	cfg, hash, err := config.LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	r, err := router.New(cfg.Router(), usage.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	return path, r, New(path, r, hash, WithDebounce(20*time.Millisecond))
}

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestReloadAppliesPolicy(t *testing.T) {
	path, r, rl := setup(t, "autonomy_level: 2\n")
	before := rl.Hash()

	write(t, path, "autonomy_level: 3\nboundaries:\n  trading:\n    max_daily_trades: 1\n")
	applied, err := rl.Reload()
	if err != nil || !applied {
		t.Fatalf("expected reload applied, got %v %v", applied, err)
	}
	if r.AutonomyLevel() != model.AutonomySupervised {
		t.Errorf("expected level 3, got %d", r.AutonomyLevel())
	}
	if r.Checker().Boundaries().Trading.MaxDailyTrades != 1 {
		t.Error("boundaries not applied")
	}
	if rl.Hash() == before {
		t.Error("hash should change after reload")
	}
}

func TestReloadSkipsUnchanged(t *testing.T) {
	_, _, rl := setup(t, "autonomy_level: 2\n")
	var calls atomic.Int32
	rl.onReload = func(*config.Config, string) { calls.Add(1) }

	applied, err := rl.Reload()
	if err != nil || applied {
		t.Errorf("unchanged file should be skipped, got %v %v", applied, err)
	}
	if calls.Load() != 0 {
		t.Error("callback ran for unchanged file")
	}
}

func TestInvalidFileKeepsPreviousPolicy(t *testing.T) {
	path, r, rl := setup(t, "autonomy_level: 3\n")
	before := rl.Hash()

	for _, body := range []string{"autonomy_level: 9\n", "boundaries: [\n", "risk:\n  weights:\n    financial: -1\n"} {
		write(t, path, body)
		if _, err := rl.Reload(); err == nil {
			t.Errorf("expected error for %q", body)
		}
		if r.AutonomyLevel() != model.AutonomySupervised {
			t.Errorf("level changed after invalid file %q", body)
		}
		if rl.Hash() != before {
			t.Error("hash changed after invalid file")
		}
	}
}

func TestRunReloadsOnWrite(t *testing.T) {
	path, r, rl := setup(t, "autonomy_level: 2\n")
	reloaded := make(chan string, 1)
	rl.onReload = func(_ *config.Config, hash string) { reloaded <- hash }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rl.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	write(t, path, "autonomy_level: 4\n")

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
	if r.AutonomyLevel() != model.AutonomyFull {
		t.Errorf("expected level 4, got %d", r.AutonomyLevel())
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestRunMissingDirectory(t *testing.T) {
	rl := New(filepath.Join(t.TempDir(), "gone", "config.yaml"), nil, "")
	if err := rl.Run(context.Background()); err == nil {
		t.Error("expected error watching a missing directory")
	}
}
