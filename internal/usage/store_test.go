package usage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{"memory": NewMemoryStore()}

	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	stores["sqlite"] = sq

	if addr := os.Getenv("ACTIONGATE_REDIS_ADDR"); addr != "" {
		rs, err := OpenRedis(context.Background(), RedisOptions{
			Addr:      addr,
			KeyPrefix: "actiongate-test:" + t.Name(),
		})
		if err != nil {
			t.Fatalf("OpenRedis: %v", err)
		}
		if err := rs.Reset(context.Background()); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		stores["redis"] = rs
	}

	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestDateKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	ts := time.Date(2026, 3, 2, 5, 0, 0, 0, loc) // 2026-03-01 19:00 UTC
	if got := DateKey(ts); got != "2026-03-01" {
		t.Errorf("DateKey = %s, want 2026-03-01", got)
	}
}

func TestMissingCounterIsZero(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			c, err := s.Get(ctx, "2026-01-01", BucketTrading)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if c.Count != 0 || !c.Spend.IsZero() {
				t.Errorf("expected zero counter, got %+v", c)
			}
		})
	}
}

func TestIncrementAccumulates(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			delta := Counter{Count: 1, Spend: decimal.RequireFromString("10.25")}
			if _, err := s.Increment(ctx, "2026-01-01", BucketTrading, delta); err != nil {
				t.Fatalf("Increment: %v", err)
			}
			got, err := s.Increment(ctx, "2026-01-01", BucketTrading, delta)
			if err != nil {
				t.Fatalf("Increment: %v", err)
			}
			if got.Count != 2 {
				t.Errorf("expected count 2, got %d", got.Count)
			}
			if !got.Spend.Equal(decimal.RequireFromString("20.5")) {
				t.Errorf("expected spend 20.5, got %s", got.Spend)
			}

			read, err := s.Get(ctx, "2026-01-01", BucketTrading)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if read.Count != 2 || !read.Spend.Equal(got.Spend) {
				t.Errorf("Get disagrees with Increment: %+v vs %+v", read, got)
			}

			other, _ := s.Get(ctx, "2026-01-02", BucketTrading)
			if other.Count != 0 {
				t.Errorf("expected next day untouched, got %d", other.Count)
			}
		})
	}
}

func TestResetClearsAll(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			s.Increment(ctx, "2026-01-01", BucketContent, Counter{Count: 3})
			s.Increment(ctx, "2026-01-02", BucketBlog, Counter{Count: 1})
			if err := s.Reset(ctx); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			for _, day := range []string{"2026-01-01", "2026-01-02"} {
				for _, b := range Buckets {
					c, _ := s.Get(ctx, day, b)
					if c.Count != 0 {
						t.Errorf("%s/%s not reset: %d", day, b, c.Count)
					}
				}
			}
		})
	}
}

func TestConcurrentIncrementsNotLost(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			const workers = 8
			const perWorker = 25
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < perWorker; j++ {
						if _, err := s.Increment(ctx, "2026-01-01", BucketTotal, Counter{Count: 1, Spend: decimal.NewFromInt(1)}); err != nil {
							t.Errorf("Increment: %v", err)
							return
						}
					}
				}()
			}
			wg.Wait()

			c, err := s.Get(ctx, "2026-01-01", BucketTotal)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if c.Count != workers*perWorker {
				t.Errorf("expected %d, got %d", workers*perWorker, c.Count)
			}
			if !c.Spend.Equal(decimal.NewFromInt(workers * perWorker)) {
				t.Errorf("expected spend %d, got %s", workers*perWorker, c.Spend)
			}
		})
	}
}

func TestMemoryPrune(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Increment(ctx, "2026-01-01", BucketTrading, Counter{Count: 1})
	m.Increment(ctx, "2026-01-05", BucketTrading, Counter{Count: 1})

	var p Pruner = m
	if removed, err := p.Prune(ctx, "2026-01-03"); err != nil || removed != 1 {
		t.Errorf("expected 1 removed, got %d (%v)", removed, err)
	}
	kept, _ := m.Get(ctx, "2026-01-05", BucketTrading)
	if kept.Count != 1 {
		t.Error("expected recent day kept")
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "usage.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Increment(ctx, "2026-01-01", BucketBuild, Counter{Count: 4})
	s.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	c, err := s2.Get(ctx, "2026-01-01", BucketBuild)
	if err != nil {
		t.Fatal(err)
	}
	if c.Count != 4 {
		t.Errorf("expected 4 after reopen, got %d", c.Count)
	}

	n, err := s2.Prune(ctx, "2026-02-01")
	if err != nil || n != 1 {
		t.Errorf("expected 1 pruned row, got %d (%v)", n, err)
	}
}

func TestClosedSQLiteReportsUnavailable(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := s.Get(context.Background(), "2026-01-01", BucketTrading); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestMinorUnitConversion(t *testing.T) {
	d := decimal.RequireFromString("12.345")
	if got := toMinor(d); got != 1235 {
		t.Errorf("toMinor = %d, want 1235", got)
	}
	if got := fromMinor(1235); !got.Equal(decimal.RequireFromString("12.35")) {
		t.Errorf("fromMinor = %s", got)
	}
}
