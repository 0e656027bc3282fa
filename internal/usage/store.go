// Package usage holds the only mutable state of the engine: per-day
// counters of executed actions and spend, keyed by UTC date and bucket.
//
// Backends are interchangeable. MemoryStore serves a single process,
// SQLiteStore a set of processes sharing one file, RedisStore a
// distributed deployment. Between a boundary check (read) and the usage
// record (atomic increment) there is a small window in which concurrent
// callers can over-admit; that is accepted in exchange for simplicity.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ppiankov/actiongate/internal/model"
)

// ErrUnavailable wraps every backend failure. Callers must fail closed.
var ErrUnavailable = errors.New("usage store unavailable")

// DateLayout is the layout of date keys.
const DateLayout = "2006-01-02"

// DateKey returns the UTC calendar-day key for t.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Bucket is one counter family within a day.
type Bucket string

const (
	BucketTrading       Bucket = "trading"
	BucketContent       Bucket = "content"
	BucketOperations    Bucket = "operations"
	BucketConfiguration Bucket = "configuration"
	BucketBlog          Bucket = "blog"
	BucketBuild         Bucket = "build"
	BucketTotal         Bucket = "total"
)

// Buckets lists every bucket in a stable order.
var Buckets = []Bucket{
	BucketTrading, BucketContent, BucketOperations, BucketConfiguration,
	BucketBlog, BucketBuild, BucketTotal,
}

// CategoryBucket maps an action category to its bucket.
func CategoryBucket(c model.Category) Bucket {
	return Bucket(c)
}

// Counter is the count of executed actions and their cumulative spend.
type Counter struct {
	Count int64           `json:"count"`
	Spend decimal.Decimal `json:"spend"`
}

// Add returns the sum of two counters.
func (c Counter) Add(o Counter) Counter {
	return Counter{Count: c.Count + o.Count, Spend: c.Spend.Add(o.Spend)}
}

// Store persists daily counters.
type Store interface {
	// Get returns the counter for (dateKey, bucket); missing entries are zero.
	Get(ctx context.Context, dateKey string, bucket Bucket) (Counter, error)
	// Increment atomically adds delta and returns the new value.
	Increment(ctx context.Context, dateKey string, bucket Bucket, delta Counter) (Counter, error)
	// Reset drops all counters.
	Reset(ctx context.Context) error
	Close() error
}

// Pruner is a Store that can drop old days. RedisStore does not need it:
// its keys expire on their own.
type Pruner interface {
	Prune(ctx context.Context, before string) (int64, error)
}

// spendScale is the number of decimal places persisted for spend.
// Backends store spend as an integer count of 1/100 units.
const spendScale = 2

func toMinor(d decimal.Decimal) int64 {
	return d.Shift(spendScale).Round(0).IntPart()
}

func fromMinor(n int64) decimal.Decimal {
	return decimal.New(n, -spendScale)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
