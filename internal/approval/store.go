// Package approval holds decisions that need a human: every queued or
// escalated decision becomes a pending file until someone approves or
// denies it. An approved decision can be consumed once, when it executes.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/actiongate/internal/event"
	"github.com/ppiankov/actiongate/internal/model"
)

var (
	// ErrNotFound reports an unknown decision ID.
	ErrNotFound = errors.New("approval not found")
	// ErrResolved reports an attempt to resolve an approval twice.
	ErrResolved = errors.New("approval already resolved")
	// ErrNotApproved reports consuming an approval that is not approved.
	ErrNotApproved = errors.New("approval not approved")
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// Status represents the state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusConsumed Status = "consumed"
	StatusExpired  Status = "expired"
)

// Approval is one decision awaiting (or past) human review.
type Approval struct {
	Key        string         `json:"key"`
	Status     Status         `json:"status"`
	Decision   model.Decision `json:"decision"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	Note       string         `json:"note,omitempty"`
}

// Store manages approval files on disk, one JSON file per decision.
type Store struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("cannot create approval directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Request files a pending approval for d. Only queued and escalated
// decisions need one. No-op if the decision is already filed.
func (s *Store) Request(d model.Decision) error {
	if err := validateKey(d.ID); err != nil {
		return fmt.Errorf("invalid approval key: %w", err)
	}
	if d.Outcome != model.QueueApproval && d.Outcome != model.Escalate {
		return fmt.Errorf("decision %s is %s and needs no approval", d.ID, d.Outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(d.ID)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return s.writeAtomic(path, Approval{
		Key:       d.ID,
		Status:    StatusPending,
		Decision:  d,
		CreatedAt: s.now().UTC(),
	})
}

// Approve marks a pending approval as approved.
func (s *Store) Approve(key, by, note string) (*Approval, error) {
	return s.resolve(key, StatusApproved, by, note)
}

// Deny marks a pending approval as denied.
func (s *Store) Deny(key, by, note string) (*Approval, error) {
	return s.resolve(key, StatusDenied, by, note)
}

func (s *Store) resolve(key string, to Status, by, note string) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.load(key)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrResolved, key, a.Status)
	}
	now := s.now().UTC()
	a.Status = to
	a.ResolvedAt = &now
	a.ResolvedBy = by
	a.Note = note
	if err := s.writeAtomic(s.path(key), *a); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns one approval.
func (s *Store) Get(key string) (*Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(key)
}

// Consume marks an approved decision as executed and returns it. An
// approval can be consumed once.
func (s *Store) Consume(key string) (model.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.load(key)
	if err != nil {
		return model.Decision{}, err
	}
	if a.Status != StatusApproved {
		return model.Decision{}, fmt.Errorf("%w: %s is %s", ErrNotApproved, key, a.Status)
	}
	a.Status = StatusConsumed
	if err := s.writeAtomic(s.path(key), *a); err != nil {
		return model.Decision{}, err
	}
	return a.Decision, nil
}

// Expire marks pending approvals older than maxAge as expired and
// returns how many changed. Usage limits are per day, so a stale
// approval would be judged against limits that no longer apply.
func (s *Store) Expire(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.list()
	if err != nil {
		return 0, err
	}
	cutoff := s.now().UTC().Add(-maxAge)
	n := 0
	for _, a := range all {
		if a.Status != StatusPending || !a.CreatedAt.Before(cutoff) {
			continue
		}
		a.Status = StatusExpired
		if err := s.writeAtomic(s.path(a.Key), a); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// List returns approvals, oldest first. With statuses given, only those
// statuses are returned.
func (s *Store) List(statuses ...Status) ([]Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.list()
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return all, nil
	}
	out := all[:0]
	for _, a := range all {
		if slices.Contains(statuses, a.Status) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) list() ([]Approval, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var approvals []Approval
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		a, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		approvals = append(approvals, *a)
	}
	slices.SortFunc(approvals, func(a, b Approval) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	return approvals, nil
}

// Cleanup removes all approval files in the store.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Track files every queued and escalated decision from sub until ctx
// is done or the subscription closes.
func (s *Store) Track(ctx context.Context, sub *event.Subscription) error {
	var errs []error
	for {
		select {
		case <-ctx.Done():
			return errors.Join(append(errs, ctx.Err())...)
		case e, ok := <-sub.C:
			if !ok {
				return errors.Join(errs...)
			}
			if e.Decision == nil || (e.Type != event.DecisionQueued && e.Type != event.DecisionEscalated) {
				continue
			}
			if err := s.Request(*e.Decision); err != nil {
				errs = append(errs, err)
			}
		}
	}
}

func (s *Store) load(key string) (*Approval, error) {
	if err := validateKey(key); err != nil {
		return nil, fmt.Errorf("invalid approval key: %w", err)
	}
	a, err := s.read(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return a, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *Store) read(key string) (*Approval, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, err
	}
	var a Approval
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) writeAtomic(path string, a Approval) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
