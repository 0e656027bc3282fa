package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/actiongate/internal/model"
)

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Outcome   model.Outcome
	Kind      string
	SubjectID string
	From      time.Time
	To        time.Time
	// Last keeps only the newest N matching entries.
	Last int
}

// Summary counts outcomes across the selected entries.
type Summary struct {
	Total          int     `json:"total"`
	AutoExecute    int     `json:"auto_execute"`
	QueueApproval  int     `json:"queue_approval"`
	Escalate       int     `json:"escalate"`
	Reject         int     `json:"reject"`
	WithViolations int     `json:"with_violations"`
	Faults         int     `json:"faults"`
	MaxScore       float64 `json:"max_score"`
	FirstTimestamp string  `json:"first_timestamp"`
	LastTimestamp  string  `json:"last_timestamp"`
}

// Result holds the selected entries and their summary.
type Result struct {
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// Query reads the log and returns the entries matching f.
func Query(path string, f Filter) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // malformed lines are Verify's concern
		}
		if f.matches(e) {
			entries = append(entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	if f.Last > 0 && len(entries) > f.Last {
		entries = entries[len(entries)-f.Last:]
	}
	res := &Result{Entries: entries}
	for _, e := range entries {
		res.Summary.add(e)
	}
	return res, nil
}

func (f Filter) matches(e Entry) bool {
	if f.Outcome != "" && e.Outcome != string(f.Outcome) {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.SubjectID != "" && e.Subject.ID != f.SubjectID {
		return false
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		ts, err := time.Parse(TimestampFormat, e.Timestamp)
		if err != nil {
			return false
		}
		if !f.From.IsZero() && ts.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && ts.After(f.To) {
			return false
		}
	}
	return true
}

func (s *Summary) add(e Entry) {
	s.Total++
	switch model.Outcome(e.Outcome) {
	case model.AutoExecute:
		s.AutoExecute++
	case model.QueueApproval:
		s.QueueApproval++
	case model.Escalate:
		s.Escalate++
	case model.Reject:
		s.Reject++
	}
	if len(e.Violations) > 0 {
		s.WithViolations++
	}
	if e.Fault != "" {
		s.Faults++
	}
	if e.Score > s.MaxScore {
		s.MaxScore = e.Score
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
