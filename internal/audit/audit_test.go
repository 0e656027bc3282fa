package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	return l, path
}

func testEntry(outcome string) Entry {
	return Entry{
		Timestamp:     time.Now().UTC().Format(TimestampFormat),
		DecisionID:    "d-test123",
		Kind:          KindAction,
		Subject:       Subject{ID: "a-1", Engine: "money", Category: "trading", Type: "market_buy", Value: 10},
		Outcome:       outcome,
		RiskLevel:     "low",
		Score:         36.94,
		AutonomyLevel: 2,
		Reason:        "test reason",
		ConfigHash:    "sha256:abc123",
	}
}

func TestSequentialWritesProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 5; i++ {
		if err := l.Record(testEntry("auto_execute")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
	if result.Outcomes["auto_execute"] != 5 {
		t.Fatalf("expected 5 auto_execute outcomes, got %v", result.Outcomes)
	}
}

func TestRecordRefusesImpossibleDecisions(t *testing.T) {
	l, path := newTestLog(t)
	defer l.Close()

	critical := testEntry("queue_approval")
	critical.RiskLevel = "critical"
	violated := testEntry("auto_execute")
	violated.Violations = []string{"daily trade cap exceeded"}
	fault := testEntry("escalate")
	fault.Fault = "redis down"
	level := testEntry("escalate")
	level.AutonomyLevel = 5
	kind := testEntry("escalate")
	kind.Kind = "tool"

	tests := []struct {
		name  string
		entry Entry
	}{
		{"unknown outcome", testEntry("allow")},
		{"unknown kind", kind},
		{"autonomy out of range", level},
		{"critical queued", critical},
		{"auto with violation", violated},
		{"fault without violation", fault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := l.Record(tt.entry); !errors.Is(err, ErrMalformedEntry) {
				t.Fatalf("expected ErrMalformedEntry, got %v", err)
			}
		})
	}

	if info, _ := os.Stat(path); info.Size() != 0 {
		t.Fatalf("refused entries must not reach the log, size %d", info.Size())
	}
}

func TestVerifyDetectsImpossibleDecision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forged.jsonl")

	// A correctly chained log whose second entry lets a critical action run.
	forged := testEntry("auto_execute")
	forged.RiskLevel = "critical"
	var buf []byte
	prev := GenesisHash
	for _, e := range []Entry{testEntry("auto_execute"), forged, testEntry("escalate")} {
		e.PrevHash = prev
		line, _ := json.Marshal(e)
		buf = append(append(buf, line...), '\n')
		prev = HashLine(line)
	}
	os.WriteFile(path, buf, 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected forged decision to fail verification")
	}
	if result.ErrorLine != 2 || !strings.Contains(result.Error, "critical risk routed to auto_execute") {
		t.Fatalf("expected critical error at line 2, got line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 1 {
		t.Fatalf("expected 1 verified line before the failure, got %d", result.Lines)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		if err := l.Record(testEntry("auto_execute")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	// Flip the outcome of line 2.
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"auto_execute"`, `"reject"`, 1)
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 {
		t.Fatalf("expected error at line 3, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		if err := l.Record(testEntry("auto_execute")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	// Delete line 2 (middle entry)
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	remaining := []string{lines[0], lines[2]}
	os.WriteFile(path, []byte(strings.Join(remaining, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected chain with deleted entry to be invalid")
	}
	if result.ErrorLine != 2 {
		t.Fatalf("expected error at line 2, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsInsertedEntry(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		if err := l.Record(testEntry("auto_execute")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	// Insert a fabricated entry between lines 1 and 2
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	fake := testEntry("reject")
	fake.PrevHash = "sha256:fake"
	fakeJSON, _ := json.Marshal(fake)
	inserted := []string{lines[0], string(fakeJSON), lines[1], lines[2]}
	os.WriteFile(path, []byte(strings.Join(inserted, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected chain with inserted entry to be invalid")
	}
}

func TestEmptyLogPassesVerification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	os.WriteFile(path, []byte{}, 0644)

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected empty log to be valid, got: %s", result.Error)
	}
	if result.Lines != 0 {
		t.Fatalf("expected 0 lines, got %d", result.Lines)
	}
}

func TestConcurrentWritesSerializeCorrectly(t *testing.T) {
	l, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(testEntry("auto_execute"))
		}()
	}
	wg.Wait()
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after concurrent writes, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 100 {
		t.Fatalf("expected 100 lines, got %d", result.Lines)
	}
}

func TestGenesisHashIsCorrect(t *testing.T) {
	l, path := newTestLog(t)
	l.Record(testEntry("auto_execute"))
	l.Close()

	data, _ := os.ReadFile(path)
	var entry Entry
	json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry)

	if entry.PrevHash != GenesisHash {
		t.Fatalf("expected genesis hash %s, got %s", GenesisHash, entry.PrevHash)
	}
}

func TestHashLineIsDeterministic(t *testing.T) {
	line := []byte(`{"ts":"2026-01-15T10:30:00.000Z","seq":1,"decision_id":"d-abc","kind":"action","subject":{"id":"a-1"},"outcome":"escalate","risk_level":"critical","score":81,"autonomy_level":2,"reason":"ok","config_hash":"sha256:abc","prev_hash":"sha256:def"}`)
	h1 := HashLine(line)
	h2 := HashLine(line)
	if h1 != h2 {
		t.Fatalf("expected same hash, got %s and %s", h1, h2)
	}
	if !strings.HasPrefix(h1, "sha256:") {
		t.Fatalf("expected sha256: prefix, got %s", h1)
	}
	if len(h1) != 7+64 { // "sha256:" + 64 hex chars
		t.Fatalf("expected 71 char hash string, got %d", len(h1))
	}
}

func TestOpenExistingLogContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.jsonl")

	// Write 3 entries, close
	l1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		l1.Record(testEntry("auto_execute"))
	}
	l1.Close()

	// Reopen and write 2 more
	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		l2.Record(testEntry("reject"))
	}
	l2.Close()

	// Verify entire chain
	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after reopen, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestVerify10KEntriesUnder1Second(t *testing.T) {
	l, path := newTestLog(t)

	entry := testEntry("auto_execute")
	for i := 0; i < 10000; i++ {
		if err := l.Record(entry); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	start := time.Now()
	result := Verify(path)
	elapsed := time.Since(start)

	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 10000 {
		t.Fatalf("expected 10000 lines, got %d", result.Lines)
	}
	if elapsed > time.Second {
		t.Fatalf("verification took %v, expected < 1s", elapsed)
	}
}

func TestConfigHashChangesWithInput(t *testing.T) {
	h1 := HashLine([]byte("autonomy_level: 2"))
	h2 := HashLine([]byte("autonomy_level: 3"))
	if h1 == h2 {
		t.Fatal("expected different hashes for different inputs")
	}
}
