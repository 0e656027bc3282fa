package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of a log verification.
type VerifyResult struct {
	Valid     bool           `json:"valid"`
	Lines     int            `json:"lines"`
	Outcomes  map[string]int `json:"outcomes,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorLine int            `json:"error_line,omitempty"`
}

// Verify walks the log and checks every link of the hash chain, and that
// each entry is a decision the routing policy can produce. It reports the
// first failure and, for a valid log, how many decisions ended in each
// outcome.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	v := verifier{prev: GenesisHash, outcomes: map[string]int{}}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		v.line++
		if err := v.step(scanner.Bytes()); err != nil {
			return VerifyResult{Lines: v.line - 1, Error: err.Error(), ErrorLine: v.line}
		}
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}
	res := VerifyResult{Valid: true, Lines: v.line}
	if v.line > 0 {
		res.Outcomes = v.outcomes
	}
	return res
}

type verifier struct {
	line     int
	prev     string
	outcomes map[string]int
}

func (v *verifier) step(raw []byte) error {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("parse error: %v", err)
	}
	if e.PrevHash != v.prev {
		if v.line == 1 {
			return fmt.Errorf("first entry prev_hash is %q, expected genesis hash", e.PrevHash)
		}
		return fmt.Errorf("hash mismatch: expected %s, got %s", v.prev, e.PrevHash)
	}
	if err := e.Check(); err != nil {
		return err
	}
	v.prev = HashLine(raw)
	v.outcomes[e.Outcome]++
	return nil
}
