package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func FuzzVerify(f *testing.F) {
	tmpDir := f.TempDir()
	validLog := filepath.Join(tmpDir, "valid.jsonl")
	al, err := Open(validLog)
	if err != nil {
		f.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		al.Record(Entry{
			DecisionID:    "d-fuzz",
			Kind:          KindAction,
			Subject:       Subject{ID: "a-fuzz", Type: "market_buy"},
			Outcome:       "queue_approval",
			RiskLevel:     "medium",
			AutonomyLevel: 2,
			ConfigHash:    "sha256:test",
		})
	}
	al.Close()
	validData, _ := os.ReadFile(validLog)
	f.Add(validData)

	f.Add([]byte{})

	f.Add([]byte(`{"not":"a valid entry"}` + "\n"))

	f.Add([]byte(`not json`))

	f.Fuzz(func(t *testing.T, data []byte) {
		tmpFile := filepath.Join(t.TempDir(), "fuzz.jsonl")
		os.WriteFile(tmpFile, data, 0644)

		Verify(tmpFile)
		Query(tmpFile, Filter{Last: 2})
	})
}
