package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/actiongate/internal/model"
)

// readInput returns the contents of args[0], or of stdin when no file
// (or "-") is given.
func readInput(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}

// decodeAction accepts YAML or JSON.
func decodeAction(data []byte) (model.Action, error) {
	var a model.Action
	if err := yaml.Unmarshal(data, &a); err != nil {
		return model.Action{}, fmt.Errorf("parse action: %w", err)
	}
	return a, nil
}

// decodePipeline accepts YAML or JSON.
func decodePipeline(data []byte) (model.Pipeline, error) {
	var p model.Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return model.Pipeline{}, fmt.Errorf("parse pipeline: %w", err)
	}
	return p, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
