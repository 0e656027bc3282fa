package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/config"
	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/reload"
	"github.com/ppiankov/actiongate/internal/router"
)

var (
	watchRecordAuto bool
	watchNoReload   bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchRecordAuto, "record-auto", false, "Record auto_execute decisions as executed")
	watchCmd.Flags().BoolVar(&watchNoReload, "no-reload", false, "Do not hot-reload the config file")
	watchCmd.Flags().BoolVar(&noAudit, "no-audit", false, "Do not write decisions to the audit log")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Route a stream of JSONL actions from stdin",
	Long: "Reads one action or pipeline per line (JSON) from stdin and writes one\n" +
		"decision per line to stdout. Lines with a \"steps\" field are pipelines.\n\n" +
		"The config file is watched: edits to the autonomy level, risk tuning\n" +
		"and boundaries apply without a restart. An invalid edit is logged and\n" +
		"the previous policy stays in force.",
	Args: cobra.NoArgs,
	RunE: runWatch,
}

// watchError is written in place of a decision for lines that cannot be routed.
type watchError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, hash, err := loadConfig()
	if err != nil {
		return err
	}
	r, store, err := openRouter(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if n, err := r.Checker().PruneUsage(ctx); err != nil {
		logger.Warn("usage prune failed", "error", err)
	} else if n > 0 {
		logger.Info("usage pruned", "counters", n)
	}

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	rl := reload.New(path, r, hash, reload.WithLogger(logger))
	if !watchNoReload {
		go func() {
			if err := rl.Run(ctx); err != nil {
				logger.Warn("config hot reload disabled", "error", err)
			}
		}()
	}

	s, err := startSinks(ctx, r.Bus(), cfg, rl.Hash)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.stop(); err != nil {
			logger.Warn("sink shutdown", "error", err)
		}
	}()

	return routeStream(ctx, r, cmd.InOrStdin(), cmd.OutOrStdout(), watchRecordAuto)
}

// routeStream routes each JSONL line from in and writes one JSON result
// per line to out. It returns when in is exhausted or ctx is done.
func routeStream(ctx context.Context, r *router.Router, in io.Reader, out io.Writer, recordAuto bool) error {
	enc := json.NewEncoder(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		result, err := routeLine(ctx, r, line, recordAuto)
		if err != nil {
			result = watchError{Line: n, Error: err.Error()}
		}
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("write decision: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}

func routeLine(ctx context.Context, r *router.Router, line []byte, recordAuto bool) (any, error) {
	var shape struct {
		Steps json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(line, &shape); err != nil {
		return nil, fmt.Errorf("parse line: %w", err)
	}

	if shape.Steps != nil {
		var p model.Pipeline
		if err := json.Unmarshal(line, &p); err != nil {
			return nil, fmt.Errorf("parse pipeline: %w", err)
		}
		return r.RoutePipeline(ctx, p)
	}

	var a model.Action
	if err := json.Unmarshal(line, &a); err != nil {
		return nil, fmt.Errorf("parse action: %w", err)
	}
	d, err := r.Route(ctx, a)
	if err != nil {
		return nil, err
	}
	if recordAuto && d.Outcome == model.AutoExecute {
		if err := r.RecordExecution(ctx, d); err != nil {
			return nil, fmt.Errorf("record execution: %w", err)
		}
	}
	return d, nil
}
