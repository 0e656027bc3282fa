package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/model"
)

var (
	routeLevel  int
	routeRecord bool
	routeJSON   bool
)

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().IntVar(&routeLevel, "level", 0, "Override the configured autonomy level (1-4)")
	routeCmd.Flags().BoolVar(&routeRecord, "record", false, "Record the action as executed when it auto-executes")
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "Print the decision as JSON")
	routeCmd.Flags().BoolVar(&noAudit, "no-audit", false, "Do not write the decision to the audit log")
}

var routeCmd = &cobra.Command{
	Use:   "route [action-file]",
	Short: "Route one action and print the decision",
	Long: "Reads an action (YAML or JSON) from a file or stdin, classifies its risk,\n" +
		"checks it against today's usage and prints the routing decision.\n\n" +
		"With --record, an auto_execute decision is counted as executed. Queued and\n" +
		"escalated decisions are counted by approve --record instead.",
	Args: cobra.MaximumNArgs(1),
	RunE: runRoute,
}

func runRoute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	data, err := readInput(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	a, err := decodeAction(data)
	if err != nil {
		return err
	}

	cfg, hash, err := loadConfig()
	if err != nil {
		return err
	}
	if routeLevel != 0 {
		cfg.AutonomyLevel = model.AutonomyLevel(routeLevel)
	}
	r, store, err := openRouter(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := startSinks(ctx, r.Bus(), cfg, func() string { return hash })
	if err != nil {
		return err
	}
	d, err := r.Route(ctx, a)
	if stopErr := s.stop(); stopErr != nil {
		logger.Warn("sink shutdown", "error", stopErr)
	}
	if err != nil {
		return err
	}

	if routeRecord && d.Outcome == model.AutoExecute {
		if err := r.RecordExecution(ctx, d); err != nil {
			return fmt.Errorf("record execution: %w", err)
		}
	}

	if routeJSON {
		return writeJSON(cmd.OutOrStdout(), d)
	}
	printDecision(cmd.OutOrStdout(), d)
	return nil
}
