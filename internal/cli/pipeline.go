package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/model"
)

var (
	pipelineLevel int
	pipelineJSON  bool
)

func init() {
	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.Flags().IntVar(&pipelineLevel, "level", 0, "Override the configured autonomy level (1-4)")
	pipelineCmd.Flags().BoolVar(&pipelineJSON, "json", false, "Print the decision as JSON")
	pipelineCmd.Flags().BoolVar(&noAudit, "no-audit", false, "Do not write the decision to the audit log")
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline [pipeline-file]",
	Short: "Assess a multi-step tool pipeline",
	Long: "Reads a pipeline (YAML or JSON) from a file or stdin and scores it as a\n" +
		"whole: per-step tool risk, dangerous tool combinations, complexity and\n" +
		"sensitive data flowing to external steps.",
	Args: cobra.MaximumNArgs(1),
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	data, err := readInput(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	p, err := decodePipeline(data)
	if err != nil {
		return err
	}

	cfg, hash, err := loadConfig()
	if err != nil {
		return err
	}
	if pipelineLevel != 0 {
		cfg.AutonomyLevel = model.AutonomyLevel(pipelineLevel)
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
	d, err := r.RoutePipeline(ctx, p)
	if stopErr := s.stop(); stopErr != nil {
		logger.Warn("sink shutdown", "error", stopErr)
	}
	if err != nil {
		return err
	}

	if pipelineJSON {
		return writeJSON(cmd.OutOrStdout(), d)
	}
	printPipelineDecision(cmd.OutOrStdout(), d)
	return nil
}
