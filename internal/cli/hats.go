package cli

import (
	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/model"
	"github.com/ppiankov/actiongate/internal/risk"
	"github.com/ppiankov/actiongate/internal/sixhats"
)

var hatsJSON bool

func init() {
	rootCmd.AddCommand(hatsCmd)
	hatsCmd.Flags().BoolVar(&hatsJSON, "json", false, "Print the result as JSON")
}

var hatsCmd = &cobra.Command{
	Use:   "hats [action-file]",
	Short: "Deliberate on an action from six perspectives",
	Long: "Runs the six thinking hats over an action: facts (white), gut feel (red),\n" +
		"failure modes (black), benefits (yellow), alternatives (green) and process\n" +
		"(blue). The result is advisory and does not touch usage.",
	Args: cobra.MaximumNArgs(1),
	RunE: runHats,
}

func runHats(cmd *cobra.Command, args []string) error {
	data, err := readInput(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	a, err := decodeAction(data)
	if err != nil {
		return err
	}
	if err := model.ValidateAction(a); err != nil {
		return err
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := risk.NewClassifier(cfg.Risk)
	if err != nil {
		return err
	}

	res := sixhats.NewEvaluator(c).Evaluate(a, nil)
	if hatsJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	printHats(cmd.OutOrStdout(), res)
	return nil
}
