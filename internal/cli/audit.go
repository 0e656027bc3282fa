package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/audit"
	"github.com/ppiankov/actiongate/internal/model"
)

var (
	tailLines   int
	tailOutcome string
	tailKind    string
	tailSubject string
	tailSince   time.Duration
	tailFormat  string
)

var errAuditTampered = fmt.Errorf("audit log failed verification")

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show (0 for all)")
	auditTailCmd.Flags().StringVar(&tailOutcome, "outcome", "", "Only show this outcome")
	auditTailCmd.Flags().StringVar(&tailKind, "kind", "", "Only show action or pipeline decisions")
	auditTailCmd.Flags().StringVar(&tailSubject, "subject", "", "Only show this action or pipeline ID")
	auditTailCmd.Flags().DurationVar(&tailSince, "since", 0, "Only show decisions newer than this (e.g. 1h)")
	auditTailCmd.Flags().StringVarP(&tailFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained decision log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the decision log",
	Long:  "Walks the JSONL log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent decisions",
	Long:  "Reads the decision log, applies the filters and prints a timeline\nwith an outcome summary.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

// auditPath is args[0] or the configured audit_log.
func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.AuditLog == "" {
		return "", fmt.Errorf("no audit log path given and audit_log is not configured")
	}
	return cfg.AuditLog, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		for _, o := range []model.Outcome{model.AutoExecute, model.QueueApproval, model.Escalate, model.Reject} {
			if n := result.Outcomes[string(o)]; n > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-15s %d\n", o, n)
			}
		}
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return errAuditTampered
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	f := audit.Filter{
		Kind:      tailKind,
		SubjectID: tailSubject,
		Last:      tailLines,
	}
	if tailOutcome != "" {
		if f.Outcome, err = model.ParseOutcome(tailOutcome); err != nil {
			return fmt.Errorf("--outcome: %w", err)
		}
	}
	if tailSince > 0 {
		f.From = time.Now().Add(-tailSince)
	}
	res, err := audit.Query(path, f)
	if err != nil {
		return err
	}

	if tailFormat == "json" {
		out, err := audit.FormatJSON(res)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(res))
	return nil
}
