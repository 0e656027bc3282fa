package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/approval"
	"github.com/ppiankov/actiongate/internal/config"
)

var (
	pendingAll    bool
	pendingJSON   bool
	pendingMaxAge time.Duration
	resolveBy     string
	resolveNote   string
	approveRecord bool
)

func init() {
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(denyCmd)
	pendingCmd.Flags().BoolVar(&pendingAll, "all", false, "Include resolved, consumed and expired decisions")
	pendingCmd.Flags().BoolVar(&pendingJSON, "json", false, "Print approvals as JSON")
	pendingCmd.Flags().DurationVar(&pendingMaxAge, "max-age", 24*time.Hour, "Expire pending decisions older than this (0 keeps them)")
	for _, c := range []*cobra.Command{approveCmd, denyCmd} {
		c.Flags().StringVar(&resolveBy, "by", "", "Who resolved the decision")
		c.Flags().StringVar(&resolveNote, "note", "", "Free-form note kept with the decision")
	}
	approveCmd.Flags().BoolVar(&approveRecord, "record", false, "Record the approved action as executed")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List decisions waiting for approval",
	Long: "Queued and escalated decisions are filed in approvals_dir as they are\n" +
		"routed. Pending entries older than --max-age are marked expired first.",
	Args: cobra.NoArgs,
	RunE: runPending,
}

var approveCmd = &cobra.Command{
	Use:   "approve <decision-id>",
	Short: "Approve a queued or escalated decision",
	Long: "Marks a pending decision approved. With --record the action is counted\n" +
		"against today's usage and the approval is consumed.",
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

var denyCmd = &cobra.Command{
	Use:   "deny <decision-id>",
	Short: "Deny a queued or escalated decision",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeny,
}

func openApprovals(cfg *config.Config) (*approval.Store, error) {
	if cfg.ApprovalsDir == "" {
		return nil, fmt.Errorf("approvals_dir is not configured")
	}
	return approval.NewStore(cfg.ApprovalsDir)
}

func runPending(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openApprovals(cfg)
	if err != nil {
		return err
	}
	if pendingMaxAge > 0 {
		n, err := store.Expire(pendingMaxAge)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("expired stale approvals", "count", n, "max_age", pendingMaxAge)
		}
	}

	var list []approval.Approval
	if pendingAll {
		list, err = store.List()
	} else {
		list, err = store.List(approval.StatusPending)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if pendingJSON {
		if list == nil {
			list = []approval.Approval{}
		}
		return writeJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No pending decisions")
		return nil
	}
	for _, a := range list {
		printApproval(out, a)
	}
	return nil
}

func runApprove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openApprovals(cfg)
	if err != nil {
		return err
	}
	a, err := store.Approve(args[0], resolveBy, resolveNote)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Approved %s\n", a.Key)
	if !approveRecord {
		return nil
	}

	r, usageStore, err := openRouter(ctx, cfg)
	if err != nil {
		return err
	}
	defer usageStore.Close()
	d, err := store.Consume(a.Key)
	if err != nil {
		return err
	}
	if err := r.RecordExecution(ctx, d); err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	fmt.Fprintf(out, "Recorded %s (%s/%s)\n", d.Action.ID, d.Action.Category, d.Action.Type)
	return nil
}

func runDeny(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openApprovals(cfg)
	if err != nil {
		return err
	}
	a, err := store.Deny(args[0], resolveBy, resolveNote)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Denied %s\n", a.Key)
	return nil
}

func printApproval(w io.Writer, a approval.Approval) {
	d := a.Decision
	fmt.Fprintf(w, "%s  %-9s %-14s %s/%s/%s  risk %s %.2f\n",
		a.CreatedAt.Format("2006-01-02 15:04"), a.Status, d.Outcome,
		d.Action.Engine, d.Action.Category, d.Action.Type, d.Risk.Level, d.Risk.Score)
	fmt.Fprintf(w, "  id %s: %s\n", a.Key, d.Reason)
	if a.ResolvedBy != "" || a.Note != "" {
		fmt.Fprintf(w, "  by %s: %s\n", a.ResolvedBy, a.Note)
	}
}
