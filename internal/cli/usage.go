package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/boundary"
	"github.com/ppiankov/actiongate/internal/usage"
)

var (
	usageDate  string
	usageJSON  bool
	usageForce bool
)

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageShowCmd)
	usageCmd.AddCommand(usageResetCmd)
	usageCmd.AddCommand(usagePruneCmd)
	usageShowCmd.Flags().StringVar(&usageDate, "date", "", "UTC day to show (YYYY-MM-DD, default today)")
	usageShowCmd.Flags().BoolVar(&usageJSON, "json", false, "Print usage as JSON")
	usageResetCmd.Flags().BoolVar(&usageForce, "yes", false, "Confirm clearing all usage")
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect or reset recorded usage",
	Long:  "Usage counters are what daily and weekly boundaries are checked against.",
}

var usageShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show usage counters for one day",
	RunE:  runUsageShow,
}

var usageResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all recorded usage",
	Long:  "Drops every counter in the configured usage store. Requires --yes.",
	RunE:  runUsageReset,
}

var usagePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop usage older than the weekly window",
	Long:  "Removes days no boundary reads any more. Redis keys expire on their own.",
	Args:  cobra.NoArgs,
	RunE:  runUsagePrune,
}

func runUsageShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	r, store, err := openRouter(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var du boundary.DailyUsage
	if usageDate == "" {
		du, err = r.Checker().Today(ctx)
	} else if _, perr := time.Parse(usage.DateLayout, usageDate); perr != nil {
		return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", usageDate)
	} else {
		du, err = r.Checker().GetOrCreateUsage(ctx, usageDate)
	}
	if err != nil {
		return err
	}
	blog, err := r.Checker().GetWeeklyBlogCount(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if usageJSON {
		return writeJSON(out, map[string]any{"usage": du, "weekly_blog_posts": blog})
	}
	b := cfg.Boundaries
	fmt.Fprintf(out, "Usage for %s (%s backend)\n", du.Date, cfg.Usage.Backend)
	for _, bucket := range usage.Buckets {
		fmt.Fprintf(out, "  %-14s %5d actions  %10s spend\n", bucket, du.Count(bucket), du.Spend(bucket).StringFixed(2))
	}
	fmt.Fprintf(out, "Limits: trades %d/%d, posts %d/%d, builds %d/%d, spend %s/%.2f\n",
		du.Count(usage.BucketTrading), b.Trading.MaxDailyTrades,
		du.Count(usage.BucketContent), b.Content.MaxDailyPosts,
		du.Count(usage.BucketBuild), b.Build.MaxDailyBuilds,
		du.Spend(usage.BucketTotal).StringFixed(2), b.MaxDailySpend)
	fmt.Fprintf(out, "Blog posts in the last 7 days: %d/%d\n", blog, b.Content.MaxWeeklyBlogPosts)
	return nil
}

func runUsageReset(cmd *cobra.Command, args []string) error {
	if !usageForce {
		return fmt.Errorf("refusing to clear usage without --yes")
	}
	ctx := cmd.Context()
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	r, store, err := openRouter(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := r.Checker().ResetDailyUsage(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Usage cleared (%s backend)\n", cfg.Usage.Backend)
	return nil
}

func runUsagePrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	r, store, err := openRouter(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	n, err := r.Checker().PruneUsage(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d counters (%s backend)\n", n, cfg.Usage.Backend)
	return nil
}
