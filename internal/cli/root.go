// Package cli implements the actiongate command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/actiongate/internal/config"
	"github.com/ppiankov/actiongate/internal/router"
	"github.com/ppiankov/actiongate/internal/usage"
)

var (
	configPath string
	verbose    bool
	logger     = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "actiongate",
	Short: "Authorization gate for autonomous agent actions",
	Long: "Scores every action an autonomous engine proposes, checks it against hard\n" +
		"operational limits, and decides whether it may execute on its own, needs\n" +
		"approval, must be escalated to a human, or is rejected.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(cmd.ErrOrStderr(), verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.actiongate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging on stderr")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads --config and returns it with its hash.
func loadConfig() (*config.Config, string, error) {
	cfg, hash, err := config.LoadWithHash(configPath)
	if err != nil {
		return nil, "", err
	}
	logger.Debug("config loaded", "path", configPath, "hash", hash, "summary", cfg.Describe())
	return cfg, hash, nil
}

// openRouter builds a router over the configured usage store. The
// caller closes the store.
func openRouter(ctx context.Context, cfg *config.Config, opts ...router.Option) (*router.Router, usage.Store, error) {
	store, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open usage store: %w", err)
	}
	opts = append([]router.Option{router.WithLogger(logger), router.WithSixHats(nil)}, opts...)
	r, err := router.New(cfg.Router(), store, opts...)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return r, store, nil
}
