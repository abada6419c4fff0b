// Package cli implements the resultlinkd commands.
package cli

import (
	"context"
	"crypto/rand"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// rootOptions carries process-level inputs shared by every subcommand.
// environment replaces the process environment when non-nil.
type rootOptions struct {
	environment map[string]string
	logLevel    string
	random      io.Reader
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootOptions{random: rand.Reader})
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "resultlinkd",
		Short: "Shareable result link service",
		Long: `resultlinkd issues and resolves signed result-page links, relays the
analysis backend API and records page views.

Configuration is read from RESULTLINK_* environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newPruneCommand(opts),
		newKeygenCommand(opts),
		newTokenCommand(opts),
	)
	return root
}

// Execute runs the root command until SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}
