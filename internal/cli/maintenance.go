package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", a.dialect)
			return nil
		},
	}
}

func newPruneCommand(opts *rootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete page view events older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			window := ttl
			if window <= 0 {
				window = a.config.Events.RetentionTTL
			}
			if window <= 0 {
				return fmt.Errorf("retention ttl is not configured")
			}
			deleted, err := a.stores.PageViews().Prune(cmd.Context(), window)
			if err != nil {
				return fmt.Errorf("prune page views: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d page view events older than %s\n", deleted, window)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "retention window; defaults to RESULTLINK_EVENTS_RETENTION_TTL")
	return cmd
}
