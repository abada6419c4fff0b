package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/goliatone/go-job/queue"
	"golang.org/x/sync/errgroup"

	resultlink "github.com/goliatone/go-resultlink"
	"github.com/goliatone/go-resultlink/adapters/gocommand"
	"github.com/goliatone/go-resultlink/adapters/gojob"
	"github.com/goliatone/go-resultlink/core"
	"github.com/goliatone/go-resultlink/httpapi"
)

const readHeaderTimeout = 5 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the page view retention worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, !skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on start")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, migrate bool) error {
	a, err := bootstrap(ctx, opts, migrate)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := resultlink.Setup(a.config, resultlink.NewExtensionHooks(),
		resultlink.WithLoggerProvider(a.logs),
		resultlink.WithPersistenceClient(a.client),
		resultlink.WithRepositoryFactory(a.stores),
	)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	facade, err := resultlink.NewFacade(svc)
	if err != nil {
		return err
	}

	registry := gocommand.NewRegistryAdapter(nil)
	subscriptions, err := gocommand.RegisterFacade(registry, facade)
	if err != nil {
		return err
	}
	defer subscriptions.Unsubscribe()
	if err := registry.Initialize(); err != nil {
		return fmt.Errorf("initialize command registry: %w", err)
	}

	handler, err := httpapi.New(facade,
		httpapi.WithRoutes(svc.Routes()),
		httpapi.WithLogger(a.logs.GetLogger("httpapi")),
		httpapi.WithHealthCheck(func(ctx context.Context) error {
			return a.client.DB().PingContext(ctx)
		}),
	)
	if err != nil {
		return err
	}

	cfg := a.config
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		a.logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.logger.Info("http server shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Events.RetentionTTL > 0 && cfg.Events.PruneInterval > 0 {
		retentionLogger := a.logs.GetLogger("retention")
		enqueuer, dequeuer, err := retentionQueue(ctx, a)
		if err != nil {
			return err
		}
		worker, err := gojob.NewRetentionWorker(dequeuer, a.stores.PageViews(),
			gojob.WithLogger(retentionLogger),
			gojob.WithHook(&gojob.LoggingHook{Logger: retentionLogger}),
		)
		if err != nil {
			return err
		}
		group.Go(func() error {
			return ignoreCancel(worker.Run(groupCtx))
		})
		group.Go(func() error {
			return ignoreCancel(gojob.NewEnqueuerAdapter(enqueuer).Schedule(groupCtx, cfg.Events.RetentionTTL, cfg.Events.PruneInterval, func(err error) {
				retentionLogger.Warn("retention enqueue failed", "error", err.Error())
			}))
		})
		retentionLogger.Info("retention worker started", "queue", cfg.Events.Queue, "interval", cfg.Events.PruneInterval.String())
	}

	return group.Wait()
}

// retentionQueue returns the queue configured by events.queue. The database
// queue lives next to the page_views table so replicas share it.
func retentionQueue(ctx context.Context, a *app) (queue.Enqueuer, queue.Dequeuer, error) {
	if strings.EqualFold(strings.TrimSpace(a.config.Events.Queue), core.EventQueueMemory) {
		q := gojob.NewMemoryQueue(0)
		return q, q, nil
	}
	q, err := gojob.NewSQLQueue(ctx, a.client.DB().DB, a.dialect)
	if err != nil {
		return nil, nil, err
	}
	return q, q, nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
