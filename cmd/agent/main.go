package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tallybook/internal/api"
	"tallybook/internal/metrics"
	"tallybook/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	cmd := &cli.Command{
		Name:  "tallybook",
		Usage: "Offline-first transaction queue and reconciliation agent",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "configs/config.yaml",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the agent: local API, connectivity monitor and reconciler",
				Action: withApp(serve),
			},
			{
				Name:   "drain",
				Usage:  "Reconcile queued entries once and print the result",
				Action: withApp(drainOnce),
			},
			{
				Name:   "pending",
				Usage:  "List entries not yet confirmed by the remote",
				Action: withApp(listPending),
			},
			{
				Name:  "prune",
				Usage: "Delete synced entries older than a cutoff",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Age of synced entries to delete (defaults to backup.prune_synced_after)",
					},
				},
				Action: withApp(prune),
			},
			{
				Name:   "export",
				Usage:  "Write the local ledger to an XLSX workbook",
				Action: withApp(exportLedger),
			},
			{
				Name:   "backup",
				Usage:  "Snapshot the queue database",
				Action: withApp(backup),
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("Fatal error")
	}
}

func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := newApp(ctx, cmd.Root().String("config"))
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, cmd, a)
	}
}

func serve(ctx context.Context, _ *cli.Command, a *app) error {
	logger := a.logger.With().Str("component", "agent-main").Logger()

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Connectivity.ProbeEnabled {
		g.Go(func() error {
			a.monitor.Run(ctx, a.cfg.Connectivity.ProbeInterval)
			return nil
		})
	}

	g.Go(func() error {
		a.reconciler.Start(ctx)
		return nil
	})

	g.Go(func() error {
		a.reports.Watch(ctx, a.broadcaster)
		return nil
	})

	g.Go(func() error {
		a.maintenance.Start(ctx)
		return nil
	})

	if a.cfg.API.Enabled {
		server := api.NewServer(a.cfg.API, api.Deps{
			Writer:  a.writer,
			Queue:   a.db,
			Drainer: a.reconciler,
			Conn:    a.monitor,
			Reports: a.reports,
			Signals: a.broadcaster,
		}, a.logger)

		g.Go(server.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if a.cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		g.Go(func() error {
			return serveMetrics(ctx, a.cfg.Monitoring.PrometheusPort, &logger)
		})
	}

	if pending, err := a.db.CountUnsynced(ctx); err == nil {
		metrics.SetUnsynced(pending)
		if pending > 0 {
			a.reconciler.Trigger(models.TriggerStartup)
		}
	}

	logger.Info().
		Bool("online", a.monitor.Online()).
		Bool("api", a.cfg.API.Enabled).
		Msg("Agent started")

	err := g.Wait()
	a.broadcaster.Close()
	logger.Info().Msg("Agent stopped")
	return err
}

func serveMetrics(ctx context.Context, port int, logger *zerolog.Logger) error {
	if port == 0 {
		port = 9090
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", port).Msg("Metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func drainOnce(ctx context.Context, _ *cli.Command, a *app) error {
	res, err := a.reconciler.Drain(ctx)
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return printJSON(res)
}

func listPending(ctx context.Context, _ *cli.Command, a *app) error {
	entries, err := a.db.ListUnsynced(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"count": len(entries), "entries": entries})
}

func prune(ctx context.Context, cmd *cli.Command, a *app) error {
	olderThan := cmd.Duration("older-than")
	if olderThan <= 0 {
		olderThan = a.cfg.Backup.PruneSyncedAfter
	}
	if olderThan <= 0 {
		return errors.New("prune: --older-than or backup.prune_synced_after is required")
	}

	n, err := a.db.Prune(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"pruned": n})
}

func exportLedger(ctx context.Context, _ *cli.Command, a *app) error {
	path, err := a.exporter.Export(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"path": path})
}

func backup(ctx context.Context, _ *cli.Command, a *app) error {
	path, err := a.maintenance.PerformBackup(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"path": path})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
