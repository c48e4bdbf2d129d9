package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/solarperformanceinsight/spi/internal/compute"
	"github.com/solarperformanceinsight/spi/internal/config"
	"github.com/solarperformanceinsight/spi/internal/metrics"
	"github.com/solarperformanceinsight/spi/internal/reconciler"
	"github.com/solarperformanceinsight/spi/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func buildWorkerCommand() *cobra.Command {
	var (
		withReconciler bool
		concurrency    int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start queue workers that compute jobs",
		Long: `Start a pool of workers pulling jobs off the queue. With --reconcile the
process also runs the queue reconciler loop (disable with --reconcile=false). Metrics are served on METRICS_PORT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if concurrency > 0 {
				cfg.Worker.Concurrency = concurrency
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, cfg, withReconciler)
		},
	}

	cmd.Flags().BoolVar(&withReconciler, "reconcile", true, "also run the queue reconciler")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "number of concurrent jobs (default WORKER_CONCURRENCY)")

	return cmd
}

func runWorker(ctx context.Context, cfg *config.Config, withReconciler bool) error {
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	col := newCollector()
	w := worker.New(b.store, compute.NewRegistry(compute.PVWatts{}), col)
	pool := worker.NewPool(b.queue, w, cfg.Worker.Concurrency, cfg.Worker.PollTimeout)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(ctx) })
	if withReconciler {
		r := reconciler.New(b.store, b.queue, cfg.Reconcile.Period, col)
		g.Go(func() error {
			slog.Info("reconciler started", "period", cfg.Reconcile.Period)
			return r.Run(ctx)
		})
	}
	if cfg.Metrics.Port > 0 {
		g.Go(func() error {
			return serveUntilDone(ctx, metricsServer(cfg.Metrics.Port, col))
		})
	}

	err = g.Wait()
	slog.Info("worker stopped")
	return err
}

func metricsServer(port int, col *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", col.Handler())
	return &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
}
