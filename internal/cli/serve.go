package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solarperformanceinsight/spi/internal/api"
	"github.com/solarperformanceinsight/spi/internal/api/handler"
	mw "github.com/solarperformanceinsight/spi/internal/api/middleware"
	"github.com/solarperformanceinsight/spi/internal/cache"
	"github.com/solarperformanceinsight/spi/internal/config"
	"github.com/solarperformanceinsight/spi/internal/metrics"
	"github.com/solarperformanceinsight/spi/internal/queue"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/solarperformanceinsight/spi/internal/upload"
	"github.com/spf13/cobra"
)

func buildServeCommand() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, !skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, migrate bool) error {
	if migrate {
		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	router := newAPIHandler(cfg, b.store, b.queue, cache.NewRedisCache(b.redis), newCollector())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if err := serveUntilDone(ctx, srv); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

// newAPIHandler wires every handler onto the router.
func newAPIHandler(cfg *config.Config, s store.Store, q queue.Queue, c cache.Cache, col *metrics.Collector) http.Handler {
	pipeline := upload.New(s, col)

	deps := api.Dependencies{
		Auth:           mw.NewAuth(s, cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		RateLimit:      mw.NewRateLimit(c, cfg.Server.RateLimitPerMinute),
		Metrics:        col,
		MetricsHandler: col.Handler(),

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": s,
			"queue":    q,
		}),

		GetUser: handler.NewGetUserHandler(s),

		ListSystems:  handler.NewListSystemsHandler(s),
		CreateSystem: handler.NewCreateSystemHandler(s),
		CheckSystem:  handler.NewCheckSystemHandler(),
		GetSystem:    handler.NewGetSystemHandler(s),
		UpdateSystem: handler.NewUpdateSystemHandler(s),
		DeleteSystem: handler.NewDeleteSystemHandler(s),

		CheckJob:   handler.NewCheckJobHandler(s),
		CreateJob:  handler.NewCreateJobHandler(s, col),
		ListJobs:   handler.NewListJobsHandler(s),
		GetJob:     handler.NewGetJobHandler(s),
		DeleteJob:  handler.NewDeleteJobHandler(s, q),
		JobStatus:  handler.NewJobStatusHandler(s, q),
		ComputeJob: handler.NewComputeHandler(s, q, col),

		GetData:  handler.NewGetDataHandler(s),
		PostData: handler.NewPostDataHandler(s, pipeline, cfg.Server.UploadMaxBytes),

		ListResults: handler.NewListResultsHandler(s),
		GetResult:   handler.NewGetResultHandler(s, c),
	}

	return api.NewRouter(deps)
}
