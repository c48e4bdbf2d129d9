// Package cli builds the spi command: the HTTP API, the queue workers, the
// reconciler and the migration runner share one binary and one environment
// based configuration.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/solarperformanceinsight/spi/internal/config"
	"github.com/solarperformanceinsight/spi/internal/metrics"
	"github.com/solarperformanceinsight/spi/internal/queue"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

// Version is set at build time.
var Version = "dev"

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spi",
		Short: "Solar performance insight job service",
		Long: `spi runs the solar performance job API and its background processes.
Configuration is read from the environment (DATABASE_URL, REDIS_URL, ...).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildWorkerCommand())
	rootCmd.AddCommand(buildReconcileCommand())
	rootCmd.AddCommand(buildMigrateCommand())

	return rootCmd
}

// loadConfig reads the configuration and installs the JSON logger at the
// configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	slog.Info("config loaded", "env", cfg.Server.Env, "log_level", cfg.Server.LogLevel)
	return cfg, nil
}

// backends are the shared connections every long-running command needs.
type backends struct {
	pool  *pgxpool.Pool
	redis *redis.Client
	store *store.PostgresStore
	queue *queue.RedisQueue
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Info("database connected")

	client, err := newRedisClient(cfg.Redis.URL)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		pool.Close()
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	return &backends{
		pool:  pool,
		redis: client,
		store: store.NewPostgresStore(pool),
		queue: queue.NewRedisQueue(client, queue.Options{
			Name:       cfg.Queue.Name,
			JobTimeout: cfg.Queue.JobTimeout,
			FailureTTL: cfg.Queue.FailureTTL,
		}),
	}, nil
}

func (b *backends) Close() {
	b.redis.Close()
	b.pool.Close()
}

func newCollector() *metrics.Collector {
	return metrics.New(prometheus.NewRegistry())
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down.
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...", "addr", srv.Addr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
