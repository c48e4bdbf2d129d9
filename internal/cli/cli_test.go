package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/solarperformanceinsight/spi/internal/config"
	"github.com/solarperformanceinsight/spi/internal/queue"
	"github.com/solarperformanceinsight/spi/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCache struct{}

func (nopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (nopCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (nopCache) Ping(context.Context) error                               { return nil }
func (nopCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RateLimitPerMinute: 60, UploadMaxBytes: 1 << 20},
		Auth:   config.AuthConfig{JWTSecret: "cli-secret"},
	}
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.Equal(t, "spi", cmd.Use)
	assert.Equal(t, Version, cmd.Version)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
		assert.NotNil(t, c.RunE, "%s has no RunE", c.Name())
	}
	assert.Equal(t, map[string]bool{"serve": true, "worker": true, "reconcile": true, "migrate": true}, names)
}

func TestBuildWorkerCommand_Flags(t *testing.T) {
	cmd := buildWorkerCommand()

	reconcile := cmd.Flags().Lookup("reconcile")
	require.NotNil(t, reconcile)
	assert.Equal(t, "true", reconcile.DefValue)

	concurrency := cmd.Flags().Lookup("concurrency")
	require.NotNil(t, concurrency)
	assert.Equal(t, "n", concurrency.Shorthand)
}

func TestBuildReconcileCommand_Flags(t *testing.T) {
	cmd := buildReconcileCommand()
	assert.NotNil(t, cmd.Flags().Lookup("once"))
}

func TestBuildServeCommand_Flags(t *testing.T) {
	cmd := buildServeCommand()
	assert.NotNil(t, cmd.Flags().Lookup("skip-migrations"))
}

func TestLoadConfig_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestMigrateCommand_FailsWithoutConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cmd := BuildCLI()
	cmd.SetArgs([]string{"migrate"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestNewRedisClient(t *testing.T) {
	c, err := newRedisClient("redis://localhost:6379/2")
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 2, c.Options().DB)

	_, err = newRedisClient("http://localhost")
	assert.Error(t, err)
}

func TestNewAPIHandler(t *testing.T) {
	s := store.NewMemoryStore()
	q := queue.NewMemoryQueue(queue.Options{Name: "test", JobTimeout: time.Minute, FailureTTL: time.Hour})
	h := newAPIHandler(testConfig(), s, q, nopCache{}, newCollector())

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data struct {
				Services map[string]string `json:"services"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, map[string]string{"database": "ok", "queue": "ok"}, body.Data.Services)
	})

	t.Run("authenticated route is wired", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "auth0|cli",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte("cli-secret"))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/systems/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":[]}`, w.Body.String())
	})

	t.Run("metrics count requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `spi_http_requests_total{method="GET",status="200"}`)
	})
}

func TestMetricsServer(t *testing.T) {
	col := newCollector()
	col.RecordJobQueued()
	srv := metricsServer(9191, col)
	assert.Equal(t, ":9191", srv.Addr)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "spi_jobs_queued_total 1")
}

func TestServeUntilDone_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, srv) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
