package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/solarperformanceinsight/spi/internal/api"
	mw "github.com/solarperformanceinsight/spi/internal/api/middleware"
	"github.com/solarperformanceinsight/spi/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stub user registry ---

type stubUsers struct{}

func (stubUsers) CreateUserIfNotExists(_ context.Context, _ string) (uuid.UUID, error) {
	return uuid.New(), nil
}

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

type countingRecorder struct {
	requests []string
}

func (c *countingRecorder) RecordHTTPRequest(method, status string) {
	c.requests = append(c.requests, method+" "+status)
}

// --- router tests ---

const secret = "router-secret"

func newTestRouter(deps api.Dependencies) http.Handler {
	deps.Auth = mw.NewAuth(stubUsers{}, secret, "", "")
	deps.RateLimit = mw.NewRateLimit(&stubCache{}, 60)
	if deps.HealthHandler == nil {
		deps.HealthHandler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		}
	}
	return api.NewRouter(deps)
}

func bearer(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "auth0|router",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(api.Dependencies{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_MetricsEndpoint_Public(t *testing.T) {
	router := newTestRouter(api.Dependencies{
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("spi_jobs_created_total 0\n"))
		}),
	})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "spi_jobs_created_total")
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(api.Dependencies{})
	id := uuid.NewString()

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/user/"},
		{"GET", "/systems/"},
		{"POST", "/systems/"},
		{"POST", "/systems/check"},
		{"GET", "/systems/" + id},
		{"PUT", "/systems/" + id},
		{"POST", "/systems/" + id},
		{"DELETE", "/systems/" + id},
		{"GET", "/jobs/"},
		{"POST", "/jobs/"},
		{"POST", "/jobs/check"},
		{"GET", "/jobs/" + id},
		{"DELETE", "/jobs/" + id},
		{"GET", "/jobs/" + id + "/status"},
		{"POST", "/jobs/" + id + "/compute"},
		{"GET", "/jobs/" + id + "/data/" + id},
		{"POST", "/jobs/" + id + "/data/" + id},
		{"GET", "/jobs/" + id + "/results"},
		{"GET", "/jobs/" + id + "/results/" + id},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_UnwiredHandlersAreNotImplemented(t *testing.T) {
	router := newTestRouter(api.Dependencies{})

	req := httptest.NewRequest("GET", "/jobs/", nil)
	req.Header.Set("Authorization", bearer(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_RoutesToHandlers(t *testing.T) {
	var hit string
	mark := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			hit = name
			w.WriteHeader(http.StatusTeapot)
		}
	}
	router := newTestRouter(api.Dependencies{
		GetUser:      mark("user"),
		CheckSystem:  mark("check system"),
		UpdateSystem: mark("update system"),
		CheckJob:     mark("check"),
		GetJob:       mark("get"),
		ListJobs:     mark("list"),
		ComputeJob:   mark("compute"),
		GetResult:    mark("result"),
	})
	id := uuid.NewString()

	cases := []struct {
		method, path, want string
	}{
		{"GET", "/user/", "user"},
		{"POST", "/systems/check", "check system"},
		{"PUT", "/systems/" + id, "update system"},
		{"POST", "/systems/" + id, "update system"},
		{"POST", "/jobs/check", "check"},
		{"GET", "/jobs/" + id, "get"},
		{"GET", "/jobs", "list"},
		{"POST", "/jobs/" + id + "/compute", "compute"},
		{"GET", "/jobs/" + id + "/results/" + id, "result"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			hit = ""
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", bearer(t))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusTeapot, w.Code)
			assert.Equal(t, tc.want, hit)
		})
	}
}

func TestRouter_RecordsRequestMetrics(t *testing.T) {
	rec := &countingRecorder{}
	router := newTestRouter(api.Dependencies{Metrics: rec})

	req := httptest.NewRequest("GET", "/health", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"GET 200"}, rec.requests)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(api.Dependencies{})

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ cache.Cache = (*stubCache)(nil)
var _ mw.UserRegistry = stubUsers{}
var _ mw.RequestRecorder = (*countingRecorder)(nil)
