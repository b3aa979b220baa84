package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

type testConfig struct{ allowAll bool }

func (testConfig) GetJWTAccessSecret() string  { return "secret" }
func (testConfig) GetHTTPAddr() string         { return ":0" }
func (c testConfig) GetCORSAllowAll() bool     { return c.allowAll }
func (testConfig) GetCORSOrigins() []string    { return []string{"https://portal.example"} }
func (testConfig) GetCORSAllowCreds() bool     { return true }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type pingModule struct{}

func (pingModule) Name() string { return "ping" }

func (pingModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	ctx.Protected.GET("/secret", func(c *gin.Context) { c.String(http.StatusOK, "secret") })
}

func newEngine(health apphttp.HealthChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return New(&apphttp.App{
		Config:  testConfig{},
		Logger:  logger.Discard(),
		Health:  health,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Modules: []apphttp.Module{pingModule{}},
	})
}

func serve(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSharedEndpoints(t *testing.T) {
	engine := newEngine(pinger{})

	tests := []struct {
		path string
		want int
	}{
		{"/api/health", http.StatusOK},
		{"/api/ready", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/ping", http.StatusOK},
		{"/api/v1/secret", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		if rec := serve(engine, tc.path); rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.path, tc.want, rec.Code)
		}
	}
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	engine := newEngine(pinger{err: errors.New("db down")})
	if rec := serve(engine, "/api/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestResponsesCarryRequestIDAndSecurityHeaders(t *testing.T) {
	rec := serve(newEngine(nil), "/api/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}
}

func TestCORSAllowAllDropsCredentials(t *testing.T) {
	cfg := corsConfig(testConfig{allowAll: true})
	if !cfg.AllowAllOrigins || cfg.AllowCredentials || len(cfg.AllowOrigins) != 0 {
		t.Fatalf("unexpected cors config %+v", cfg)
	}
}
