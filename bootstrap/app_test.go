package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"louyass/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.DataPaths.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Media.Backend = "local"
	cfg.Media.BaseURL = "/media"
	cfg.Media.MaxSize = 1 << 20
	cfg.ResolveDataPaths()
	cfg.API.Port = 0
	cfg.API.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.API.RateLimit.RequestsPerSecond = 100
	cfg.API.RateLimit.Burst = 100
	cfg.API.BodyLimit = 1 << 20
	cfg.API.ShutdownTimeout = 2 * time.Second
	cfg.Auth.JWTSecret = "bootstrap-test-0123456789-abcdefghijklmnopq"
	cfg.Auth.JWTExpiry = 30 * time.Minute
	cfg.Auth.BcryptCost = bcrypt.MinCost
	cfg.Auth.LockoutThreshold = 5
	cfg.Auth.LockoutDuration = 15 * time.Minute
	cfg.Auth.MFAIssuer = "Louyass"
	cfg.Notifications.Workers = 1
	cfg.Notifications.QueueSize = 8
	return cfg
}

func healthChecks(t *testing.T, app *App) map[string]string {
	t.Helper()
	rec := httptest.NewRecorder()
	app.APIServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Checks
}

func TestNewAppWiresComponents(t *testing.T) {
	cfg := testAppConfig(t)
	app, err := NewAppWithConfig(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, app.Storage.Users)
	assert.NotNil(t, app.Storage.Blobs)
	assert.NotNil(t, app.Services.Contracts)
	assert.Nil(t, app.Redis)
	assert.NotNil(t, app.memoryStore, "tokens stay in memory without Redis")
	assert.FileExists(t, cfg.DataPaths.SQLitePath)
	assert.DirExists(t, cfg.Media.Dir)

	checks := healthChecks(t, app)
	assert.Contains(t, checks, "database")
	assert.NotContains(t, checks, "redis")

	require.NoError(t, app.Start(context.Background()))
	assert.Error(t, app.Start(context.Background()), "second start is rejected")

	app.Shutdown()
	app.Shutdown()
}

func TestNewAppWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testAppConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.PoolSize = 2

	app, err := NewAppWithConfig(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Shutdown()

	require.NotNil(t, app.Redis)
	assert.Nil(t, app.memoryStore)
	assert.Contains(t, healthChecks(t, app), "redis")
}

func TestNewAppRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testAppConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = addr

	_, err := NewAppWithConfig(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "Redis")
}

func TestInitMediaStoreUnknownBackend(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Media.Backend = "ftp"
	_, err := InitMediaStore(cfg, zap.NewNop().Sugar())
	assert.ErrorContains(t, err, "unknown media backend")

	cfg.Media.Backend = "s3"
	_, err = InitMediaStore(cfg, zap.NewNop().Sugar())
	assert.ErrorContains(t, err, "bucket")
}
