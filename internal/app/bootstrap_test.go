package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalium.io/kalium/internal/config"
	"kalium.io/kalium/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, AllowedOrigins: []string{"http://localhost:3000"}},
		Database: config.DatabaseConfig{Driver: config.DriverMemory},
		Worker:   config.WorkerConfig{GeneralPoolSize: 4, NotifyPoolSize: 2},
		Sweeper:  config.SweeperConfig{Enabled: true, Interval: time.Hour},
		Notification: config.NotificationConfig{
			Sinks:    []string{config.SinkLog},
			StaffIDs: []string{"staff-1"},
		},
		Report: config.ReportConfig{
			Enabled:  true,
			Interval: 24 * time.Hour,
			Blob:     config.BlobConfig{Driver: config.BlobFS, Root: t.TempDir(), Prefix: "inventory/"},
		},
	}
}

func TestBootstrap_NoDB(t *testing.T) {
	// Bootstrap without a real database should fail at DB connection.
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:   config.DriverPostgres,
			Host:     "localhost",
			Port:     65432, // Non-existent port
			User:     "test",
			Password: "test",
			Database: "test",
			SSLMode:  "disable",
			MaxConns: 5,
			MinConns: 1,
		},
		Worker: config.WorkerConfig{
			GeneralPoolSize: 10,
			NotifyPoolSize:  5,
		},
	}

	ctx := context.Background()
	app, err := Bootstrap(ctx, cfg)
	require.Error(t, err, "Bootstrap should fail without database")
	assert.Nil(t, app, "Application should be nil on bootstrap failure")
}

func TestBootstrap_InboxRequiresPostgres(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Notification.Sinks = []string{config.SinkInbox}

	app, err := Bootstrap(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, app)
}

func TestBootstrap_MemoryDriverServesAPI(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := Bootstrap(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer app.Shutdown()
	require.NoError(t, app.Start(ctx))
	require.Nil(t, app.Infra.RiverClient)

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/consumable-types",
		strings.NewReader(`{"id":"beaker","name":"Beaker"}`)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stock/beaker", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)

	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kalium_operations_total")
	assert.Contains(t, w.Body.String(), "kalium_http_request_duration_seconds")
}

func TestApplication_Shutdown_Nil(t *testing.T) {
	// Shutdown on empty application should not panic.
	app := &Application{}

	assert.NotPanics(t, func() {
		app.Shutdown()
	}, "Shutdown on empty Application should not panic")
}
