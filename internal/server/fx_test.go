package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/dorank/internal/config"
	"github.com/JakeFAU/dorank/internal/stats"
	"github.com/JakeFAU/dorank/internal/storage/memory"
	"github.com/JakeFAU/dorank/internal/storage/sqlstore"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("DORANK_STORE_DRIVER", config.DriverMemory)
	t.Setenv("DORANK_ARCHIVE_BACKEND", config.ArchiveMemory)
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuildWiresInMemoryApp(t *testing.T) {
	cfg := testConfig(t)

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Cycle())
	require.NotNil(t, app.Logger())
	require.Equal(t, "https://www.drupal.org/drupal-services", app.Cycle().ListingURL())

	records, err := app.tracker.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, records, len(stats.KnownKeys()), "build seeds every key")

	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, app.Close(context.Background()))
}

func TestBuildRejectsBadSelector(t *testing.T) {
	cfg := testConfig(t)
	cfg.Directory.TargetFormat = "#node"

	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "listing parser")
}

func TestOpenStoreMemory(t *testing.T) {
	t.Parallel()

	store, err := OpenStore(context.Background(), config.Config{Store: config.StoreConfig{Driver: config.DriverMemory}})
	require.NoError(t, err)
	require.IsType(t, &memory.ExtremumStore{}, store)
}

func TestOpenStoreSQLiteCreatesDirectory(t *testing.T) {
	t.Parallel()

	dsn := filepath.Join(t.TempDir(), "nested", "dorank.db")
	store, err := OpenStore(context.Background(), config.Config{
		Store: config.StoreConfig{Driver: config.DriverSQLite, DSN: dsn},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.IsType(t, &sqlstore.ExtremumStore{}, store)

	_, err = os.Stat(filepath.Dir(dsn))
	require.NoError(t, err)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := OpenStore(context.Background(), config.Config{Store: config.StoreConfig{Driver: "mongo"}})
	require.ErrorContains(t, err, "not supported")
}

func TestCloseOnPartialApp(t *testing.T) {
	t.Parallel()

	app := NewApp(config.Config{}, zap.NewNop())
	require.NoError(t, app.Close(context.Background()))
}
