package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/zapscan/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Zap.BaseURL = "http://127.0.0.1:1"
	cfg.Zap.APIKey = "key"
	cfg.Database.DSN = filepath.Join(t.TempDir(), "app.db")
	return cfg
}

func TestNewApplication_WiresAndShutsDown(t *testing.T) {
	t.Parallel()
	logger := &testutil.DummyLogger{}

	a, err := NewApplication(context.Background(), testConfig(t), logger)
	require.NoError(t, err)
	require.NotNil(t, a.Orch)
	require.NotNil(t, a.Metrics)

	require.NoError(t, a.Start())

	stats, err := a.Orch.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalScans)

	require.NoError(t, a.Shutdown(context.Background()))
	_, err = a.Orch.Stats(context.Background())
	assert.Error(t, err, "store is closed after Shutdown")
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Zap.APIKey = ""

	_, err := NewApplication(context.Background(), cfg, &testutil.DummyLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zap api key is required")
}

func TestNewApplication_NilConfig(t *testing.T) {
	t.Parallel()
	_, err := NewApplication(context.Background(), nil, &testutil.DummyLogger{})
	require.Error(t, err)
}

func TestApplication_NilReceiver(t *testing.T) {
	t.Parallel()
	var a *Application
	assert.Error(t, a.Start())
	assert.Error(t, a.Shutdown(context.Background()))
}
