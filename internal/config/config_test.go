package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("REPRICER_APP_ENV_FILE", filepath.Join(dir, "missing.env"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.ChangePause)
	assert.Equal(t, "https://gateway.g2a.com", cfg.G2A.BaseURL)
	assert.Equal(t, 100, cfg.G2A.PageSize)
	assert.Equal(t, 3, cfg.G2A.MaxAttempts)

	s := cfg.Repricing.Settings()
	assert.False(t, s.Enabled)
	assert.True(t, s.UndercutAmount.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, s.MinPrice.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, s.MaxPrice.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, 20, s.DailyLimit)
	assert.True(t, s.ProtectSingleSeller)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduler:
  interval: 10m
repricing:
  enabled: true
  undercut_amount: 0.05
  excluded_products: ["1", "2"]
`), 0o600))

	t.Setenv("REPRICER_SCHEDULER_CHANGE_PAUSE", "1s")
	t.Setenv("G2A_CLIENT_ID", "legacy-id")
	t.Setenv("REPRICER_G2A_CLIENT_SECRET", "prefixed-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, time.Second, cfg.Scheduler.ChangePause)
	assert.Equal(t, "legacy-id", cfg.G2A.ClientID)
	assert.Equal(t, "prefixed-secret", cfg.G2A.ClientSecret)

	s := cfg.Repricing.Settings()
	assert.True(t, s.Enabled)
	assert.True(t, s.UndercutAmount.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, []string{"1", "2"}, s.ExcludedProducts)
}

func TestReloadPicksUpEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("G2A_CLIENT_ID=fresh\nG2A_CLIENT_SECRET=s3cret\n"), 0o600))
	t.Setenv("REPRICER_APP_ENV_FILE", envFile)
	t.Setenv("G2A_CLIENT_ID", "stale")
	t.Setenv("G2A_CLIENT_SECRET", "stale")

	loader := NewLoader("")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "stale", cfg.G2A.ClientID, "exported variables win on the first load")

	cfg, err = loader.Reload()
	require.NoError(t, err)
	assert.Equal(t, "fresh", cfg.G2A.ClientID)
	assert.Equal(t, "s3cret", cfg.G2A.ClientSecret)
	assert.Same(t, cfg, loader.Current())
}

func TestValidateRejectsBadValues(t *testing.T) {
	isolate(t)

	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("REPRICER_STORAGE_DRIVER", "postgres")
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("max below min", func(t *testing.T) {
		t.Setenv("REPRICER_REPRICING_MAX_PRICE", "0.05")
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("telegram without token", func(t *testing.T) {
		t.Setenv("REPRICER_ALERTING_TELEGRAM_ENABLED", "true")
		t.Setenv("TELEGRAM_BOT_TOKEN", "")
		_, err := Load("")
		require.Error(t, err)
	})
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	assert.Equal(t, 500, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 20, cfg.ResolveMaxPoints(20))
}
