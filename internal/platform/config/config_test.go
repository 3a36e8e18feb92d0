package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Batch.FetchConcurrency)
	assert.Equal(t, []string{"SPY", "QQQ", "IWM", "TLT"}, cfg.Batch.Benchmarks)
	assert.Equal(t, 3, cfg.Onboarding.Workers)
	assert.Equal(t, 50, cfg.Onboarding.MaxDepth)
	assert.Equal(t, 30*time.Second, cfg.Cache.ReadyTimeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  addr: ":9090"
batch:
  fetch_concurrency: 4
  benchmarks: ["SPY"]
calendar:
  holidays: ["2024-01-01", "not-a-date", "2024-07-04"]
providers:
  - name: primary
    base_url: "https://primary.example.com"
    rate_per_minute: 60
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Batch.FetchConcurrency)
	assert.Equal(t, []string{"SPY"}, cfg.Batch.Benchmarks)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "primary", cfg.Providers[0].Name)

	// Malformed holiday entries are skipped, valid ones parsed.
	holidays := cfg.Calendar.HolidayDates()
	require.Len(t, holidays, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), holidays[0])
}
