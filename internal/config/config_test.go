package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daviddao/mailorders/internal/classify"
	"github.com/daviddao/mailorders/internal/merchant"
	"github.com/daviddao/mailorders/internal/types"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.Store.Path)
	assert.Equal(t, "30d", cfg.Sync.Lookback)
	assert.Equal(t, 200, cfg.Sync.MaxMessages)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.InDelta(t, 5.0, cfg.Sync.RatePerSec, 0.001)
	assert.Equal(t, 10*time.Second, cfg.Sync.FetchTimeout)
	assert.Equal(t, 10, cfg.Reconcile.SampleSize)
	assert.Equal(t, 20, cfg.Reconcile.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconcile.BatchDelay)
	assert.Equal(t, "90d", cfg.Reconcile.RecentWindow)
	assert.Equal(t, classify.ProfilePurchases, cfg.Classifier.Profile)

	schedule, err := cfg.Reconcile.Schedule()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 5 * time.Second}, schedule)

	assert.Equal(t, merchant.DefaultRegistry(), cfg.MerchantRegistry())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: json
store:
  path: /tmp/orders.db
sync:
  max_messages: 50
  fetch_timeout: 3s
reconcile:
  backoff: ["250ms", "1s"]
  recent_window: 30d
classifier:
  profile: sync
merchants:
  - name: GOAT
    sender_domains: [goat.com]
    subject_tokens: [goat]
    cdn_hosts: [image.goat.com]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/orders.db", cfg.Store.Path)
	assert.Equal(t, 50, cfg.Sync.MaxMessages)
	assert.Equal(t, 3*time.Second, cfg.Sync.FetchTimeout)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Sync.Workers)

	require.Len(t, cfg.Merchants, 1)
	assert.Equal(t, "GOAT", cfg.Merchants[0].Name)
	assert.Equal(t, []string{"goat.com"}, cfg.Merchants[0].SenderDomains)
	assert.Equal(t, []string{"image.goat.com"}, cfg.Merchants[0].CDNHosts)

	opts, err := cfg.PipelineOptions()
	require.NoError(t, err)
	assert.Equal(t, 5, opts.Priorities.Of(types.StatusDelivered))
	assert.Nil(t, opts.Table)

	rc, err := cfg.ReconcilerConfig(cfg.Merchants[0])
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, time.Second}, rc.Retry.Schedule)
	last := rc.Strategies[len(rc.Strategies)-1]
	assert.Equal(t, "recent-merchant", last.Name)
	assert.Equal(t, "{from} newer_than:30d", last.Query)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
sync:
  lookback: 14d
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("MAILORDERS_LOG_LEVEL", "warn")
	t.Setenv("MAILORDERS_SYNC_LOOKBACK", "7d")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "7d", cfg.Sync.Lookback)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("MAILORDERS_SYNC_MAX_MESSAGES", "25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Sync.MaxMessages)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown profile", func(c *Config) { c.Classifier.Profile = "fastest" }},
		{"bad backoff", func(c *Config) { c.Reconcile.Backoff = []string{"soon"} }},
		{"unnamed merchant", func(c *Config) {
			c.Merchants = []merchant.Merchant{{SenderDomains: []string{"goat.com"}}}
		}},
		{"undetectable merchant", func(c *Config) { c.Merchants = []merchant.Merchant{{Name: "GOAT"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Classifier: ClassifierConfig{Profile: classify.ProfilePurchases}}
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPipelineOptionsLoadsTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.yaml")
	table := `
categories:
  - name: delivered
    status: Delivered
    color: green
    patterns: ["dropped off"]
  - name: shipped
    status: Shipped
    patterns: ["on its way"]
`
	require.NoError(t, os.WriteFile(path, []byte(table), 0644))

	cfg := &Config{Classifier: ClassifierConfig{TablePath: path}}
	opts, err := cfg.PipelineOptions()
	require.NoError(t, err)
	require.NotNil(t, opts.Table)
	cats := opts.Table.Categories()
	require.Len(t, cats, 2)
	assert.Equal(t, "delivered", cats[0].Name)
	assert.Equal(t, 4, opts.Priorities.Of(types.StatusDelivered))

	cfg.Classifier.TablePath = filepath.Join(dir, "missing.yaml")
	_, err = cfg.PipelineOptions()
	assert.Error(t, err)
}

func TestSyncOptions(t *testing.T) {
	cfg := &Config{
		Sync:      SyncConfig{Lookback: "7d", MaxMessages: 10, Workers: 2, RatePerSec: 1, FetchTimeout: time.Second},
		Reconcile: ReconcileConfig{Backoff: []string{}},
	}
	opts, err := cfg.SyncOptions()
	require.NoError(t, err)
	assert.Equal(t, "7d", opts.Lookback)
	assert.Equal(t, 10, opts.MaxMessages)
	assert.NotNil(t, opts.Retry.Schedule)
	assert.Empty(t, opts.Retry.Schedule)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
