package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/daviddao/mailorders/internal/classify"
	"github.com/daviddao/mailorders/internal/merchant"
	"github.com/daviddao/mailorders/internal/pipeline"
	"github.com/daviddao/mailorders/internal/reconcile"
	"github.com/daviddao/mailorders/internal/resilience"
	"github.com/daviddao/mailorders/internal/sync"
	"github.com/daviddao/mailorders/internal/types"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig           `yaml:"log" mapstructure:"log"`
	Store      StoreConfig         `yaml:"store" mapstructure:"store"`
	Gmail      GmailConfig         `yaml:"gmail" mapstructure:"gmail"`
	Merchants  []merchant.Merchant `yaml:"merchants" mapstructure:"merchants"`
	Sync       SyncConfig          `yaml:"sync" mapstructure:"sync"`
	Reconcile  ReconcileConfig     `yaml:"reconcile" mapstructure:"reconcile"`
	Classifier ClassifierConfig    `yaml:"classifier" mapstructure:"classifier"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig locates the sqlite database. An empty path means discover
// .mailorders/orders.db from the working directory.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// GmailConfig locates account credentials.
type GmailConfig struct {
	Root    string `yaml:"root" mapstructure:"root"`
	Account string `yaml:"account" mapstructure:"account"`
}

// SyncConfig configures message sync.
type SyncConfig struct {
	Lookback     string        `yaml:"lookback" mapstructure:"lookback"`
	MaxMessages  int           `yaml:"max_messages" mapstructure:"max_messages"`
	Workers      int           `yaml:"workers" mapstructure:"workers"`
	RatePerSec   float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
}

// ReconcileConfig configures delivery reconciliation.
type ReconcileConfig struct {
	SampleSize   int                    `yaml:"sample_size" mapstructure:"sample_size"`
	BatchSize    int                    `yaml:"batch_size" mapstructure:"batch_size"`
	BatchDelay   time.Duration          `yaml:"batch_delay" mapstructure:"batch_delay"`
	Backoff      []string               `yaml:"backoff" mapstructure:"backoff"`
	Workers      int                    `yaml:"workers" mapstructure:"workers"`
	Limit        int                    `yaml:"limit" mapstructure:"limit"`
	RecentWindow string                 `yaml:"recent_window" mapstructure:"recent_window"`
	Strategies   []types.SearchStrategy `yaml:"strategies" mapstructure:"strategies"`
}

// ClassifierConfig selects the subject table and priority profile.
type ClassifierConfig struct {
	TablePath string `yaml:"table_path" mapstructure:"table_path"`
	Profile   string `yaml:"profile" mapstructure:"profile"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MAILORDERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.path", "")
	v.SetDefault("gmail.root", "")
	v.SetDefault("gmail.account", "")
	v.SetDefault("sync.lookback", "30d")
	v.SetDefault("sync.max_messages", 200)
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.rate_per_sec", 5.0)
	v.SetDefault("sync.fetch_timeout", 10*time.Second)
	v.SetDefault("reconcile.sample_size", 10)
	v.SetDefault("reconcile.batch_size", 20)
	v.SetDefault("reconcile.batch_delay", 500*time.Millisecond)
	v.SetDefault("reconcile.backoff", []string{"1s", "2s", "5s"})
	v.SetDefault("reconcile.workers", 4)
	v.SetDefault("reconcile.limit", 50)
	v.SetDefault("reconcile.recent_window", "90d")
	v.SetDefault("classifier.table_path", "")
	v.SetDefault("classifier.profile", classify.ProfilePurchases)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks values that cannot be caught by decoding alone.
func (c *Config) Validate() error {
	if _, err := classify.PrioritiesFor(c.Classifier.Profile); err != nil {
		return eris.Wrap(err, "config: classifier.profile")
	}
	if _, err := c.Reconcile.Schedule(); err != nil {
		return err
	}
	for i, m := range c.Merchants {
		if m.Name == "" {
			return eris.Errorf("config: merchants[%d] has no name", i)
		}
		if len(m.SenderDomains) == 0 && len(m.SubjectTokens) == 0 {
			return eris.Errorf("config: merchant %q needs sender_domains or subject_tokens", m.Name)
		}
	}
	return nil
}

// Schedule parses the backoff list.
func (r ReconcileConfig) Schedule() ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(r.Backoff))
	for _, s := range r.Backoff {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil || d < 0 {
			return nil, eris.Errorf("config: reconcile.backoff: invalid delay %q", s)
		}
		out = append(out, d)
	}
	return out, nil
}

// MerchantRegistry returns the configured merchants, or the built-in one.
func (c *Config) MerchantRegistry() merchant.Registry {
	if len(c.Merchants) == 0 {
		return merchant.DefaultRegistry()
	}
	return merchant.Registry(c.Merchants)
}

// PipelineOptions loads the classifier table and priority profile.
func (c *Config) PipelineOptions() (pipeline.Options, error) {
	priorities, err := classify.PrioritiesFor(c.Classifier.Profile)
	if err != nil {
		return pipeline.Options{}, eris.Wrap(err, "config: classifier.profile")
	}
	opts := pipeline.Options{
		Merchants:  c.MerchantRegistry(),
		Priorities: priorities,
	}
	if c.Classifier.TablePath != "" {
		table, err := classify.LoadTable(c.Classifier.TablePath)
		if err != nil {
			return pipeline.Options{}, err
		}
		opts.Table = table
	}
	return opts, nil
}

// SyncOptions returns the sync settings. Fetch retries share the reconcile
// backoff schedule.
func (c *Config) SyncOptions() (sync.Options, error) {
	schedule, err := c.Reconcile.Schedule()
	if err != nil {
		return sync.Options{}, err
	}
	retry := resilience.DefaultRetryConfig()
	retry.Schedule = schedule
	return sync.Options{
		Lookback:     c.Sync.Lookback,
		MaxMessages:  c.Sync.MaxMessages,
		Workers:      c.Sync.Workers,
		RatePerSec:   c.Sync.RatePerSec,
		FetchTimeout: c.Sync.FetchTimeout,
		Retry:        retry,
	}, nil
}

// ReconcilerConfig returns the reconciliation settings for m.
func (c *Config) ReconcilerConfig(m merchant.Merchant) (reconcile.Config, error) {
	schedule, err := c.Reconcile.Schedule()
	if err != nil {
		return reconcile.Config{}, err
	}
	retry := resilience.DefaultRetryConfig()
	retry.Schedule = schedule
	return reconcile.Config{
		Merchant:   m,
		Strategies: c.strategies(),
		SampleSize: c.Reconcile.SampleSize,
		BatchSize:  c.Reconcile.BatchSize,
		BatchDelay: c.Reconcile.BatchDelay,
		Retry:      retry,
	}, nil
}

// strategies returns the configured strategies, or the defaults with the
// recent-mail window applied.
func (c *Config) strategies() []types.SearchStrategy {
	if len(c.Reconcile.Strategies) > 0 {
		return c.Reconcile.Strategies
	}
	out := reconcile.DefaultStrategies()
	if w := c.Reconcile.RecentWindow; w != "" {
		for i := range out {
			out[i].Query = strings.ReplaceAll(out[i].Query, "newer_than:90d", "newer_than:"+w)
		}
	}
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
