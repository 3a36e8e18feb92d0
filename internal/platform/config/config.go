// Package config loads the process configuration tree.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Refresh    RefreshConfig    `mapstructure:"refresh"`
	Onboarding OnboardingConfig `mapstructure:"onboarding"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Cron       CronConfig       `mapstructure:"cron"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	RunMigration bool   `mapstructure:"run_migration"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CalendarConfig struct {
	// Holidays are calendar dates in YYYY-MM-DD form.
	Holidays []string `mapstructure:"holidays"`
}

type ProviderConfig struct {
	Name          string        `mapstructure:"name"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
}

type BatchConfig struct {
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	WriteRetries     int           `mapstructure:"write_retries"`
	WriteRetryDelay  time.Duration `mapstructure:"write_retry_delay"`
	HistoryWindow    int           `mapstructure:"history_window"`
	Benchmarks       []string      `mapstructure:"benchmarks"`
	WallClockBudget  time.Duration `mapstructure:"wall_clock_budget"`
	FailureAlertPct  float64       `mapstructure:"failure_alert_pct"`
}

type RefreshConfig struct {
	DependencyPollInterval time.Duration `mapstructure:"dependency_poll_interval"`
	DependencyMaxWait      time.Duration `mapstructure:"dependency_max_wait"`
	OnboardingSettleWait   time.Duration `mapstructure:"onboarding_settle_wait"`
	PortfolioRetryDelay    time.Duration `mapstructure:"portfolio_retry_delay"`
	WallClockBudget        time.Duration `mapstructure:"wall_clock_budget"`
}

type OnboardingConfig struct {
	Workers  int `mapstructure:"workers"`
	MaxDepth int `mapstructure:"max_depth"`
}

type CacheConfig struct {
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	PriceTTL     time.Duration `mapstructure:"price_ttl"`
}

type CronConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	SymbolBatch      string `mapstructure:"symbol_batch"`
	PortfolioRefresh string `mapstructure:"portfolio_refresh"`
}

// HolidayDates parses the configured holiday strings, skipping malformed entries.
func (c CalendarConfig) HolidayDates() []time.Time {
	var out []time.Time
	for _, s := range c.Holidays {
		if d, err := time.Parse("2006-01-02", s); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// Load reads config.yaml from path (the current directory when empty) and
// applies RISK_-prefixed environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path == "" {
		path = "."
	}
	v.AddConfigPath(path)

	setDefaults(v)

	v.SetEnvPrefix("RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// The file is optional; defaults plus env carry a bare deployment.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("db.run_migration", false)
	v.SetDefault("batch.fetch_concurrency", 10)
	v.SetDefault("batch.write_retries", 3)
	v.SetDefault("batch.write_retry_delay", 500*time.Millisecond)
	v.SetDefault("batch.history_window", 250)
	v.SetDefault("batch.benchmarks", []string{"SPY", "QQQ", "IWM", "TLT"})
	v.SetDefault("batch.wall_clock_budget", 2*time.Hour)
	v.SetDefault("batch.failure_alert_pct", 0.10)
	v.SetDefault("refresh.dependency_poll_interval", 30*time.Second)
	v.SetDefault("refresh.dependency_max_wait", 30*time.Minute)
	v.SetDefault("refresh.onboarding_settle_wait", 2*time.Minute)
	v.SetDefault("refresh.portfolio_retry_delay", 5*time.Second)
	v.SetDefault("refresh.wall_clock_budget", time.Hour)
	v.SetDefault("onboarding.workers", 3)
	v.SetDefault("onboarding.max_depth", 50)
	v.SetDefault("cache.ready_timeout", 30*time.Second)
	v.SetDefault("cache.price_ttl", 12*time.Hour)
	v.SetDefault("cron.enabled", false)
	v.SetDefault("cron.symbol_batch", "0 30 2 * * 1-5")
	v.SetDefault("cron.portfolio_refresh", "0 30 4 * * 1-5")
}
