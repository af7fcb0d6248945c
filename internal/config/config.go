package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"nse-history/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Symbols  SymbolsConfig  `mapstructure:"symbols"`
	Provider ProviderConfig `mapstructure:"provider"`
	Download DownloadConfig `mapstructure:"download"`
	Export   ExportConfig   `mapstructure:"export"`
	Database DatabaseConfig `mapstructure:"database"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Alerting AlertingConfig `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SymbolsConfig locates the symbol list.
type SymbolsConfig struct {
	File   string `mapstructure:"file"`
	Column string `mapstructure:"column"`
	Suffix string `mapstructure:"suffix"`
}

// ProviderConfig covers the price history endpoints.
type ProviderConfig struct {
	ChartURL       string        `mapstructure:"chart_url"`
	HistoryURL     string        `mapstructure:"history_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	Proxy          string        `mapstructure:"proxy"`
}

// DownloadConfig tunes the batch.
type DownloadConfig struct {
	Days         int           `mapstructure:"days"`
	Workers      int           `mapstructure:"workers"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseBackoff  time.Duration `mapstructure:"base_backoff"`
	MinRows      int           `mapstructure:"min_rows"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// ExportConfig controls the artifact.
type ExportConfig struct {
	Dir         string `mapstructure:"dir"`
	Prefix      string `mapstructure:"prefix"`
	Compression string `mapstructure:"compression"`
	Dedupe      bool   `mapstructure:"dedupe"`
}

// DatabaseConfig encapsulates the optional PostgreSQL run ledger.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ScheduleConfig governs the serve loop.
type ScheduleConfig struct {
	Cron            string `mapstructure:"cron"`
	Timezone        string `mapstructure:"timezone"`
	RunOnStart      bool   `mapstructure:"run_on_start"`
	AdvisoryLockKey int64  `mapstructure:"advisory_lock_key"`
}

// AlertingConfig routes run summaries.
type AlertingConfig struct {
	// OnSuccess also reports runs that wrote an artifact; failures are always reported.
	OnSuccess bool           `mapstructure:"on_success"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot used for run summaries.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("NSEDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "nsedl")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("symbols.file", "EQUITY_L.csv")
	v.SetDefault("symbols.column", "symbol")
	v.SetDefault("symbols.suffix", ".NS")

	v.SetDefault("provider.chart_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	v.SetDefault("provider.history_url", "https://query1.finance.yahoo.com/v7/finance/download")
	v.SetDefault("provider.request_timeout", "30s")
	v.SetDefault("provider.user_agent", "Mozilla/5.0 (compatible; nsedl/1.0)")

	v.SetDefault("download.days", 365)
	v.SetDefault("download.workers", 10)
	v.SetDefault("download.max_attempts", 3)
	v.SetDefault("download.base_backoff", "1.5s")
	v.SetDefault("download.min_rows", 10)
	v.SetDefault("download.batch_timeout", "0s")

	v.SetDefault("export.dir", ".")
	v.SetDefault("export.prefix", "nse_data")
	v.SetDefault("export.compression", "zstd")
	v.SetDefault("export.dedupe", true)

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("schedule.cron", "30 18 * * 1-5")
	v.SetDefault("schedule.timezone", "Asia/Kolkata")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("schedule.advisory_lock_key", int64(0x6e73656c))

	v.SetDefault("alerting.on_success", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Download.Days <= 0 {
		return fmt.Errorf("download.days must be greater than zero")
	}
	if c.Download.Workers <= 0 {
		return fmt.Errorf("download.workers must be greater than zero")
	}
	if c.Download.MaxAttempts <= 0 {
		return fmt.Errorf("download.max_attempts must be greater than zero")
	}
	if c.Download.BaseBackoff < 0 {
		return fmt.Errorf("download.base_backoff cannot be negative")
	}
	if c.Download.MinRows <= 0 {
		return fmt.Errorf("download.min_rows must be greater than zero")
	}
	if c.Download.BatchTimeout < 0 {
		return fmt.Errorf("download.batch_timeout cannot be negative")
	}
	if strings.TrimSpace(c.Export.Prefix) == "" {
		return fmt.Errorf("export.prefix must not be empty")
	}
	if strings.ContainsAny(c.Export.Prefix, `/\*?[`) {
		return fmt.Errorf("export.prefix %q contains path or glob characters", c.Export.Prefix)
	}
	switch strings.ToLower(c.Export.Compression) {
	case "zstd", "snappy", "gzip", "none":
	default:
		return fmt.Errorf("export.compression %q is not one of zstd, snappy, gzip, none", c.Export.Compression)
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveDays returns either the CLI override or config default.
func (c *Config) ResolveDays(override int) int {
	if override > 0 {
		return override
	}
	return c.Download.Days
}

// ResolveWorkers returns either the CLI override or config default.
func (c *Config) ResolveWorkers(override int) int {
	if override > 0 {
		return override
	}
	return c.Download.Workers
}
