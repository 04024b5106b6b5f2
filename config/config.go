// Package config loads the static trader configuration from defaults,
// environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const ModePaper = "paper"

// Feed kinds.
const (
	FeedMock = "mock"
	FeedWS   = "ws"
)

// Config holds all application configuration. It is read once before the
// loop starts and passed to constructors explicitly.
type Config struct {
	// Strategy
	Symbol       string        `mapstructure:"symbol"`
	EMAPeriod    int           `mapstructure:"ema_period"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeframe    string        `mapstructure:"timeframe"`

	// Execution
	Mode        string  `mapstructure:"mode"`
	Capital     float64 `mapstructure:"capital"`
	Quantity    int64   `mapstructure:"quantity"`
	SlippageBps int64   `mapstructure:"slippage_bps"`

	// History
	SeedBars      int `mapstructure:"seed_bars"`
	HistoryRetain int `mapstructure:"history_retain"` // 0 = unbounded

	// Market data
	Feed    string `mapstructure:"feed"`
	FeedURL string `mapstructure:"feed_url"`
	Seed    int64  `mapstructure:"mock_seed"` // 0 = time-based

	// Infrastructure (empty address disables the component)
	SQLitePath       string        `mapstructure:"sqlite_path"`
	ArchiveRetention time.Duration `mapstructure:"archive_retention"` // 0 = keep everything
	RedisAddr        string        `mapstructure:"redis_addr"`
	RedisPassword    string        `mapstructure:"redis_password"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	APIAddr          string        `mapstructure:"api_addr"`
	APITOTPSecret    string        `mapstructure:"api_totp_secret"`

	// Notifications
	WebhookURL       string `mapstructure:"webhook_url"`
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`

	LogLevel    string `mapstructure:"log_level"`
	MarketHours bool   `mapstructure:"market_hours"`
}

var defaults = map[string]any{
	"symbol":             "BANKNIFTY",
	"ema_period":         20,
	"poll_interval":      "2s",
	"timeframe":          "5minute",
	"mode":               ModePaper,
	"capital":            80000.0,
	"quantity":           1,
	"slippage_bps":       0,
	"seed_bars":          50,
	"history_retain":     0,
	"feed":               FeedMock,
	"feed_url":           "ws://localhost:8765/ws",
	"mock_seed":          0,
	"sqlite_path":        "data/bars.db",
	"archive_retention":  "0s",
	"redis_addr":         "",
	"redis_password":     "",
	"metrics_addr":       ":9090",
	"api_addr":           ":8080",
	"api_totp_secret":    "",
	"webhook_url":        "",
	"telegram_bot_token": "",
	"telegram_chat_id":   "",
	"log_level":          "info",
	"market_hours":       false,
}

// Load builds a Config from defaults, then the optional file (YAML, JSON,
// TOML or .env, by extension), then environment variables such as
// EMA_PERIOD or REDIS_ADDR. The result is validated.
func Load(file string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the trader cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Symbol == "" {
		errs = append(errs, errors.New("symbol must be set"))
	}
	if c.EMAPeriod < 1 {
		errs = append(errs, fmt.Errorf("ema_period must be >= 1, got %d", c.EMAPeriod))
	}
	if c.Quantity < 1 {
		errs = append(errs, fmt.Errorf("quantity must be >= 1, got %d", c.Quantity))
	}
	if c.Capital <= 0 {
		errs = append(errs, fmt.Errorf("capital must be > 0, got %v", c.Capital))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be > 0, got %s", c.PollInterval))
	}
	if c.Mode != ModePaper {
		errs = append(errs, fmt.Errorf("mode %q not supported, only %q", c.Mode, ModePaper))
	}
	if c.HistoryRetain < 0 || (c.HistoryRetain > 0 && c.HistoryRetain < c.EMAPeriod) {
		errs = append(errs, fmt.Errorf("history_retain must be 0 or >= ema_period (%d), got %d", c.EMAPeriod, c.HistoryRetain))
	}
	if c.SeedBars < 0 {
		errs = append(errs, fmt.Errorf("seed_bars must be >= 0, got %d", c.SeedBars))
	}
	if c.ArchiveRetention < 0 {
		errs = append(errs, fmt.Errorf("archive_retention must be >= 0, got %s", c.ArchiveRetention))
	}
	if c.SlippageBps < 0 {
		errs = append(errs, fmt.Errorf("slippage_bps must be >= 0, got %d", c.SlippageBps))
	}
	switch c.Feed {
	case FeedMock:
	case FeedWS:
		if c.FeedURL == "" {
			errs = append(errs, errors.New("feed_url must be set for ws feed"))
		}
	default:
		errs = append(errs, fmt.Errorf("feed %q must be %q or %q", c.Feed, FeedMock, FeedWS))
	}
	if _, err := c.BarSpacing(); err != nil {
		errs = append(errs, err)
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("telegram_bot_token and telegram_chat_id must be set together"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

var timeframes = map[string]time.Duration{
	"minute":   time.Minute,
	"3minute":  3 * time.Minute,
	"5minute":  5 * time.Minute,
	"10minute": 10 * time.Minute,
	"15minute": 15 * time.Minute,
	"30minute": 30 * time.Minute,
	"60minute": time.Hour,
	"day":      24 * time.Hour,
}

// BarSpacing returns the bar duration named by Timeframe.
func (c *Config) BarSpacing() (time.Duration, error) {
	d, ok := timeframes[c.Timeframe]
	if !ok {
		return 0, fmt.Errorf("timeframe %q not supported", c.Timeframe)
	}
	return d, nil
}
