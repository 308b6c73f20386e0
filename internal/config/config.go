package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// minTrailLookbackDays keeps the live EMA8 trail window long enough to
// forget its seed.
const minTrailLookbackDays = 120

// Config is the top-level configuration for swingbot. It is loaded from a TOML
// file and can be overridden by SWINGBOT_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Broker      BrokerConfig      `toml:"broker"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	ClickHouse  ClickHouseConfig  `toml:"clickhouse"`
	Universe    UniverseConfig    `toml:"universe"`
	Scanner     ScannerConfig     `toml:"scanner"`
	Trading     TradingConfig     `toml:"trading"`
	MarketHours MarketHoursConfig `toml:"market_hours"`
	Backtest    BacktestConfig    `toml:"backtest"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
}

// BrokerConfig holds Alpaca market-data credentials. APISecret may be left
// empty when EncryptedSecretPath and SecretPassword are set.
type BrokerConfig struct {
	APIKey              string `toml:"api_key"`
	APISecret           string `toml:"api_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	BaseURL             string `toml:"base_url"`
	Feed                string `toml:"feed"`
	Adjustment          string `toml:"adjustment"`
}

// PostgresConfig holds PostgreSQL connection parameters. DSN wins over the
// individual parts when set.
type PostgresConfig struct {
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"sslmode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	RunMigrations   bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. An empty Addr runs without
// Redis: caches, locks and the bus fall back to in-process versions.
type RedisConfig struct {
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	KeyPrefix    string   `toml:"key_prefix"`
	PriceTTL     duration `toml:"price_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds the report archive bucket.
type S3Config struct {
	Enabled      bool   `toml:"enabled"`
	Endpoint     string `toml:"endpoint"`
	Region       string `toml:"region"`
	Bucket       string `toml:"bucket"`
	Prefix       string `toml:"prefix"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UsePathStyle bool   `toml:"use_path_style"`
}

// ClickHouseConfig holds the historical bar archive.
type ClickHouseConfig struct {
	Enabled       bool     `toml:"enabled"`
	Addr          []string `toml:"addr"`
	Database      string   `toml:"database"`
	Username      string   `toml:"username"`
	Password      string   `toml:"password"`
	Table         string   `toml:"table"`
	PreferArchive bool     `toml:"prefer_archive"`
}

// UniverseConfig names the symbols to scan.
type UniverseConfig struct {
	File    string   `toml:"file"`
	Symbols []string `toml:"symbols"`
}

// ScannerConfig tunes bar fetching and the regime read.
type ScannerConfig struct {
	LookbackDays       int      `toml:"lookback_days"`
	TrailLookbackDays  int      `toml:"trail_lookback_days"`
	Concurrency        int      `toml:"concurrency"`
	Timeout            duration `toml:"timeout"`
	MaxAttempts        int      `toml:"max_attempts"`
	Backoff            duration `toml:"backoff"`
	MaxBackoff         duration `toml:"max_backoff"`
	RateLimit          int      `toml:"rate_limit"`
	RateWindow         duration `toml:"rate_window"`
	RegimeIndex        string   `toml:"regime_index"`
	RegimeLookbackDays int      `toml:"regime_lookback_days"`
}

// TradingConfig holds the starting cash and the seed values of the runtime
// settings. Seeds only apply to keys not already stored.
type TradingConfig struct {
	StartingCash        float64 `toml:"starting_cash"`
	AutoTrade           bool    `toml:"auto_trade"`
	ScanIntervalMinutes int     `toml:"scan_interval_minutes"`
	RiskPct             float64 `toml:"risk_pct"`
	Commission          float64 `toml:"commission"`
	MaxPositions        int     `toml:"max_positions"`
	MinSignalScore      int     `toml:"min_signal_score"`
	MaxDrawdownPct      float64 `toml:"max_drawdown_pct"`
	DailyLossLimitPct   float64 `toml:"daily_loss_limit_pct"`
	SlippagePct         float64 `toml:"slippage_pct"`
	TrailingStopEnabled bool    `toml:"trailing_stop_enabled"`
}

// Settings converts the seed values to domain settings.
func (t TradingConfig) Settings() domain.Settings {
	return domain.Settings{
		AutoTrade:           t.AutoTrade,
		ScanIntervalMinutes: t.ScanIntervalMinutes,
		RiskPct:             t.RiskPct,
		Commission:          t.Commission,
		MaxPositions:        t.MaxPositions,
		MinSignalScore:      t.MinSignalScore,
		MaxDrawdownPct:      t.MaxDrawdownPct,
		DailyLossLimitPct:   t.DailyLossLimitPct,
		SlippagePct:         t.SlippagePct,
		TrailingStopEnabled: t.TrailingStopEnabled,
	}
}

// MarketHoursConfig gates live cycles to exchange sessions.
type MarketHoursConfig struct {
	Enabled  bool            `toml:"enabled"`
	Sessions []SessionConfig `toml:"sessions"`
}

// SessionConfig is one exchange session in local "HH:MM" time.
type SessionConfig struct {
	Name     string `toml:"name"`
	Timezone string `toml:"timezone"`
	Open     string `toml:"open"`
	Close    string `toml:"close"`
}

// BacktestConfig holds replay defaults. Start and End are YYYY-MM-DD.
type BacktestConfig struct {
	Start        string  `toml:"start"`
	End          string  `toml:"end"`
	WarmupDays   int     `toml:"warmup_days"`
	StartingCash float64 `toml:"starting_cash"`
	Archive      bool    `toml:"archive"`
	RiskGate     bool    `toml:"risk_gate"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials. Events filters the
// levels forwarded to Telegram and Discord; empty forwards every level.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	seed := domain.DefaultSettings()
	return Config{
		Mode:     "live",
		LogLevel: "info",

		Broker: BrokerConfig{
			Feed:       "iex",
			Adjustment: "all",
		},

		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "swingbot",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    1,
			MaxConnLifetime: duration{time.Hour},
			RunMigrations:   true,
		},

		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			KeyPrefix:    "swingbot",
			PriceTTL:     duration{24 * time.Hour},
			StreamMaxLen: 10000,
		},

		S3: S3Config{
			Region:       "us-east-1",
			Bucket:       "swingbot-reports",
			UsePathStyle: true,
		},

		ClickHouse: ClickHouseConfig{
			Addr:     []string{"localhost:9000"},
			Database: "swingbot",
			Username: "default",
			Table:    "daily_bars",
		},

		Scanner: ScannerConfig{
			LookbackDays:       365,
			TrailLookbackDays:  120,
			Concurrency:        4,
			Timeout:            duration{15 * time.Second},
			MaxAttempts:        3,
			Backoff:            duration{500 * time.Millisecond},
			MaxBackoff:         duration{8 * time.Second},
			RateLimit:          200,
			RateWindow:         duration{time.Minute},
			RegimeIndex:        "SPY",
			RegimeLookbackDays: 365,
		},

		Trading: TradingConfig{
			StartingCash:        150000,
			AutoTrade:           seed.AutoTrade,
			ScanIntervalMinutes: seed.ScanIntervalMinutes,
			RiskPct:             seed.RiskPct,
			Commission:          seed.Commission,
			MaxPositions:        seed.MaxPositions,
			MinSignalScore:      seed.MinSignalScore,
			MaxDrawdownPct:      seed.MaxDrawdownPct,
			DailyLossLimitPct:   seed.DailyLossLimitPct,
			SlippagePct:         seed.SlippagePct,
			TrailingStopEnabled: seed.TrailingStopEnabled,
		},

		MarketHours: MarketHoursConfig{
			Enabled: true,
			Sessions: []SessionConfig{
				{Name: "US", Timezone: "America/New_York", Open: "09:30", Close: "16:00"},
				{Name: "ASX", Timezone: "Australia/Sydney", Open: "10:00", Close: "16:30"},
			},
		},

		Backtest: BacktestConfig{
			Start:        "2024-07-01",
			End:          "2026-01-31",
			WarmupDays:   90,
			StartingCash: 150000,
		},

		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"*"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
	}
}

var validModes = map[string]bool{
	"live":   true,
	"server": true,
	"once":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLevels = map[string]bool{
	domain.LevelInfo:    true,
	domain.LevelWarning: true,
	domain.LevelError:   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, server, once)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Broker
	if c.Broker.APIKey == "" {
		errs = append(errs, "broker: api_key must not be empty")
	}
	if c.Broker.APISecret == "" && c.Broker.EncryptedSecretPath == "" {
		errs = append(errs, "broker: either api_secret or encrypted_secret_path must be set")
	}
	if c.Broker.APISecret == "" && c.Broker.EncryptedSecretPath != "" && c.Broker.SecretPassword == "" {
		errs = append(errs, "broker: secret_password is required when encrypted_secret_path is set")
	}
	if c.Broker.Feed != "iex" && c.Broker.Feed != "sip" {
		errs = append(errs, fmt.Sprintf("broker: feed must be iex or sip, got %q", c.Broker.Feed))
	}
	switch c.Broker.Adjustment {
	case "raw", "split", "dividend", "all":
	default:
		errs = append(errs, fmt.Sprintf("broker: adjustment must be raw, split, dividend or all, got %q", c.Broker.Adjustment))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}

	// ClickHouse
	if c.ClickHouse.Enabled {
		if len(c.ClickHouse.Addr) == 0 {
			errs = append(errs, "clickhouse: addr must not be empty when enabled")
		}
		if c.ClickHouse.Table == "" {
			errs = append(errs, "clickhouse: table must not be empty when enabled")
		}
	}

	// Universe
	if c.Universe.File == "" && len(c.Universe.Symbols) == 0 {
		errs = append(errs, "universe: file or symbols must be set")
	}

	// Scanner
	if c.Scanner.LookbackDays < 50 {
		errs = append(errs, "scanner: lookback_days must be >= 50")
	}
	if c.Scanner.TrailLookbackDays < minTrailLookbackDays {
		errs = append(errs, fmt.Sprintf("scanner: trail_lookback_days must be >= %d", minTrailLookbackDays))
	}
	if c.Scanner.Concurrency < 1 {
		errs = append(errs, "scanner: concurrency must be >= 1")
	}
	if c.Scanner.MaxAttempts < 1 {
		errs = append(errs, "scanner: max_attempts must be >= 1")
	}
	if c.Scanner.Timeout.Duration <= 0 {
		errs = append(errs, "scanner: timeout must be > 0")
	}
	if c.Scanner.RateLimit > 0 && c.Scanner.RateWindow.Duration <= 0 {
		errs = append(errs, "scanner: rate_window must be > 0 when rate_limit is set")
	}

	// Trading: the seeds must pass the same checks as runtime updates.
	if c.Trading.StartingCash <= 0 {
		errs = append(errs, "trading: starting_cash must be > 0")
	}
	seed := domain.DefaultSettings()
	for key, raw := range c.Trading.Settings().Values() {
		if err := seed.Set(key, raw); err != nil {
			errs = append(errs, "trading: "+err.Error())
		}
	}

	// Market hours
	if c.MarketHours.Enabled {
		if len(c.MarketHours.Sessions) == 0 {
			errs = append(errs, "market_hours: at least one session is required when enabled")
		}
		for _, s := range c.MarketHours.Sessions {
			if _, err := time.LoadLocation(s.Timezone); err != nil {
				errs = append(errs, fmt.Sprintf("market_hours: session %q: unknown timezone %q", s.Name, s.Timezone))
			}
			open, errOpen := time.Parse("15:04", s.Open)
			closeAt, errClose := time.Parse("15:04", s.Close)
			if errOpen != nil || errClose != nil {
				errs = append(errs, fmt.Sprintf("market_hours: session %q: open and close must be HH:MM", s.Name))
			} else if !open.Before(closeAt) {
				errs = append(errs, fmt.Sprintf("market_hours: session %q: open must be before close", s.Name))
			}
		}
	}

	// Backtest
	if c.Backtest.WarmupDays < 0 {
		errs = append(errs, "backtest: warmup_days must be >= 0")
	}
	if c.Backtest.StartingCash <= 0 {
		errs = append(errs, "backtest: starting_cash must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, lvl := range c.Notify.Events {
		if !validLevels[lvl] {
			errs = append(errs, fmt.Sprintf("notify: unknown event level %q (valid: info, warning, error)", lvl))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
