package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SWINGBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SWINGBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Broker ──
	setStr(&cfg.Broker.APIKey, "SWINGBOT_BROKER_API_KEY")
	setStr(&cfg.Broker.APIKey, "APCA_API_KEY_ID") // Alpaca SDK name
	setStr(&cfg.Broker.APISecret, "SWINGBOT_BROKER_API_SECRET")
	setStr(&cfg.Broker.APISecret, "APCA_API_SECRET_KEY")
	setStr(&cfg.Broker.EncryptedSecretPath, "SWINGBOT_BROKER_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Broker.SecretPassword, "SWINGBOT_BROKER_SECRET_PASSWORD")
	setStr(&cfg.Broker.BaseURL, "SWINGBOT_BROKER_BASE_URL")
	setStr(&cfg.Broker.Feed, "SWINGBOT_BROKER_FEED")
	setStr(&cfg.Broker.Adjustment, "SWINGBOT_BROKER_ADJUSTMENT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SWINGBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "SWINGBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SWINGBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SWINGBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SWINGBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SWINGBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SWINGBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SWINGBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SWINGBOT_POSTGRES_POOL_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SWINGBOT_POSTGRES_MAX_CONN_LIFETIME")
	setBool(&cfg.Postgres.RunMigrations, "SWINGBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SWINGBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWINGBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWINGBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWINGBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SWINGBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SWINGBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "SWINGBOT_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.PriceTTL, "SWINGBOT_REDIS_PRICE_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "SWINGBOT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SWINGBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SWINGBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SWINGBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SWINGBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "SWINGBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "SWINGBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SWINGBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UsePathStyle, "SWINGBOT_S3_USE_PATH_STYLE")

	// ── ClickHouse ──
	setBool(&cfg.ClickHouse.Enabled, "SWINGBOT_CLICKHOUSE_ENABLED")
	setStringSlice(&cfg.ClickHouse.Addr, "SWINGBOT_CLICKHOUSE_ADDR")
	setStr(&cfg.ClickHouse.Database, "SWINGBOT_CLICKHOUSE_DATABASE")
	setStr(&cfg.ClickHouse.Username, "SWINGBOT_CLICKHOUSE_USERNAME")
	setStr(&cfg.ClickHouse.Password, "SWINGBOT_CLICKHOUSE_PASSWORD")
	setStr(&cfg.ClickHouse.Table, "SWINGBOT_CLICKHOUSE_TABLE")
	setBool(&cfg.ClickHouse.PreferArchive, "SWINGBOT_CLICKHOUSE_PREFER_ARCHIVE")

	// ── Universe ──
	setStr(&cfg.Universe.File, "SWINGBOT_UNIVERSE_FILE")
	setStringSlice(&cfg.Universe.Symbols, "SWINGBOT_UNIVERSE_SYMBOLS")

	// ── Scanner ──
	setInt(&cfg.Scanner.LookbackDays, "SWINGBOT_SCANNER_LOOKBACK_DAYS")
	setInt(&cfg.Scanner.TrailLookbackDays, "SWINGBOT_SCANNER_TRAIL_LOOKBACK_DAYS")
	setInt(&cfg.Scanner.Concurrency, "SWINGBOT_SCANNER_CONCURRENCY")
	setDuration(&cfg.Scanner.Timeout, "SWINGBOT_SCANNER_TIMEOUT")
	setInt(&cfg.Scanner.MaxAttempts, "SWINGBOT_SCANNER_MAX_ATTEMPTS")
	setDuration(&cfg.Scanner.Backoff, "SWINGBOT_SCANNER_BACKOFF")
	setDuration(&cfg.Scanner.MaxBackoff, "SWINGBOT_SCANNER_MAX_BACKOFF")
	setInt(&cfg.Scanner.RateLimit, "SWINGBOT_SCANNER_RATE_LIMIT")
	setDuration(&cfg.Scanner.RateWindow, "SWINGBOT_SCANNER_RATE_WINDOW")
	setStr(&cfg.Scanner.RegimeIndex, "SWINGBOT_SCANNER_REGIME_INDEX")
	setInt(&cfg.Scanner.RegimeLookbackDays, "SWINGBOT_SCANNER_REGIME_LOOKBACK_DAYS")

	// ── Trading ──
	setFloat64(&cfg.Trading.StartingCash, "SWINGBOT_TRADING_STARTING_CASH")
	setBool(&cfg.Trading.AutoTrade, "SWINGBOT_TRADING_AUTO_TRADE")
	setInt(&cfg.Trading.ScanIntervalMinutes, "SWINGBOT_TRADING_SCAN_INTERVAL_MINUTES")
	setFloat64(&cfg.Trading.RiskPct, "SWINGBOT_TRADING_RISK_PCT")
	setFloat64(&cfg.Trading.Commission, "SWINGBOT_TRADING_COMMISSION")
	setInt(&cfg.Trading.MaxPositions, "SWINGBOT_TRADING_MAX_POSITIONS")
	setInt(&cfg.Trading.MinSignalScore, "SWINGBOT_TRADING_MIN_SIGNAL_SCORE")
	setFloat64(&cfg.Trading.MaxDrawdownPct, "SWINGBOT_TRADING_MAX_DRAWDOWN_PCT")
	setFloat64(&cfg.Trading.DailyLossLimitPct, "SWINGBOT_TRADING_DAILY_LOSS_LIMIT_PCT")
	setFloat64(&cfg.Trading.SlippagePct, "SWINGBOT_TRADING_SLIPPAGE_PCT")
	setBool(&cfg.Trading.TrailingStopEnabled, "SWINGBOT_TRADING_TRAILING_STOP_ENABLED")

	// ── Market hours ──
	setBool(&cfg.MarketHours.Enabled, "SWINGBOT_MARKET_HOURS_ENABLED")

	// ── Backtest ──
	setStr(&cfg.Backtest.Start, "SWINGBOT_BACKTEST_START")
	setStr(&cfg.Backtest.End, "SWINGBOT_BACKTEST_END")
	setInt(&cfg.Backtest.WarmupDays, "SWINGBOT_BACKTEST_WARMUP_DAYS")
	setFloat64(&cfg.Backtest.StartingCash, "SWINGBOT_BACKTEST_STARTING_CASH")
	setBool(&cfg.Backtest.Archive, "SWINGBOT_BACKTEST_ARCHIVE")
	setBool(&cfg.Backtest.RiskGate, "SWINGBOT_BACKTEST_RISK_GATE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SWINGBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SWINGBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SWINGBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SWINGBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SWINGBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SWINGBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SWINGBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SWINGBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SWINGBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SWINGBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SWINGBOT_MODE")
	setStr(&cfg.LogLevel, "SWINGBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
