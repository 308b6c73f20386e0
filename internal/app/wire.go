package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/swingbot/internal/blob/s3"
	"github.com/alanyoungcy/swingbot/internal/cache/redis"
	"github.com/alanyoungcy/swingbot/internal/config"
	"github.com/alanyoungcy/swingbot/internal/crypto"
	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/feed"
	"github.com/alanyoungcy/swingbot/internal/notify"
	"github.com/alanyoungcy/swingbot/internal/platform/alpaca"
	"github.com/alanyoungcy/swingbot/internal/server/handler"
	"github.com/alanyoungcy/swingbot/internal/store/clickhouse"
	"github.com/alanyoungcy/swingbot/internal/store/memory"
	"github.com/alanyoungcy/swingbot/internal/store/postgres"
)

// MarketData bundles what a replay needs: bar and quote sources, the shared
// fetch limiter and the report archive.
type MarketData struct {
	Bars        domain.BarProvider
	Quotes      domain.QuoteProvider
	RateLimiter domain.RateLimiter
	// Reports is nil when S3 is disabled.
	Reports *s3blob.Archiver

	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	Health map[string]handler.Pinger
}

// Dependencies bundles every domain-level dependency that the live modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	*MarketData

	// Stores
	Ledger        *postgres.LedgerStore
	SettingsStore domain.SettingsStore
	ScanResults   domain.ScanResultStore
	EquityStore   domain.EquityStore
	Notifications domain.NotificationStore
	AuditStore    domain.AuditStore

	Notifier domain.Notifier
	Universe []string
}

// ReportArchiver returns the report archive as an interface, or nil.
func (m *MarketData) ReportArchiver() domain.ReportArchiver {
	if m.Reports == nil {
		return nil
	}
	return m.Reports
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// closerStack runs registered cleanups in reverse order.
type closerStack []func()

func (c *closerStack) push(f func()) { *c = append(*c, f) }

func (c *closerStack) run() {
	for i := len(*c) - 1; i >= 0; i-- {
		(*c)[i]()
	}
	*c = nil
}

// marketLocation is the exchange timezone used to stamp bars and trading days.
func marketLocation() *time.Location {
	if ny, err := time.LoadLocation("America/New_York"); err == nil {
		return ny
	}
	return time.UTC
}

// WireMarketData connects Redis (optional), the Alpaca data API, the
// ClickHouse bar archive (optional) and S3 (optional).
func WireMarketData(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*MarketData, func(), error) {
	var closers closerStack
	md := &MarketData{Health: map[string]handler.Pinger{}}

	// --- Redis, or in-process fallbacks ---
	if cfg.Redis.Addr != "" {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   cfg.Redis.MaxRetries,
			TLSEnabled:   cfg.Redis.TLSEnabled,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			PriceTTL:     cfg.Redis.PriceTTL.Duration,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		})
		if err != nil {
			closers.run()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers.push(func() { _ = rc.Close() })
		md.PriceCache = redis.NewPriceCache(rc)
		md.LockManager = redis.NewLockManager(rc)
		md.SignalBus = redis.NewSignalBus(rc)
		md.RateLimiter = redis.NewRateLimiter(rc)
		md.Health["redis"] = rc
	} else {
		logger.WarnContext(ctx, "redis not configured, using in-process cache, lock and bus")
		md.PriceCache = memory.NewPriceCache()
		md.LockManager = memory.NewLockManager()
		md.SignalBus = memory.NewBus(int(cfg.Redis.StreamMaxLen))
	}

	// --- Alpaca market data ---
	secret, err := crypto.LoadSecret(crypto.SecretSource{
		Plain:         cfg.Broker.APISecret,
		EncryptedPath: cfg.Broker.EncryptedSecretPath,
		Password:      cfg.Broker.SecretPassword,
	})
	if err != nil {
		closers.run()
		return nil, nil, fmt.Errorf("wire: broker secret: %w", err)
	}
	ac := alpaca.NewClient(alpaca.Config{
		APIKey:     cfg.Broker.APIKey,
		APISecret:  secret,
		BaseURL:    cfg.Broker.BaseURL,
		Feed:       cfg.Broker.Feed,
		Adjustment: cfg.Broker.Adjustment,
		Location:   marketLocation(),
	})
	md.Bars = ac
	md.Quotes = ac

	// --- ClickHouse bar archive ---
	if cfg.ClickHouse.Enabled {
		store, err := clickhouse.Open(ctx, clickhouse.Config{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
			Table:    cfg.ClickHouse.Table,
		})
		if err != nil {
			closers.run()
			return nil, nil, fmt.Errorf("wire: clickhouse: %w", err)
		}
		closers.push(func() { _ = store.Close() })
		md.Bars = feed.NewArchived(ac, store, cfg.ClickHouse.PreferArchive, logger)
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         !strings.HasPrefix(cfg.S3.Endpoint, "http://"),
			ForcePathStyle: cfg.S3.UsePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			closers.run()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		md.Reports = s3blob.NewArchiver(s3blob.NewWriter(sc), s3blob.NewReader(sc))
		md.Health["s3"] = pingFunc(sc.Health)
	}

	return md, closers.run, nil
}

// Wire constructs every dependency of the live modes. Postgres is required.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers closerStack

	md, mdCleanup, err := WireMarketData(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closers.push(mdCleanup)
	deps := &Dependencies{MarketData: md}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:             cfg.Postgres.DSN,
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		Database:        cfg.Postgres.Database,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxConns:        cfg.Postgres.PoolMaxConns,
		MinConns:        cfg.Postgres.PoolMinConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
	})
	if err != nil {
		closers.run()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers.push(pgClient.Close)
	md.Health["postgres"] = pgClient

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			closers.run()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Ledger = postgres.NewLedgerStore(pool)
	deps.SettingsStore = postgres.NewSettingsStore(pool)
	deps.ScanResults = postgres.NewScanResultStore(pool)
	deps.EquityStore = postgres.NewEquityStore(pool)
	deps.Notifications = postgres.NewNotificationStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	if err := deps.Ledger.EnsurePortfolio(ctx, cfg.Trading.StartingCash); err != nil {
		closers.run()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	dispatcher := notify.NewDispatcher(senders, cfg.Notify.Events, logger)
	deps.Notifier = notify.NewSink(deps.Notifications, md.SignalBus, dispatcher, logger)

	// --- Symbol universe ---
	deps.Universe, err = config.LoadUniverse(cfg.Universe, logger)
	if err != nil {
		closers.run()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	return deps, closers.run, nil
}

// newPool builds the bar fetch pool from the scanner settings.
func newPool(cfg *config.Config, md *MarketData, logger *slog.Logger) *feed.Pool {
	return feed.NewPool(md.Bars, md.RateLimiter, feed.PoolConfig{
		Concurrency: cfg.Scanner.Concurrency,
		Timeout:     cfg.Scanner.Timeout.Duration,
		MaxAttempts: cfg.Scanner.MaxAttempts,
		Backoff:     cfg.Scanner.Backoff.Duration,
		MaxBackoff:  cfg.Scanner.MaxBackoff.Duration,
		RateLimit:   cfg.Scanner.RateLimit,
		RateWindow:  cfg.Scanner.RateWindow.Duration,
	}, logger)
}
