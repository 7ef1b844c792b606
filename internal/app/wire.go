package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/Trenches-spray-and-play/Platform-sub002/internal/blob/s3"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/cache/redis"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/config"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/domain"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/notify"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/platform/pricefeed"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/platform/treasury"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/service"
	"github.com/Trenches-spray-and-play/Platform-sub002/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	TxManager     domain.TxManager
	PositionStore domain.PositionStore
	TrenchStore   domain.TrenchStore
	WalletStore   domain.WalletStore
	UserStore     domain.UserStore
	EventStore    domain.EventStore
	ParamStore    domain.ParamStore

	// Caches
	RateCache   domain.RateCache
	PriceCache  domain.PriceCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// External services
	Payouts domain.PayoutExecutor
	Feed    *pricefeed.Feed

	// Services
	PriceSource domain.PriceSource
	PayoutClock *service.PayoutClockService
	Boost       *service.BoostService
	Settlement  *service.SettlementService
	Entries     *service.EntryService

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	switch mode {
	case "settle", "archive", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string, archiveEnabled bool) bool {
	switch mode {
	case "archive":
		return true
	case "full":
		return archiveEnabled
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TxManager = postgres.NewTxManager(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.TrenchStore = postgres.NewTrenchStore(pool)
		deps.WalletStore = postgres.NewWalletStore(pool)
		deps.UserStore = postgres.NewUserStore(pool)
		deps.EventStore = postgres.NewEventStore(pool)
		deps.ParamStore = postgres.NewParamStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	if deps.ParamStore != nil {
		deps.RateCache = redis.NewRateCache(redisClient, deps.ParamStore, cfg.Settlement.RateCacheTTL.Duration)
	}

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg.Mode, cfg.Archive.Enabled) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		if deps.EventStore != nil && deps.TxManager != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.EventStore, deps.TxManager, logger)
		}
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Treasury + price feed ---
	if cfg.Treasury.BaseURL != "" {
		deps.Payouts = treasury.NewClient(cfg.Treasury.BaseURL, cfg.Treasury.ApiKey)
	}
	if cfg.PriceFeed.Enabled {
		deps.Feed = pricefeed.NewFeed(cfg.PriceFeed.WsURL, cfg.PriceFeed.Assets, deps.PriceCache, logger)
	}

	// --- Services (only when the stores behind them exist) ---
	deps.PriceSource = service.NewPriceService(deps.PriceCache, cfg.Settlement.PriceMaxAge.Duration)
	if deps.TxManager != nil {
		deps.PayoutClock = service.NewPayoutClockService(
			deps.PositionStore, deps.TrenchStore, deps.ParamStore, deps.RateCache, logger)
		deps.Boost = service.NewBoostService(
			deps.TxManager, deps.PositionStore, deps.TrenchStore, deps.WalletStore,
			deps.EventStore, deps.RateCache, deps.SignalBus, logger)
		deps.Entries = service.NewEntryService(
			deps.TxManager, deps.PositionStore, deps.TrenchStore, deps.EventStore,
			deps.RateCache, deps.PriceSource, deps.Payouts, logger)
		if deps.Payouts != nil {
			deps.Settlement = service.NewSettlementService(
				deps.TxManager, deps.PositionStore, deps.TrenchStore, deps.UserStore,
				deps.EventStore, deps.ParamStore, deps.LockManager, deps.PriceSource,
				deps.Payouts, deps.SignalBus, deps.Notifier,
				cfg.Settlement.LockTTL.Duration, logger)
		}
	}

	return deps, cleanup, nil
}
