package di

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/adapters/backend"
	"github.com/zynpay/zynpay_service/internal/api/handlers"
	"github.com/zynpay/zynpay_service/internal/domain/services/network"
	"github.com/zynpay/zynpay_service/internal/domain/services/payment"
	"github.com/zynpay/zynpay_service/internal/domain/services/paymentledger"
	"github.com/zynpay/zynpay_service/internal/domain/services/pricing"
	"github.com/zynpay/zynpay_service/internal/domain/services/recipient"
	"github.com/zynpay/zynpay_service/internal/domain/services/settlement"
	"github.com/zynpay/zynpay_service/internal/infrastructure/adapters"
	"github.com/zynpay/zynpay_service/internal/infrastructure/adapters/coingecko"
	"github.com/zynpay/zynpay_service/internal/infrastructure/cache"
	"github.com/zynpay/zynpay_service/internal/infrastructure/config"
	"github.com/zynpay/zynpay_service/internal/infrastructure/database"
	"github.com/zynpay/zynpay_service/internal/infrastructure/evm"
	"github.com/zynpay/zynpay_service/internal/infrastructure/repositories"
	"github.com/zynpay/zynpay_service/pkg/logger"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	// DB is nil when the service runs on in-memory stores.
	DB     *sqlx.DB
	Logger *logger.Logger
	ZapLog *zap.Logger
	Cache  cache.RedisClient

	// Infrastructure
	Registry     *network.Registry
	Keystore     *evm.Keystore
	Gateway      *evm.Gateway
	Backend      *backend.Client
	CoinGecko    *coingecko.Client
	EmailService *adapters.EmailService

	// Stores
	ActionStore         payment.ActionStore
	ReconciliationStore settlement.ReconciliationStore

	// Domain services
	PricingService   *pricing.Service
	LedgerReader     *paymentledger.Reader
	Executor         *payment.Executor
	Coordinator      *settlement.Coordinator
	RecipientService *recipient.Service
}

// NewContainer creates a new dependency injection container. db may be nil,
// in which case actions and reconciliation markers live in memory.
func NewContainer(ctx context.Context, cfg *config.Config, db *sqlx.DB, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()
	c := &Container{
		Config: cfg,
		DB:     db,
		Logger: log,
		ZapLog: zapLog,
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis, zapLog)
	if err != nil {
		if cfg.Environment == "production" {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Warn("Redis unavailable, using in-memory cache", "error", err)
		c.Cache = cache.NewMemoryClient()
	} else {
		c.Cache = redisClient
	}

	c.Registry = network.FromConfig(cfg.Blockchain)

	c.Keystore, err = evm.NewKeystore(cfg.Signer)
	if err != nil {
		return nil, fmt.Errorf("failed to load signer keys: %w", err)
	}
	c.Gateway, err = evm.NewGateway(ctx, c.Registry.Networks(), c.Keystore, zapLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blockchain gateway: %w", err)
	}

	c.Backend = backend.NewClient(backend.Config{
		BaseURL:         cfg.Backend.BaseURL,
		Timeout:         time.Duration(cfg.Backend.Timeout) * time.Second,
		RequestsPerSec:  cfg.Backend.RequestsPerSec,
		MaxRetries:      cfg.Backend.MaxRetries,
		ServiceEmail:    cfg.Backend.ServiceEmail,
		ServicePassword: cfg.Backend.ServicePassword,
	}, log)

	c.CoinGecko = coingecko.NewClient(coingecko.Config{
		BaseURL:           cfg.Pricing.CoinGeckoBaseURL,
		APIKey:            cfg.Pricing.CoinGeckoAPIKey,
		Timeout:           time.Duration(cfg.Pricing.TierTimeout) * time.Second,
		RequestsPerMinute: cfg.Pricing.RequestsPerMin,
	}, zapLog)

	c.EmailService, err = adapters.NewEmailService(zapLog, adapters.EmailServiceConfig{
		Provider:     cfg.Email.Provider,
		APIKey:       cfg.Email.APIKey,
		FromEmail:    cfg.Email.FromEmail,
		FromName:     cfg.Email.FromName,
		SupportEmail: cfg.Reconciliation.SupportEmail,
	})
	if err != nil {
		c.Gateway.Close()
		return nil, fmt.Errorf("failed to initialize email service: %w", err)
	}

	if db != nil {
		c.ActionStore = repositories.NewPaymentActionRepository(db)
		c.ReconciliationStore = repositories.NewPostgresReconciliationRepository(db)
	} else {
		c.ActionStore = payment.NewMemoryActionStore()
		c.ReconciliationStore = settlement.NewMemoryReconciliationStore()
	}

	pricingCfg, err := pricingConfig(cfg.Pricing)
	if err != nil {
		c.Gateway.Close()
		return nil, err
	}
	c.PricingService = pricing.NewService(c.Registry, c.Gateway, c.CoinGecko, pricingCfg, zapLog)

	c.LedgerReader = paymentledger.NewReader(c.Registry, c.Gateway, c.Gateway, c.Cache, zapLog).
		WithMaxAge(time.Duration(cfg.Blockchain.ViewMaxAge) * time.Second)

	c.Executor = payment.NewExecutor(c.Registry, c.Gateway, c.LedgerReader, c.ActionStore, payment.Config{
		PollInterval:        time.Duration(cfg.Confirmation.PollInterval) * time.Millisecond,
		ConfirmationTimeout: time.Duration(cfg.Confirmation.Timeout) * time.Second,
	}, zapLog)
	// confirmed actions trigger a rescan of the acting account so lists reflect them right away
	c.Executor.AddListener(c.LedgerReader)

	c.Coordinator = settlement.NewCoordinator(
		c.Registry,
		c.Backend,
		c.PricingService,
		c.LedgerReader,
		c.Executor,
		c.Gateway,
		c.ReconciliationStore,
		c.EmailService,
		settlement.Config{MaxAttempts: cfg.Reconciliation.MaxAttempts},
		zapLog,
	)

	c.RecipientService = recipient.NewService(c.Backend, zapLog)

	return c, nil
}

func pricingConfig(cfg config.PricingConfig) (pricing.Config, error) {
	out := pricing.Config{
		Stablecoins: cfg.Stablecoins,
		StaticRates: make(map[string]decimal.Decimal, len(cfg.StaticRates)),
		TierTimeout: time.Duration(cfg.TierTimeout) * time.Second,
	}
	for sym, raw := range cfg.StaticRates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return out, fmt.Errorf("invalid static rate for %s: %w", sym, err)
		}
		out.StaticRates[sym] = rate
	}
	if cfg.DefaultRate != "" {
		rate, err := decimal.NewFromString(cfg.DefaultRate)
		if err != nil {
			return out, fmt.Errorf("invalid default rate: %w", err)
		}
		out.DefaultRate = rate
	}
	return out, nil
}

// HealthChecks lists the probes served on /health. The database is critical
// when configured; an unreachable cache or node only degrades the service.
func (c *Container) HealthChecks() []handlers.HealthCheck {
	var checks []handlers.HealthCheck
	if c.DB != nil {
		checks = append(checks, handlers.HealthCheck{
			Name:     "database",
			Critical: true,
			Check: func(ctx context.Context) error {
				return database.HealthCheck(ctx, c.DB)
			},
		})
	}
	checks = append(checks, handlers.HealthCheck{
		Name:  "cache",
		Check: c.Cache.Ping,
	})
	for _, n := range c.Registry.Networks() {
		chainID := n.ChainID
		checks = append(checks, handlers.HealthCheck{
			Name: "rpc:" + n.Name,
			Check: func(ctx context.Context) error {
				return c.Gateway.HealthCheck(ctx, chainID)
			},
		})
	}
	return checks
}

// Close stops confirmation watchers and releases connections. The database is
// owned by the caller.
func (c *Container) Close() error {
	c.Executor.Close()
	c.Gateway.Close()
	if err := c.Cache.Close(); err != nil {
		c.ZapLog.Warn("Failed to close cache", zap.Error(err))
	}
	return nil
}
