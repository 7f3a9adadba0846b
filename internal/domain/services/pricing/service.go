// Package pricing resolves how many token units one US dollar buys, walking a
// ranked list of price sources until one answers.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/internal/domain/services/network"
	"github.com/zynpay/zynpay_service/pkg/metrics"
)

// PriceFeedReader reads an on-chain USD price aggregator.
type PriceFeedReader interface {
	LatestRoundData(ctx context.Context, chainID int64, feed string) (*big.Int, uint8, error)
}

// PriceIndex is an off-chain USD price source keyed by token symbol.
type PriceIndex interface {
	USDPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

var errNoPriceFeed = errors.New("no price feed configured")

// Config holds the pricing policy.
type Config struct {
	Stablecoins []string
	StaticRates map[string]decimal.Decimal
	DefaultRate decimal.Decimal
	TierTimeout time.Duration
}

// DefaultStaticRates is the last-resort table used when nothing else answers.
func DefaultStaticRates() map[string]decimal.Decimal {
	milli := decimal.RequireFromString("0.001")
	return map[string]decimal.Decimal{
		"ETH":     milli,
		"BNB":     milli,
		"TBNB":    milli,
		"MATIC":   milli,
		"AVAX":    milli,
		"EDU":     milli,
		"KAIA":    decimal.NewFromInt(10),
		"ZOLLPTT": decimal.NewFromInt(1),
	}
}

type tier struct {
	source entities.RateSource
	fetch  func(ctx context.Context, chainID int64, symbol string) (decimal.Decimal, error)
}

// Service implements the Price Oracle Resolver.
type Service struct {
	registry    *network.Registry
	stablecoins map[string]struct{}
	static      map[string]decimal.Decimal
	defaultRate decimal.Decimal
	timeout     time.Duration
	tiers       []tier
	logger      *zap.Logger
}

// NewService wires the tiers in rank order: on-chain aggregator, price index,
// static table. Either source may be nil, in which case that tier is skipped.
func NewService(registry *network.Registry, feeds PriceFeedReader, index PriceIndex, cfg Config, logger *zap.Logger) *Service {
	if cfg.TierTimeout <= 0 {
		cfg.TierTimeout = 5 * time.Second
	}
	if !cfg.DefaultRate.IsPositive() {
		cfg.DefaultRate = decimal.RequireFromString("0.001")
	}

	s := &Service{
		registry:    registry,
		stablecoins: make(map[string]struct{}, len(cfg.Stablecoins)),
		static:      DefaultStaticRates(),
		defaultRate: cfg.DefaultRate,
		timeout:     cfg.TierTimeout,
		logger:      logger,
	}
	for _, sym := range cfg.Stablecoins {
		s.stablecoins[normalize(sym)] = struct{}{}
	}
	for sym, rate := range cfg.StaticRates {
		if rate.IsPositive() {
			s.static[normalize(sym)] = rate
		}
	}

	if feeds != nil {
		s.tiers = append(s.tiers, tier{
			source: entities.RateSourcePrimaryOracle,
			fetch: func(ctx context.Context, chainID int64, symbol string) (decimal.Decimal, error) {
				return s.fromPriceFeed(ctx, feeds, chainID, symbol)
			},
		})
	}
	if index != nil {
		s.tiers = append(s.tiers, tier{
			source: entities.RateSourceSecondaryIndex,
			fetch: func(ctx context.Context, _ int64, symbol string) (decimal.Decimal, error) {
				price, err := index.USDPrice(ctx, symbol)
				if err != nil {
					return decimal.Zero, err
				}
				return invert(price)
			},
		})
	}
	return s
}

// IsStablecoin reports whether symbol is treated as pegged 1:1 to USD.
func (s *Service) IsStablecoin(symbol string) bool {
	sym := normalize(symbol)
	if strings.Contains(sym, "USD") {
		return true
	}
	_, ok := s.stablecoins[sym]
	return ok
}

// GetExchangeRate returns token units per USD for symbol on chainID. It always
// yields a finite positive rate: when every live source fails the static table
// answers and the exhaustion is logged.
func (s *Service) GetExchangeRate(ctx context.Context, chainID int64, symbol string) (*entities.ExchangeRate, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, apperrors.ValidationError("symbol", "symbol is required")
	}

	if s.IsStablecoin(symbol) {
		return s.resolved(chainID, symbol, decimal.NewFromInt(1), entities.RateSourceStablecoin), nil
	}

	var failures []error
	for _, t := range s.tiers {
		rate, err := s.attempt(ctx, t, chainID, symbol)
		if err == nil {
			return s.resolved(chainID, symbol, rate, t.source), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.PriceTierFailures.WithLabelValues(string(t.source)).Inc()
		failures = append(failures, fmt.Errorf("%s: %w", t.source, err))
	}

	if len(s.tiers) > 0 {
		s.logger.Warn("All live price sources failed, using static rate",
			zap.String("symbol", symbol),
			zap.Int64("chain_id", chainID),
			zap.Error(apperrors.OracleExhaustedError(symbol, chainID)),
			zap.Errors("causes", failures))
	}
	return s.resolved(chainID, symbol, s.StaticRate(symbol), entities.RateSourceStaticFallback), nil
}

// StaticRate returns the configured fallback rate for symbol.
func (s *Service) StaticRate(symbol string) decimal.Decimal {
	if rate, ok := s.static[normalize(symbol)]; ok {
		return rate
	}
	return s.defaultRate
}

func (s *Service) attempt(ctx context.Context, t tier, chainID int64, symbol string) (decimal.Decimal, error) {
	tierCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rate, err := t.fetch(tierCtx, chainID, symbol)
	if err != nil {
		s.logger.Debug("Price tier failed",
			zap.String("source", string(t.source)),
			zap.String("symbol", symbol),
			zap.Error(err))
		return decimal.Zero, err
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate %s", rate)
	}
	return rate, nil
}

func (s *Service) fromPriceFeed(ctx context.Context, feeds PriceFeedReader, chainID int64, symbol string) (decimal.Decimal, error) {
	token, err := s.registry.Token(chainID, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if token.PriceFeed == "" {
		return decimal.Zero, errNoPriceFeed
	}

	answer, decimals, err := feeds.LatestRoundData(ctx, chainID, token.PriceFeed)
	if err != nil {
		return decimal.Zero, err
	}
	if answer == nil || answer.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("price feed %s returned non-positive answer", token.PriceFeed)
	}
	return invert(decimal.NewFromBigInt(answer, -int32(decimals)))
}

func (s *Service) resolved(chainID int64, symbol string, rate decimal.Decimal, source entities.RateSource) *entities.ExchangeRate {
	metrics.ExchangeRateResolutions.WithLabelValues(normalize(symbol), string(source)).Inc()
	return &entities.ExchangeRate{
		Symbol:    symbol,
		ChainID:   chainID,
		Rate:      rate,
		Source:    source,
		FetchedAt: time.Now().UTC(),
	}
}

// invert turns a USD price into token units per dollar.
func invert(price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s", price)
	}
	return decimal.NewFromInt(1).DivRound(price, 18), nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
