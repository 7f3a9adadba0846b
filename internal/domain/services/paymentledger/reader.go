// Package paymentledger builds an account's payment history from the payment
// contract's event log.
package paymentledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	apperrors "github.com/zynpay/zynpay_service/internal/domain/errors"
	"github.com/zynpay/zynpay_service/internal/domain/services/network"
	"github.com/zynpay/zynpay_service/pkg/metrics"
)

const (
	unknownSymbol   = "UNKNOWN"
	unknownDecimals = 18
)

// EventSource is the read side of the ledger.
type EventSource interface {
	BlockNumber(ctx context.Context, chainID int64) (uint64, error)
	FilterPaymentEvents(ctx context.Context, chainID int64, filter entities.EventFilter) ([]entities.PaymentEvent, error)
	BlockTime(ctx context.Context, chainID int64, blockHash string) (time.Time, error)
	TokenMetadata(ctx context.Context, chainID int64, token string) (string, uint8, error)
}

// BalanceReader reads account holdings.
type BalanceReader interface {
	NativeBalance(ctx context.Context, chainID int64, account string) (*big.Int, error)
	TokenBalance(ctx context.Context, chainID int64, token, account string) (*big.Int, error)
}

// MetadataCache stores token metadata, which never changes for a deployed token.
type MetadataCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

type tokenMeta struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type viewKey struct {
	account string
	chainID int64
}

// accountView is the cached result of the last successful scan plus every
// terminal status ever observed for the account.
type accountView struct {
	payments    []entities.Payment
	terminal    map[string]entities.StatusInfo
	refreshedAt time.Time
	scanned     bool
}

// Reader implements the Payment Ledger Reader.
type Reader struct {
	registry *network.Registry
	events   EventSource
	balances BalanceReader
	cache    MetadataCache
	logger   *zap.Logger
	maxAge   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	views map[viewKey]*accountView
	// scans serialises refreshes per account so the terminal memory is updated in order
	scans map[viewKey]*sync.Mutex
}

// NewReader creates a ledger reader. cache may be nil.
func NewReader(registry *network.Registry, events EventSource, balances BalanceReader, cache MetadataCache, logger *zap.Logger) *Reader {
	return &Reader{
		registry: registry,
		events:   events,
		balances: balances,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
		views:    make(map[viewKey]*accountView),
		scans:    make(map[viewKey]*sync.Mutex),
	}
}

// WithMaxAge makes ListPayments rescan views older than d. Zero keeps views until
// an explicit Refresh.
func (r *Reader) WithMaxAge(d time.Duration) *Reader {
	r.maxAge = d
	return r
}

func key(account string, chainID int64) viewKey {
	return viewKey{account: strings.ToLower(account), chainID: chainID}
}

// ListPayments returns the cached view, scanning first if the account has never
// been scanned or the view is older than the max age. When that scan fails the
// error is returned with whatever was cached before.
func (r *Reader) ListPayments(ctx context.Context, account string, chainID int64) ([]entities.Payment, error) {
	r.mu.Lock()
	v, ok := r.views[key(account, chainID)]
	fresh := ok && v.scanned && (r.maxAge <= 0 || r.now().Sub(v.refreshedAt) < r.maxAge)
	var cached []entities.Payment
	if fresh {
		cached = clonePayments(v.payments)
	}
	r.mu.Unlock()

	if fresh {
		return cached, nil
	}
	return r.Refresh(ctx, account, chainID)
}

// LastRefreshed reports when the account's view was last rebuilt.
func (r *Reader) LastRefreshed(account string, chainID int64) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.views[key(account, chainID)]; ok {
		return v.refreshedAt
	}
	return time.Time{}
}

// Refresh rescans the event log and replaces the cached view. On failure the
// previous view is kept and returned alongside a LedgerReadError.
func (r *Reader) Refresh(ctx context.Context, account string, chainID int64) ([]entities.Payment, error) {
	if !isHexAddress(account) {
		return nil, apperrors.ValidationError("account", "account must be a 0x-prefixed 20-byte address")
	}
	net, err := r.registry.Network(chainID)
	if err != nil {
		return nil, err
	}

	k := key(account, chainID)
	lock := r.scanLock(k)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	payments, terminal, err := r.scan(ctx, net, account, r.terminalSnapshot(k))
	chainLabel := strconv.FormatInt(chainID, 10)
	if err != nil {
		metrics.LedgerScanDuration.WithLabelValues(chainLabel, "error").Observe(time.Since(start).Seconds())
		r.logger.Warn("Ledger scan failed, serving cached payments",
			zap.String("account", account),
			zap.Int64("chain_id", chainID),
			zap.Error(err))

		r.mu.Lock()
		var stale []entities.Payment
		if v, ok := r.views[k]; ok {
			stale = clonePayments(v.payments)
		}
		r.mu.Unlock()
		return stale, apperrors.LedgerReadError(chainID, err)
	}
	metrics.LedgerScanDuration.WithLabelValues(chainLabel, "ok").Observe(time.Since(start).Seconds())

	r.mu.Lock()
	r.views[k] = &accountView{
		payments:    payments,
		terminal:    terminal,
		refreshedAt: r.now().UTC(),
		scanned:     true,
	}
	r.mu.Unlock()

	r.logger.Debug("Ledger scan completed",
		zap.String("account", account),
		zap.Int64("chain_id", chainID),
		zap.Int("payments", len(payments)),
		zap.Duration("duration", time.Since(start)))
	return clonePayments(payments), nil
}

// FindPayment looks a payment up in the cached view, rescanning once on a miss.
func (r *Reader) FindPayment(ctx context.Context, account string, chainID int64, paymentID string) (*entities.Payment, error) {
	payments, err := r.ListPayments(ctx, account, chainID)
	if p := findByID(payments, paymentID); p != nil {
		return p, nil
	}
	if err != nil {
		return nil, err
	}

	payments, err = r.Refresh(ctx, account, chainID)
	if p := findByID(payments, paymentID); p != nil {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, apperrors.NotFoundError("PAYMENT").WithDetails(map[string]interface{}{"payment_id": paymentID})
}

// LookupPayment finds a payment by id regardless of who sent or received it.
// Only the scan window is searched; NotFound means the PaymentSent event is
// older than that or never happened.
func (r *Reader) LookupPayment(ctx context.Context, chainID int64, paymentID string) (*entities.Payment, error) {
	net, err := r.registry.Network(chainID)
	if err != nil {
		return nil, err
	}
	id := normalizeID(paymentID)

	head, err := r.events.BlockNumber(ctx, chainID)
	if err != nil {
		return nil, apperrors.LedgerReadError(chainID, fmt.Errorf("block number: %w", err))
	}
	var from uint64
	if head > net.ScanLookback {
		from = head - net.ScanLookback
	}
	filter := func(kind entities.PaymentEventKind) entities.EventFilter {
		return entities.EventFilter{Kind: kind, PaymentID: id, FromBlock: from, ToBlock: head}
	}

	var sentEvents, terminalEvents []entities.PaymentEvent
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range []entities.PaymentEventKind{entities.PaymentEventSent, entities.PaymentEventClaimed, entities.PaymentEventReimbursed} {
		kind := kind
		g.Go(func() error {
			evs, err := r.events.FilterPaymentEvents(gctx, chainID, filter(kind))
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ev := range evs {
				if normalizeID(ev.PaymentID) != id {
					continue
				}
				if kind == entities.PaymentEventSent {
					sentEvents = append(sentEvents, ev)
				} else {
					terminalEvents = append(terminalEvents, ev)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.LedgerReadError(chainID, err)
	}

	ev, ok := dedupeSent(sentEvents)[id]
	if !ok {
		return nil, apperrors.NotFoundError("PAYMENT").WithDetails(map[string]interface{}{"payment_id": id})
	}
	amount := decimal.Zero
	if ev.Amount != nil {
		amount = decimal.NewFromBigInt(ev.Amount, 0)
	}
	p := &entities.Payment{
		PaymentID:    id,
		From:         ev.From,
		To:           ev.To,
		Amount:       amount,
		TokenAddress: ev.TokenAddress,
		Status:       entities.PaymentStatusSent,
		TxHash:       ev.TxHash,
		BlockNumber:  ev.BlockNumber,
	}
	if len(terminalEvents) > 0 {
		sortEvents(terminalEvents)
		first := terminalEvents[0]
		p.Status = first.Kind.Status()
		p.StatusInfo = &entities.StatusInfo{Status: p.Status, By: first.By, TxHash: first.TxHash}
	}
	return p, nil
}

// Balance returns the account's holding of token, which may be a symbol or an address.
func (r *Reader) Balance(ctx context.Context, account string, chainID int64, token string) (*entities.Balance, error) {
	net, err := r.registry.Network(chainID)
	if err != nil {
		return nil, err
	}
	desc, ok := net.TokenBySymbol(token)
	if !ok {
		desc, ok = net.TokenByAddress(token)
	}
	if !ok {
		if !isHexAddress(token) {
			return nil, apperrors.NotFoundError("TOKEN").WithDetails(map[string]interface{}{"token": token})
		}
		desc = r.tokenDescriptor(ctx, net, token)
	}

	var raw *big.Int
	if net.IsNative(desc) {
		raw, err = r.balances.NativeBalance(ctx, chainID, account)
	} else {
		raw, err = r.balances.TokenBalance(ctx, chainID, desc.Address, account)
	}
	if err != nil {
		return nil, apperrors.ServiceUnavailableError("ledger", err)
	}

	return &entities.Balance{
		Account: account,
		ChainID: chainID,
		Token:   desc,
		Amount:  decimal.NewFromBigInt(raw, -int32(desc.Decimals)),
		Fetched: time.Now().UTC(),
	}, nil
}

// OnConfirmed refreshes the acting account's view after one of its actions confirms.
func (r *Reader) OnConfirmed(ctx context.Context, action *entities.PaymentAction) {
	if _, err := r.Refresh(ctx, action.Account, action.ChainID); err != nil {
		r.logger.Warn("Post-confirmation refresh failed",
			zap.String("action_id", action.ID.String()),
			zap.Error(err))
	}
}

func (r *Reader) scanLock(k viewKey) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.scans[k]
	if !ok {
		l = &sync.Mutex{}
		r.scans[k] = l
	}
	return l
}

func (r *Reader) terminalSnapshot(k viewKey) map[string]entities.StatusInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]entities.StatusInfo)
	if v, ok := r.views[k]; ok {
		for id, info := range v.terminal {
			out[id] = info
		}
	}
	return out
}

type eventStreams struct {
	sentFrom   []entities.PaymentEvent
	sentTo     []entities.PaymentEvent
	claimed    []entities.PaymentEvent
	reimbursed []entities.PaymentEvent
}

func (r *Reader) fetch(ctx context.Context, net *entities.NetworkDescriptor, account string) (*eventStreams, error) {
	head, err := r.events.BlockNumber(ctx, net.ChainID)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	var from uint64
	if head > net.ScanLookback {
		from = head - net.ScanLookback
	}

	window := func(f entities.EventFilter) entities.EventFilter {
		f.FromBlock, f.ToBlock = from, head
		return f
	}

	var streams eventStreams
	g, gctx := errgroup.WithContext(ctx)
	query := func(dst *[]entities.PaymentEvent, f entities.EventFilter) {
		g.Go(func() error {
			evs, err := r.events.FilterPaymentEvents(gctx, net.ChainID, window(f))
			if err != nil {
				return err
			}
			*dst = evs
			return nil
		})
	}
	query(&streams.sentFrom, entities.EventFilter{Kind: entities.PaymentEventSent, From: account})
	query(&streams.sentTo, entities.EventFilter{Kind: entities.PaymentEventSent, To: account})
	query(&streams.claimed, entities.EventFilter{Kind: entities.PaymentEventClaimed})
	query(&streams.reimbursed, entities.EventFilter{Kind: entities.PaymentEventReimbursed})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &streams, nil
}

func (r *Reader) scan(ctx context.Context, net *entities.NetworkDescriptor, account string, remembered map[string]entities.StatusInfo) ([]entities.Payment, map[string]entities.StatusInfo, error) {
	streams, err := r.fetch(ctx, net, account)
	if err != nil {
		return nil, nil, err
	}

	sent := dedupeSent(append(streams.sentFrom, streams.sentTo...))

	terminalEvents := append(streams.claimed, streams.reimbursed...)
	sortEvents(terminalEvents)

	// earliest terminal event per payment wins
	terminal := remembered
	for _, ev := range terminalEvents {
		id := normalizeID(ev.PaymentID)
		if _, ours := sent[id]; !ours {
			continue
		}
		status := ev.Kind.Status()
		if prev, seen := terminal[id]; seen {
			if prev.Status != status || !strings.EqualFold(prev.TxHash, ev.TxHash) {
				r.logger.Warn("Ignoring conflicting terminal event",
					zap.String("payment_id", id),
					zap.String("kept", string(prev.Status)),
					zap.String("ignored", string(status)),
					zap.String("tx_hash", ev.TxHash))
			}
			continue
		}
		terminal[id] = entities.StatusInfo{
			Status: status,
			By:     ev.By,
			TxHash: ev.TxHash,
		}
	}

	blockTimes := make(map[string]time.Time)
	blockTime := func(hash string) (time.Time, error) {
		if t, ok := blockTimes[hash]; ok {
			return t, nil
		}
		t, err := r.events.BlockTime(ctx, net.ChainID, hash)
		if err != nil {
			return time.Time{}, fmt.Errorf("block time %s: %w", hash, err)
		}
		blockTimes[hash] = t
		return t, nil
	}
	terminalBlocks := make(map[string]string, len(terminalEvents))
	for _, ev := range terminalEvents {
		id := normalizeID(ev.PaymentID)
		if info, ok := terminal[id]; ok && strings.EqualFold(info.TxHash, ev.TxHash) {
			terminalBlocks[id] = ev.BlockHash
		}
	}

	tokens := make(map[string]entities.TokenDescriptor)
	payments := make([]entities.Payment, 0, len(sent))
	for id, ev := range sent {
		desc, ok := tokens[strings.ToLower(ev.TokenAddress)]
		if !ok {
			desc = r.tokenDescriptor(ctx, net, ev.TokenAddress)
			tokens[strings.ToLower(ev.TokenAddress)] = desc
		}

		createdAt, err := blockTime(ev.BlockHash)
		if err != nil {
			return nil, nil, err
		}

		amount := decimal.Zero
		if ev.Amount != nil {
			amount = decimal.NewFromBigInt(ev.Amount, 0)
		}

		p := entities.Payment{
			PaymentID:       id,
			From:            ev.From,
			To:              ev.To,
			Amount:          amount,
			FormattedAmount: amount.Shift(-int32(desc.Decimals)),
			TokenAddress:    ev.TokenAddress,
			TokenSymbol:     desc.Symbol,
			TokenDecimals:   desc.Decimals,
			Status:          entities.PaymentStatusSent,
			CreatedAt:       createdAt,
			TxHash:          ev.TxHash,
			BlockNumber:     ev.BlockNumber,
		}

		if info, ok := terminal[id]; ok {
			if info.Timestamp.IsZero() {
				if hash, ok := terminalBlocks[id]; ok {
					ts, err := blockTime(hash)
					if err != nil {
						return nil, nil, err
					}
					info.Timestamp = ts
					terminal[id] = info
				}
			}
			info := info
			p.Status = info.Status
			p.StatusInfo = &info
		}
		payments = append(payments, p)
	}

	sort.Slice(payments, func(i, j int) bool {
		if payments[i].BlockNumber != payments[j].BlockNumber {
			return payments[i].BlockNumber > payments[j].BlockNumber
		}
		return payments[i].PaymentID < payments[j].PaymentID
	})
	return payments, terminal, nil
}

// tokenDescriptor resolves symbol and decimals: native sentinel, static table,
// cached RPC lookup, then UNKNOWN/18.
func (r *Reader) tokenDescriptor(ctx context.Context, net *entities.NetworkDescriptor, address string) entities.TokenDescriptor {
	if desc, ok := net.TokenByAddress(address); ok {
		return desc
	}

	cacheKey := fmt.Sprintf("token_meta:%d:%s", net.ChainID, strings.ToLower(address))
	if r.cache != nil {
		var meta tokenMeta
		if err := r.cache.Get(ctx, cacheKey, &meta); err == nil && meta.Symbol != "" {
			return entities.TokenDescriptor{Symbol: meta.Symbol, Address: address, Decimals: meta.Decimals}
		}
	}

	symbol, decimals, err := r.events.TokenMetadata(ctx, net.ChainID, address)
	if err != nil || symbol == "" {
		r.logger.Debug("Token metadata unavailable",
			zap.String("token", address),
			zap.Int64("chain_id", net.ChainID),
			zap.Error(err))
		return entities.TokenDescriptor{Symbol: unknownSymbol, Address: address, Decimals: unknownDecimals}
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, tokenMeta{Symbol: symbol, Decimals: decimals}, 0); err != nil {
			r.logger.Debug("Failed to cache token metadata", zap.Error(err))
		}
	}
	return entities.TokenDescriptor{Symbol: symbol, Address: address, Decimals: decimals}
}

func dedupeSent(events []entities.PaymentEvent) map[string]entities.PaymentEvent {
	sortEvents(events)
	out := make(map[string]entities.PaymentEvent, len(events))
	for _, ev := range events {
		id := normalizeID(ev.PaymentID)
		if _, ok := out[id]; !ok {
			out[id] = ev
		}
	}
	return out
}

func sortEvents(events []entities.PaymentEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
}

func findByID(payments []entities.Payment, paymentID string) *entities.Payment {
	id := normalizeID(paymentID)
	for i := range payments {
		if payments[i].PaymentID == id {
			p := payments[i]
			return &p
		}
	}
	return nil
}

func clonePayments(in []entities.Payment) []entities.Payment {
	if in == nil {
		return nil
	}
	out := make([]entities.Payment, len(in))
	copy(out, in)
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	for _, c := range s[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
