package entities

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the on-chain lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusSent       PaymentStatus = "SENT"
	PaymentStatusClaimed    PaymentStatus = "CLAIMED"
	PaymentStatusReimbursed PaymentStatus = "REIMBURSED"
)

// IsTerminal reports whether no further transition is possible.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusClaimed || s == PaymentStatusReimbursed
}

// CanTransitionTo allows SENT to move to exactly one terminal status.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentStatusSent && next.IsTerminal()
}

// NativeTokenAddress is the sentinel used by the payment contract for the chain's
// native currency.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

// legacyNativeTokenAddress is how some precompile-style chains expose native currency.
const legacyNativeTokenAddress = "0x0000000000000000000000000000000000001010"

// TokenDescriptor is the static description of a token on one network.
type TokenDescriptor struct {
	Symbol    string `json:"symbol"`
	Address   string `json:"address"`
	Decimals  uint8  `json:"decimals"`
	PriceFeed string `json:"priceFeed,omitempty"`
}

// IsNativeAddress reports whether addr denotes the native currency.
func IsNativeAddress(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return a == "" || a == NativeTokenAddress || a == legacyNativeTokenAddress
}

// StatusInfo records who moved a payment out of SENT and when.
type StatusInfo struct {
	Status    PaymentStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	By        string        `json:"by"`
	TxHash    string        `json:"txHash,omitempty"`
}

// Payment is the normalized view of one escrowed payment.
type Payment struct {
	PaymentID       string          `json:"paymentId"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	Amount          decimal.Decimal `json:"amount"`
	FormattedAmount decimal.Decimal `json:"formattedAmount"`
	TokenAddress    string          `json:"tokenAddress"`
	TokenSymbol     string          `json:"tokenSymbol"`
	TokenDecimals   uint8           `json:"tokenDecimals"`
	Status          PaymentStatus   `json:"status"`
	StatusInfo      *StatusInfo     `json:"statusInfo,omitempty"`
	CreatedAt       time.Time       `json:"timestamp"`
	TxHash          string          `json:"transactionHash"`
	BlockNumber     uint64          `json:"blockNumber"`
}

// IsSender reports whether account sent the payment.
func (p *Payment) IsSender(account string) bool {
	return strings.EqualFold(p.From, account)
}

// IsRecipient reports whether account may claim the payment.
func (p *Payment) IsRecipient(account string) bool {
	return strings.EqualFold(p.To, account)
}

// RateSource identifies which price tier produced an exchange rate.
type RateSource string

const (
	RateSourceStablecoin     RateSource = "stablecoin"
	RateSourcePrimaryOracle  RateSource = "primary-oracle"
	RateSourceSecondaryIndex RateSource = "secondary-index"
	RateSourceStaticFallback RateSource = "static-fallback"
)

// ExchangeRate is how many token units one US dollar buys.
type ExchangeRate struct {
	Symbol    string          `json:"symbol"`
	ChainID   int64           `json:"chainId"`
	Rate      decimal.Decimal `json:"rate"`
	Source    RateSource      `json:"source"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// TokenAmount converts a USD amount into token units rounded to the token's precision.
func (r *ExchangeRate) TokenAmount(usd decimal.Decimal, decimals uint8) decimal.Decimal {
	return usd.Mul(r.Rate).Round(int32(decimals))
}

// USDValue converts token units back into dollars.
func (r *ExchangeRate) USDValue(tokens decimal.Decimal) decimal.Decimal {
	if r.Rate.IsZero() {
		return decimal.Zero
	}
	return tokens.DivRound(r.Rate, 18)
}

// Balance is an account's holding of one token.
type Balance struct {
	Account string          `json:"account"`
	ChainID int64           `json:"chainId"`
	Token   TokenDescriptor `json:"token"`
	Amount  decimal.Decimal `json:"amount"`
	Fetched time.Time       `json:"fetchedAt"`
}
