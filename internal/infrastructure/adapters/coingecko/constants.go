package coingecko

import "strings"

const (
	PublicBaseURL = "https://api.coingecko.com/api/v3"
	ProBaseURL    = "https://pro-api.coingecko.com/api/v3"

	// DefaultRequestsPerMinute stays under the public tier limit.
	DefaultRequestsPerMinute = 30
)

// coinIDs maps token symbols (upper-cased) to CoinGecko coin ids.
var coinIDs = map[string]string{
	"ETH":    "ethereum",
	"BNB":    "binancecoin",
	"TBNB":   "binancecoin",
	"MATIC":  "matic-network",
	"AVAX":   "avalanche-2",
	"USDT":   "tether",
	"USDT.E": "tether",
	"USDC":   "usd-coin",
	"USDC.E": "usd-coin",
	"DAI":    "dai",
	"DAI.E":  "dai",
	"WETH":   "weth",
	"WBTC":   "wrapped-bitcoin",
	"EDU":    "edu-coin",
	"KAIA":   "kaia",
	"BTC":    "bitcoin",
	"ADA":    "cardano",
	"SOL":    "solana",
	"DOT":    "polkadot",
	"LINK":   "chainlink",
	"UNI":    "uniswap",
	"BUSD":   "binance-usd",
	"SHIB":   "shiba-inu",
	"DOGE":   "dogecoin",
	"LTC":    "litecoin",
	"ARB":    "arbitrum",
	"OP":     "optimism",
}

// CoinID returns the CoinGecko id for a token symbol.
func CoinID(symbol string) (string, bool) {
	id, ok := coinIDs[strings.ToUpper(strings.TrimSpace(symbol))]
	return id, ok
}
