package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment    string               `mapstructure:"environment" validate:"required"`
	LogLevel       string               `mapstructure:"log_level"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Backend        BackendConfig        `mapstructure:"backend"`
	Blockchain     BlockchainConfig     `mapstructure:"blockchain"`
	Pricing        PricingConfig        `mapstructure:"pricing"`
	Signer         SignerConfig         `mapstructure:"signer"`
	Confirmation   ConfirmationConfig   `mapstructure:"confirmation"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Email          EmailConfig          `mapstructure:"email"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port" validate:"gt=0"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
	IdempotencyTTL  int      `mapstructure:"idempotency_ttl"` // seconds
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	QueryTimeout    int    `mapstructure:"query_timeout"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// BackendConfig points at the invoice / split-bill / address-book record store.
type BackendConfig struct {
	BaseURL         string `mapstructure:"base_url" validate:"required,url"`
	Timeout         int    `mapstructure:"timeout"` // seconds
	RequestsPerSec  int    `mapstructure:"requests_per_sec"`
	MaxRetries      int    `mapstructure:"max_retries"`
	ServiceEmail    string `mapstructure:"service_email"`
	ServicePassword string `mapstructure:"service_password"`
}

type BlockchainConfig struct {
	Networks map[string]NetworkConfig `mapstructure:"networks" validate:"required,min=1,dive"`
	// ViewMaxAge is how long a cached ledger view is served before ListPayments rescans, in seconds. 0 disables expiry.
	ViewMaxAge int `mapstructure:"view_max_age" validate:"gte=0"`
}

type NetworkConfig struct {
	Name            string                 `mapstructure:"name" validate:"required"`
	ChainID         int64                  `mapstructure:"chain_id" validate:"gt=0"`
	RPC             string                 `mapstructure:"rpc" validate:"required,url"`
	Explorer        string                 `mapstructure:"explorer"`
	NativeCurrency  CurrencyConfig         `mapstructure:"native_currency"`
	PaymentContract string                 `mapstructure:"payment_contract" validate:"required"`
	Tokens          map[string]TokenConfig `mapstructure:"tokens"`
	ScanLookback    uint64                 `mapstructure:"scan_lookback"`
	GasLimit        uint64                 `mapstructure:"gas_limit"`
	FeeMultiplier   int64                  `mapstructure:"fee_multiplier"`
	EstimateGas     bool                   `mapstructure:"estimate_gas"`
	GasBuffer       float64                `mapstructure:"gas_buffer"`
}

type CurrencyConfig struct {
	Name     string `mapstructure:"name"`
	Symbol   string `mapstructure:"symbol" validate:"required"`
	Decimals uint8  `mapstructure:"decimals"`
}

type TokenConfig struct {
	Address   string `mapstructure:"address"`
	Symbol    string `mapstructure:"symbol"`
	Decimals  uint8  `mapstructure:"decimals"`
	PriceFeed string `mapstructure:"price_feed"`
}

// PricingConfig configures the exchange-rate tiers.
type PricingConfig struct {
	CoinGeckoBaseURL string            `mapstructure:"coingecko_base_url"`
	CoinGeckoAPIKey  string            `mapstructure:"coingecko_api_key"`
	RequestsPerMin   int               `mapstructure:"requests_per_min"`
	TierTimeout      int               `mapstructure:"tier_timeout"` // seconds
	Stablecoins      []string          `mapstructure:"stablecoins"`
	StaticRates      map[string]string `mapstructure:"static_rates"`
	DefaultRate      string            `mapstructure:"default_rate"`
}

// SignerConfig holds the keys the executor signs with. Keys may be stored
// encrypted with EncryptionKey. AccountOwners maps each signing address to the
// email of the only user allowed to spend from it.
type SignerConfig struct {
	PrivateKeys   []string          `mapstructure:"private_keys"`
	Encrypted     bool              `mapstructure:"encrypted"`
	EncryptionKey string            `mapstructure:"encryption_key"`
	AccountOwners map[string]string `mapstructure:"account_owners"`
}

type ConfirmationConfig struct {
	PollInterval int `mapstructure:"poll_interval"` // milliseconds
	Timeout      int `mapstructure:"timeout"`       // seconds
}

// ReconciliationConfig drives the worker that finishes unreconciled settlements.
type ReconciliationConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Schedule     string `mapstructure:"schedule"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
	SupportEmail string `mapstructure:"support_email"`
}

type EmailConfig struct {
	Provider  string `mapstructure:"provider"` // "sendgrid" or "log"
	APIKey    string `mapstructure:"api_key"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Insecure     bool    `mapstructure:"insecure"`
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	applyNetworkDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 120)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_per_min", 120)
	viper.SetDefault("server.idempotency_ttl", 86400)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "zynpay")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 3600)
	viper.SetDefault("database.query_timeout", 30)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("backend.base_url", "http://localhost:5000/api/v1")
	viper.SetDefault("backend.timeout", 15)
	viper.SetDefault("backend.requests_per_sec", 20)
	viper.SetDefault("backend.max_retries", 3)

	viper.SetDefault("blockchain.view_max_age", 60)

	// Kaia Kairos testnet is the network the payment contract is deployed on
	viper.SetDefault("blockchain.networks", map[string]interface{}{
		"kaia-kairos": map[string]interface{}{
			"name":             "Kaia Kairos Testnet",
			"chain_id":         1001,
			"rpc":              "https://public-en-kairos.node.kaia.io",
			"explorer":         "https://kairos.kaiascan.io",
			"payment_contract": "0x2dFD4c57D3281eE403Fd5061a1184d4c6AE5F3bc",
			"native_currency": map[string]interface{}{
				"name":     "KAIA",
				"symbol":   "KAIA",
				"decimals": 18,
			},
			"tokens": map[string]interface{}{
				"usdt": map[string]interface{}{
					"symbol":   "USDT",
					"address":  "0x5e9456756afef83dddfa6416c8f96ff7c8aae8ce",
					"decimals": 18,
				},
			},
		},
	})

	viper.SetDefault("pricing.coingecko_base_url", "https://api.coingecko.com/api/v3")
	viper.SetDefault("pricing.requests_per_min", 30)
	viper.SetDefault("pricing.tier_timeout", 5)
	viper.SetDefault("pricing.stablecoins", []string{"DAI", "DAI.E"})
	viper.SetDefault("pricing.default_rate", "0.001")

	viper.SetDefault("confirmation.poll_interval", 1500)
	viper.SetDefault("confirmation.timeout", 300)

	viper.SetDefault("reconciliation.enabled", true)
	viper.SetDefault("reconciliation.schedule", "@every 1m")
	viper.SetDefault("reconciliation.max_attempts", 10)

	viper.SetDefault("email.provider", "log")
	viper.SetDefault("email.from_name", "ZynPay")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 1.0)
	viper.SetDefault("tracing.insecure", true)
}

// applyNetworkDefaults fills per-network gas and scan parameters left unset.
func applyNetworkDefaults(config *Config) {
	for key, n := range config.Blockchain.Networks {
		if n.ScanLookback == 0 {
			n.ScanLookback = 5760
		}
		if n.GasLimit == 0 {
			n.GasLimit = 3_000_000
		}
		if n.FeeMultiplier == 0 {
			n.FeeMultiplier = 2
		}
		if n.GasBuffer == 0 {
			n.GasBuffer = 1.2
		}
		if n.NativeCurrency.Decimals == 0 {
			n.NativeCurrency.Decimals = 18
		}
		config.Blockchain.Networks[key] = n
	}
}

func overrideFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	if backendURL := os.Getenv("BACKEND_URL"); backendURL != "" {
		viper.Set("backend.base_url", backendURL)
	}
	if email := os.Getenv("BACKEND_SERVICE_EMAIL"); email != "" {
		viper.Set("backend.service_email", email)
	}
	if password := os.Getenv("BACKEND_SERVICE_PASSWORD"); password != "" {
		viper.Set("backend.service_password", password)
	}

	// Comma separated so several operator wallets can be loaded
	if keys := os.Getenv("SIGNER_PRIVATE_KEYS"); keys != "" {
		viper.Set("signer.private_keys", strings.Split(keys, ","))
	}
	if encKey := os.Getenv("ENCRYPTION_KEY"); encKey != "" {
		viper.Set("signer.encryption_key", encKey)
	}
	// address=email pairs, comma separated
	if owners := os.Getenv("SIGNER_ACCOUNT_OWNERS"); owners != "" {
		viper.Set("signer.account_owners", parseAccountOwners(owners))
	}

	if cgKey := os.Getenv("COINGECKO_API_KEY"); cgKey != "" {
		viper.Set("pricing.coingecko_api_key", cgKey)
	}

	if sgKey := os.Getenv("SENDGRID_API_KEY"); sgKey != "" {
		viper.Set("email.api_key", sgKey)
		viper.Set("email.provider", "sendgrid")
	}
}

func validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return err
	}

	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	seen := make(map[int64]string, len(config.Blockchain.Networks))
	for key, n := range config.Blockchain.Networks {
		if other, ok := seen[n.ChainID]; ok {
			return fmt.Errorf("networks %s and %s share chain id %d", other, key, n.ChainID)
		}
		seen[n.ChainID] = key
	}

	if config.Signer.Encrypted && config.Signer.EncryptionKey == "" {
		return fmt.Errorf("encryption key is required for encrypted signer keys")
	}

	if config.Email.Provider == "sendgrid" && config.Email.APIKey == "" {
		return fmt.Errorf("sendgrid api key is required")
	}

	return nil
}

func parseAccountOwners(raw string) map[string]string {
	owners := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		addr, email, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		owners[strings.ToLower(strings.TrimSpace(addr))] = strings.ToLower(strings.TrimSpace(email))
	}
	return owners
}
