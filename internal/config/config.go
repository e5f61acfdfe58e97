package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

const (
	ApprovalExact     = "exact"
	ApprovalUnlimited = "unlimited"
)

type Config struct {
	AppName string

	// Secrets (from .env)
	PrivateKey          string
	KeystoreDir         string
	KeystorePassphrase  string
	EthereumAPIEndpoint string
	WebhookURL          string
	APIKey              string
	CORSAllowOrigin     string

	// Database
	DBEnabled  bool
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Blockchain
	ChainID                int
	ExtraRPCEndpoints      map[int64]string
	WETHAddress            string
	UniswapRouterAddress   string
	SushiSwapRouterAddress string
	DefaultVenue           string

	// Swap parameters
	SlippageTolerance     float64 // percent
	DeadlineSeconds       int
	ApprovalPolicy        string
	GasMultiplier         float64
	GasLimit              int
	ConfirmTimeoutSeconds int
	ReceiptPollSeconds    int
	DryRun                bool
	AutoApprove           bool

	// Risk Management
	MaxDailySwaps      int
	MaxSlippagePercent float64

	// Storage / streaming
	TokenCachePath string
	KafkaBrokers   []string
	KafkaSwapTopic string

	// API
	APIPort int

	// Timing
	WatchIntervalSeconds int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	extra, err := parseEndpoints(envStr("EXTRA_RPC_ENDPOINTS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppName: envStr("APP_NAME", "TrahnSwap"),

		// Secrets
		PrivateKey:          envStr("PRIVATE_KEY", ""),
		KeystoreDir:         envStr("KEYSTORE_DIR", ""),
		KeystorePassphrase:  envStr("KEYSTORE_PASSPHRASE", ""),
		EthereumAPIEndpoint: envStr("ETHEREUM_API_ENDPOINT", ""),
		WebhookURL:          envStr("WEBHOOK_URL", ""),
		APIKey:              envStr("API_KEY", ""),
		CORSAllowOrigin:     envStr("CORS_ALLOW_ORIGIN", "*"),

		// Database
		DBEnabled:  envBool("DB_ENABLED", true),
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "trahn_swap"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		// Blockchain
		ChainID:                envInt("CHAIN_ID", 1),
		ExtraRPCEndpoints:      extra,
		WETHAddress:            envStr("WETH_ADDRESS", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		UniswapRouterAddress:   envStr("UNISWAP_ROUTER_ADDRESS", "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
		SushiSwapRouterAddress: envStr("SUSHISWAP_ROUTER_ADDRESS", "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"),
		DefaultVenue:           envStr("DEFAULT_VENUE", "uniswap-v2"),

		// Swap parameters
		SlippageTolerance:     envFloat("SLIPPAGE_TOLERANCE", 0.5),
		DeadlineSeconds:       envInt("DEADLINE_SECONDS", 1200),
		ApprovalPolicy:        strings.ToLower(envStr("APPROVAL_POLICY", ApprovalExact)),
		GasMultiplier:         envFloat("GAS_MULTIPLIER", 1.2),
		GasLimit:              envInt("GAS_LIMIT", 250000),
		ConfirmTimeoutSeconds: envInt("CONFIRM_TIMEOUT_SECONDS", 180),
		ReceiptPollSeconds:    envInt("RECEIPT_POLL_SECONDS", 3),
		DryRun:                envBool("DRY_RUN", true),
		AutoApprove:           envBool("AUTO_APPROVE", false),

		// Risk Management
		MaxDailySwaps:      envInt("MAX_DAILY_SWAPS", 50),
		MaxSlippagePercent: envFloat("MAX_SLIPPAGE_PERCENT", 5),

		// Storage / streaming
		TokenCachePath: envStr("TOKEN_CACHE_PATH", "tokens.db"),
		KafkaBrokers:   envList("KAFKA_BROKERS"),
		KafkaSwapTopic: envStr("KAFKA_SWAP_TOPIC", "swap-events"),

		APIPort: envInt("API_PORT", 3001),

		WatchIntervalSeconds: envInt("WATCH_INTERVAL_SECONDS", 15),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.EthereumAPIEndpoint == "" {
		errs = append(errs, "ETHEREUM_API_ENDPOINT is required")
	}
	if c.PrivateKey == "" && c.KeystoreDir == "" {
		fmt.Println("[WARN] Neither PRIVATE_KEY nor KEYSTORE_DIR set; no wallet provider will be found")
	}
	if c.KeystoreDir != "" && c.KeystorePassphrase == "" {
		errs = append(errs, "KEYSTORE_PASSPHRASE is required with KEYSTORE_DIR")
	}
	for name, addr := range map[string]string{
		"WETH_ADDRESS":             c.WETHAddress,
		"UNISWAP_ROUTER_ADDRESS":   c.UniswapRouterAddress,
		"SUSHISWAP_ROUTER_ADDRESS": c.SushiSwapRouterAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("%s is not a valid address: %q", name, addr))
		}
	}
	if c.SlippageTolerance <= 0 || c.SlippageTolerance >= 100 {
		errs = append(errs, "SLIPPAGE_TOLERANCE must be between 0 and 100 (exclusive)")
	} else if c.SlippageBps() < 1 {
		errs = append(errs, fmt.Sprintf("SLIPPAGE_TOLERANCE %g rounds to 0 bps; minimum is 0.01", c.SlippageTolerance))
	}
	if c.DeadlineSeconds <= 0 {
		errs = append(errs, "DEADLINE_SECONDS must be positive")
	}
	if c.ApprovalPolicy != ApprovalExact && c.ApprovalPolicy != ApprovalUnlimited {
		errs = append(errs, fmt.Sprintf("APPROVAL_POLICY must be %q or %q", ApprovalExact, ApprovalUnlimited))
	}
	if c.ConfirmTimeoutSeconds <= 0 {
		errs = append(errs, "CONFIRM_TIMEOUT_SECONDS must be positive")
	}
	if c.MaxDailySwaps == 0 && c.MaxSlippagePercent == 0 {
		fmt.Println("[WARN] MAX_DAILY_SWAPS and MAX_SLIPPAGE_PERCENT are both 0; no per-swap limits active")
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set; REST API has no authentication")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Printf("=== %s Configuration ===\n", c.AppName)

	if c.DryRun {
		fmt.Println("════════════════════════════════════════")
		fmt.Println("  DRY RUN MODE ENABLED")
		fmt.Println("  Swaps are simulated with eth_call")
		fmt.Println("════════════════════════════════════════")
	} else {
		fmt.Println("  LIVE MODE")
	}

	fmt.Println("--------------------------------------")
	fmt.Printf("Chain ID: %d\n", c.ChainID)
	for id := range c.ExtraRPCEndpoints {
		fmt.Printf("Extra chain: %d\n", id)
	}
	fmt.Printf("Wallet provider: %s\n", c.ProviderLabel())
	fmt.Printf("Default venue: %s\n", c.DefaultVenue)
	fmt.Printf("Uniswap router: %s...\n", truncAddr(c.UniswapRouterAddress))
	fmt.Printf("SushiSwap router: %s...\n", truncAddr(c.SushiSwapRouterAddress))
	fmt.Println("--------------------------------------")
	fmt.Println("Swap Parameters:")
	fmt.Printf("  Slippage: %.2f%%\n", c.SlippageTolerance)
	fmt.Printf("  Deadline: %ds\n", c.DeadlineSeconds)
	fmt.Printf("  Approval policy: %s\n", c.ApprovalPolicy)
	fmt.Printf("  Confirm timeout: %ds\n", c.ConfirmTimeoutSeconds)
	fmt.Printf("  Max daily swaps: %d\n", c.MaxDailySwaps)
	fmt.Printf("  Kafka: %s\n", boolLabel(len(c.KafkaBrokers) > 0, strings.Join(c.KafkaBrokers, ","), "disabled"))
	fmt.Println("======================================")
}

func (c *Config) ProviderLabel() string {
	switch {
	case c.PrivateKey != "":
		return "private key"
	case c.KeystoreDir != "":
		return "keystore " + c.KeystoreDir
	default:
		return "none"
	}
}

// SlippageBps converts the percent tolerance to basis points.
func (c *Config) SlippageBps() int64 {
	return int64(c.SlippageTolerance*100 + 0.5)
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

// parseEndpoints reads "137=https://polygon...,8453=https://base...".
func parseEndpoints(raw string) (map[int64]string, error) {
	out := make(map[int64]string)
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		id, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("EXTRA_RPC_ENDPOINTS: malformed entry %q", pair)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("EXTRA_RPC_ENDPOINTS: bad chain id %q: %w", id, err)
		}
		out[n] = strings.TrimSpace(url)
	}
	return out, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
