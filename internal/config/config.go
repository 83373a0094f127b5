package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Default values for optional configuration keys.
const (
	DefaultRPCURL             = "http://localhost:8545"
	DefaultRPCMethodPrefix    = "eth"
	DefaultBatchSize          = 1000
	DefaultPollInterval       = 5 * time.Second
	DefaultStartBlock         = 0
	DefaultConfirmationDepth  = 2
	DefaultLogLevel           = "info"
	DefaultLogFilePath        = "indexer.log"
	DefaultHealthPort         = 3000
	DefaultMaxBlocksBehind    = 100
	DefaultRateLimitRequests  = 50
	DefaultRateLimitWindow    = 1000 * time.Millisecond
	DefaultTimestampCacheSize = 1000
	DefaultStoreSchema        = "public"
	DefaultRecoveryPeriodSecs = 86400
)

// Config holds all configuration for the indexer service.
type Config struct {
	RPC     RPCConfig
	Store   StoreConfig
	Indexer IndexerConfig
	Modules ModulesConfig
	Log     LogConfig
	Health  HealthConfig
}

// RPCConfig holds chain RPC client configuration.
type RPCConfig struct {
	// URL is the HTTP(S) JSON-RPC endpoint.
	URL string

	// WSURL is the optional WebSocket endpoint. The pipeline polls; this is
	// accepted for configuration parity only.
	WSURL string

	// MethodPrefix is the JSON-RPC method namespace (eth_blockNumber etc).
	MethodPrefix string

	// RateLimitRequests is the request ceiling per RateLimitWindow.
	RateLimitRequests int

	// RateLimitWindow is the sliding window the ceiling applies to.
	RateLimitWindow time.Duration

	// TimestampCacheSize is the capacity of the block timestamp LRU.
	TimestampCacheSize int
}

// StoreConfig holds state store configuration.
type StoreConfig struct {
	// URL is the postgres DSN.
	URL string

	// ServiceKey authenticates the indexer against the store. When the DSN
	// carries no password the key is injected as one.
	ServiceKey string

	// Schema is the logical namespace (one per chain/network).
	Schema string
}

// IndexerConfig holds pipeline configuration.
type IndexerConfig struct {
	FactoryAddress    string
	WalletImplAddress string
	BatchSize         int
	PollInterval      time.Duration
	StartBlock        uint64
	ConfirmationDepth uint64

	// BackfillFrom/BackfillTo bound the standalone backfill entrypoint.
	BackfillFrom uint64
	BackfillTo   uint64
}

// ModulesConfig holds the configured module contract addresses.
type ModulesConfig struct {
	DailyLimit     string
	Whitelist      string
	SocialRecovery string

	// RecoveryPeriodSecs is the fallback recovery period applied when a
	// RecoveryInitiated event arrives before any RecoverySetup projection.
	RecoveryPeriodSecs uint64
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level    string
	ToFile   bool
	FilePath string
}

// HealthConfig holds health probe configuration.
type HealthConfig struct {
	Enabled         bool
	Port            int
	MaxBlocksBehind uint64
}

// Load builds a Config from environment variables. All missing required
// keys are reported together in a single error.
func Load() (*Config, error) {
	var missing []string

	requireEnv := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		RPC: RPCConfig{
			URL:          envString("RPC_URL", DefaultRPCURL),
			WSURL:        envString("WS_URL", ""),
			MethodPrefix: envString("RPC_METHOD_PREFIX", DefaultRPCMethodPrefix),
		},
		Store: StoreConfig{
			URL:        requireEnv("STORE_URL"),
			ServiceKey: requireEnv("STORE_SERVICE_KEY"),
			Schema:     envString("STORE_SCHEMA", DefaultStoreSchema),
		},
		Indexer: IndexerConfig{
			FactoryAddress:    requireEnv("FACTORY_ADDRESS"),
			WalletImplAddress: requireEnv("WALLET_IMPL_ADDRESS"),
		},
		Modules: ModulesConfig{
			DailyLimit:     envString("DAILY_LIMIT_MODULE", ""),
			Whitelist:      envString("WHITELIST_MODULE", ""),
			SocialRecovery: envString("SOCIAL_RECOVERY_MODULE", ""),
		},
		Log: LogConfig{
			Level:    envString("LOG_LEVEL", DefaultLogLevel),
			FilePath: envString("LOG_FILE_PATH", DefaultLogFilePath),
		},
	}

	var err error
	if cfg.RPC.RateLimitRequests, err = envInt("RATE_LIMIT_REQUESTS", DefaultRateLimitRequests); err != nil {
		return nil, err
	}
	if cfg.RPC.RateLimitWindow, err = envDurationMS("RATE_LIMIT_WINDOW_MS", DefaultRateLimitWindow); err != nil {
		return nil, err
	}
	if cfg.RPC.TimestampCacheSize, err = envInt("TIMESTAMP_CACHE_SIZE", DefaultTimestampCacheSize); err != nil {
		return nil, err
	}
	if cfg.Indexer.BatchSize, err = envInt("BATCH_SIZE", DefaultBatchSize); err != nil {
		return nil, err
	}
	if cfg.Indexer.PollInterval, err = envDurationMS("POLL_INTERVAL_MS", DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.Indexer.StartBlock, err = envUint64("START_BLOCK", DefaultStartBlock); err != nil {
		return nil, err
	}
	if cfg.Indexer.ConfirmationDepth, err = envUint64("CONFIRMATION_DEPTH", DefaultConfirmationDepth); err != nil {
		return nil, err
	}
	if cfg.Indexer.BackfillFrom, err = envUint64("BACKFILL_FROM", 0); err != nil {
		return nil, err
	}
	if cfg.Indexer.BackfillTo, err = envUint64("BACKFILL_TO", 0); err != nil {
		return nil, err
	}
	if cfg.Modules.RecoveryPeriodSecs, err = envUint64("RECOVERY_PERIOD_SECS", DefaultRecoveryPeriodSecs); err != nil {
		return nil, err
	}
	if cfg.Log.ToFile, err = envBool("LOG_TO_FILE", false); err != nil {
		return nil, err
	}
	if cfg.Health.Enabled, err = envBool("HEALTH_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.Health.Port, err = envInt("HEALTH_PORT", DefaultHealthPort); err != nil {
		return nil, err
	}
	if cfg.Health.MaxBlocksBehind, err = envUint64("MAX_BLOCKS_BEHIND", DefaultMaxBlocksBehind); err != nil {
		return nil, err
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value-level constraints on a loaded configuration.
func (c *Config) Validate() error {
	if c.Indexer.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.Indexer.BatchSize)
	}
	if c.Indexer.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Indexer.PollInterval)
	}
	if c.RPC.RateLimitRequests <= 0 {
		return fmt.Errorf("rate limit requests must be positive, got %d", c.RPC.RateLimitRequests)
	}
	if c.RPC.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.RPC.RateLimitWindow)
	}
	if c.RPC.TimestampCacheSize <= 0 {
		return fmt.Errorf("timestamp cache size must be positive, got %d", c.RPC.TimestampCacheSize)
	}
	if !common.IsHexAddress(c.Indexer.FactoryAddress) {
		return fmt.Errorf("factory address %q is not a valid address", c.Indexer.FactoryAddress)
	}
	if !common.IsHexAddress(c.Indexer.WalletImplAddress) {
		return fmt.Errorf("wallet implementation address %q is not a valid address", c.Indexer.WalletImplAddress)
	}
	for name, addr := range map[string]string{
		"daily limit module":     c.Modules.DailyLimit,
		"whitelist module":       c.Modules.Whitelist,
		"social recovery module": c.Modules.SocialRecovery,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s address %q is not a valid address", name, addr)
		}
	}
	if c.Health.Port <= 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health port %d out of range", c.Health.Port)
	}
	return nil
}

// ModuleAddresses returns the configured module addresses, lowercased,
// omitting unset modules.
func (c *Config) ModuleAddresses() []string {
	var addrs []string
	for _, a := range []string{c.Modules.DailyLimit, c.Modules.Whitelist, c.Modules.SocialRecovery} {
		if a != "" {
			addrs = append(addrs, strings.ToLower(a))
		}
	}
	return addrs
}

func envString(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: must be an integer, got %q", key, v)
	}
	return n, nil
}

func envUint64(key string, fallback uint64) (uint64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: must be a boolean, got %q", key, v)
	}
	return b, nil
}

func envDurationMS(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: must be a positive integer of milliseconds, got %q", key, v)
	}
	return time.Duration(n) * time.Millisecond, nil
}
