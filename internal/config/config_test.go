package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_URL", "postgres://indexer:pw@localhost:5432/indexer?sslmode=disable")
	t.Setenv("STORE_SERVICE_KEY", "service-key")
	t.Setenv("FACTORY_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("WALLET_IMPL_ADDRESS", "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultRPCURL, cfg.RPC.URL)
	assert.Equal(t, "eth", cfg.RPC.MethodPrefix)
	assert.Equal(t, DefaultBatchSize, cfg.Indexer.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Indexer.PollInterval)
	assert.Equal(t, uint64(DefaultConfirmationDepth), cfg.Indexer.ConfirmationDepth)
	assert.Equal(t, DefaultRateLimitRequests, cfg.RPC.RateLimitRequests)
	assert.Equal(t, time.Second, cfg.RPC.RateLimitWindow)
	assert.Equal(t, DefaultTimestampCacheSize, cfg.RPC.TimestampCacheSize)
	assert.Equal(t, "public", cfg.Store.Schema)
	assert.True(t, cfg.Health.Enabled)
	assert.Equal(t, DefaultHealthPort, cfg.Health.Port)
	assert.Equal(t, uint64(DefaultMaxBlocksBehind), cfg.Health.MaxBlocksBehind)
}

func TestLoadMissingRequiredListsAllKeys(t *testing.T) {
	t.Setenv("STORE_URL", "")
	t.Setenv("STORE_SERVICE_KEY", "")
	t.Setenv("FACTORY_ADDRESS", "")
	t.Setenv("WALLET_IMPL_ADDRESS", "")

	_, err := Load()
	require.Error(t, err)
	for _, key := range []string{"STORE_URL", "STORE_SERVICE_KEY", "FACTORY_ADDRESS", "WALLET_IMPL_ADDRESS"} {
		assert.True(t, strings.Contains(err.Error(), key), "error should name %s: %v", key, err)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("BATCH_SIZE", "250")
	t.Setenv("POLL_INTERVAL_MS", "1500")
	t.Setenv("CONFIRMATION_DEPTH", "6")
	t.Setenv("RATE_LIMIT_REQUESTS", "10")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "2000")
	t.Setenv("STORE_SCHEMA", "testnet")
	t.Setenv("LOG_TO_FILE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Indexer.BatchSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Indexer.PollInterval)
	assert.Equal(t, uint64(6), cfg.Indexer.ConfirmationDepth)
	assert.Equal(t, 10, cfg.RPC.RateLimitRequests)
	assert.Equal(t, 2*time.Second, cfg.RPC.RateLimitWindow)
	assert.Equal(t, "testnet", cfg.Store.Schema)
	assert.True(t, cfg.Log.ToFile)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric batch size", "BATCH_SIZE", "many"},
		{"negative poll interval", "POLL_INTERVAL_MS", "-5"},
		{"non-boolean health flag", "HEALTH_ENABLED", "sometimes"},
		{"non-numeric start block", "START_BLOCK", "genesis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidateRejectsBadAddresses(t *testing.T) {
	setRequired(t)
	t.Setenv("FACTORY_ADDRESS", "0x1234")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factory address")
}

func TestValidateRejectsBadModuleAddress(t *testing.T) {
	setRequired(t)
	t.Setenv("WHITELIST_MODULE", "not-an-address")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whitelist module")
}

func TestModuleAddressesLowercasedAndFiltered(t *testing.T) {
	setRequired(t)
	t.Setenv("DAILY_LIMIT_MODULE", "0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9")
	t.Setenv("SOCIAL_RECOVERY_MODULE", "0x0165878A594ca255338adfa4d48449f69242Eb8F")

	cfg, err := Load()
	require.NoError(t, err)

	addrs := cfg.ModuleAddresses()
	require.Len(t, addrs, 2)
	assert.Equal(t, "0xdc64a140aa3e981100a9beca4e685f962f0cf6c9", addrs[0])
	assert.Equal(t, "0x0165878a594ca255338adfa4d48449f69242eb8f", addrs[1])
}
