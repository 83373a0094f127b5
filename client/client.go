package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/arcwallet/indexer-go/internal/cache"
)

// ErrBlockNotFound is returned when a block lookup yields no block or a
// block without a timestamp.
var ErrBlockNotFound = errors.New("block not found or missing timestamp")

// ErrMalformedResponse is returned when the RPC result does not have the
// expected shape. Some upstream proxies occasionally return empty payloads,
// so callers treat it as transient.
var ErrMalformedResponse = errors.New("malformed RPC response")

// Config holds client configuration.
type Config struct {
	// Endpoint is the HTTP(S) JSON-RPC endpoint URL.
	Endpoint string

	// MethodPrefix is the JSON-RPC method namespace ("eth" by default).
	MethodPrefix string

	// RateLimitRequests caps requests per RateLimitWindow.
	RateLimitRequests int

	// RateLimitWindow is the window the request cap applies to.
	RateLimitWindow time.Duration

	// TimestampCacheSize is the capacity of the block timestamp LRU.
	TimestampCacheSize int

	// Retry overrides the retry policy. Zero value uses DefaultRetryConfig.
	Retry RetryConfig

	Logger *zap.Logger
}

// FilterQuery describes a log filter. Addresses are hex strings and are
// lowercased before wire encoding because some providers filter
// case-sensitively.
type FilterQuery struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses []string
	Topics    [][]common.Hash
}

// Client is a rate-limited, retrying JSON-RPC client for the chain.
type Client struct {
	rpc          *rpc.Client
	methodPrefix string
	limiter      *rate.Limiter
	retry        RetryConfig
	tsCache      *cache.LRU[uint64, uint64]
	logger       *zap.Logger
}

// NewClient creates a new chain client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	prefix := cfg.MethodPrefix
	if prefix == "" {
		prefix = "eth"
	}

	requests := cfg.RateLimitRequests
	if requests <= 0 {
		requests = 50
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Second
	}

	cacheSize := cfg.TimestampCacheSize
	if cacheSize <= 0 {
		cacheSize = 1000
	}

	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = DefaultRetryConfig()
	}

	rpcClient, err := rpc.DialContext(context.Background(), cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	return &Client{
		rpc:          rpcClient,
		methodPrefix: prefix,
		limiter:      rate.NewLimiter(rate.Limit(float64(requests)/window.Seconds()), requests),
		retry:        retryCfg,
		tsCache:      cache.NewLRU[uint64, uint64](cacheSize),
		logger:       logger,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

// call issues a single rate-limited RPC request.
func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.rpc.CallContext(ctx, result, method, args...)
}

// BlockNumber returns the current chain head height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return withRetry(ctx, c.retry, c.logger, "blockNumber", func(ctx context.Context) (uint64, error) {
		var result hexutil.Uint64
		if err := c.call(ctx, &result, c.method("blockNumber")); err != nil {
			return 0, err
		}
		return uint64(result), nil
	})
}

// FilterLogs fetches logs matching the query. A non-null result that is not
// an array of log objects fails with ErrMalformedResponse, which is
// retried like any transport error.
func (c *Client) FilterLogs(ctx context.Context, q FilterQuery) ([]types.Log, error) {
	addresses := make([]string, len(q.Addresses))
	for i, a := range q.Addresses {
		addresses[i] = strings.ToLower(a)
	}

	param := map[string]interface{}{
		"fromBlock": hexutil.EncodeUint64(q.FromBlock),
		"toBlock":   hexutil.EncodeUint64(q.ToBlock),
	}
	if len(addresses) > 0 {
		param["address"] = addresses
	}
	if len(q.Topics) > 0 {
		param["topics"] = q.Topics
	}

	return withRetry(ctx, c.retry, c.logger, "getLogs", func(ctx context.Context) ([]types.Log, error) {
		var raw json.RawMessage
		if err := c.call(ctx, &raw, c.method("getLogs"), param); err != nil {
			return nil, err
		}
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil
		}

		var logs []types.Log
		if err := json.Unmarshal(raw, &logs); err != nil {
			return nil, fmt.Errorf("%w: getLogs result is not a log array: %v", ErrMalformedResponse, err)
		}
		return logs, nil
	})
}

// CallContract performs a read-only contract call against latest state and
// returns the raw return data.
func (c *Client) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	param := map[string]interface{}{
		"to":   strings.ToLower(to),
		"data": hexutil.Encode(data),
	}

	return withRetry(ctx, c.retry, c.logger, "call", func(ctx context.Context) ([]byte, error) {
		var result hexutil.Bytes
		if err := c.call(ctx, &result, c.method("call"), param, "latest"); err != nil {
			return nil, err
		}
		return result, nil
	})
}

// blockEnvelope is the subset of the chain's block response the client
// reads. The chain nests the canonical header under woHeader; plain EVM
// nodes expose timestamp at the top level.
type blockEnvelope struct {
	Timestamp *hexutil.Uint64 `json:"timestamp"`
	WoHeader  *struct {
		Timestamp *hexutil.Uint64 `json:"timestamp"`
	} `json:"woHeader"`
}

// BlockTimestamp returns the unix timestamp of the given block, served from
// an LRU cache when possible.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if ts, ok := c.tsCache.Get(number); ok {
		return ts, nil
	}

	ts, err := withRetry(ctx, c.retry, c.logger, "getBlockByNumber", func(ctx context.Context) (uint64, error) {
		var raw json.RawMessage
		if err := c.call(ctx, &raw, c.method("getBlockByNumber"), hexutil.EncodeUint64(number), false); err != nil {
			return 0, err
		}
		if len(raw) == 0 || string(raw) == "null" {
			return 0, ErrBlockNotFound
		}

		var block blockEnvelope
		if err := json.Unmarshal(raw, &block); err != nil {
			return 0, fmt.Errorf("%w: block %d: %v", ErrMalformedResponse, number, err)
		}
		if block.WoHeader != nil && block.WoHeader.Timestamp != nil {
			return uint64(*block.WoHeader.Timestamp), nil
		}
		if block.Timestamp != nil {
			return uint64(*block.Timestamp), nil
		}
		return 0, ErrBlockNotFound
	})
	if err != nil {
		return 0, err
	}

	c.tsCache.Put(number, ts)
	return ts, nil
}

func (c *Client) method(name string) string {
	return c.methodPrefix + "_" + name
}
