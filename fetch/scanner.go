package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/arcwallet/indexer-go/abi"
	"github.com/arcwallet/indexer-go/client"
	"github.com/arcwallet/indexer-go/events"
	"github.com/arcwallet/indexer-go/internal/metrics"
	"github.com/arcwallet/indexer-go/storage"
)

// maxAddressesPerFilter bounds the address list of one getLogs call.
// Providers commonly reject filters above a few hundred addresses.
const maxAddressesPerFilter = 100

// Log priorities break ties within a block: factory discovery must land
// before wallet events, wallet events before module events.
const (
	prioFactory = 0
	prioWallet  = 1
	prioModule  = 2
)

// ChainSource is the chain read surface the scanner needs.
type ChainSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q client.FilterQuery) ([]types.Log, error)
}

// Projector applies one decoded event to the projection.
type Projector interface {
	Apply(ctx context.Context, ev events.Event) error
}

// Store is the checkpoint and wallet-listing surface the scanner needs.
type Store interface {
	GetCheckpoint(ctx context.Context) (storage.Checkpoint, error)
	SetLastIndexedBlock(ctx context.Context, block uint64) error
	SetSyncing(ctx context.Context, syncing bool) error
	ListAllWalletAddresses(ctx context.Context) ([]string, error)
}

// Config holds scanner configuration.
type Config struct {
	FactoryAddress    string
	ModuleAddresses   []string
	StartBlock        uint64
	BatchSize         uint64
	PollInterval      time.Duration
	ConfirmationDepth uint64
}

// Snapshot is the scanner state the health probe reads.
type Snapshot struct {
	CurrentBlock     uint64
	LastIndexedBlock uint64
	TrackedWallets   uint64
	IsRunning        bool
	IsSyncing        bool
}

// Scanner drives the indexing pipeline: a single-threaded loop that
// fetches logs, orders them, and feeds them to the projector. Event
// application within a range is strictly sequential; handlers mutate
// counters that must not race.
type Scanner struct {
	chain     ChainSource
	store     Store
	projector Projector
	cfg       Config
	logger    *zap.Logger
	metrics   *metrics.Metrics

	// tracked is only touched from the pipeline goroutine.
	tracked map[string]struct{}

	currentBlock  atomic.Uint64
	lastIndexed   atomic.Uint64
	trackedCount  atomic.Uint64
	running       atomic.Bool
	stopRequested atomic.Bool
	syncing       atomic.Bool
	walletTopics  []common.Hash
	moduleTopics  []common.Hash
	factoryTopics []common.Hash
}

// NewScanner builds a Scanner.
func NewScanner(chain ChainSource, store Store, projector Projector, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Scanner {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	moduleTopics := append(abi.TopicsForSource(abi.SourceRecovery), abi.TopicsForSource(abi.SourceDailyLimit)...)
	moduleTopics = append(moduleTopics, abi.TopicsForSource(abi.SourceWhitelist)...)

	return &Scanner{
		chain:         chain,
		store:         store,
		projector:     projector,
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		tracked:       make(map[string]struct{}),
		walletTopics:  abi.TopicsForSource(abi.SourceWallet),
		moduleTopics:  moduleTopics,
		factoryTopics: abi.TopicsForSource(abi.SourceFactory),
	}
}

// Health returns the probe snapshot.
func (s *Scanner) Health() Snapshot {
	return Snapshot{
		CurrentBlock:     s.currentBlock.Load(),
		LastIndexedBlock: s.lastIndexed.Load(),
		TrackedWallets:   s.trackedCount.Load(),
		IsRunning:        s.running.Load(),
		IsSyncing:        s.syncing.Load(),
	}
}

// Stop requests loop exit at the next iteration boundary. An outstanding
// batch completes.
func (s *Scanner) Stop() {
	s.stopRequested.Store(true)
}

// Run executes the startup sequence and then polls until the context is
// cancelled or Stop is called.
func (s *Scanner) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	cp, err := s.store.GetCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	s.lastIndexed.Store(cp.LastIndexedBlock)

	if err := s.reloadTracked(ctx); err != nil {
		return fmt.Errorf("load tracked wallets: %w", err)
	}

	tip, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("read chain tip: %w", err)
	}
	s.observeTip(tip)

	startBlock := cp.LastIndexedBlock + 1
	if s.cfg.StartBlock > startBlock {
		startBlock = s.cfg.StartBlock
	}
	safe := safeBlock(tip, s.cfg.ConfirmationDepth)

	if startBlock <= safe {
		if err := s.Backfill(ctx, startBlock, safe); err != nil {
			return err
		}
	} else {
		s.logger.Info("checkpoint at safe head, skipping initial backfill",
			zap.Uint64("checkpoint", cp.LastIndexedBlock),
			zap.Uint64("safe_block", safe))
	}

	return s.poll(ctx)
}

// Backfill indexes [from, to] in checkpointed batches with the syncing
// flag raised.
func (s *Scanner) Backfill(ctx context.Context, from, to uint64) error {
	if from > to {
		return nil
	}

	if err := s.store.SetSyncing(ctx, true); err != nil {
		return fmt.Errorf("raise syncing flag: %w", err)
	}
	s.syncing.Store(true)

	s.logger.Info("backfill started",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Uint64("batch_size", s.cfg.BatchSize))

	for start := from; start <= to; start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.stopRequested.Load() {
			break
		}

		end := start + s.cfg.BatchSize - 1
		if end > to {
			end = to
		}
		if err := s.indexRange(ctx, start, end); err != nil {
			return fmt.Errorf("backfill range [%d, %d]: %w", start, end, err)
		}
	}

	s.syncing.Store(false)
	if err := s.store.SetSyncing(ctx, false); err != nil {
		return fmt.Errorf("clear syncing flag: %w", err)
	}

	s.logger.Info("backfill complete", zap.Uint64("to", to))
	return nil
}

// RunBackfill loads the tracked wallet set and indexes [from, to] once.
// It backs the standalone backfill command.
func (s *Scanner) RunBackfill(ctx context.Context, from, to uint64) error {
	if err := s.reloadTracked(ctx); err != nil {
		return fmt.Errorf("load tracked wallets: %w", err)
	}
	return s.Backfill(ctx, from, to)
}

func (s *Scanner) poll(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if s.stopRequested.Load() {
			return nil
		}

		if err := s.tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.metrics.RangeFailures.Inc()
			s.logger.Error("poll iteration failed, range will be retried", zap.Error(err))
		}
	}
}

// tick indexes the range the checkpoint is behind by. The checkpoint only
// advances when a range commits, so a failed tick retries the same range.
func (s *Scanner) tick(ctx context.Context) error {
	cp, err := s.store.GetCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	tip, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("read chain tip: %w", err)
	}
	s.observeTip(tip)

	safe := safeBlock(tip, s.cfg.ConfirmationDepth)
	if safe <= cp.LastIndexedBlock {
		return nil
	}

	// A gap wider than one batch means the store was reset or the service
	// was down for a while. The tracked set may be stale either way.
	if safe-cp.LastIndexedBlock > s.cfg.BatchSize {
		s.logger.Warn("checkpoint gap detected, reloading tracked set and backfilling",
			zap.Uint64("checkpoint", cp.LastIndexedBlock),
			zap.Uint64("safe_block", safe))
		if err := s.reloadTracked(ctx); err != nil {
			return err
		}
		return s.Backfill(ctx, cp.LastIndexedBlock+1, safe)
	}

	return s.indexRange(ctx, cp.LastIndexedBlock+1, safe)
}

type prioritizedLog struct {
	log      types.Log
	priority int
}

// indexRange is the atomic unit of progress: fetch, order, apply, then
// advance the checkpoint. Any failure leaves the checkpoint untouched.
func (s *Scanner) indexRange(ctx context.Context, from, to uint64) error {
	started := time.Now()

	logs, err := s.collectLogs(ctx, from, to)
	if err != nil {
		return err
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].log.BlockNumber != logs[j].log.BlockNumber {
			return logs[i].log.BlockNumber < logs[j].log.BlockNumber
		}
		if logs[i].priority != logs[j].priority {
			return logs[i].priority < logs[j].priority
		}
		return logs[i].log.Index < logs[j].log.Index
	})

	for _, pl := range logs {
		if err := s.applyLog(ctx, pl.log); err != nil {
			return err
		}
	}

	if err := s.store.SetLastIndexedBlock(ctx, to); err != nil {
		return fmt.Errorf("advance checkpoint to %d: %w", to, err)
	}
	s.lastIndexed.Store(to)
	s.metrics.LastIndexedBlock.Set(float64(to))
	s.metrics.BlocksIndexed.Add(float64(to - from + 1))
	s.metrics.BatchDuration.Observe(time.Since(started).Seconds())

	s.logger.Debug("range indexed",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("logs", len(logs)))
	return nil
}

func (s *Scanner) collectLogs(ctx context.Context, from, to uint64) ([]prioritizedLog, error) {
	var merged []prioritizedLog

	if s.cfg.FactoryAddress != "" {
		factoryLogs, err := s.chain.FilterLogs(ctx, client.FilterQuery{
			FromBlock: from,
			ToBlock:   to,
			Addresses: []string{s.cfg.FactoryAddress},
			Topics:    [][]common.Hash{s.factoryTopics},
		})
		if err != nil {
			return nil, fmt.Errorf("fetch factory logs [%d, %d]: %w", from, to, err)
		}
		for _, l := range factoryLogs {
			merged = append(merged, prioritizedLog{log: l, priority: prioFactory})
		}
	}

	for _, chunk := range chunkAddresses(s.trackedAddresses(), maxAddressesPerFilter) {
		walletLogs, err := s.chain.FilterLogs(ctx, client.FilterQuery{
			FromBlock: from,
			ToBlock:   to,
			Addresses: chunk,
			Topics:    [][]common.Hash{s.walletTopics},
		})
		if err != nil {
			return nil, fmt.Errorf("fetch wallet logs [%d, %d]: %w", from, to, err)
		}
		for _, l := range walletLogs {
			merged = append(merged, prioritizedLog{log: l, priority: prioWallet})
		}
	}

	if len(s.cfg.ModuleAddresses) > 0 {
		moduleLogs, err := s.chain.FilterLogs(ctx, client.FilterQuery{
			FromBlock: from,
			ToBlock:   to,
			Addresses: s.cfg.ModuleAddresses,
			Topics:    [][]common.Hash{s.moduleTopics},
		})
		if err != nil {
			return nil, fmt.Errorf("fetch module logs [%d, %d]: %w", from, to, err)
		}
		for _, l := range moduleLogs {
			merged = append(merged, prioritizedLog{log: l, priority: prioModule})
		}
	}

	return merged, nil
}

// applyLog decodes and dispatches one log. Undecodable logs are skipped;
// projection errors propagate and abort the range.
func (s *Scanner) applyLog(ctx context.Context, l types.Log) error {
	decoded, err := abi.DecodeLog(&l)
	if err != nil {
		s.metrics.LogsSkipped.Inc()
		s.logger.Warn("skipping undecodable log",
			zap.Uint64("block", l.BlockNumber),
			zap.String("tx", l.TxHash.Hex()),
			zap.Uint("log_index", l.Index),
			zap.Error(err))
		return nil
	}

	// A discovered wallet joins the tracked set before its handler runs so
	// that later events in the same batch already see it.
	if decoded.Name == abi.EventWalletCreated || decoded.Name == abi.EventWalletRegistered {
		if wallet, ok := decoded.Args["wallet"].(string); ok {
			s.track(wallet)
		}
	}

	ev, err := events.Parse(decoded)
	if err != nil {
		s.metrics.LogsSkipped.Inc()
		s.logger.Warn("skipping unmappable event",
			zap.String("event", decoded.Name),
			zap.Uint64("block", decoded.BlockNumber),
			zap.Error(err))
		return nil
	}

	if err := s.projector.Apply(ctx, ev); err != nil {
		return fmt.Errorf("apply %s at block %d: %w", decoded.Name, decoded.BlockNumber, err)
	}
	s.metrics.EventsProcessed.WithLabelValues(decoded.Name).Inc()
	return nil
}

func (s *Scanner) reloadTracked(ctx context.Context) error {
	addrs, err := s.store.ListAllWalletAddresses(ctx)
	if err != nil {
		return fmt.Errorf("list wallet addresses: %w", err)
	}

	s.tracked = make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		s.tracked[strings.ToLower(addr)] = struct{}{}
	}
	s.trackedCount.Store(uint64(len(s.tracked)))
	s.metrics.TrackedWallets.Set(float64(len(s.tracked)))
	return nil
}

func (s *Scanner) track(wallet string) {
	wallet = strings.ToLower(wallet)
	if _, ok := s.tracked[wallet]; ok {
		return
	}
	s.tracked[wallet] = struct{}{}
	s.trackedCount.Store(uint64(len(s.tracked)))
	s.metrics.TrackedWallets.Set(float64(len(s.tracked)))
}

// trackedAddresses returns the tracked set sorted, so filter chunks stay
// stable between polls.
func (s *Scanner) trackedAddresses() []string {
	addrs := make([]string, 0, len(s.tracked))
	for addr := range s.tracked {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

func (s *Scanner) observeTip(tip uint64) {
	s.currentBlock.Store(tip)
	s.metrics.ChainHead.Set(float64(tip))
}

func chunkAddresses(addrs []string, size int) [][]string {
	if len(addrs) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(addrs); start += size {
		end := start + size
		if end > len(addrs) {
			end = len(addrs)
		}
		chunks = append(chunks, addrs[start:end])
	}
	return chunks
}

func safeBlock(tip, depth uint64) uint64 {
	if tip < depth {
		return 0
	}
	return tip - depth
}
