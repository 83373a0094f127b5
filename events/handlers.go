package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/arcwallet/indexer-go/abi"
	"github.com/arcwallet/indexer-go/storage"
)

// Store is the projection surface handlers write through.
type Store interface {
	UpsertWallet(ctx context.Context, w storage.Wallet) error
	SetThreshold(ctx context.Context, wallet string, threshold uint64) error
	IncrementOwnerCount(ctx context.Context, wallet string, delta int64) error

	AddOwner(ctx context.Context, wallet, owner string, block uint64, tx string) error
	AddOwners(ctx context.Context, wallet string, owners []string, block uint64, tx string) error
	DeactivateOwner(ctx context.Context, wallet, owner string, block uint64, tx string) error

	EnableModule(ctx context.Context, wallet, module string, block uint64, tx string) error
	DisableModule(ctx context.Context, wallet, module string, block uint64, tx string) error

	UpsertProposedTransaction(ctx context.Context, t storage.Transaction) error
	MarkTransactionExecuted(ctx context.Context, wallet, hash string, block uint64, tx string) error
	MarkTransactionCancelled(ctx context.Context, wallet, hash string, block uint64, tx string) error

	AddConfirmation(ctx context.Context, wallet, hash, owner string, block uint64, tx string) error
	RevokeConfirmation(ctx context.Context, wallet, hash, owner string, block uint64, tx string) error

	AddDeposit(ctx context.Context, wallet, sender, amount string, block uint64, tx string) error

	UpsertRecoveryConfig(ctx context.Context, c storage.RecoveryConfig) error
	GetRecoveryConfig(ctx context.Context, wallet string) (storage.RecoveryConfig, bool, error)
	DeactivateGuardians(ctx context.Context, wallet string) error
	AddGuardians(ctx context.Context, wallet string, guardians []string, block uint64, tx string) error
	UpsertRecovery(ctx context.Context, rec storage.Recovery) error
	MarkRecoveryExecuted(ctx context.Context, wallet, hash string, block uint64, tx string) error
	MarkRecoveryCancelled(ctx context.Context, wallet, hash string, block uint64, tx string) error
	AddRecoveryApproval(ctx context.Context, wallet, hash, guardian string, block uint64, tx string) error
	RevokeRecoveryApproval(ctx context.Context, wallet, hash, guardian string, block uint64, tx string) error

	UpsertDailyLimit(ctx context.Context, wallet, limit string) error
	ResetDailyLimit(ctx context.Context, wallet string) error
	ApplyDailyLimitSpend(ctx context.Context, wallet, remainingLimit string) error

	AddWhitelistEntry(ctx context.Context, wallet, target, limit string, block uint64) error
	DeactivateWhitelistEntry(ctx context.Context, wallet, target string, block uint64) error

	AppendModuleTransaction(ctx context.Context, mt storage.ModuleTransaction) error
}

// ChainReader covers the two read-only chain calls handlers make.
type ChainReader interface {
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Handler projects decoded events into the store.
type Handler struct {
	store          Store
	chain          ChainReader
	modules        map[string]bool
	recoveryPeriod uint64
	logger         *zap.Logger
}

// NewHandler builds a Handler. moduleAddrs are the configured module
// contract addresses; recoveryPeriod is the fallback period in seconds
// when a wallet has no stored recovery config.
func NewHandler(store Store, chain ChainReader, moduleAddrs []string, recoveryPeriod uint64, logger *zap.Logger) *Handler {
	modules := make(map[string]bool, len(moduleAddrs))
	for _, addr := range moduleAddrs {
		modules[strings.ToLower(addr)] = true
	}
	return &Handler{
		store:          store,
		chain:          chain,
		modules:        modules,
		recoveryPeriod: recoveryPeriod,
		logger:         logger,
	}
}

// Apply dispatches one event to its projection. Store errors propagate so
// the caller can refuse to advance past the failed range.
func (h *Handler) Apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case WalletCreated:
		return h.walletCreated(ctx, e)
	case WalletRegistered:
		return h.walletRegistered(ctx, e)
	case TransactionProposed:
		return h.transactionProposed(ctx, e)
	case TransactionApproved:
		return h.store.AddConfirmation(ctx, e.Wallet, e.ProposalHash, e.Owner, e.BlockNumber, e.TxHash)
	case ApprovalRevoked:
		return h.store.RevokeConfirmation(ctx, e.Wallet, e.ProposalHash, e.Owner, e.BlockNumber, e.TxHash)
	case TransactionExecuted:
		return h.store.MarkTransactionExecuted(ctx, e.Wallet, e.ProposalHash, e.BlockNumber, e.TxHash)
	case TransactionCancelled:
		return h.store.MarkTransactionCancelled(ctx, e.Wallet, e.ProposalHash, e.BlockNumber, e.TxHash)
	case OwnerAdded:
		if err := h.store.AddOwner(ctx, e.Wallet, e.Owner, e.BlockNumber, e.TxHash); err != nil {
			return err
		}
		return h.store.IncrementOwnerCount(ctx, e.Wallet, 1)
	case OwnerRemoved:
		if err := h.store.DeactivateOwner(ctx, e.Wallet, e.Owner, e.BlockNumber, e.TxHash); err != nil {
			return err
		}
		return h.store.IncrementOwnerCount(ctx, e.Wallet, -1)
	case ThresholdChanged:
		return h.store.SetThreshold(ctx, e.Wallet, e.Threshold)
	case ModuleEnabled:
		return h.store.EnableModule(ctx, e.Wallet, e.Module, e.BlockNumber, e.TxHash)
	case ModuleDisabled:
		return h.store.DisableModule(ctx, e.Wallet, e.Module, e.BlockNumber, e.TxHash)
	case Received:
		return h.store.AddDeposit(ctx, e.Wallet, e.Sender, e.Value, e.BlockNumber, e.TxHash)
	case RecoverySetup:
		return h.recoverySetup(ctx, e)
	case RecoveryInitiated:
		return h.recoveryInitiated(ctx, e)
	case RecoveryApproved:
		return h.store.AddRecoveryApproval(ctx, e.Wallet, e.RecoveryHash, e.Guardian, e.BlockNumber, e.TxHash)
	case RecoveryApprovalRevoked:
		return h.store.RevokeRecoveryApproval(ctx, e.Wallet, e.RecoveryHash, e.Guardian, e.BlockNumber, e.TxHash)
	case RecoveryExecuted:
		return h.store.MarkRecoveryExecuted(ctx, e.Wallet, e.RecoveryHash, e.BlockNumber, e.TxHash)
	case RecoveryCancelled:
		return h.store.MarkRecoveryCancelled(ctx, e.Wallet, e.RecoveryHash, e.BlockNumber, e.TxHash)
	case DailyLimitSet:
		return h.store.UpsertDailyLimit(ctx, e.Wallet, e.Limit)
	case DailyLimitReset:
		return h.store.ResetDailyLimit(ctx, e.Wallet)
	case DailyLimitTransactionExecuted:
		return h.dailyLimitExecuted(ctx, e)
	case AddressWhitelisted:
		return h.store.AddWhitelistEntry(ctx, e.Wallet, e.Target, e.Limit, e.BlockNumber)
	case AddressRemovedFromWhitelist:
		return h.store.DeactivateWhitelistEntry(ctx, e.Wallet, e.Target, e.BlockNumber)
	case WhitelistTransactionExecuted:
		return h.store.AppendModuleTransaction(ctx, storage.ModuleTransaction{
			WalletAddress:   e.Wallet,
			ModuleType:      abi.SourceWhitelist,
			ModuleAddress:   e.Address,
			To:              e.To,
			Value:           e.Value,
			ExecutedAtBlock: e.BlockNumber,
			ExecutedAtTx:    e.TxHash,
		})
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedEvent, ev)
	}
}

func (h *Handler) walletCreated(ctx context.Context, e WalletCreated) error {
	err := h.store.UpsertWallet(ctx, storage.Wallet{
		Address:        e.Wallet,
		Threshold:      e.Threshold,
		OwnerCount:     uint64(len(e.Owners)),
		CreatedAtBlock: e.BlockNumber,
		CreatedAtTx:    e.TxHash,
	})
	if err != nil {
		return err
	}
	return h.store.AddOwners(ctx, e.Wallet, e.Owners, e.BlockNumber, e.TxHash)
}

// walletRegistered backfills a late-discovered wallet: the event carries
// no owner list, so owners and threshold come from contract reads.
func (h *Handler) walletRegistered(ctx context.Context, e WalletRegistered) error {
	ownersRet, err := h.chain.CallContract(ctx, e.Wallet, abi.SelectorGetOwners)
	if err != nil {
		return fmt.Errorf("read owners of %s: %w", e.Wallet, err)
	}
	owners, err := abi.DecodeAddressArray(ownersRet)
	if err != nil {
		return fmt.Errorf("decode owners of %s: %w", e.Wallet, err)
	}

	thresholdRet, err := h.chain.CallContract(ctx, e.Wallet, abi.SelectorThreshold)
	if err != nil {
		return fmt.Errorf("read threshold of %s: %w", e.Wallet, err)
	}
	thresholdStr, err := abi.DecodeUint256(thresholdRet)
	if err != nil {
		return fmt.Errorf("decode threshold of %s: %w", e.Wallet, err)
	}
	threshold, err := strconv.ParseUint(thresholdStr, 10, 64)
	if err != nil {
		return fmt.Errorf("threshold of %s out of range: %w", e.Wallet, err)
	}

	err = h.store.UpsertWallet(ctx, storage.Wallet{
		Address:        e.Wallet,
		Threshold:      threshold,
		OwnerCount:     uint64(len(owners)),
		CreatedAtBlock: e.BlockNumber,
		CreatedAtTx:    e.TxHash,
	})
	if err != nil {
		return err
	}
	return h.store.AddOwners(ctx, e.Wallet, owners, e.BlockNumber, e.TxHash)
}

func (h *Handler) transactionProposed(ctx context.Context, e TransactionProposed) error {
	var calldata []byte
	if e.Data != "" && e.Data != "0x" {
		var err error
		calldata, err = hexutil.Decode(e.Data)
		if err != nil {
			return fmt.Errorf("proposal %s calldata: %w", e.ProposalHash, err)
		}
	}

	call := abi.DecodeCalldata(e.To, calldata, h.modules)
	params, err := encodeDecodedParams(call)
	if err != nil {
		return fmt.Errorf("proposal %s params: %w", e.ProposalHash, err)
	}

	return h.store.UpsertProposedTransaction(ctx, storage.Transaction{
		WalletAddress:    e.Wallet,
		TxHash:           e.ProposalHash,
		To:               e.To,
		Value:            e.Value,
		Data:             e.Data,
		TransactionType:  call.TransactionType,
		DecodedParams:    params,
		SubmittedBy:      e.Proposer,
		SubmittedAtBlock: e.BlockNumber,
		SubmittedAtTx:    e.TxHash,
	})
}

func encodeDecodedParams(call abi.DecodedCall) (json.RawMessage, error) {
	body := make(map[string]interface{}, 2)
	if call.Function != "" {
		body["function"] = call.Function
	}
	if len(call.Params) > 0 {
		body["args"] = call.Params
	}
	return json.Marshal(body)
}

func (h *Handler) recoverySetup(ctx context.Context, e RecoverySetup) error {
	err := h.store.UpsertRecoveryConfig(ctx, storage.RecoveryConfig{
		WalletAddress:     e.Wallet,
		GuardianThreshold: e.GuardianThreshold,
		RecoveryPeriod:    e.RecoveryPeriod,
		SetupAtBlock:      e.BlockNumber,
		SetupAtTx:         e.TxHash,
	})
	if err != nil {
		return err
	}
	if err := h.store.DeactivateGuardians(ctx, e.Wallet); err != nil {
		return err
	}
	return h.store.AddGuardians(ctx, e.Wallet, e.Guardians, e.BlockNumber, e.TxHash)
}

// recoveryInitiated persists the attempt with an execution deadline of
// block timestamp + recovery period. The initiator's own approval is not
// pre-inserted; the chain emits a separate approval event for it.
func (h *Handler) recoveryInitiated(ctx context.Context, e RecoveryInitiated) error {
	period := h.recoveryPeriod
	required := uint64(1)

	cfg, ok, err := h.store.GetRecoveryConfig(ctx, e.Wallet)
	if err != nil {
		return err
	}
	if ok {
		period = cfg.RecoveryPeriod
		required = cfg.GuardianThreshold
	} else {
		h.logger.Warn("recovery initiated without stored config, using defaults",
			zap.String("wallet", e.Wallet),
			zap.String("recovery_hash", e.RecoveryHash),
			zap.Uint64("fallback_period", period))
	}

	ts, err := h.chain.BlockTimestamp(ctx, e.BlockNumber)
	if err != nil {
		ts = uint64(time.Now().Unix())
		h.logger.Warn("block timestamp read failed, using wall clock for execution time",
			zap.String("wallet", e.Wallet),
			zap.String("recovery_hash", e.RecoveryHash),
			zap.Uint64("block", e.BlockNumber),
			zap.Error(err))
	}

	return h.store.UpsertRecovery(ctx, storage.Recovery{
		WalletAddress:     e.Wallet,
		RecoveryHash:      e.RecoveryHash,
		NewOwners:         e.NewOwners,
		NewThreshold:      e.NewThreshold,
		Initiator:         e.Initiator,
		RequiredThreshold: required,
		ExecutionTime:     ts + period,
		InitiatedAtBlock:  e.BlockNumber,
		InitiatedAtTx:     e.TxHash,
	})
}

func (h *Handler) dailyLimitExecuted(ctx context.Context, e DailyLimitTransactionExecuted) error {
	err := h.store.AppendModuleTransaction(ctx, storage.ModuleTransaction{
		WalletAddress:   e.Wallet,
		ModuleType:      abi.SourceDailyLimit,
		ModuleAddress:   e.Address,
		To:              e.To,
		Value:           e.Value,
		RemainingLimit:  e.RemainingLimit,
		ExecutedAtBlock: e.BlockNumber,
		ExecutedAtTx:    e.TxHash,
	})
	if err != nil {
		return err
	}
	return h.store.ApplyDailyLimitSpend(ctx, e.Wallet, e.RemainingLimit)
}
