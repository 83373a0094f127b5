package events

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arcwallet/indexer-go/abi"
	"github.com/arcwallet/indexer-go/storage"
)

type fakeStore struct {
	calls []string

	wallets       []storage.Wallet
	ownerBatches  map[string][]string
	ownerAdds     []string
	ownerRemovals []string
	deltas        []int64
	transactions  []storage.Transaction
	recoveries    []storage.Recovery
	moduleTxs     []storage.ModuleTransaction
	spends        []string

	cfg    storage.RecoveryConfig
	hasCfg bool
	cfgErr error

	failOn string
}

func newFakeStore() *fakeStore {
	return &fakeStore{ownerBatches: make(map[string][]string)}
}

func (f *fakeStore) record(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return errors.New(name + " failed")
	}
	return nil
}

func (f *fakeStore) UpsertWallet(_ context.Context, w storage.Wallet) error {
	f.wallets = append(f.wallets, w)
	return f.record("UpsertWallet")
}

func (f *fakeStore) SetThreshold(_ context.Context, _ string, _ uint64) error {
	return f.record("SetThreshold")
}

func (f *fakeStore) IncrementOwnerCount(_ context.Context, _ string, delta int64) error {
	f.deltas = append(f.deltas, delta)
	return f.record("IncrementOwnerCount")
}

func (f *fakeStore) AddOwner(_ context.Context, _, owner string, _ uint64, _ string) error {
	f.ownerAdds = append(f.ownerAdds, owner)
	return f.record("AddOwner")
}

func (f *fakeStore) AddOwners(_ context.Context, wallet string, owners []string, _ uint64, _ string) error {
	f.ownerBatches[wallet] = append(f.ownerBatches[wallet], owners...)
	return f.record("AddOwners")
}

func (f *fakeStore) DeactivateOwner(_ context.Context, _, owner string, _ uint64, _ string) error {
	f.ownerRemovals = append(f.ownerRemovals, owner)
	return f.record("DeactivateOwner")
}

func (f *fakeStore) EnableModule(_ context.Context, _, _ string, _ uint64, _ string) error {
	return f.record("EnableModule")
}

func (f *fakeStore) DisableModule(_ context.Context, _, _ string, _ uint64, _ string) error {
	return f.record("DisableModule")
}

func (f *fakeStore) UpsertProposedTransaction(_ context.Context, t storage.Transaction) error {
	f.transactions = append(f.transactions, t)
	return f.record("UpsertProposedTransaction")
}

func (f *fakeStore) MarkTransactionExecuted(_ context.Context, _, _ string, _ uint64, _ string) error {
	return f.record("MarkTransactionExecuted")
}

func (f *fakeStore) MarkTransactionCancelled(_ context.Context, _, _ string, _ uint64, _ string) error {
	return f.record("MarkTransactionCancelled")
}

func (f *fakeStore) AddConfirmation(_ context.Context, _, _, _ string, _ uint64, _ string) error {
	return f.record("AddConfirmation")
}

func (f *fakeStore) RevokeConfirmation(_ context.Context, _, _, _ string, _ uint64, _ string) error {
	return f.record("RevokeConfirmation")
}

func (f *fakeStore) AddDeposit(_ context.Context, _, _, _ string, _ uint64, _ string) error {
	return f.record("AddDeposit")
}

func (f *fakeStore) UpsertRecoveryConfig(_ context.Context, _ storage.RecoveryConfig) error {
	return f.record("UpsertRecoveryConfig")
}

func (f *fakeStore) GetRecoveryConfig(_ context.Context, _ string) (storage.RecoveryConfig, bool, error) {
	f.calls = append(f.calls, "GetRecoveryConfig")
	return f.cfg, f.hasCfg, f.cfgErr
}

func (f *fakeStore) DeactivateGuardians(_ context.Context, _ string) error {
	return f.record("DeactivateGuardians")
}

func (f *fakeStore) AddGuardians(_ context.Context, _ string, _ []string, _ uint64, _ string) error {
	return f.record("AddGuardians")
}

func (f *fakeStore) UpsertRecovery(_ context.Context, rec storage.Recovery) error {
	f.recoveries = append(f.recoveries, rec)
	return f.record("UpsertRecovery")
}

func (f *fakeStore) MarkRecoveryExecuted(_ context.Context, _, _ string, _ uint64, _ string) error {
	return f.record("MarkRecoveryExecuted")
}

func (f *fakeStore) MarkRecoveryCancelled(_ context.Context, _, _ string, _ uint64, _ string) error {
	return f.record("MarkRecoveryCancelled")
}

func (f *fakeStore) AddRecoveryApproval(_ context.Context, _, _, _ string, _ uint64, _ string) error {
	return f.record("AddRecoveryApproval")
}

func (f *fakeStore) RevokeRecoveryApproval(_ context.Context, _, _, _ string, _ uint64, _ string) error {
	return f.record("RevokeRecoveryApproval")
}

func (f *fakeStore) UpsertDailyLimit(_ context.Context, _, _ string) error {
	return f.record("UpsertDailyLimit")
}

func (f *fakeStore) ResetDailyLimit(_ context.Context, _ string) error {
	return f.record("ResetDailyLimit")
}

func (f *fakeStore) ApplyDailyLimitSpend(_ context.Context, _, remainingLimit string) error {
	f.spends = append(f.spends, remainingLimit)
	return f.record("ApplyDailyLimitSpend")
}

func (f *fakeStore) AddWhitelistEntry(_ context.Context, _, _, _ string, _ uint64) error {
	return f.record("AddWhitelistEntry")
}

func (f *fakeStore) DeactivateWhitelistEntry(_ context.Context, _, _ string, _ uint64) error {
	return f.record("DeactivateWhitelistEntry")
}

func (f *fakeStore) AppendModuleTransaction(_ context.Context, mt storage.ModuleTransaction) error {
	f.moduleTxs = append(f.moduleTxs, mt)
	return f.record("AppendModuleTransaction")
}

type fakeChain struct {
	returns map[string][]byte
	callErr error
	ts      uint64
	tsErr   error
}

func (f *fakeChain) CallContract(_ context.Context, _ string, data []byte) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.returns[string(data)], nil
}

func (f *fakeChain) BlockTimestamp(_ context.Context, _ uint64) (uint64, error) {
	if f.tsErr != nil {
		return 0, f.tsErr
	}
	return f.ts, nil
}

func newTestHandler(store *fakeStore, chain *fakeChain) *Handler {
	return NewHandler(store, chain, []string{testModule}, 86400, zap.NewNop())
}

func word(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func addressArrayReturn(addrs ...string) []byte {
	ret := word(big.NewInt(32).Bytes())
	ret = append(ret, word(big.NewInt(int64(len(addrs))).Bytes())...)
	for _, a := range addrs {
		b, _ := new(big.Int).SetString(a[2:], 16)
		ret = append(ret, word(b.Bytes())...)
	}
	return ret
}

func TestApplyWalletCreated(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeChain{})

	err := h.Apply(context.Background(), WalletCreated{
		Meta:      Meta{Address: testFactory, BlockNumber: 10, TxHash: testTxHash},
		Wallet:    testWallet,
		Owners:    []string{testOwner, testOwner2},
		Threshold: 2,
		Creator:   testOwner,
	})
	require.NoError(t, err)

	require.Len(t, store.wallets, 1)
	assert.Equal(t, testWallet, store.wallets[0].Address)
	assert.Equal(t, uint64(2), store.wallets[0].Threshold)
	assert.Equal(t, uint64(2), store.wallets[0].OwnerCount)
	assert.Equal(t, []string{testOwner, testOwner2}, store.ownerBatches[testWallet])
}

func TestApplyWalletRegisteredReadsChainState(t *testing.T) {
	store := newFakeStore()
	chain := &fakeChain{returns: map[string][]byte{
		string(abi.SelectorGetOwners): addressArrayReturn(testOwner, testOwner2),
		string(abi.SelectorThreshold): word(big.NewInt(2).Bytes()),
	}}
	h := newTestHandler(store, chain)

	err := h.Apply(context.Background(), WalletRegistered{
		Meta:      Meta{Address: testFactory, BlockNumber: 10, TxHash: testTxHash},
		Wallet:    testWallet,
		Registrar: testOwner,
	})
	require.NoError(t, err)

	require.Len(t, store.wallets, 1)
	assert.Equal(t, uint64(2), store.wallets[0].Threshold)
	assert.Equal(t, uint64(2), store.wallets[0].OwnerCount)
	assert.Equal(t, []string{testOwner, testOwner2}, store.ownerBatches[testWallet])
}

func TestApplyWalletRegisteredChainFailure(t *testing.T) {
	store := newFakeStore()
	chain := &fakeChain{callErr: errors.New("rpc down")}
	h := newTestHandler(store, chain)

	err := h.Apply(context.Background(), WalletRegistered{
		Meta:   Meta{BlockNumber: 10, TxHash: testTxHash},
		Wallet: testWallet,
	})
	require.Error(t, err)
	assert.Empty(t, store.wallets)
}

func TestApplyTransactionProposedPlainTransfer(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeChain{})

	err := h.Apply(context.Background(), TransactionProposed{
		Meta:         Meta{Address: testWallet, BlockNumber: 10, TxHash: testTxHash},
		Wallet:       testWallet,
		ProposalHash: testPropHash,
		Proposer:     testOwner,
		To:           testOwner2,
		Value:        "1000",
		Data:         "0x",
	})
	require.NoError(t, err)

	require.Len(t, store.transactions, 1)
	tx := store.transactions[0]
	assert.Equal(t, abi.TxTypeTransfer, tx.TransactionType)
	assert.Equal(t, testPropHash, tx.TxHash)
	assert.Equal(t, testTxHash, tx.SubmittedAtTx)
	assert.JSONEq(t, `{"function":"transfer"}`, string(tx.DecodedParams))
}

func TestApplyTransactionProposedUnknownModuleCall(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeChain{})

	err := h.Apply(context.Background(), TransactionProposed{
		Meta:         Meta{Address: testWallet, BlockNumber: 10, TxHash: testTxHash},
		Wallet:       testWallet,
		ProposalHash: testPropHash,
		Proposer:     testOwner,
		To:           testModule,
		Value:        "0",
		Data:         "0xdeadbeef",
	})
	require.NoError(t, err)

	require.Len(t, store.transactions, 1)
	tx := store.transactions[0]
	assert.Equal(t, abi.TxTypeModuleConfig, tx.TransactionType)

	var params map[string]interface{}
	require.NoError(t, json.Unmarshal(tx.DecodedParams, &params))
	args, ok := params["args"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "0xdeadbeef", args["rawData"])
}

func TestApplyOwnerAddedIncrementsCount(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeChain{})

	err := h.Apply(context.Background(), OwnerAdded{
		Meta:   Meta{Address: testWallet, BlockNumber: 10, TxHash: testTxHash},
		Wallet: testWallet,
		Owner:  testOwner,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{testOwner}, store.ownerAdds)
	assert.Equal(t, []int64{1}, store.deltas)
}

func TestApplyOwnerRemovedDecrementsCount(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeChain{})

	err := h.Apply(context.Background(), OwnerRemoved{
		Meta:   Meta{Address: testWallet, BlockNumber: 10, TxHash: testTxHash},
		Wallet: testWallet,
		Owner:  testOwner,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{testOwner}, store.ownerRemovals)
	assert.Equal(t, []int64{-1}, store.deltas)
}

func TestApplyOwnerAddedStoreFailureStopsCountUpdate(t *testing.T) {
	store := newFakeStore()
	store.failOn = "AddOwner"
	h := newTestHandler(store, &fakeChain{})

	err := h.Apply(context.Background(), OwnerAdded{
		Meta:   Meta{Address: testWallet},
		Wallet: testWallet,
		Owner:  testOwner,
	})
	require.Error(t, err)
	assert.Empty(t, store.deltas)
}

func TestApplyRecoverySetupOrder(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeChain{})

	err := h.Apply(context.Background(), RecoverySetup{
		Meta:              Meta{Address: testModule, BlockNumber: 10, TxHash: testTxHash},
		Wallet:            testWallet,
		Guardians:         []string{testOwner, testOwner2},
		GuardianThreshold: 2,
		RecoveryPeriod:    604800,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"UpsertRecoveryConfig", "DeactivateGuardians", "AddGuardians"}, store.calls)
}

func TestApplyRecoveryInitiatedUsesStoredConfig(t *testing.T) {
	store := newFakeStore()
	store.cfg = storage.RecoveryConfig{
		WalletAddress:     testWallet,
		GuardianThreshold: 3,
		RecoveryPeriod:    604800,
	}
	store.hasCfg = true
	chain := &fakeChain{ts: 1_700_000_000}
	h := newTestHandler(store, chain)

	err := h.Apply(context.Background(), RecoveryInitiated{
		Meta:         Meta{Address: testModule, BlockNumber: 10, TxHash: testTxHash},
		Wallet:       testWallet,
		RecoveryHash: testRecHash,
		NewOwners:    []string{testOwner2},
		NewThreshold: 1,
		Initiator:    testOwner,
	})
	require.NoError(t, err)

	require.Len(t, store.recoveries, 1)
	rec := store.recoveries[0]
	assert.Equal(t, uint64(3), rec.RequiredThreshold)
	assert.Equal(t, uint64(1_700_000_000+604800), rec.ExecutionTime)
}

func TestApplyRecoveryInitiatedTimestampFallback(t *testing.T) {
	store := newFakeStore()
	store.cfg = storage.RecoveryConfig{GuardianThreshold: 2, RecoveryPeriod: 3600}
	store.hasCfg = true
	chain := &fakeChain{tsErr: errors.New("rpc down")}

	core, logs := observer.New(zap.WarnLevel)
	h := NewHandler(store, chain, nil, 86400, zap.New(core))

	before := uint64(time.Now().Unix())
	err := h.Apply(context.Background(), RecoveryInitiated{
		Meta:         Meta{Address: testModule, BlockNumber: 10, TxHash: testTxHash},
		Wallet:       testWallet,
		RecoveryHash: testRecHash,
		NewOwners:    []string{testOwner2},
		NewThreshold: 1,
		Initiator:    testOwner,
	})
	require.NoError(t, err)

	require.Len(t, store.recoveries, 1)
	got := store.recoveries[0].ExecutionTime
	assert.GreaterOrEqual(t, got, before+3600)
	assert.LessOrEqual(t, got, uint64(time.Now().Unix())+3600)

	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "wall clock")
}

func TestApplyRecoveryInitiatedWithoutConfigWarns(t *testing.T) {
	store := newFakeStore()
	chain := &fakeChain{ts: 1000}

	core, logs := observer.New(zap.WarnLevel)
	h := NewHandler(store, chain, nil, 86400, zap.New(core))

	err := h.Apply(context.Background(), RecoveryInitiated{
		Meta:         Meta{Address: testModule, BlockNumber: 10, TxHash: testTxHash},
		Wallet:       testWallet,
		RecoveryHash: testRecHash,
		NewOwners:    []string{testOwner2},
		NewThreshold: 1,
		Initiator:    testOwner,
	})
	require.NoError(t, err)

	require.Len(t, store.recoveries, 1)
	assert.Equal(t, uint64(1000+86400), store.recoveries[0].ExecutionTime)
	assert.Equal(t, uint64(1), store.recoveries[0].RequiredThreshold)
	assert.Equal(t, 1, logs.Len())
}

func TestApplyDailyLimitTransactionExecuted(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeChain{})

	err := h.Apply(context.Background(), DailyLimitTransactionExecuted{
		Meta:           Meta{Address: testModule, BlockNumber: 10, TxHash: testTxHash},
		Wallet:         testWallet,
		To:             testOwner2,
		Value:          "500",
		RemainingLimit: "1500",
	})
	require.NoError(t, err)

	require.Len(t, store.moduleTxs, 1)
	mt := store.moduleTxs[0]
	assert.Equal(t, "daily_limit", mt.ModuleType)
	assert.Equal(t, testModule, mt.ModuleAddress)
	assert.Equal(t, "1500", mt.RemainingLimit)
	assert.Equal(t, []string{"1500"}, store.spends)
}

func TestApplyWhitelistTransactionExecuted(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeChain{})

	err := h.Apply(context.Background(), WhitelistTransactionExecuted{
		Meta:   Meta{Address: testModule, BlockNumber: 10, TxHash: testTxHash},
		Wallet: testWallet,
		To:     testOwner2,
		Value:  "500",
	})
	require.NoError(t, err)

	require.Len(t, store.moduleTxs, 1)
	assert.Equal(t, "whitelist", store.moduleTxs[0].ModuleType)
	assert.Empty(t, store.moduleTxs[0].RemainingLimit)
	assert.Empty(t, store.spends)
}

func TestApplyTerminalStatuses(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeChain{})
	ctx := context.Background()
	meta := Meta{Address: testWallet, BlockNumber: 10, TxHash: testTxHash}

	require.NoError(t, h.Apply(ctx, TransactionExecuted{Meta: meta, Wallet: testWallet, ProposalHash: testPropHash, Executor: testOwner}))
	require.NoError(t, h.Apply(ctx, TransactionCancelled{Meta: meta, Wallet: testWallet, ProposalHash: testPropHash, Canceller: testOwner}))
	require.NoError(t, h.Apply(ctx, RecoveryExecuted{Meta: meta, Wallet: testWallet, RecoveryHash: testRecHash}))
	require.NoError(t, h.Apply(ctx, RecoveryCancelled{Meta: meta, Wallet: testWallet, RecoveryHash: testRecHash}))

	assert.Equal(t, []string{
		"MarkTransactionExecuted",
		"MarkTransactionCancelled",
		"MarkRecoveryExecuted",
		"MarkRecoveryCancelled",
	}, store.calls)
}
