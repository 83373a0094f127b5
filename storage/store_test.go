package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	goodAddr = "0xabcdef0123456789abcdef0123456789abcdef01"
	goodHash = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

// Repos reject malformed input before touching the pool, so the zero
// value suffices for these tests.
func requireValidationError(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, field, vErr.Field)
}

func TestWalletUpsertRejectsMalformedInput(t *testing.T) {
	r := &WalletRepo{}
	ctx := context.Background()

	err := r.Upsert(ctx, Wallet{Address: "not-an-address", CreatedAtTx: goodHash})
	requireValidationError(t, err, "wallet_address")

	err = r.Upsert(ctx, Wallet{Address: goodAddr, CreatedAtTx: "0x1234"})
	requireValidationError(t, err, "created_at_tx")
}

func TestOwnerAddRejectsMalformedOwner(t *testing.T) {
	r := &OwnerRepo{}

	err := r.Add(context.Background(), goodAddr, "0xbad", 1, goodHash)
	requireValidationError(t, err, "owner_address")
}

func TestTransactionUpsertRejectsMalformedHash(t *testing.T) {
	r := &TransactionRepo{}

	err := r.UpsertProposed(context.Background(), Transaction{
		WalletAddress:    goodAddr,
		TxHash:           "deadbeef",
		To:               goodAddr,
		SubmittedBy:      goodAddr,
		SubmittedAtBlock: 1,
		SubmittedAtTx:    goodHash,
	})
	requireValidationError(t, err, "tx_hash")
}

func TestDailyLimitRejectsNonNumericLimit(t *testing.T) {
	r := &DailyLimitRepo{}

	err := r.Upsert(context.Background(), goodAddr, "1.5e18")
	requireValidationError(t, err, "daily_limit")
}

func TestModuleTransactionRejectsMalformedWallet(t *testing.T) {
	r := &ModuleTransactionRepo{}

	err := r.Append(context.Background(), ModuleTransaction{
		WalletAddress: "0x??",
		ModuleType:    "daily_limit",
		ModuleAddress: goodAddr,
		To:            goodAddr,
		ExecutedAtTx:  goodHash,
	})
	requireValidationError(t, err, "wallet_address")
}

func TestNewStoreWiresAllRepos(t *testing.T) {
	db := &DB{}
	s := NewStore(db)

	assert.NotNil(t, s.Wallets)
	assert.NotNil(t, s.Owners)
	assert.NotNil(t, s.Modules)
	assert.NotNil(t, s.Transactions)
	assert.NotNil(t, s.Confirmations)
	assert.NotNil(t, s.Deposits)
	assert.NotNil(t, s.Recovery)
	assert.NotNil(t, s.DailyLimits)
	assert.NotNil(t, s.Whitelist)
	assert.NotNil(t, s.ModuleTxs)
	assert.NotNil(t, s.Checkpoint)
}
