package storage

import (
	"context"
)

// Store aggregates the per-entity repositories over one connection pool.
type Store struct {
	db *DB

	Wallets       *WalletRepo
	Owners        *OwnerRepo
	Modules       *ModuleRepo
	Transactions  *TransactionRepo
	Confirmations *ConfirmationRepo
	Deposits      *DepositRepo
	Recovery      *RecoveryRepo
	DailyLimits   *DailyLimitRepo
	Whitelist     *WhitelistRepo
	ModuleTxs     *ModuleTransactionRepo
	Checkpoint    *CheckpointRepo
}

// NewStore wires the repositories onto a shared pool.
func NewStore(db *DB) *Store {
	return &Store{
		db:            db,
		Wallets:       &WalletRepo{db: db},
		Owners:        &OwnerRepo{db: db},
		Modules:       &ModuleRepo{db: db},
		Transactions:  &TransactionRepo{db: db},
		Confirmations: &ConfirmationRepo{db: db},
		Deposits:      &DepositRepo{db: db},
		Recovery:      &RecoveryRepo{db: db},
		DailyLimits:   &DailyLimitRepo{db: db},
		Whitelist:     &WhitelistRepo{db: db},
		ModuleTxs:     &ModuleTransactionRepo{db: db},
		Checkpoint:    &CheckpointRepo{db: db},
	}
}

// Ping verifies store connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
