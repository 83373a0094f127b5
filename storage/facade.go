package storage

import "context"

// Flat projection surface: one method per handler operation, delegating
// to the entity repos. Consumers depend on the subset they need.

func (s *Store) UpsertWallet(ctx context.Context, w Wallet) error {
	return s.Wallets.Upsert(ctx, w)
}

func (s *Store) SetThreshold(ctx context.Context, wallet string, threshold uint64) error {
	return s.Wallets.SetThreshold(ctx, wallet, threshold)
}

func (s *Store) IncrementOwnerCount(ctx context.Context, wallet string, delta int64) error {
	return s.Wallets.IncrementOwnerCount(ctx, wallet, delta)
}

func (s *Store) ListAllWalletAddresses(ctx context.Context) ([]string, error) {
	return s.Wallets.ListAllAddresses(ctx)
}

func (s *Store) AddOwner(ctx context.Context, wallet, owner string, block uint64, tx string) error {
	return s.Owners.Add(ctx, wallet, owner, block, tx)
}

func (s *Store) AddOwners(ctx context.Context, wallet string, owners []string, block uint64, tx string) error {
	return s.Owners.AddBatch(ctx, wallet, owners, block, tx)
}

func (s *Store) DeactivateOwner(ctx context.Context, wallet, owner string, block uint64, tx string) error {
	return s.Owners.Deactivate(ctx, wallet, owner, block, tx)
}

func (s *Store) EnableModule(ctx context.Context, wallet, module string, block uint64, tx string) error {
	return s.Modules.Enable(ctx, wallet, module, block, tx)
}

func (s *Store) DisableModule(ctx context.Context, wallet, module string, block uint64, tx string) error {
	return s.Modules.Disable(ctx, wallet, module, block, tx)
}

func (s *Store) UpsertProposedTransaction(ctx context.Context, t Transaction) error {
	return s.Transactions.UpsertProposed(ctx, t)
}

func (s *Store) MarkTransactionExecuted(ctx context.Context, wallet, hash string, block uint64, tx string) error {
	return s.Transactions.MarkExecuted(ctx, wallet, hash, block, tx)
}

func (s *Store) MarkTransactionCancelled(ctx context.Context, wallet, hash string, block uint64, tx string) error {
	return s.Transactions.MarkCancelled(ctx, wallet, hash, block, tx)
}

func (s *Store) AddConfirmation(ctx context.Context, wallet, hash, owner string, block uint64, tx string) error {
	return s.Confirmations.Add(ctx, wallet, hash, owner, block, tx)
}

func (s *Store) RevokeConfirmation(ctx context.Context, wallet, hash, owner string, block uint64, tx string) error {
	return s.Confirmations.Revoke(ctx, wallet, hash, owner, block, tx)
}

func (s *Store) AddDeposit(ctx context.Context, wallet, sender, amount string, block uint64, tx string) error {
	return s.Deposits.Add(ctx, wallet, sender, amount, block, tx)
}

func (s *Store) UpsertRecoveryConfig(ctx context.Context, c RecoveryConfig) error {
	return s.Recovery.UpsertConfig(ctx, c)
}

func (s *Store) GetRecoveryConfig(ctx context.Context, wallet string) (RecoveryConfig, bool, error) {
	return s.Recovery.GetConfig(ctx, wallet)
}

func (s *Store) DeactivateGuardians(ctx context.Context, wallet string) error {
	return s.Recovery.DeactivateGuardians(ctx, wallet)
}

func (s *Store) AddGuardians(ctx context.Context, wallet string, guardians []string, block uint64, tx string) error {
	return s.Recovery.AddGuardians(ctx, wallet, guardians, block, tx)
}

func (s *Store) UpsertRecovery(ctx context.Context, rec Recovery) error {
	return s.Recovery.UpsertRecovery(ctx, rec)
}

func (s *Store) MarkRecoveryExecuted(ctx context.Context, wallet, hash string, block uint64, tx string) error {
	return s.Recovery.MarkExecuted(ctx, wallet, hash, block, tx)
}

func (s *Store) MarkRecoveryCancelled(ctx context.Context, wallet, hash string, block uint64, tx string) error {
	return s.Recovery.MarkCancelled(ctx, wallet, hash, block, tx)
}

func (s *Store) AddRecoveryApproval(ctx context.Context, wallet, hash, guardian string, block uint64, tx string) error {
	return s.Recovery.AddApproval(ctx, wallet, hash, guardian, block, tx)
}

func (s *Store) RevokeRecoveryApproval(ctx context.Context, wallet, hash, guardian string, block uint64, tx string) error {
	return s.Recovery.RevokeApproval(ctx, wallet, hash, guardian, block, tx)
}

func (s *Store) UpsertDailyLimit(ctx context.Context, wallet, limit string) error {
	return s.DailyLimits.Upsert(ctx, wallet, limit)
}

func (s *Store) ResetDailyLimit(ctx context.Context, wallet string) error {
	return s.DailyLimits.Reset(ctx, wallet)
}

func (s *Store) ApplyDailyLimitSpend(ctx context.Context, wallet, remainingLimit string) error {
	return s.DailyLimits.ApplySpend(ctx, wallet, remainingLimit)
}

func (s *Store) AddWhitelistEntry(ctx context.Context, wallet, target, limit string, block uint64) error {
	return s.Whitelist.Add(ctx, wallet, target, limit, block)
}

func (s *Store) DeactivateWhitelistEntry(ctx context.Context, wallet, target string, block uint64) error {
	return s.Whitelist.Deactivate(ctx, wallet, target, block)
}

func (s *Store) AppendModuleTransaction(ctx context.Context, mt ModuleTransaction) error {
	return s.ModuleTxs.Append(ctx, mt)
}

func (s *Store) GetCheckpoint(ctx context.Context) (Checkpoint, error) {
	return s.Checkpoint.Get(ctx)
}

func (s *Store) SetLastIndexedBlock(ctx context.Context, block uint64) error {
	return s.Checkpoint.SetLastIndexedBlock(ctx, block)
}

func (s *Store) SetSyncing(ctx context.Context, syncing bool) error {
	return s.Checkpoint.SetSyncing(ctx, syncing)
}
