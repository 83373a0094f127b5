package storage

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// RecoveryRepo persists social-recovery configuration and attempts.
// The recovery approval counter is maintained by a store-side trigger.
type RecoveryRepo struct {
	db *DB
}

// RecoveryConfig is a wallet's guardian setup.
type RecoveryConfig struct {
	WalletAddress     string
	GuardianThreshold uint64
	RecoveryPeriod    uint64
	SetupAtBlock      uint64
	SetupAtTx         string
}

// Recovery is an in-flight recovery attempt.
type Recovery struct {
	WalletAddress     string
	RecoveryHash      string
	NewOwners         []string
	NewThreshold      uint64
	Initiator         string
	RequiredThreshold uint64
	ExecutionTime     uint64
	InitiatedAtBlock  uint64
	InitiatedAtTx     string
}

// UpsertConfig inserts or replaces the wallet's recovery configuration.
func (r *RecoveryRepo) UpsertConfig(ctx context.Context, c RecoveryConfig) error {
	walletAddr, err := NormalizeAddress("wallet_address", c.WalletAddress)
	if err != nil {
		return err
	}
	atTx, err := NormalizeHash("setup_at_tx", c.SetupAtTx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recovery_configs (wallet_address, guardian_threshold, recovery_period, setup_at_block, setup_at_tx)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_address) DO UPDATE SET
			guardian_threshold = EXCLUDED.guardian_threshold,
			recovery_period    = EXCLUDED.recovery_period,
			setup_at_block     = EXCLUDED.setup_at_block,
			setup_at_tx        = EXCLUDED.setup_at_tx
	`, walletAddr, c.GuardianThreshold, c.RecoveryPeriod, c.SetupAtBlock, atTx)
	if err != nil {
		return fmt.Errorf("upsert recovery config for %s: %w", walletAddr, err)
	}
	return nil
}

// DeactivateGuardians retires the wallet's entire guardian set, ahead of
// a re-setup inserting the new set.
func (r *RecoveryRepo) DeactivateGuardians(ctx context.Context, wallet string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		UPDATE recovery_guardians SET is_active = FALSE WHERE wallet_address = $1 AND is_active
	`, walletAddr)
	if err != nil {
		return fmt.Errorf("deactivate guardians of %s: %w", walletAddr, err)
	}
	return nil
}

// AddGuardians inserts a guardian batch.
func (r *RecoveryRepo) AddGuardians(ctx context.Context, wallet string, guardians []string, block uint64, tx string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	guardianAddrs, err := NormalizeAddresses("guardian_address", guardians)
	if err != nil {
		return err
	}
	atTx, err := NormalizeHash("added_at_tx", tx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	for _, guardian := range guardianAddrs {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO recovery_guardians (wallet_address, guardian_address, added_at_block, added_at_tx)
			VALUES ($1, $2, $3, $4)
		`, walletAddr, guardian, block, atTx); err != nil {
			return fmt.Errorf("add guardian %s to %s: %w", guardian, walletAddr, err)
		}
	}
	return nil
}

// UpsertRecovery records an initiated recovery as pending. Replays refresh
// the proposal fields without touching the status machine or the
// trigger-maintained approval counter.
func (r *RecoveryRepo) UpsertRecovery(ctx context.Context, rec Recovery) error {
	walletAddr, err := NormalizeAddress("wallet_address", rec.WalletAddress)
	if err != nil {
		return err
	}
	recoveryHash, err := NormalizeHash("recovery_hash", rec.RecoveryHash)
	if err != nil {
		return err
	}
	newOwners, err := NormalizeAddresses("new_owner", rec.NewOwners)
	if err != nil {
		return err
	}
	initiator, err := NormalizeAddress("initiator", rec.Initiator)
	if err != nil {
		return err
	}
	atTx, err := NormalizeHash("initiated_at_tx", rec.InitiatedAtTx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recoveries (
			wallet_address, recovery_hash, new_owners, new_threshold, initiator,
			required_threshold, execution_time, status, initiated_at_block, initiated_at_tx
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9)
		ON CONFLICT (wallet_address, recovery_hash) DO UPDATE SET
			new_owners         = EXCLUDED.new_owners,
			new_threshold      = EXCLUDED.new_threshold,
			initiator          = EXCLUDED.initiator,
			required_threshold = EXCLUDED.required_threshold,
			execution_time     = EXCLUDED.execution_time,
			initiated_at_block = EXCLUDED.initiated_at_block,
			initiated_at_tx    = EXCLUDED.initiated_at_tx
	`, walletAddr, recoveryHash, pq.Array(newOwners), rec.NewThreshold, initiator,
		rec.RequiredThreshold, rec.ExecutionTime, rec.InitiatedAtBlock, atTx)
	if err != nil {
		return fmt.Errorf("upsert recovery %s/%s: %w", walletAddr, recoveryHash, err)
	}
	return nil
}

// MarkExecuted moves a pending recovery to its executed terminal state.
func (r *RecoveryRepo) MarkExecuted(ctx context.Context, wallet, hash string, block uint64, tx string) error {
	return r.markTerminal(ctx, wallet, hash, block, tx, "executed")
}

// MarkCancelled moves a pending recovery to its cancelled terminal state.
func (r *RecoveryRepo) MarkCancelled(ctx context.Context, wallet, hash string, block uint64, tx string) error {
	return r.markTerminal(ctx, wallet, hash, block, tx, "cancelled")
}

func (r *RecoveryRepo) markTerminal(ctx context.Context, wallet, hash string, block uint64, tx, status string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	recoveryHash, err := NormalizeHash("recovery_hash", hash)
	if err != nil {
		return err
	}
	atTx, err := NormalizeHash(status+"_at_tx", tx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	query := `
		UPDATE recoveries
		SET status = 'executed', executed_at_block = $3, executed_at_tx = $4
		WHERE wallet_address = $1 AND recovery_hash = $2 AND status = 'pending'`
	if status == "cancelled" {
		query = `
		UPDATE recoveries
		SET status = 'cancelled', cancelled_at_block = $3, cancelled_at_tx = $4
		WHERE wallet_address = $1 AND recovery_hash = $2 AND status = 'pending'`
	}

	if _, err := r.db.ExecContext(ctx, query, walletAddr, recoveryHash, block, atTx); err != nil {
		return fmt.Errorf("mark recovery %s/%s %s: %w", walletAddr, recoveryHash, status, err)
	}
	return nil
}

// AddApproval records a guardian approval. Duplicate deliveries are no-ops.
func (r *RecoveryRepo) AddApproval(ctx context.Context, wallet, hash, guardian string, block uint64, tx string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	recoveryHash, err := NormalizeHash("recovery_hash", hash)
	if err != nil {
		return err
	}
	guardianAddr, err := NormalizeAddress("guardian_address", guardian)
	if err != nil {
		return err
	}
	atTx, err := NormalizeHash("approved_at_tx", tx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recovery_approvals (wallet_address, recovery_hash, guardian_address, approved_at_block, approved_at_tx)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, walletAddr, recoveryHash, guardianAddr, block, atTx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("add recovery approval %s/%s by %s: %w", walletAddr, recoveryHash, guardianAddr, err)
	}
	return nil
}

// RevokeApproval deactivates the guardian's active approval.
func (r *RecoveryRepo) RevokeApproval(ctx context.Context, wallet, hash, guardian string, block uint64, tx string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	recoveryHash, err := NormalizeHash("recovery_hash", hash)
	if err != nil {
		return err
	}
	guardianAddr, err := NormalizeAddress("guardian_address", guardian)
	if err != nil {
		return err
	}
	atTx, err := NormalizeHash("revoked_at_tx", tx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		UPDATE recovery_approvals
		SET is_active = FALSE, revoked_at_block = $4, revoked_at_tx = $5
		WHERE wallet_address = $1 AND recovery_hash = $2 AND guardian_address = $3 AND is_active
	`, walletAddr, recoveryHash, guardianAddr, block, atTx)
	if err != nil {
		return fmt.Errorf("revoke recovery approval %s/%s by %s: %w", walletAddr, recoveryHash, guardianAddr, err)
	}
	return nil
}

// GetConfig reads the wallet's recovery configuration. The second return
// is false when the wallet has none.
func (r *RecoveryRepo) GetConfig(ctx context.Context, wallet string) (RecoveryConfig, bool, error) {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return RecoveryConfig{}, false, err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	cfg := RecoveryConfig{WalletAddress: walletAddr}
	err = r.db.QueryRowContext(ctx, `
		SELECT guardian_threshold, recovery_period, setup_at_block, setup_at_tx
		FROM recovery_configs WHERE wallet_address = $1
	`, walletAddr).Scan(&cfg.GuardianThreshold, &cfg.RecoveryPeriod, &cfg.SetupAtBlock, &cfg.SetupAtTx)
	if err != nil {
		if isNoRows(err) {
			return RecoveryConfig{}, false, nil
		}
		return RecoveryConfig{}, false, fmt.Errorf("read recovery config for %s: %w", walletAddr, err)
	}
	return cfg, true, nil
}
