package storage

import (
	"context"
	"fmt"
)

// OwnerRepo persists the wallet-owner ledger.
type OwnerRepo struct {
	db *DB
}

// Add records an owner. Replays of the same event are no-ops, and the
// partial unique index keeps at most one active row per (wallet, owner).
func (r *OwnerRepo) Add(ctx context.Context, wallet, owner string, block uint64, tx string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	ownerAddr, err := NormalizeAddress("owner_address", owner)
	if err != nil {
		return err
	}
	txHash, err := NormalizeHash("added_at_tx", tx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO wallet_owners (wallet_address, owner_address, added_at_block, added_at_tx)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, walletAddr, ownerAddr, block, txHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("add owner %s to %s: %w", ownerAddr, walletAddr, err)
	}
	return nil
}

// AddBatch records the initial owner set of a new wallet.
func (r *OwnerRepo) AddBatch(ctx context.Context, wallet string, owners []string, block uint64, tx string) error {
	for _, owner := range owners {
		if err := r.Add(ctx, wallet, owner, block, tx); err != nil {
			return err
		}
	}
	return nil
}

// Deactivate closes the active owner row.
func (r *OwnerRepo) Deactivate(ctx context.Context, wallet, owner string, block uint64, tx string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	ownerAddr, err := NormalizeAddress("owner_address", owner)
	if err != nil {
		return err
	}
	txHash, err := NormalizeHash("removed_at_tx", tx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		UPDATE wallet_owners
		SET is_active = FALSE, removed_at_block = $3, removed_at_tx = $4
		WHERE wallet_address = $1 AND owner_address = $2 AND is_active
	`, walletAddr, ownerAddr, block, txHash)
	if err != nil {
		return fmt.Errorf("deactivate owner %s of %s: %w", ownerAddr, walletAddr, err)
	}
	return nil
}
