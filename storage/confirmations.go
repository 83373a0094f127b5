package storage

import (
	"context"
	"fmt"
)

// ConfirmationRepo persists owner confirmations of proposed transactions.
// The transaction's confirmation counter is maintained by a store-side
// trigger on this table.
type ConfirmationRepo struct {
	db *DB
}

// Add records a confirmation. Duplicate deliveries are no-ops.
func (r *ConfirmationRepo) Add(ctx context.Context, wallet, hash, owner string, block uint64, tx string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	txHash, err := NormalizeHash("tx_hash", hash)
	if err != nil {
		return err
	}
	ownerAddr, err := NormalizeAddress("owner_address", owner)
	if err != nil {
		return err
	}
	atTx, err := NormalizeHash("confirmed_at_tx", tx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO confirmations (wallet_address, tx_hash, owner_address, confirmed_at_block, confirmed_at_tx)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, walletAddr, txHash, ownerAddr, block, atTx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("add confirmation %s/%s by %s: %w", walletAddr, txHash, ownerAddr, err)
	}
	return nil
}

// Revoke deactivates the owner's active confirmation.
func (r *ConfirmationRepo) Revoke(ctx context.Context, wallet, hash, owner string, block uint64, tx string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	txHash, err := NormalizeHash("tx_hash", hash)
	if err != nil {
		return err
	}
	ownerAddr, err := NormalizeAddress("owner_address", owner)
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
		UPDATE confirmations
		SET is_active = FALSE, revoked_at_block = $4, revoked_at_tx = $5
		WHERE wallet_address = $1 AND tx_hash = $2 AND owner_address = $3 AND is_active
	`, walletAddr, txHash, ownerAddr, block, atTx)
	if err != nil {
		return fmt.Errorf("revoke confirmation %s/%s by %s: %w", walletAddr, txHash, ownerAddr, err)
	}
	return nil
}
