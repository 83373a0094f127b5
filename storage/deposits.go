package storage

import (
	"context"
	"fmt"
)

// DepositRepo persists incoming value transfers.
type DepositRepo struct {
	db *DB
}

// Add appends a deposit, idempotent on (wallet, depositing tx) because
// the same on-chain transfer may be observed more than once.
func (r *DepositRepo) Add(ctx context.Context, wallet, sender, amount string, block uint64, tx string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	senderAddr, err := NormalizeAddress("sender_address", sender)
	if err != nil {
		return err
	}
	value, err := normalizeNumeric("amount", amount)
	if err != nil {
		return err
	}
	atTx, err := NormalizeHash("deposited_at_tx", tx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO deposits (wallet_address, sender_address, amount, deposited_at_block, deposited_at_tx)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_address, deposited_at_tx) DO NOTHING
	`, walletAddr, senderAddr, value, block, atTx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("add deposit to %s at %s: %w", walletAddr, atTx, err)
	}
	return nil
}
