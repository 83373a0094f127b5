package storage

import (
	"context"
	"fmt"
)

// WhitelistRepo persists per-wallet whitelisted destinations.
type WhitelistRepo struct {
	db *DB
}

// Add records a whitelist entry. Duplicate deliveries are no-ops.
func (r *WhitelistRepo) Add(ctx context.Context, wallet, target, limit string, block uint64) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	targetAddr, err := NormalizeAddress("whitelisted_address", target)
	if err != nil {
		return err
	}
	limitValue, err := normalizeNumeric("limit", limit)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO whitelist_entries (wallet_address, whitelisted_address, limit_amount, added_at_block)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, walletAddr, targetAddr, limitValue, block)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("whitelist %s on %s: %w", targetAddr, walletAddr, err)
	}
	return nil
}

// Deactivate closes the active entry for the target address.
func (r *WhitelistRepo) Deactivate(ctx context.Context, wallet, target string, block uint64) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	targetAddr, err := NormalizeAddress("whitelisted_address", target)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		UPDATE whitelist_entries
		SET is_active = FALSE, removed_at_block = $3
		WHERE wallet_address = $1 AND whitelisted_address = $2 AND is_active
	`, walletAddr, targetAddr, block)
	if err != nil {
		return fmt.Errorf("remove %s from whitelist of %s: %w", targetAddr, walletAddr, err)
	}
	return nil
}
