package storage

import (
	"context"
	"fmt"
)

// WalletRepo persists wallet rows.
type WalletRepo struct {
	db *DB
}

// Wallet is a multisig wallet row.
type Wallet struct {
	Address        string
	Threshold      uint64
	OwnerCount     uint64
	CreatedAtBlock uint64
	CreatedAtTx    string
}

// Upsert inserts or refreshes a wallet row keyed by address. On conflict
// threshold and owner_count take the given values; the created_at fields
// of an existing row are kept.
func (r *WalletRepo) Upsert(ctx context.Context, w Wallet) error {
	addr, err := NormalizeAddress("wallet_address", w.Address)
	if err != nil {
		return err
	}
	tx, err := NormalizeHash("created_at_tx", w.CreatedAtTx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO wallets (address, threshold, owner_count, created_at_block, created_at_tx)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			threshold   = EXCLUDED.threshold,
			owner_count = EXCLUDED.owner_count,
			updated_at  = now()
	`, addr, w.Threshold, w.OwnerCount, w.CreatedAtBlock, tx)
	if err != nil {
		return fmt.Errorf("upsert wallet %s: %w", addr, err)
	}
	return nil
}

// SetThreshold updates a wallet's approval threshold.
func (r *WalletRepo) SetThreshold(ctx context.Context, wallet string, threshold uint64) error {
	addr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		UPDATE wallets SET threshold = $2, updated_at = now() WHERE address = $1
	`, addr, threshold)
	if err != nil {
		return fmt.Errorf("set threshold for %s: %w", addr, err)
	}
	return nil
}

// IncrementOwnerCount applies a delta server-side so concurrent owner
// events never race a read-modify-write.
func (r *WalletRepo) IncrementOwnerCount(ctx context.Context, wallet string, delta int64) error {
	addr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		UPDATE wallets
		SET owner_count = GREATEST(0, owner_count + $2), updated_at = now()
		WHERE address = $1
	`, addr, delta)
	if err != nil {
		return fmt.Errorf("adjust owner count for %s: %w", addr, err)
	}
	return nil
}

// walletPageSize matches the store's default query cap; ListAllAddresses
// pages until a short page so large fleets are never truncated.
const walletPageSize = 1000

// ListAllAddresses returns every known wallet address.
func (r *WalletRepo) ListAllAddresses(ctx context.Context) ([]string, error) {
	var out []string

	for offset := 0; ; offset += walletPageSize {
		page, err := r.listAddressPage(ctx, walletPageSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < walletPageSize {
			return out, nil
		}
	}
}

func (r *WalletRepo) listAddressPage(ctx context.Context, limit, offset int) ([]string, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT address FROM wallets ORDER BY id LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list wallet addresses: %w", err)
	}
	defer rows.Close()

	var page []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan wallet address: %w", err)
		}
		page = append(page, addr)
	}
	return page, rows.Err()
}
