package storage

import (
	"context"
	"fmt"
)

// DailyLimitRepo persists per-wallet daily spending limits.
type DailyLimitRepo struct {
	db *DB
}

// Upsert sets the wallet's limit and opens a fresh spending day.
func (r *DailyLimitRepo) Upsert(ctx context.Context, wallet, limit string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	limitValue, err := normalizeNumeric("daily_limit", limit)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO daily_limit_states (wallet_address, daily_limit, spent_today, last_reset_day)
		VALUES ($1, $2, 0, CURRENT_DATE)
		ON CONFLICT (wallet_address) DO UPDATE SET
			daily_limit    = EXCLUDED.daily_limit,
			spent_today    = 0,
			last_reset_day = CURRENT_DATE
	`, walletAddr, limitValue)
	if err != nil {
		return fmt.Errorf("upsert daily limit for %s: %w", walletAddr, err)
	}
	return nil
}

// Reset clears today's spend.
func (r *DailyLimitRepo) Reset(ctx context.Context, wallet string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		UPDATE daily_limit_states
		SET spent_today = 0, last_reset_day = CURRENT_DATE
		WHERE wallet_address = $1
	`, walletAddr)
	if err != nil {
		return fmt.Errorf("reset daily limit for %s: %w", walletAddr, err)
	}
	return nil
}

// ApplySpend derives spent_today from the chain-reported remaining limit.
// GREATEST clamps to zero for the case where the limit was raised mid-day
// and the remainder briefly exceeds the stored limit.
func (r *DailyLimitRepo) ApplySpend(ctx context.Context, wallet, remainingLimit string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	remaining, err := normalizeNumeric("remaining_limit", remainingLimit)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		UPDATE daily_limit_states
		SET spent_today = GREATEST(0, daily_limit - $2::numeric)
		WHERE wallet_address = $1
	`, walletAddr, remaining)
	if err != nil {
		return fmt.Errorf("apply daily-limit spend for %s: %w", walletAddr, err)
	}
	return nil
}
