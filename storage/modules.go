package storage

import (
	"context"
	"fmt"
)

// ModuleRepo persists wallet-module bindings.
type ModuleRepo struct {
	db *DB
}

// Enable inserts or re-activates the module row. Re-enable updates the
// existing (wallet, module) row rather than creating history.
func (r *ModuleRepo) Enable(ctx context.Context, wallet, module string, block uint64, tx string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	moduleAddr, err := NormalizeAddress("module_address", module)
	if err != nil {
		return err
	}
	txHash, err := NormalizeHash("enabled_at_tx", tx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO modules (wallet_address, module_address, enabled_at_block, enabled_at_tx)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_address, module_address) DO UPDATE SET
			is_active         = TRUE,
			enabled_at_block  = EXCLUDED.enabled_at_block,
			enabled_at_tx     = EXCLUDED.enabled_at_tx,
			disabled_at_block = NULL,
			disabled_at_tx    = NULL
	`, walletAddr, moduleAddr, block, txHash)
	if err != nil {
		return fmt.Errorf("enable module %s on %s: %w", moduleAddr, walletAddr, err)
	}
	return nil
}

// Disable marks the module row inactive.
func (r *ModuleRepo) Disable(ctx context.Context, wallet, module string, block uint64, tx string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	moduleAddr, err := NormalizeAddress("module_address", module)
	if err != nil {
		return err
	}
	txHash, err := NormalizeHash("disabled_at_tx", tx)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		UPDATE modules
		SET is_active = FALSE, disabled_at_block = $3, disabled_at_tx = $4
		WHERE wallet_address = $1 AND module_address = $2
	`, walletAddr, moduleAddr, block, txHash)
	if err != nil {
		return fmt.Errorf("disable module %s on %s: %w", moduleAddr, walletAddr, err)
	}
	return nil
}
