package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ModuleTransactionRepo persists the append-only history of transactions
// executed through wallet modules.
type ModuleTransactionRepo struct {
	db *DB
}

// ModuleTransaction is one module execution. RemainingLimit is only set
// for daily-limit executions.
type ModuleTransaction struct {
	WalletAddress   string
	ModuleType      string
	ModuleAddress   string
	To              string
	Value           string
	RemainingLimit  string
	ExecutedAtBlock uint64
	ExecutedAtTx    string
}

// Append records a module execution.
func (r *ModuleTransactionRepo) Append(ctx context.Context, mt ModuleTransaction) error {
	walletAddr, err := NormalizeAddress("wallet_address", mt.WalletAddress)
	if err != nil {
		return err
	}
	moduleAddr, err := NormalizeAddress("module_address", mt.ModuleAddress)
	if err != nil {
		return err
	}
	toAddr, err := NormalizeAddress("to_address", mt.To)
	if err != nil {
		return err
	}
	value, err := normalizeNumeric("value", mt.Value)
	if err != nil {
		return err
	}
	atTx, err := NormalizeHash("executed_at_tx", mt.ExecutedAtTx)
	if err != nil {
		return err
	}

	remaining := sql.NullString{}
	if mt.RemainingLimit != "" {
		v, err := normalizeNumeric("remaining_limit", mt.RemainingLimit)
		if err != nil {
			return err
		}
		remaining = sql.NullString{String: v, Valid: true}
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO module_transactions (
			wallet_address, module_type, module_address, to_address,
			value, remaining_limit, executed_at_block, executed_at_tx
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, walletAddr, mt.ModuleType, moduleAddr, toAddr, value, remaining, mt.ExecutedAtBlock, atTx)
	if err != nil {
		return fmt.Errorf("append module transaction for %s: %w", walletAddr, err)
	}
	return nil
}
