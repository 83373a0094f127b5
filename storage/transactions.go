package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// TransactionRepo persists proposed multisig transactions.
type TransactionRepo struct {
	db *DB
}

// Transaction is a proposed multisig transaction row. TxHash is the
// on-chain content hash of the proposal, not the containing tx's hash.
// Value is a decimal string. DecodedParams is the serialized classifier
// output; it is opaque to the store.
type Transaction struct {
	WalletAddress    string
	TxHash           string
	To               string
	Value            string
	Data             string
	TransactionType  string
	DecodedParams    json.RawMessage
	SubmittedBy      string
	SubmittedAtBlock uint64
	SubmittedAtTx    string
}

// UpsertProposed records a proposal as pending. On replay the proposal
// fields are refreshed but the status machine is left alone, so an
// executed transaction never regresses to pending. The confirmation
// counter is trigger-maintained and never written here.
func (r *TransactionRepo) UpsertProposed(ctx context.Context, t Transaction) error {
	walletAddr, err := NormalizeAddress("wallet_address", t.WalletAddress)
	if err != nil {
		return err
	}
	txHash, err := NormalizeHash("tx_hash", t.TxHash)
	if err != nil {
		return err
	}
	toAddr, err := NormalizeAddress("to_address", t.To)
	if err != nil {
		return err
	}
	value, err := normalizeNumeric("value", t.Value)
	if err != nil {
		return err
	}
	submittedBy, err := NormalizeAddress("submitted_by", t.SubmittedBy)
	if err != nil {
		return err
	}
	submittedTx, err := NormalizeHash("submitted_at_tx", t.SubmittedAtTx)
	if err != nil {
		return err
	}

	params := t.DecodedParams
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (
			wallet_address, tx_hash, to_address, value, data,
			transaction_type, decoded_params, status, submitted_by,
			submitted_at_block, submitted_at_tx
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10)
		ON CONFLICT (wallet_address, tx_hash) DO UPDATE SET
			to_address         = EXCLUDED.to_address,
			value              = EXCLUDED.value,
			data               = EXCLUDED.data,
			transaction_type   = EXCLUDED.transaction_type,
			decoded_params     = EXCLUDED.decoded_params,
			submitted_by       = EXCLUDED.submitted_by,
			submitted_at_block = EXCLUDED.submitted_at_block,
			submitted_at_tx    = EXCLUDED.submitted_at_tx
	`, walletAddr, txHash, toAddr, value, t.Data, t.TransactionType, []byte(params),
		submittedBy, t.SubmittedAtBlock, submittedTx)
	if err != nil {
		return fmt.Errorf("upsert transaction %s/%s: %w", walletAddr, txHash, err)
	}
	return nil
}

// MarkExecuted moves a pending transaction to its executed terminal state.
func (r *TransactionRepo) MarkExecuted(ctx context.Context, wallet, hash string, block uint64, tx string) error {
	return r.markTerminal(ctx, wallet, hash, block, tx, "executed")
}

// MarkCancelled moves a pending transaction to its cancelled terminal state.
func (r *TransactionRepo) MarkCancelled(ctx context.Context, wallet, hash string, block uint64, tx string) error {
	return r.markTerminal(ctx, wallet, hash, block, tx, "cancelled")
}

func (r *TransactionRepo) markTerminal(ctx context.Context, wallet, hash string, block uint64, tx, status string) error {
	walletAddr, err := NormalizeAddress("wallet_address", wallet)
	if err != nil {
		return err
	}
	txHash, err := NormalizeHash("tx_hash", hash)
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
		UPDATE transactions
		SET status = 'executed', executed_at_block = $3, executed_at_tx = $4
		WHERE wallet_address = $1 AND tx_hash = $2 AND status = 'pending'`
	if status == "cancelled" {
		query = `
		UPDATE transactions
		SET status = 'cancelled', cancelled_at_block = $3, cancelled_at_tx = $4
		WHERE wallet_address = $1 AND tx_hash = $2 AND status = 'pending'`
	}

	if _, err := r.db.ExecContext(ctx, query, walletAddr, txHash, block, atTx); err != nil {
		return fmt.Errorf("mark transaction %s/%s %s: %w", walletAddr, txHash, status, err)
	}
	return nil
}
