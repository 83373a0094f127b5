package storage

import (
	"context"
	"fmt"
	"time"
)

// CheckpointRepo persists the singleton indexing checkpoint.
type CheckpointRepo struct {
	db *DB
}

// Checkpoint is the resumable indexing position.
type Checkpoint struct {
	LastIndexedBlock uint64
	LastIndexedAt    time.Time
	IsSyncing        bool
}

// Get reads the checkpoint. A missing row (fresh store) reads as the
// zero checkpoint.
func (r *CheckpointRepo) Get(ctx context.Context) (Checkpoint, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var cp Checkpoint
	err := r.db.QueryRowContext(ctx, `
		SELECT last_indexed_block, last_indexed_at, is_syncing
		FROM indexer_checkpoint WHERE id = 1
	`).Scan(&cp.LastIndexedBlock, &cp.LastIndexedAt, &cp.IsSyncing)
	if err != nil {
		if isNoRows(err) {
			return Checkpoint{}, nil
		}
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	return cp, nil
}

// SetLastIndexedBlock advances the checkpoint after a range commits.
func (r *CheckpointRepo) SetLastIndexedBlock(ctx context.Context, block uint64) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO indexer_checkpoint (id, last_indexed_block, last_indexed_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET
			last_indexed_block = EXCLUDED.last_indexed_block,
			last_indexed_at    = now()
	`, block)
	if err != nil {
		return fmt.Errorf("set checkpoint to %d: %w", block, err)
	}
	return nil
}

// SetSyncing flips the backfill flag.
func (r *CheckpointRepo) SetSyncing(ctx context.Context, syncing bool) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO indexer_checkpoint (id, is_syncing) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET is_syncing = EXCLUDED.is_syncing
	`, syncing)
	if err != nil {
		return fmt.Errorf("set syncing=%t: %w", syncing, err)
	}
	return nil
}
