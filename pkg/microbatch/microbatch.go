// Package microbatch accumulates statements into size-bounded pgx
// batches, flushing as the threshold is reached.
package microbatch

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Insert creates batches limited by the configured batch size.
type Insert struct {
	// a transaction to send the batch on
	tx pgx.Tx
	// the current batch holding queued statements
	currBatch *pgx.Batch
	// the size we flush a batch at
	batchSize int
	// rows affected by all flushed statements so far
	affected int64
	// the timeout for one batch round trip
	timeout time.Duration
}

// NewInsert returns a micro batcher sending on the given transaction.
func NewInsert(tx pgx.Tx, batchSize int, timeout time.Duration) *Insert {
	if timeout == 0 {
		timeout = time.Minute
	}
	return &Insert{
		tx:        tx,
		batchSize: batchSize,
		timeout:   timeout,
	}
}

// Queue enqueues a statement and its arguments. The queued batch is sent
// when the configured size is reached.
func (v *Insert) Queue(ctx context.Context, query string, args ...any) error {
	if v.currBatch != nil && v.currBatch.Len() == v.batchSize {
		if err := v.sendBatch(ctx); err != nil {
			return fmt.Errorf("flushing full batch: %w", err)
		}
	}
	if v.currBatch == nil {
		v.currBatch = &pgx.Batch{}
	}
	v.currBatch.Queue(query, args...)
	return nil
}

// Done flushes any remaining queued statements.
//
// Done MUST be called after the last Queue for the batch to be complete.
func (v *Insert) Done(ctx context.Context) error {
	if v.currBatch == nil || v.currBatch.Len() == 0 {
		return nil
	}
	return v.sendBatch(ctx)
}

// Affected reports the total rows affected by all statements flushed so
// far. Statements that hit an ON CONFLICT DO NOTHING report zero, so
// this doubles as an inserted-row count for dedup inserts.
func (v *Insert) Affected() int64 { return v.affected }

func (v *Insert) sendBatch(ctx context.Context) error {
	tctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	n := v.currBatch.Len()
	res := v.tx.SendBatch(tctx, v.currBatch)
	defer res.Close()
	v.currBatch = nil
	for i := 0; i < n; i++ {
		tag, err := res.Exec()
		if err != nil {
			return fmt.Errorf("exec iteration %d: %w", i, err)
		}
		v.affected += tag.RowsAffected()
	}
	return nil
}
