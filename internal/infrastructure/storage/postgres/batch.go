package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// BatchQuery represents a query in a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// Batch accumulates statements from squirrel builders. The first build
// error is kept and reported by Queries.
type Batch struct {
	queries []BatchQuery
	err     error
}

// Add builds q and appends it to the batch.
func (b *Batch) Add(q squirrel.Sqlizer) *Batch {
	if b.err != nil {
		return b
	}
	sql, args, err := q.ToSql()
	if err != nil {
		b.err = fmt.Errorf("build batch query %d: %w", len(b.queries), err)
		return b
	}
	b.queries = append(b.queries, BatchQuery{SQL: sql, Args: args})
	return b
}

// Queries returns the built statements.
func (b *Batch) Queries() ([]BatchQuery, error) {
	return b.queries, b.err
}

// BatchExecutor sends several statements in a single round-trip.
type BatchExecutor struct {
	txManager *TxManager
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(txManager *TxManager) *BatchExecutor {
	return &BatchExecutor{txManager: txManager}
}

// Exec runs queries in order inside the transaction from ctx (one is opened
// when ctx has none) and returns their command tags. Execution stops at the
// first failing statement.
func (e *BatchExecutor) Exec(ctx context.Context, queries []BatchQuery) ([]pgconn.CommandTag, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	var tags []pgconn.CommandTag
	err := e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		tx := e.txManager.GetTx(ctx)

		batch := &pgx.Batch{}
		for _, q := range queries {
			batch.Queue(q.SQL, q.Args...)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		tags = make([]pgconn.CommandTag, 0, len(queries))
		for i := range queries {
			tag, err := results.Exec()
			if err != nil {
				return fmt.Errorf("batch query %d failed: %w", i, err)
			}
			tags = append(tags, tag)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}
