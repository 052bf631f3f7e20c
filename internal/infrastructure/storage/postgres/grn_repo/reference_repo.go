package grn_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockpile/internal/domain/grn"
	"stockpile/internal/infrastructure/storage/postgres"
)

const referencesTable = "grn_references"

var _ grn.ReferenceDirectory = (*ReferenceRepo)(nil)

// ReferenceRepo serves purchase orders and catalog articles from grn_references.
type ReferenceRepo struct {
	txManager *postgres.TxManager
}

// NewReferenceRepo creates a new reference repository.
func NewReferenceRepo(txManager *postgres.TxManager) *ReferenceRepo {
	return &ReferenceRepo{txManager: txManager}
}

// Builder returns a new squirrel builder.
func (r *ReferenceRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Find returns the reference or nil when absent.
func (r *ReferenceRepo) Find(ctx context.Context, refType grn.RefType, refID string) (*grn.Reference, error) {
	sql, args, err := r.findQuery(refType, refID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ref grn.Reference
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &ref, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find reference: %w", err)
	}
	return &ref, nil
}

// Search matches text against id, counterparty and article, ignoring case.
func (r *ReferenceRepo) Search(ctx context.Context, text string) ([]grn.Reference, error) {
	sql, args, err := r.searchQuery(text).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	refs := make([]grn.Reference, 0)
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &refs, sql, args...); err != nil {
		return nil, fmt.Errorf("search references: %w", err)
	}
	return refs, nil
}

// Upsert inserts references or refreshes existing ones.
func (r *ReferenceRepo) Upsert(ctx context.Context, refs []grn.Reference) error {
	if len(refs) == 0 {
		return nil
	}
	sql, args, err := r.upsertQuery(refs).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert references: %w", err)
	}
	return nil
}

// Import upserts refs in a single transaction.
func (r *ReferenceRepo) Import(ctx context.Context, refs []grn.Reference) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return r.Upsert(ctx, refs)
	})
}

var referenceCols = []string{"id", "ref_type", "counterparty_name", "article_name", "total"}

func (r *ReferenceRepo) findQuery(refType grn.RefType, refID string) squirrel.SelectBuilder {
	return r.Builder().
		Select(referenceCols...).
		From(referencesTable).
		Where(squirrel.Eq{"ref_type": string(refType), "id": refID})
}

func (r *ReferenceRepo) searchQuery(text string) squirrel.SelectBuilder {
	q := r.Builder().
		Select(referenceCols...).
		From(referencesTable)

	if text = strings.TrimSpace(text); text != "" {
		pattern := "%" + escapeLike(text) + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"id": pattern},
			squirrel.ILike{"counterparty_name": pattern},
			squirrel.ILike{"article_name": pattern},
		})
	}
	return q.OrderBy("ref_type DESC", "id")
}

func (r *ReferenceRepo) upsertQuery(refs []grn.Reference) squirrel.InsertBuilder {
	q := r.Builder().
		Insert(referencesTable).
		Columns(referenceCols...)
	for _, ref := range refs {
		q = q.Values(ref.ID, string(ref.RefType), ref.CounterpartyName, ref.ArticleName, ref.Total)
	}
	return q.Suffix("ON CONFLICT (ref_type, id) DO UPDATE SET " +
		"counterparty_name = EXCLUDED.counterparty_name, " +
		"article_name = EXCLUDED.article_name, " +
		"total = EXCLUDED.total")
}
