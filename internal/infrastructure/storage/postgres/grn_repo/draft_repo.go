// Package grn_repo provides PostgreSQL implementations of the GRN storage interfaces.
package grn_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/domain/grn"
	"stockpile/internal/infrastructure/storage/postgres"
)

const (
	draftsTable  = "grn_drafts"
	cartonsTable = "grn_cartons"

	receiptNumberIndex = "grn_drafts_receipt_number_uq"
	uniqueViolation    = "23505"
)

var (
	_ grn.DraftStore   = (*DraftRepo)(nil)
	_ grn.HistoryIndex = (*DraftRepo)(nil)
)

// DraftRepo stores drafts in grn_drafts and their cartons in grn_cartons.
type DraftRepo struct {
	txManager  *postgres.TxManager
	batch      *postgres.BatchExecutor
	selectCols []string
}

// NewDraftRepo creates a new draft repository.
func NewDraftRepo(txManager *postgres.TxManager) *DraftRepo {
	return &DraftRepo{
		txManager:  txManager,
		batch:      postgres.NewBatchExecutor(txManager),
		selectCols: postgres.ExtractDBColumns[grn.Draft](),
	}
}

// Builder returns a new squirrel builder.
func (r *DraftRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// cartonRow is the storage layout of a carton.
type cartonRow struct {
	DraftID  id.ID     `db:"draft_id"`
	Barcode  string    `db:"carton_barcode"`
	Position int       `db:"position"`
	Pairs    []string  `db:"pair_barcodes"`
	LockedAt time.Time `db:"locked_at"`
}

// Create inserts a new draft with its cartons.
func (r *DraftRepo) Create(ctx context.Context, draft *grn.Draft) error {
	if draft.Version == 0 {
		draft.Version = 1
	}

	queries, err := r.createBatch(draft)
	if err != nil {
		return err
	}
	if _, err := r.batch.Exec(ctx, queries); err != nil {
		return fmt.Errorf("insert %s: %w", draftsTable, err)
	}
	return nil
}

// GetByID loads a draft and its cartons.
func (r *DraftRepo) GetByID(ctx context.Context, draftID id.ID) (*grn.Draft, error) {
	return r.load(ctx, draftID, false)
}

// GetForUpdate loads a draft and locks its row until the transaction in ctx ends.
func (r *DraftRepo) GetForUpdate(ctx context.Context, draftID id.ID) (*grn.Draft, error) {
	return r.load(ctx, draftID, true)
}

// Update writes the draft when its version matches and bumps the version.
// The row update and the carton replacement go out as one batch.
func (r *DraftRepo) Update(ctx context.Context, draft *grn.Draft) error {
	queries, err := r.updateBatch(draft)
	if err != nil {
		return err
	}

	tags, err := r.batch.Exec(ctx, queries)
	if err != nil {
		return r.mapWriteErr(err, draft)
	}
	if tags[0].RowsAffected() == 0 {
		return apperror.NewConcurrentModification("grn draft", draft.ID.String())
	}

	draft.Version++
	return nil
}

// ListSubmitted lists submitted drafts, newest first.
func (r *DraftRepo) ListSubmitted(ctx context.Context, filter grn.HistoryFilter) ([]grn.Summary, error) {
	sql, args, err := r.listSubmittedQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	items := make([]grn.Summary, 0)
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return items, nil
}

func (r *DraftRepo) load(ctx context.Context, draftID id.ID, forUpdate bool) (*grn.Draft, error) {
	sql, args, err := r.selectQuery(draftID, forUpdate).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	draft := &grn.Draft{}
	if err := pgxscan.Get(ctx, querier, draft, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("grn draft", draftID.String())
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}

	sql, args, err = r.cartonsQuery(draftID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cartons query: %w", err)
	}
	var rows []cartonRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("get cartons: %w", err)
	}

	draft.Cartons = make([]grn.Carton, 0, len(rows))
	for _, row := range rows {
		draft.Cartons = append(draft.Cartons, grn.Carton{
			Barcode:  row.Barcode,
			Pairs:    row.Pairs,
			LockedAt: row.LockedAt,
		})
	}
	if draft.CurrentPairs == nil {
		draft.CurrentPairs = make([]string, 0, grn.PairsPerCarton)
	}
	draft.RestoreScanned()
	return draft, nil
}

func (r *DraftRepo) mapWriteErr(err error, draft *grn.Draft) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == receiptNumberIndex {
		number := ""
		if draft.ReceiptNumber != nil {
			number = *draft.ReceiptNumber
		}
		return apperror.NewDuplicate("grn", "receipt_number", number).WithCause(err)
	}
	return fmt.Errorf("update %s: %w", draftsTable, err)
}

// --- query builders ---

func (r *DraftRepo) createBatch(draft *grn.Draft) ([]postgres.BatchQuery, error) {
	b := &postgres.Batch{}
	b.Add(r.insertQuery(draft))
	if len(draft.Cartons) > 0 {
		b.Add(r.insertCartonsQuery(draft))
	}
	return b.Queries()
}

// updateBatch updates the row, then replaces the stored cartons (delete existing + insert new).
// The update comes first so its command tag reports the version check.
func (r *DraftRepo) updateBatch(draft *grn.Draft) ([]postgres.BatchQuery, error) {
	b := &postgres.Batch{}
	b.Add(r.updateQuery(draft))
	b.Add(r.Builder().Delete(cartonsTable).Where(squirrel.Eq{"draft_id": draft.ID}))
	if len(draft.Cartons) > 0 {
		b.Add(r.insertCartonsQuery(draft))
	}
	return b.Queries()
}

func (r *DraftRepo) insertQuery(draft *grn.Draft) squirrel.InsertBuilder {
	return r.Builder().
		Insert(draftsTable).
		SetMap(postgres.StructToMap(draft))
}

func (r *DraftRepo) selectQuery(draftID id.ID, forUpdate bool) squirrel.SelectBuilder {
	q := r.Builder().
		Select(r.selectCols...).
		From(draftsTable).
		Where(squirrel.Eq{"id": draftID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func (r *DraftRepo) updateQuery(draft *grn.Draft) squirrel.UpdateBuilder {
	data := postgres.StructToMap(draft)

	// Immutable and repo-managed columns
	delete(data, "id")
	delete(data, "created_at")
	delete(data, "version")

	return r.Builder().
		Update(draftsTable).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": draft.ID}).
		Where(squirrel.Eq{"version": draft.Version})
}

func (r *DraftRepo) cartonsQuery(draftID id.ID) squirrel.SelectBuilder {
	return r.Builder().
		Select("draft_id", "carton_barcode", "position", "pair_barcodes", "locked_at").
		From(cartonsTable).
		Where(squirrel.Eq{"draft_id": draftID}).
		OrderBy("position")
}

func (r *DraftRepo) insertCartonsQuery(draft *grn.Draft) squirrel.InsertBuilder {
	q := r.Builder().
		Insert(cartonsTable).
		Columns("draft_id", "carton_barcode", "position", "pair_barcodes", "locked_at")
	for i, c := range draft.Cartons {
		q = q.Values(draft.ID, c.Barcode, i, c.Pairs, c.LockedAt)
	}
	return q
}

func (r *DraftRepo) listSubmittedQuery(filter grn.HistoryFilter) squirrel.SelectBuilder {
	q := r.Builder().
		Select(
			"d.id", "d.receipt_number", "d.ref_type", "d.ref_id", "d.submitted_at",
			"(SELECT COUNT(*) FROM "+cartonsTable+" c WHERE c.draft_id = d.id) AS carton_count",
		).
		From(draftsTable + " d").
		Where(squirrel.Eq{"d.status": string(grn.StatusSubmitted)})

	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"d.receipt_number": pattern},
			squirrel.ILike{"d.ref_id": pattern},
		})
	}

	q = q.OrderBy("d.submitted_at DESC", "d.id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	return q
}

// escapeLike escapes LIKE wildcards so search text matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
