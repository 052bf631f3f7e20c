package grn_repo

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpile/internal/core/apperror"
	"stockpile/internal/domain/grn"
)

var now = time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)

func sealedDraft(t *testing.T) *grn.Draft {
	t.Helper()
	d := grn.NewDraft(grn.RefTypePurchaseOrder, "PO-1023", now)
	for i := 0; i < 2*grn.PairsPerCarton+1; i++ {
		_, err := d.Scan(fmt.Sprintf("P%d", i), now)
		require.NoError(t, err)
	}
	return d
}

func TestDraftRepo_SelectQuery(t *testing.T) {
	r := NewDraftRepo(nil)
	d := sealedDraft(t)

	sql, args, err := r.selectQuery(d.ID, false).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, ref_type, ref_id, current_pairs, carton_serial, status, submitted_at, receipt_number, version, created_at, updated_at "+
			"FROM grn_drafts WHERE id = $1", sql)
	assert.Equal(t, []any{d.ID}, args)

	sql, _, err = r.selectQuery(d.ID, true).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE id = $1 FOR UPDATE")
}

func TestDraftRepo_UpdateQueryChecksVersion(t *testing.T) {
	r := NewDraftRepo(nil)
	d := sealedDraft(t)
	d.Version = 4

	sql, args, err := r.updateQuery(d).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"UPDATE grn_drafts SET carton_serial = $1, current_pairs = $2, receipt_number = $3, ref_id = $4, "+
			"ref_type = $5, status = $6, submitted_at = $7, updated_at = $8, version = version + 1 "+
			"WHERE id = $9 AND version = $10", sql)
	require.Len(t, args, 10)
	assert.Equal(t, 3, args[0])
	assert.Equal(t, []string{"P48"}, args[1])
	assert.Equal(t, d.ID, args[8])
	assert.Equal(t, 4, args[9])
}

func TestDraftRepo_InsertQuery(t *testing.T) {
	r := NewDraftRepo(nil)
	d := grn.NewDraft(grn.RefTypeCatalog, "CAT-77", now)

	sql, args, err := r.insertQuery(d).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO grn_drafts (carton_serial,created_at,current_pairs,id,receipt_number,ref_id,ref_type,status,submitted_at,updated_at,version) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)", sql)
	assert.Len(t, args, 11)
}

func TestDraftRepo_CartonQueries(t *testing.T) {
	r := NewDraftRepo(nil)
	d := sealedDraft(t)

	sql, args, err := r.insertCartonsQuery(d).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO grn_cartons (draft_id,carton_barcode,position,pair_barcodes,locked_at) "+
			"VALUES ($1,$2,$3,$4,$5),($6,$7,$8,$9,$10)", sql)
	require.Len(t, args, 10)
	assert.Equal(t, "CTN-20240514-PO-1023-002", args[1])
	assert.Equal(t, 0, args[2])
	assert.Equal(t, "CTN-20240514-PO-1023-001", args[6])
	assert.Equal(t, 1, args[7])

	sql, _, err = r.cartonsQuery(d.ID).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT draft_id, carton_barcode, position, pair_barcodes, locked_at FROM grn_cartons WHERE draft_id = $1 ORDER BY position", sql)
}

func TestDraftRepo_UpdateBatch(t *testing.T) {
	r := NewDraftRepo(nil)
	d := sealedDraft(t)

	queries, err := r.updateBatch(d)
	require.NoError(t, err)
	require.Len(t, queries, 3)
	assert.True(t, strings.HasPrefix(queries[0].SQL, "UPDATE grn_drafts SET"))
	assert.Equal(t, "DELETE FROM grn_cartons WHERE draft_id = $1", queries[1].SQL)
	assert.Equal(t, []any{d.ID}, queries[1].Args)
	assert.True(t, strings.HasPrefix(queries[2].SQL, "INSERT INTO grn_cartons"))

	// All cartons removed: nothing to insert.
	for len(d.Cartons) > 0 {
		_, err := d.RemoveCarton(d.Cartons[0].Barcode)
		require.NoError(t, err)
	}
	queries, err = r.updateBatch(d)
	require.NoError(t, err)
	assert.Len(t, queries, 2)
}

func TestDraftRepo_CreateBatch(t *testing.T) {
	r := NewDraftRepo(nil)

	queries, err := r.createBatch(grn.NewDraft(grn.RefTypeCatalog, "CAT-77", now))
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.True(t, strings.HasPrefix(queries[0].SQL, "INSERT INTO grn_drafts"))
}

func TestDraftRepo_ListSubmittedQuery(t *testing.T) {
	r := NewDraftRepo(nil)

	sql, args, err := r.listSubmittedQuery(grn.HistoryFilter{Limit: grn.HistoryLimit}).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT d.id, d.receipt_number, d.ref_type, d.ref_id, d.submitted_at, "+
			"(SELECT COUNT(*) FROM grn_cartons c WHERE c.draft_id = d.id) AS carton_count "+
			"FROM grn_drafts d WHERE d.status = $1 ORDER BY d.submitted_at DESC, d.id DESC LIMIT 50", sql)
	assert.Equal(t, []any{"SUBMITTED"}, args)

	sql, args, err = r.listSubmittedQuery(grn.HistoryFilter{Search: " po_10% ", Limit: grn.HistoryLimit}).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE d.status = $1 AND (d.receipt_number ILIKE $2 OR d.ref_id ILIKE $3)")
	assert.Equal(t, []any{"SUBMITTED", `%po\_10\%%`, `%po\_10\%%`}, args)
}

func TestDraftRepo_MapWriteErr(t *testing.T) {
	r := NewDraftRepo(nil)
	d := sealedDraft(t)
	number := "GRN-20240514-123"
	d.ReceiptNumber = &number

	dup := &pgconn.PgError{Code: uniqueViolation, ConstraintName: receiptNumberIndex}
	err := r.mapWriteErr(dup, d)
	assert.Equal(t, apperror.CodeDuplicate, apperror.CodeOf(err))
	assert.ErrorIs(t, err, dup)

	other := &pgconn.PgError{Code: "23503"}
	err = r.mapWriteErr(other, d)
	assert.False(t, apperror.IsAppError(err))
	assert.ErrorIs(t, err, other)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
	assert.Equal(t, "PO-1023", escapeLike("PO-1023"))
}
