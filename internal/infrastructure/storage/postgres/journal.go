package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"stockpile/internal/core/id"
	"stockpile/internal/domain/grn"
)

const journalTable = "grn_journal"

// CompressionAlgo specifies how a snapshot is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the snapshot size above which snapshots are compressed.
const DefaultCompressThreshold = 4 * 1024

var _ grn.Journal = (*Journal)(nil)

// journalRow is the storage layout of a journal entry.
type journalRow struct {
	ID                 id.ID           `db:"id"`
	DraftID            id.ID           `db:"draft_id"`
	Action             string          `db:"action"`
	Detail             []byte          `db:"detail"`
	Snapshot           []byte          `db:"snapshot"`
	SnapshotCompressed []byte          `db:"snapshot_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	Version            int             `db:"version"`
	CreatedAt          time.Time       `db:"created_at"`
}

// Journal stores draft journal entries. Draft snapshots larger than the
// threshold are compressed with zstd.
type Journal struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewJournal creates a journal. A threshold <= 0 selects DefaultCompressThreshold.
func NewJournal(txManager *TxManager, compressThreshold int) (*Journal, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if compressThreshold <= 0 {
		compressThreshold = DefaultCompressThreshold
	}
	return &Journal{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: compressThreshold,
	}, nil
}

func (j *Journal) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// encode converts an entry to its storage row.
func (j *Journal) encode(entry grn.JournalEntry) (journalRow, error) {
	row := journalRow{
		ID:              entry.ID,
		DraftID:         entry.DraftID,
		Action:          string(entry.Action),
		CompressionAlgo: CompressionNone,
		Version:         entry.Version,
		CreatedAt:       entry.CreatedAt,
	}
	if id.IsNil(row.ID) {
		row.ID = id.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if len(entry.Detail) > 0 {
		detail, err := json.Marshal(entry.Detail)
		if err != nil {
			return row, fmt.Errorf("marshal detail: %w", err)
		}
		row.Detail = detail
	}

	if len(entry.Snapshot) > j.compressThreshold {
		row.SnapshotCompressed = j.encoder.EncodeAll(entry.Snapshot, nil)
		row.CompressionAlgo = CompressionZstd
	} else if len(entry.Snapshot) > 0 {
		row.Snapshot = entry.Snapshot
	}
	return row, nil
}

// decode converts a storage row back to an entry.
func (j *Journal) decode(row journalRow) (grn.JournalEntry, error) {
	entry := grn.JournalEntry{
		ID:        row.ID,
		DraftID:   row.DraftID,
		Action:    grn.Action(row.Action),
		Snapshot:  row.Snapshot,
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
	}
	if len(row.Detail) > 0 {
		if err := json.Unmarshal(row.Detail, &entry.Detail); err != nil {
			return entry, fmt.Errorf("unmarshal detail: %w", err)
		}
	}
	if row.CompressionAlgo == CompressionZstd && len(row.SnapshotCompressed) > 0 {
		snapshot, err := j.decoder.DecodeAll(row.SnapshotCompressed, nil)
		if err != nil {
			return entry, fmt.Errorf("decompress snapshot: %w", err)
		}
		entry.Snapshot = snapshot
	}
	return entry, nil
}

func (j *Journal) insertQuery(row journalRow) squirrel.InsertBuilder {
	return j.builder().
		Insert(journalTable).
		SetMap(StructToMap(row))
}

func (j *Journal) listQuery(draftID id.ID) squirrel.SelectBuilder {
	return j.builder().
		Select(ExtractDBColumns[journalRow]()...).
		From(journalTable).
		Where(squirrel.Eq{"draft_id": draftID}).
		OrderBy("created_at DESC", "id DESC")
}

// Record inserts an entry using the transaction in ctx, if any.
func (j *Journal) Record(ctx context.Context, entry grn.JournalEntry) error {
	row, err := j.encode(entry)
	if err != nil {
		return err
	}

	sql, args, err := j.insertQuery(row).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := j.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", journalTable, err)
	}
	return nil
}

// ListByDraft returns the entries of a draft, newest first.
func (j *Journal) ListByDraft(ctx context.Context, draftID id.ID) ([]grn.JournalEntry, error) {
	sql, args, err := j.listQuery(draftID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []journalRow
	if err := pgxscan.Select(ctx, j.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", journalTable, err)
	}

	entries := make([]grn.JournalEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := j.decode(row)
		if err != nil {
			return nil, fmt.Errorf("journal entry %s: %w", row.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
