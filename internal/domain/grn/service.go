package grn

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockpile/internal/core/apperror"
	"stockpile/internal/core/id"
	"stockpile/internal/core/keylock"
	"stockpile/internal/core/tx"
	"stockpile/pkg/logger"
)

var tracer = otel.Tracer("stockpile/grn")

// receiptAttempts bounds how many receipt numbers SubmitDraft draws.
const receiptAttempts = 5

// Service runs the GRN intake workflow. Mutations of one draft are
// serialized in-process by a keyed lock and, with a transactional store,
// by a row lock held for the duration of the transaction.
type Service struct {
	drafts     DraftStore
	history    HistoryIndex
	references ReferenceDirectory
	journal    Journal
	txManager  tx.Manager
	clock      Clock
	random     RandomSource
	hooks      *HookRegistry
	locks      keylock.Map
}

// ServiceConfig configures the service.
type ServiceConfig struct {
	Drafts     DraftStore
	History    HistoryIndex
	References ReferenceDirectory
	Journal    Journal    // Optional. Nil disables the mutation trail.
	TxManager  tx.Manager // Optional. Defaults to tx.Passthrough.
	Clock      Clock      // Optional. Defaults to SystemClock.
	Random     RandomSource
}

// NewService creates a new GRN service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		drafts:     cfg.Drafts,
		history:    cfg.History,
		references: cfg.References,
		journal:    cfg.Journal,
		txManager:  cfg.TxManager,
		clock:      cfg.Clock,
		random:     cfg.Random,
		hooks:      NewHookRegistry(),
	}
	if s.txManager == nil {
		s.txManager = tx.Passthrough{}
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.random == nil {
		s.random = DefaultRandom
	}
	return s
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *HookRegistry {
	return s.hooks
}

// CreateDraft opens a new draft against an existing reference.
func (s *Service) CreateDraft(ctx context.Context, refType RefType, refID string) (_ *Draft, err error) {
	refType = RefType(strings.TrimSpace(string(refType)))
	refID = strings.TrimSpace(refID)

	if refType == "" || refID == "" {
		return nil, apperror.NewValidation("refType and refId are required")
	}
	if !refType.Valid() {
		return nil, apperror.NewValidation("refType must be PO or CAT").
			WithDetail("field", "refType").
			WithDetail("value", string(refType))
	}

	ctx, span := tracer.Start(ctx, "grn.CreateDraft", trace.WithAttributes(
		attribute.String("grn.ref_type", string(refType)),
		attribute.String("grn.ref_id", refID),
	))
	defer func() { endSpan(span, err) }()

	ref, err := s.references.Find(ctx, refType, refID)
	if err != nil {
		return nil, normalizeStoreErr(err)
	}
	if ref == nil {
		return nil, ErrInvalidReference(refType, refID)
	}

	now := s.clock.Now()
	draft := NewDraft(refType, refID, now)
	if err := draft.Validate(ctx); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.drafts.Create(ctx, draft); err != nil {
			return fmt.Errorf("create draft: %w", err)
		}
		return s.record(ctx, draft, ActionCreate, nil, now)
	})
	if err != nil {
		logger.Error(ctx, "create grn draft failed", "ref_id", refID, "error", err)
		return nil, normalizeStoreErr(err)
	}

	ctx = logger.WithDraft(ctx, draft.ID)
	s.runHook(ctx, AfterCreate, draft)
	logger.Info(ctx, "grn draft created", "ref_type", refType, "ref_id", refID)

	return draft, nil
}

// GetDraft returns the draft in any status.
func (s *Service) GetDraft(ctx context.Context, draftID id.ID) (*Draft, error) {
	draft, err := s.drafts.GetByID(ctx, draftID)
	if err != nil {
		return nil, normalizeGetErr(err, ErrDraftNotFound(draftID.String()))
	}
	return draft, nil
}

// ScanPair adds one pair barcode to the current carton, sealing it when
// the barcode is the 24th.
func (s *Service) ScanPair(ctx context.Context, draftID id.ID, raw string) (_ *Draft, err error) {
	barcode := strings.TrimSpace(raw)
	if barcode == "" {
		return nil, apperror.NewValidation("pairBarcode required").
			WithDetail("field", "pairBarcode")
	}

	ctx, span := tracer.Start(ctx, "grn.ScanPair", trace.WithAttributes(
		attribute.String("grn.draft_id", draftID.String()),
	))
	defer func() { endSpan(span, err) }()
	ctx = logger.WithDraft(ctx, draftID)

	var sealed *Carton
	draft, err := s.mutate(ctx, draftID, func(d *Draft, now time.Time) (Action, map[string]any, error) {
		carton, err := d.Scan(barcode, now)
		if err != nil {
			return "", nil, err
		}
		sealed = carton
		if carton != nil {
			return ActionSeal, map[string]any{"pairBarcode": barcode, "cartonBarcode": carton.Barcode}, nil
		}
		return ActionScan, map[string]any{"pairBarcode": barcode}, nil
	})
	if err != nil {
		return nil, err
	}

	if sealed != nil {
		span.SetAttributes(attribute.String("grn.carton_barcode", sealed.Barcode))
		logger.Info(ctx, "carton sealed",
			logger.FieldCartonBarcode, sealed.Barcode,
			"cartons", len(draft.Cartons))
		s.runHook(ctx, AfterSeal, draft)
	}

	return draft, nil
}

// RescanCurrent discards the unsealed pairs of the draft.
func (s *Service) RescanCurrent(ctx context.Context, draftID id.ID) (_ *Draft, err error) {
	ctx, span := tracer.Start(ctx, "grn.RescanCurrent", trace.WithAttributes(
		attribute.String("grn.draft_id", draftID.String()),
	))
	defer func() { endSpan(span, err) }()
	ctx = logger.WithDraft(ctx, draftID)

	return s.mutate(ctx, draftID, func(d *Draft, _ time.Time) (Action, map[string]any, error) {
		cleared, err := d.RescanCurrent()
		if err != nil {
			return "", nil, err
		}
		if len(cleared) == 0 {
			return "", nil, nil
		}
		return ActionRescan, map[string]any{"cleared": cleared}, nil
	})
}

// RemoveCarton discards a sealed carton together with its pairs.
func (s *Service) RemoveCarton(ctx context.Context, draftID id.ID, cartonBarcode string) (_ *Draft, err error) {
	cartonBarcode = strings.TrimSpace(cartonBarcode)

	ctx, span := tracer.Start(ctx, "grn.RemoveCarton", trace.WithAttributes(
		attribute.String("grn.draft_id", draftID.String()),
		attribute.String("grn.carton_barcode", cartonBarcode),
	))
	defer func() { endSpan(span, err) }()
	ctx = logger.WithDraft(ctx, draftID)

	draft, err := s.mutate(ctx, draftID, func(d *Draft, _ time.Time) (Action, map[string]any, error) {
		removed, err := d.RemoveCarton(cartonBarcode)
		if err != nil {
			return "", nil, err
		}
		return ActionRemoveCarton, map[string]any{
			"cartonBarcode": removed.Barcode,
			"pairs":         len(removed.Pairs),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "carton removed", logger.FieldCartonBarcode, cartonBarcode)
	return draft, nil
}

// SubmitDraft finalizes the draft and stamps a receipt number. A number
// already taken by another GRN is redrawn up to receiptAttempts times.
func (s *Service) SubmitDraft(ctx context.Context, draftID id.ID) (_ *Draft, err error) {
	ctx, span := tracer.Start(ctx, "grn.SubmitDraft", trace.WithAttributes(
		attribute.String("grn.draft_id", draftID.String()),
	))
	defer func() { endSpan(span, err) }()
	ctx = logger.WithDraft(ctx, draftID)

	submit := func(d *Draft, now time.Time) (Action, map[string]any, error) {
		number := ReceiptNumber(now, s.random)
		if err := d.Submit(now, number); err != nil {
			return "", nil, err
		}
		return ActionSubmit, map[string]any{"receiptNumber": number, "cartons": len(d.Cartons)}, nil
	}

	var draft *Draft
	for attempt := 1; ; attempt++ {
		draft, err = s.mutate(ctx, draftID, submit)
		if err == nil || attempt == receiptAttempts || !isReceiptCollision(err) {
			break
		}
		logger.Warn(ctx, "receipt number taken, drawing another", "attempt", attempt)
	}
	if err != nil {
		return nil, err
	}

	ctx = logger.WithReceipt(ctx, draft.ID, draft.ReceiptNumber)
	span.SetAttributes(attribute.String("grn.receipt_number", *draft.ReceiptNumber))
	logger.Info(ctx, "grn submitted", "cartons", len(draft.Cartons))
	s.runHook(ctx, AfterSubmit, draft)

	return draft, nil
}

// History lists submitted GRNs, newest first, at most HistoryLimit of them.
func (s *Service) History(ctx context.Context, search string) ([]Summary, error) {
	items, err := s.history.ListSubmitted(ctx, HistoryFilter{
		Search: strings.TrimSpace(search),
		Limit:  HistoryLimit,
	})
	if err != nil {
		return nil, normalizeStoreErr(err)
	}
	if items == nil {
		items = []Summary{}
	}
	return items, nil
}

// GetReceipt returns a GRN by id, submitted or not.
func (s *Service) GetReceipt(ctx context.Context, grnID id.ID) (*Draft, error) {
	draft, err := s.drafts.GetByID(ctx, grnID)
	if err != nil {
		return nil, normalizeGetErr(err, ErrReceiptNotFound(grnID.String()))
	}
	return draft, nil
}

// ListReferences searches the reference directory. Blank search lists all.
func (s *Service) ListReferences(ctx context.Context, search string) ([]Reference, error) {
	refs, err := s.references.Search(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, normalizeStoreErr(err)
	}
	if refs == nil {
		refs = []Reference{}
	}
	return refs, nil
}

// Journal returns the mutation trail of a draft, newest first.
func (s *Service) Journal(ctx context.Context, draftID id.ID) ([]JournalEntry, error) {
	if _, err := s.GetDraft(ctx, draftID); err != nil {
		return nil, err
	}
	if s.journal == nil {
		return []JournalEntry{}, nil
	}
	entries, err := s.journal.ListByDraft(ctx, draftID)
	if err != nil {
		return nil, normalizeStoreErr(err)
	}
	if entries == nil {
		entries = []JournalEntry{}
	}
	return entries, nil
}

// mutation changes a private copy of a draft. An empty Action means
// nothing changed and the draft is not written.
type mutation func(d *Draft, now time.Time) (Action, map[string]any, error)

// mutate runs the read-modify-write cycle of one draft.
// On any failure the stored draft is left as it was and no draft is returned.
func (s *Service) mutate(ctx context.Context, draftID id.ID, fn mutation) (*Draft, error) {
	unlock := s.locks.Lock(draftID.String())
	defer unlock()

	var result *Draft
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		stored, err := s.drafts.GetForUpdate(ctx, draftID)
		if err != nil {
			return normalizeGetErr(err, ErrDraftNotFound(draftID.String()))
		}

		draft := stored.Clone()
		now := s.clock.Now()

		action, detail, err := fn(draft, now)
		if err != nil {
			return err
		}
		if action == "" {
			result = draft
			return nil
		}

		draft.UpdatedAt = now
		if err := draft.Validate(ctx); err != nil {
			return apperror.NewInternal(fmt.Errorf("draft %s: %w", draftID, err))
		}
		if err := s.drafts.Update(ctx, draft); err != nil {
			return fmt.Errorf("update draft: %w", err)
		}
		if err := s.record(ctx, draft, action, detail, now); err != nil {
			return err
		}

		result = draft
		return nil
	})
	if err != nil {
		if !apperror.IsAppError(err) || apperror.HasCode(err, apperror.CodeDatabase) {
			logger.Error(ctx, "grn draft mutation failed", "error", err)
		}
		return nil, normalizeStoreErr(err)
	}
	return result, nil
}

// record appends a journal entry. It runs inside the mutation's transaction.
func (s *Service) record(ctx context.Context, draft *Draft, action Action, detail map[string]any, now time.Time) error {
	if s.journal == nil {
		return nil
	}
	snapshot, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft snapshot: %w", err)
	}
	entry := JournalEntry{
		ID:        id.New(),
		DraftID:   draft.ID,
		Action:    action,
		Detail:    detail,
		Snapshot:  snapshot,
		Version:   draft.Version,
		CreatedAt: now,
	}
	if err := s.journal.Record(ctx, entry); err != nil {
		return fmt.Errorf("record journal: %w", err)
	}
	return nil
}

// runHook runs hooks on a copy of the committed draft. Failures are logged only.
func (s *Service) runHook(ctx context.Context, event HookEvent, draft *Draft) {
	if err := s.hooks.Run(ctx, event, draft.Clone()); err != nil {
		logger.Warn(ctx, "grn hook failed", "event", event, "error", err)
	}
}

// isReceiptCollision reports whether the store rejected a receipt number
// held by another GRN.
func isReceiptCollision(err error) bool {
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeDuplicate {
		return false
	}
	return appErr.Details["field"] == "receipt_number"
}

// normalizeGetErr maps a store miss to the caller's not-found error.
func normalizeGetErr(err error, notFound *apperror.AppError) error {
	if apperror.IsNotFound(err) {
		return notFound
	}
	return normalizeStoreErr(err)
}

// normalizeStoreErr keeps AppErrors and wraps anything else as a persistence failure.
func normalizeStoreErr(err error) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr
	}
	return apperror.NewPersistence(err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperror.CodeOf(err))
	}
	span.End()
}
