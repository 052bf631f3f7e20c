package handlers

import (
	"github.com/gin-gonic/gin"

	"stockpile/internal/domain/grn"
	"stockpile/internal/infrastructure/http/v1/dto"
)

// GRNHandler handles the GRN intake endpoints.
type GRNHandler struct {
	*BaseHandler
	service *grn.Service
}

// NewGRNHandler creates a new GRN handler.
func NewGRNHandler(base *BaseHandler, service *grn.Service) *GRNHandler {
	return &GRNHandler{BaseHandler: base, service: service}
}

// ListReferences returns purchase orders and catalog articles a draft can be opened against.
// GET /grn/references?search=
func (h *GRNHandler) ListReferences(c *gin.Context) {
	var q dto.SearchQuery
	if !h.BindQuery(c, &q) {
		return
	}

	refs, err := h.service.ListReferences(c.Request.Context(), q.Search)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(dto.FromReferences(refs)))
}

// CreateDraft opens a new draft.
// POST /grn/drafts
func (h *GRNHandler) CreateDraft(c *gin.Context) {
	var req dto.CreateDraftRequest
	if !h.BindJSON(c, &req) {
		return
	}

	draft, err := h.service.CreateDraft(c.Request.Context(), grn.RefType(req.RefType), req.RefID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, dto.FromDraft(draft))
}

// GetDraft returns a draft in any status.
// GET /grn/drafts/:draftId
func (h *GRNHandler) GetDraft(c *gin.Context) {
	draftID, ok := h.ParseID(c, "draftId", grn.ErrDraftNotFound)
	if !ok {
		return
	}

	draft, err := h.service.GetDraft(c.Request.Context(), draftID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDraft(draft))
}

// ScanPair adds a pair barcode to the current carton.
// POST /grn/drafts/:draftId/scan
func (h *GRNHandler) ScanPair(c *gin.Context) {
	draftID, ok := h.ParseID(c, "draftId", grn.ErrDraftNotFound)
	if !ok {
		return
	}

	var req dto.ScanPairRequest
	if !h.BindJSON(c, &req) {
		return
	}

	draft, err := h.service.ScanPair(c.Request.Context(), draftID, req.PairBarcode)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDraft(draft))
}

// RescanCurrent clears the unsealed carton.
// POST /grn/drafts/:draftId/rescan-current
func (h *GRNHandler) RescanCurrent(c *gin.Context) {
	draftID, ok := h.ParseID(c, "draftId", grn.ErrDraftNotFound)
	if !ok {
		return
	}

	draft, err := h.service.RescanCurrent(c.Request.Context(), draftID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDraft(draft))
}

// RemoveCarton discards a sealed carton.
// DELETE /grn/drafts/:draftId/cartons/:cartonBarcode
func (h *GRNHandler) RemoveCarton(c *gin.Context) {
	draftID, ok := h.ParseID(c, "draftId", grn.ErrDraftNotFound)
	if !ok {
		return
	}

	draft, err := h.service.RemoveCarton(c.Request.Context(), draftID, c.Param("cartonBarcode"))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDraft(draft))
}

// SubmitDraft finalizes a draft and assigns its receipt number.
// POST /grn/drafts/:draftId/submit
func (h *GRNHandler) SubmitDraft(c *gin.Context) {
	draftID, ok := h.ParseID(c, "draftId", grn.ErrDraftNotFound)
	if !ok {
		return
	}

	draft, err := h.service.SubmitDraft(c.Request.Context(), draftID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDraft(draft))
}

// Journal returns the mutation trail of a draft, newest first.
// GET /grn/drafts/:draftId/journal
func (h *GRNHandler) Journal(c *gin.Context) {
	draftID, ok := h.ParseID(c, "draftId", grn.ErrDraftNotFound)
	if !ok {
		return
	}

	entries, err := h.service.Journal(c.Request.Context(), draftID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(dto.FromJournal(entries)))
}

// History lists submitted GRNs.
// GET /grn/history?search=
func (h *GRNHandler) History(c *gin.Context) {
	var q dto.SearchQuery
	if !h.BindQuery(c, &q) {
		return
	}

	rows, err := h.service.History(c.Request.Context(), q.Search)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(dto.FromSummaries(rows)))
}

// GetReceipt returns a GRN by id.
// GET /grn/:grnId
func (h *GRNHandler) GetReceipt(c *gin.Context) {
	grnID, ok := h.ParseID(c, "grnId", grn.ErrReceiptNotFound)
	if !ok {
		return
	}

	draft, err := h.service.GetReceipt(c.Request.Context(), grnID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromDraft(draft))
}
