package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"
	"invoice-hawk-backend/internal/repository"
	"invoice-hawk-backend/internal/services/approval"
	"invoice-hawk-backend/internal/services/lifecycle"
	"invoice-hawk-backend/internal/services/posting"
	"invoice-hawk-backend/internal/services/processing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type InvoiceHandler struct {
	processing *processing.Service
	gateway    *approval.Gateway
	guard      *posting.Guard
	lifecycle  *lifecycle.Service
	audit      *repository.AuditRepository
	matches    *repository.MatchRepository
	log        *zap.Logger
}

func NewInvoiceHandler(
	proc *processing.Service,
	gateway *approval.Gateway,
	guard *posting.Guard,
	lc *lifecycle.Service,
	audit *repository.AuditRepository,
	matches *repository.MatchRepository,
	log *zap.Logger,
) *InvoiceHandler {
	return &InvoiceHandler{
		processing: proc,
		gateway:    gateway,
		guard:      guard,
		lifecycle:  lc,
		audit:      audit,
		matches:    matches,
		log:        log,
	}
}

// ExtractArtifact triggers the extraction stage for a stored artifact.
func (h *InvoiceHandler) ExtractArtifact(c *gin.Context) {
	var payload struct {
		ArtifactID string `json:"artifact_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.ArtifactID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "artifact_id required"})
		return
	}

	inv, err := h.processing.IngestArtifact(c.Request.Context(), payload.ArtifactID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"invoice_id": inv.ID.String(),
		"status":     inv.Status,
		"version":    inv.Version,
	})
}

// MatchInvoice triggers the two-way match stage.
func (h *InvoiceHandler) MatchInvoice(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	outcome, inv, err := h.processing.MatchInvoice(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"invoice_id":    inv.ID.String(),
		"status":        inv.Status,
		"version":       inv.Version,
		"verdict":       outcome.Verdict,
		"discrepancies": outcome.Discrepancies,
	})
}

// RequestApproval routes the invoice to a human reviewer.
func (h *InvoiceHandler) RequestApproval(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	inv, err := h.processing.RequestApproval(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"invoice_id": inv.ID.String(),
		"status":     inv.Status,
		"version":    inv.Version,
	})
}

// ApprovalWebhook accepts the external reviewer decision. Signature and
// timestamp come in headers; the signed body carries the decision.
func (h *InvoiceHandler) ApprovalWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	var payload struct {
		Decision  string `json:"decision"`
		Actor     string `json:"actor"`
		InvoiceID string `json:"invoice_id"`
		EventID   string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	invoiceID, err := uuid.Parse(payload.InvoiceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}

	outcome, err := h.gateway.HandleDecision(c.Request.Context(), approval.DecisionRequest{
		Timestamp: c.GetHeader("X-Request-Timestamp"),
		Signature: c.GetHeader("X-Signature"),
		RawBody:   body,
		EventID:   payload.EventID,
		InvoiceID: invoiceID,
		Actor:     payload.Actor,
		Decision:  models.Decision(payload.Decision),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if outcome.OK && !outcome.Duplicate {
		if inv, err := h.lifecycle.Get(c.Request.Context(), invoiceID); err == nil {
			h.processing.NotifyTerminal(c.Request.Context(), inv)
		}
	}
	c.JSON(http.StatusOK, outcome)
}

// PostInvoice posts an approved invoice to the ledger; also the retry path
// for post_failed invoices.
func (h *InvoiceHandler) PostInvoice(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	result, err := h.guard.PostApproved(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if inv, getErr := h.lifecycle.Get(c.Request.Context(), id); getErr == nil {
		h.processing.NotifyTerminal(c.Request.Context(), inv)
	}
	c.JSON(http.StatusOK, gin.H{
		"invoice_id":  result.InvoiceID.String(),
		"external_id": result.ExternalID,
		"status":      result.Status,
	})
}

// VoidInvoice abandons a post_failed invoice.
func (h *InvoiceHandler) VoidInvoice(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	var payload struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	_ = c.BindJSON(&payload)
	if payload.Actor == "" {
		payload.Actor = "operator"
	}

	inv, err := h.lifecycle.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	updated, err := h.lifecycle.Transition(c.Request.Context(), inv.ID, inv.Version,
		models.StatusVoid, payload.Actor, map[string]any{"reason": payload.Reason})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.processing.NotifyTerminal(c.Request.Context(), updated)
	c.JSON(http.StatusOK, gin.H{"invoice_id": updated.ID.String(), "status": updated.Status})
}

// GetInvoice returns the invoice, its line items, and the latest match
// attempt.
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	inv, err := h.lifecycle.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := gin.H{"invoice": inv}
	if res, err := h.matches.LatestMatchResult(c.Request.Context(), id); err == nil {
		resp["latest_match"] = res
	}
	c.JSON(http.StatusOK, resp)
}

// GetAuditTrail returns the append-only audit entries for an invoice,
// optionally bounded by RFC 3339 from/to query params.
func (h *InvoiceHandler) GetAuditTrail(c *gin.Context) {
	id, ok := h.invoiceID(c)
	if !ok {
		return
	}
	var from, to time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from, expected RFC 3339"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to, expected RFC 3339"})
			return
		}
		to = t
	}
	entries, err := h.audit.ListByInvoice(c.Request.Context(), id, from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

func (h *InvoiceHandler) invoiceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps the error taxonomy onto HTTP statuses. Idempotent
// no-ops answer 200 so retrying callers see success.
func (h *InvoiceHandler) respondError(c *gin.Context, err error) {
	var verr *faults.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, faults.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, faults.ErrAuthentication), errors.Is(err, faults.ErrStaleRequest):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, faults.ErrAlreadyDecided), errors.Is(err, faults.ErrAlreadyPosted), errors.Is(err, faults.ErrPostInFlight):
		c.JSON(http.StatusOK, gin.H{"ok": false, "message": err.Error()})
	case errors.Is(err, faults.ErrConcurrentModification):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, faults.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, faults.ErrUnsupportedDocument):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.Is(err, faults.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
