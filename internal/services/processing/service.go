package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"
	"invoice-hawk-backend/internal/services/extraction"
	"invoice-hawk-backend/internal/services/lifecycle"
	"invoice-hawk-backend/internal/services/matching"
	"invoice-hawk-backend/internal/services/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Store persists the match-stage artifacts that live next to the invoice.
type Store interface {
	LatestRevision(ctx context.Context, vendor, invoiceNumber string) (int, error)
	SaveSnapshot(ctx context.Context, snap *models.PurchaseOrderSnapshot) error
	SaveMatchResult(ctx context.Context, res *models.MatchResult) error
	LatestMatchResult(ctx context.Context, invoiceID uuid.UUID) (*models.MatchResult, error)
}

// Service composes the independently triggered pipeline stages. Stages
// share no process memory; every hand-off goes through the persisted
// invoice and its version-guarded transitions.
type Service struct {
	extractor extraction.Extractor
	poLookup  matching.POLookup
	engine    *matching.Engine
	lifecycle *lifecycle.Service
	notifier  notification.Notifier
	store     Store
	log       *zap.Logger

	reviewChannel   func(verdict string) string
	terminalChannel string
}

func New(
	extractor extraction.Extractor,
	poLookup matching.POLookup,
	engine *matching.Engine,
	lc *lifecycle.Service,
	notifier notification.Notifier,
	store Store,
	reviewChannel func(verdict string) string,
	terminalChannel string,
	log *zap.Logger,
) *Service {
	return &Service{
		extractor:       extractor,
		poLookup:        poLookup,
		engine:          engine,
		lifecycle:       lc,
		notifier:        notifier,
		store:           store,
		reviewChannel:   reviewChannel,
		terminalChannel: terminalChannel,
		log:             log,
	}
}

// IngestArtifact runs the extraction stage: extract raw fields, normalize,
// persist the invoice as received, then record the extracted transition.
// Re-extraction of a known vendor invoice creates a new revision rather
// than mutating line items in place.
func (s *Service) IngestArtifact(ctx context.Context, artifactID string) (*models.Invoice, error) {
	raw, err := s.extractor.Extract(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	inv, err := extraction.Normalize(raw, artifactID)
	if err != nil {
		return nil, err
	}

	latest, err := s.store.LatestRevision(ctx, inv.Vendor, inv.InvoiceNumber)
	if err != nil {
		return nil, err
	}
	inv.Revision = latest + 1

	if err := s.lifecycle.Create(ctx, inv, "extraction-normalizer", map[string]any{
		"artifact_id": artifactID,
		"revision":    inv.Revision,
	}); err != nil {
		return nil, err
	}

	updated, err := s.lifecycle.Transition(ctx, inv.ID, inv.Version, models.StatusExtracted,
		"extraction-normalizer", map[string]any{
			"artifact_id": artifactID,
			"vendor":      inv.Vendor,
			"total":       inv.Total.StringFixed(2),
			"line_count":  len(inv.LineItems),
			"confidence":  raw.Confidence,
		})
	if err != nil {
		return nil, err
	}
	inv.Status = updated.Status
	inv.Version = updated.Version
	return inv, nil
}

// MatchInvoice runs the two-way match stage: snapshot the PO, evaluate
// tolerances, persist the MatchResult, and move the invoice to the verdict
// status. The PO fetch happens strictly before the transition.
func (s *Service) MatchInvoice(ctx context.Context, invoiceID uuid.UUID) (*matching.Outcome, *models.Invoice, error) {
	inv, err := s.lifecycle.Get(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status != models.StatusExtracted {
		return nil, nil, fmt.Errorf("%w: cannot match invoice in %s", faults.ErrIllegalTransition, inv.Status)
	}

	var (
		poNumber   string
		poLines    []models.POLine
		snapshotID *uuid.UUID
	)
	if inv.POReference != "" {
		data, err := s.poLookup.FetchPurchaseOrder(ctx, inv.POReference)
		switch {
		case errors.Is(err, faults.ErrNotFound):
			// Absent PO evaluates to needs_review via the po_reference check.
		case err != nil:
			return nil, nil, err
		default:
			poNumber = data.PONumber
			poLines = data.Lines
			lines, err := json.Marshal(data.Lines)
			if err != nil {
				return nil, nil, err
			}
			snap := &models.PurchaseOrderSnapshot{
				ID:        uuid.New(),
				PONumber:  data.PONumber,
				InvoiceID: inv.ID,
				Lines:     datatypes.JSON(lines),
				FetchedAt: time.Now().UTC(),
			}
			if err := s.store.SaveSnapshot(ctx, snap); err != nil {
				return nil, nil, err
			}
			snapshotID = &snap.ID
		}
	}

	outcome := s.engine.Evaluate(inv, poNumber, poLines)

	discrepancies, err := json.Marshal(outcome.Discrepancies)
	if err != nil {
		return nil, nil, err
	}
	result := &models.MatchResult{
		ID:            uuid.New(),
		InvoiceID:     inv.ID,
		SnapshotID:    snapshotID,
		Verdict:       outcome.Verdict,
		Discrepancies: datatypes.JSON(discrepancies),
		QtyTolerance:  outcome.Applied.QtyTolerance,
		PriceTol:      outcome.Applied.PriceTolerance,
		LineKey:       outcome.Applied.LineKey,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.SaveMatchResult(ctx, result); err != nil {
		return nil, nil, err
	}

	updated, err := s.lifecycle.Transition(ctx, inv.ID, inv.Version, models.InvoiceStatus(outcome.Verdict),
		"match-engine", map[string]any{
			"match_result_id":   result.ID.String(),
			"verdict":           string(outcome.Verdict),
			"discrepancy_count": len(outcome.Discrepancies),
			"qty_tolerance":     outcome.Applied.QtyTolerance.String(),
			"price_tolerance":   outcome.Applied.PriceTolerance.String(),
			"line_key":          outcome.Applied.LineKey,
		})
	if err != nil {
		return nil, nil, err
	}
	return &outcome, updated, nil
}

// RequestApproval surfaces the latest match result to a human reviewer and
// moves the invoice to pending_approval. Notification failure never blocks
// the transition; it is recorded on the audit entry instead.
func (s *Service) RequestApproval(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	inv, err := s.lifecycle.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case models.StatusMatched, models.StatusMismatched, models.StatusNeedsReview:
	default:
		return nil, fmt.Errorf("%w: cannot request approval for invoice in %s", faults.ErrIllegalTransition, inv.Status)
	}

	result, err := s.store.LatestMatchResult(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	var discrepancies []models.Discrepancy
	if len(result.Discrepancies) > 0 {
		if err := json.Unmarshal(result.Discrepancies, &discrepancies); err != nil {
			return nil, err
		}
	}

	channel := s.reviewChannel(string(result.Verdict))
	evidence := map[string]any{
		"match_result_id": result.ID.String(),
		"verdict":         string(result.Verdict),
		"channel":         channel,
		"notified":        true,
	}
	if err := s.notifier.ReviewRequested(ctx, inv, result.Verdict, discrepancies, channel); err != nil {
		s.log.Warn("reviewer notification failed",
			zap.String("invoice_id", invoiceID.String()), zap.Error(err))
		evidence["notified"] = false
		evidence["notify_error"] = err.Error()
	}

	return s.lifecycle.Transition(ctx, inv.ID, inv.Version, models.StatusPendingApproval,
		"approval-router", evidence)
}

// NotifyTerminal announces a terminal status. Fire-and-forget.
func (s *Service) NotifyTerminal(ctx context.Context, inv *models.Invoice) {
	if !inv.Status.Terminal() {
		return
	}
	if err := s.notifier.TerminalState(ctx, inv, s.terminalChannel); err != nil {
		s.log.Warn("terminal notification failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("status", string(inv.Status)),
			zap.Error(err))
	}
}
