package posting

import (
	"context"
	"errors"
	"fmt"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"
	"invoice-hawk-backend/internal/services/lifecycle"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClaimStore persists posting records. Claim must insert-if-absent on the
// (invoice, approved version) slot — that unique insert is the only mutual
// exclusion in the posting path. Reclaim is a compare-and-set from failed
// back to claimed so exactly one retrier wins.
type ClaimStore interface {
	Claim(ctx context.Context, rec *models.PostingRecord) (existing *models.PostingRecord, created bool, err error)
	Reclaim(ctx context.Context, id uuid.UUID) (bool, error)
	MarkPosted(ctx context.Context, id uuid.UUID, externalID string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// Ledger posts an approved invoice to the external ledger system. The
// idempotency key is stable across retries so a deduplicating ledger cannot
// create a duplicate entry.
type Ledger interface {
	Post(ctx context.Context, inv *models.Invoice, idempotencyKey string) (externalID string, err error)
}

type Guard struct {
	store     ClaimStore
	ledger    Ledger
	lifecycle *lifecycle.Service
	log       *zap.Logger
}

func NewGuard(store ClaimStore, ledger Ledger, lc *lifecycle.Service, log *zap.Logger) *Guard {
	return &Guard{store: store, ledger: ledger, lifecycle: lc, log: log}
}

// Result reports a completed post.
type Result struct {
	InvoiceID  uuid.UUID            `json:"invoice_id"`
	ExternalID string               `json:"external_id"`
	Status     models.InvoiceStatus `json:"status"`
}

// PostApproved posts the invoice to the ledger at most once. Concurrent
// callers lose the claim race with ErrPostInFlight or ErrAlreadyPosted;
// a ledger failure releases the claim for a later retry.
func (g *Guard) PostApproved(ctx context.Context, invoiceID uuid.UUID) (*Result, error) {
	inv, err := g.lifecycle.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case models.StatusApproved, models.StatusPostFailed:
	case models.StatusPosted:
		return nil, fmt.Errorf("%w: invoice %s", faults.ErrAlreadyPosted, invoiceID)
	default:
		return nil, fmt.Errorf("%w: cannot post invoice in %s", faults.ErrIllegalTransition, inv.Status)
	}

	rec, err := g.claimSlot(ctx, inv)
	if err != nil {
		return nil, err
	}

	// The external call happens strictly outside the transition boundary.
	externalID, postErr := g.ledger.Post(ctx, inv, rec.LedgerIdempotencyKey)
	if postErr != nil {
		g.log.Warn("ledger post failed",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("idempotency_key", rec.LedgerIdempotencyKey),
			zap.Error(postErr))
		if err := g.store.MarkFailed(ctx, rec.ID); err != nil {
			g.log.Error("failed to release posting claim", zap.Error(err))
		}
		// A failed retry leaves the invoice in post_failed; no transition.
		if inv.Status == models.StatusApproved {
			g.settle(ctx, inv, models.StatusPostFailed, map[string]any{
				"idempotency_key": rec.LedgerIdempotencyKey,
				"error":           postErr.Error(),
			})
		}
		return nil, postErr
	}

	if err := g.store.MarkPosted(ctx, rec.ID, externalID); err != nil {
		return nil, err
	}
	g.settle(ctx, inv, models.StatusPosted, map[string]any{
		"idempotency_key": rec.LedgerIdempotencyKey,
		"external_id":     externalID,
	})
	g.log.Info("invoice posted to ledger",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("external_id", externalID))
	return &Result{InvoiceID: invoiceID, ExternalID: externalID, Status: models.StatusPosted}, nil
}

// claimSlot atomically claims the posting slot for the invoice's version at
// approval. A previously failed post re-claims the same record, reusing its
// ledger idempotency key.
func (g *Guard) claimSlot(ctx context.Context, inv *models.Invoice) (*models.PostingRecord, error) {
	approvedVersion := inv.Version
	if inv.Status == models.StatusPostFailed {
		// The slot was created when the invoice was approved, one transition
		// earlier.
		approvedVersion = inv.Version - 1
	}

	rec := &models.PostingRecord{
		ID:                   uuid.New(),
		InvoiceID:            inv.ID,
		ApprovedVersion:      approvedVersion,
		State:                models.PostingClaimed,
		LedgerIdempotencyKey: uuid.New().String(),
	}
	existing, created, err := g.store.Claim(ctx, rec)
	if err != nil {
		return nil, err
	}
	if created {
		return rec, nil
	}

	switch existing.State {
	case models.PostingPosted:
		return nil, fmt.Errorf("%w: invoice %s already has ledger entry %s",
			faults.ErrAlreadyPosted, inv.ID, existing.ExternalID)
	case models.PostingClaimed:
		return nil, fmt.Errorf("%w: invoice %s", faults.ErrPostInFlight, inv.ID)
	case models.PostingFailed:
		ok, err := g.store.Reclaim(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: invoice %s", faults.ErrPostInFlight, inv.ID)
		}
		existing.State = models.PostingClaimed
		return existing, nil
	default:
		return nil, fmt.Errorf("posting record %s in unknown state %q", existing.ID, existing.State)
	}
}

// settle records the post outcome on the state machine. If a concurrent
// writer moved the invoice we re-read once; the ledger side effect is never
// repeated here.
func (g *Guard) settle(ctx context.Context, inv *models.Invoice, target models.InvoiceStatus, evidence map[string]any) {
	_, err := g.lifecycle.Transition(ctx, inv.ID, inv.Version, target, "posting-guard", evidence)
	if errors.Is(err, faults.ErrConcurrentModification) {
		fresh, readErr := g.lifecycle.Get(ctx, inv.ID)
		if readErr == nil && fresh.Status != target && lifecycle.CanTransition(fresh.Status, target) {
			_, err = g.lifecycle.Transition(ctx, fresh.ID, fresh.Version, target, "posting-guard", evidence)
		} else {
			err = readErr
		}
	}
	if err != nil {
		g.log.Error("failed to record post outcome",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("target", string(target)),
			zap.Error(err))
	}
}
