package approval

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"
	"invoice-hawk-backend/internal/services/lifecycle"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Inbox durably records inbound decision events before they are applied.
// Record must insert-if-absent on the idempotency key and report whether
// this call created the row.
type Inbox interface {
	Record(ctx context.Context, action *models.ApprovalAction) (existing *models.ApprovalAction, created bool, err error)
	MarkOutcome(ctx context.Context, id uuid.UUID, outcome models.InvoiceStatus, applied bool) error
}

// DecisionRequest is one inbound approval/rejection event as received on
// the webhook, before authentication.
type DecisionRequest struct {
	Timestamp string
	Signature string
	RawBody   []byte

	EventID   string
	InvoiceID uuid.UUID
	Actor     string
	Decision  models.Decision
}

// Outcome is the canonical webhook response. OK is false when the invoice
// had already been decided; that is an idempotent no-op, not a failure.
type Outcome struct {
	OK     bool                 `json:"ok"`
	Status models.InvoiceStatus `json:"status"`

	Duplicate      bool `json:"-"`
	AlreadyDecided bool `json:"-"`
}

type Gateway struct {
	secret    []byte
	window    time.Duration
	lifecycle *lifecycle.Service
	inbox     Inbox
	now       func() time.Time
	log       *zap.Logger
}

func NewGateway(secret string, window time.Duration, lc *lifecycle.Service, inbox Inbox, log *zap.Logger) *Gateway {
	return &Gateway{
		secret:    []byte(secret),
		window:    window,
		lifecycle: lc,
		inbox:     inbox,
		now:       time.Now,
		log:       log,
	}
}

// verify checks the signature over "v0:timestamp:rawbody" and bounds the
// timestamp to the freshness window. Rejections change no state.
func (g *Gateway) verify(timestamp, signature string, body []byte) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", faults.ErrAuthentication, timestamp)
	}
	age := g.now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if float64(age) > g.window.Seconds() {
		return fmt.Errorf("%w: timestamp %ds outside %s window", faults.ErrStaleRequest, age, g.window)
	}

	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", faults.ErrAuthentication)
	}
	return nil
}

// HandleDecision authenticates an inbound decision and translates it into
// exactly one state transition. The endpoint is safe to call arbitrarily
// many times for the same external event: redeliveries replay the recorded
// outcome, and a redelivery of an event whose first processing failed before
// an outcome was recorded applies the decision itself.
func (g *Gateway) HandleDecision(ctx context.Context, req DecisionRequest) (Outcome, error) {
	if err := g.verify(req.Timestamp, req.Signature, req.RawBody); err != nil {
		return Outcome{}, err
	}
	if req.Decision != models.DecisionApprove && req.Decision != models.DecisionReject {
		return Outcome{}, faults.Validation("decision", fmt.Sprintf("unknown decision %q", req.Decision))
	}
	if req.EventID == "" {
		return Outcome{}, faults.Validation("event_id", "missing")
	}

	action := &models.ApprovalAction{
		ID:             uuid.New(),
		IdempotencyKey: req.EventID + ":" + req.InvoiceID.String(),
		InvoiceID:      req.InvoiceID,
		Actor:          req.Actor,
		Decision:       req.Decision,
		ReceivedAt:     g.now().UTC(),
	}

	existing, created, err := g.inbox.Record(ctx, action)
	if err != nil {
		return Outcome{}, err
	}
	if !created {
		if existing.OutcomeStatus != "" {
			// Redelivery of a completed event. Return the first outcome
			// unchanged, including its ok flag.
			g.log.Info("duplicate approval event",
				zap.String("idempotency_key", existing.IdempotencyKey),
				zap.String("invoice_id", req.InvoiceID.String()))
			return Outcome{OK: existing.Applied, Status: existing.OutcomeStatus, Duplicate: true}, nil
		}
		// The first delivery recorded the event but failed before a decision
		// outcome was stored. The version-guarded transition makes re-running
		// it safe, so the redelivery finishes the work instead of replaying
		// an empty outcome.
		g.log.Warn("redelivered approval event with no recorded outcome, re-applying",
			zap.String("idempotency_key", existing.IdempotencyKey),
			zap.String("invoice_id", req.InvoiceID.String()))
		action = existing
	}

	outcome, err := g.apply(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if markErr := g.inbox.MarkOutcome(ctx, action.ID, outcome.Status, outcome.OK); markErr != nil {
		g.log.Error("failed to record approval outcome",
			zap.String("idempotency_key", action.IdempotencyKey), zap.Error(markErr))
	}
	return outcome, nil
}

// apply performs the pending_approval transition, re-reading once if a
// concurrent writer moved the invoice between read and write.
func (g *Gateway) apply(ctx context.Context, req DecisionRequest) (Outcome, error) {
	target := models.StatusApproved
	if req.Decision == models.DecisionReject {
		target = models.StatusRejected
	}

	for attempt := 0; attempt < 2; attempt++ {
		inv, err := g.lifecycle.Get(ctx, req.InvoiceID)
		if err != nil {
			return Outcome{}, err
		}
		if inv.Status != models.StatusPendingApproval {
			// Already decided (or not yet routed for approval). Not an error
			// the caller should retry.
			g.log.Info("decision arrived for settled invoice",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("status", string(inv.Status)))
			return Outcome{OK: false, Status: inv.Status, AlreadyDecided: true}, nil
		}

		updated, err := g.lifecycle.Transition(ctx, inv.ID, inv.Version, target, req.Actor, map[string]any{
			"event_id": req.EventID,
			"decision": string(req.Decision),
		})
		if errors.Is(err, faults.ErrConcurrentModification) {
			continue
		}
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{OK: true, Status: updated.Status}, nil
	}
	return Outcome{}, fmt.Errorf("%w: invoice %s kept moving", faults.ErrConcurrentModification, req.InvoiceID)
}
