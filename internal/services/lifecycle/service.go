package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Store is the persistence contract for the state machine. ApplyTransition
// must be a single atomic compare-and-set on the invoice version that also
// appends the audit entry; it either fully succeeds or changes nothing.
type Store interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	CreateInvoice(ctx context.Context, inv *models.Invoice, entry *models.AuditEntry) error
	ApplyTransition(ctx context.Context, invoiceID uuid.UUID, expectedVersion int, target models.InvoiceStatus, entry *models.AuditEntry) error
}

// legal maps each status to the statuses reachable from it.
var legal = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.StatusReceived:        {models.StatusExtracted},
	models.StatusExtracted:       {models.StatusMatched, models.StatusMismatched, models.StatusNeedsReview},
	models.StatusMatched:         {models.StatusPendingApproval},
	models.StatusMismatched:      {models.StatusPendingApproval},
	models.StatusNeedsReview:     {models.StatusPendingApproval},
	models.StatusPendingApproval: {models.StatusApproved, models.StatusRejected},
	models.StatusApproved:        {models.StatusPosted, models.StatusPostFailed},
	models.StatusPostFailed:      {models.StatusPosted, models.StatusVoid},
}

// CanTransition reports whether target is reachable from current.
func CanTransition(current, target models.InvoiceStatus) bool {
	for _, s := range legal[current] {
		if s == target {
			return true
		}
	}
	return false
}

type Service struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return s.store.GetInvoice(ctx, id)
}

// Create persists a freshly normalized invoice in the received state and
// appends its creation audit entry.
func (s *Service) Create(ctx context.Context, inv *models.Invoice, actor string, evidence map[string]any) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.Status = models.StatusReceived
	inv.Version = 1

	details, digest, err := encodeEvidence(evidence)
	if err != nil {
		return err
	}
	entry := &models.AuditEntry{
		ID:            uuid.New(),
		InvoiceID:     inv.ID,
		PriorStatus:   "",
		NewStatus:     models.StatusReceived,
		Actor:         actor,
		PayloadDigest: digest,
		Details:       details,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.CreateInvoice(ctx, inv, entry); err != nil {
		return err
	}
	s.log.Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("vendor", inv.Vendor))
	return nil
}

// Transition applies one state-machine step under optimistic concurrency.
// A stale expectedVersion never mutates stored state. On success the
// returned invoice reflects the new status and incremented version.
func (s *Service) Transition(ctx context.Context, invoiceID uuid.UUID, expectedVersion int, target models.InvoiceStatus, actor string, evidence map[string]any) (*models.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Version != expectedVersion {
		return nil, fmt.Errorf("%w: invoice %s at version %d, expected %d",
			faults.ErrConcurrentModification, invoiceID, inv.Version, expectedVersion)
	}
	if !CanTransition(inv.Status, target) {
		err := fmt.Errorf("%w: %s -> %s", faults.ErrIllegalTransition, inv.Status, target)
		s.log.Error("illegal transition attempted",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("from", string(inv.Status)),
			zap.String("to", string(target)),
			zap.String("actor", actor))
		return nil, err
	}

	details, digest, err := encodeEvidence(evidence)
	if err != nil {
		return nil, err
	}
	entry := &models.AuditEntry{
		ID:            uuid.New(),
		InvoiceID:     invoiceID,
		PriorStatus:   inv.Status,
		NewStatus:     target,
		Actor:         actor,
		PayloadDigest: digest,
		Details:       details,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.ApplyTransition(ctx, invoiceID, expectedVersion, target, entry); err != nil {
		return nil, err
	}

	inv.Status = target
	inv.Version = expectedVersion + 1
	s.log.Info("invoice transitioned",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("from", string(entry.PriorStatus)),
		zap.String("to", string(target)),
		zap.Int("version", inv.Version),
		zap.String("actor", actor))
	return inv, nil
}

func encodeEvidence(evidence map[string]any) (datatypes.JSON, string, error) {
	if evidence == nil {
		evidence = map[string]any{}
	}
	raw, err := json.Marshal(evidence)
	if err != nil {
		return nil, "", fmt.Errorf("encode evidence: %w", err)
	}
	sum := sha256.Sum256(raw)
	return datatypes.JSON(raw), hex.EncodeToString(sum[:]), nil
}
