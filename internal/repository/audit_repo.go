package repository

import (
	"context"
	"time"

	"invoice-hawk-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// ListByInvoice returns audit entries for an invoice, oldest first,
// optionally bounded to a time range. Entries are append-only; there is no
// update or delete path.
func (r *AuditRepository) ListByInvoice(ctx context.Context, invoiceID uuid.UUID, from, to time.Time) ([]models.AuditEntry, error) {
	q := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC")
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("created_at <= ?", to)
	}
	var entries []models.AuditEntry
	err := q.Find(&entries).Error
	return entries, err
}
