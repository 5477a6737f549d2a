package repository

import (
	"context"
	"errors"
	"fmt"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("line_index ASC") }).
		First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: invoice %s", faults.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvoice persists the invoice, its line items, and the creation
// audit entry in one transaction.
func (r *InvoiceRepository) CreateInvoice(ctx context.Context, inv *models.Invoice, entry *models.AuditEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(inv).Error; err != nil {
			return err
		}
		return tx.Create(entry).Error
	})
}

// ApplyTransition is the atomic read-check-write at the heart of the state
// machine: a conditional UPDATE guarded by the version precondition plus
// the audit append, in one transaction. A stale version changes nothing.
func (r *InvoiceRepository) ApplyTransition(ctx context.Context, invoiceID uuid.UUID, expectedVersion int, target models.InvoiceStatus, entry *models.AuditEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND version = ?", invoiceID, expectedVersion).
			Updates(map[string]interface{}{
				"status":  target,
				"version": gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Invoice{}).Where("id = ?", invoiceID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: invoice %s", faults.ErrNotFound, invoiceID)
			}
			return fmt.Errorf("%w: invoice %s version %d is stale",
				faults.ErrConcurrentModification, invoiceID, expectedVersion)
		}
		return tx.Create(entry).Error
	})
}

// LatestRevision returns the highest stored revision for a vendor invoice
// number, 0 when none exists.
func (r *InvoiceRepository) LatestRevision(ctx context.Context, vendor, invoiceNumber string) (int, error) {
	var rev int
	err := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("vendor = ? AND invoice_number = ?", vendor, invoiceNumber).
		Select("COALESCE(MAX(revision), 0)").
		Scan(&rev).Error
	return rev, err
}
