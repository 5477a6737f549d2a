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

type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) SaveSnapshot(ctx context.Context, snap *models.PurchaseOrderSnapshot) error {
	return r.db.WithContext(ctx).Create(snap).Error
}

func (r *MatchRepository) SaveMatchResult(ctx context.Context, res *models.MatchResult) error {
	return r.db.WithContext(ctx).Create(res).Error
}

// LatestMatchResult returns the most recent match attempt; only the latest
// governs the current status.
func (r *MatchRepository) LatestMatchResult(ctx context.Context, invoiceID uuid.UUID) (*models.MatchResult, error) {
	var res models.MatchResult
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at DESC").
		First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no match result for invoice %s", faults.ErrNotFound, invoiceID)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ProcessingStore aggregates the repositories the processing service needs.
type ProcessingStore struct {
	*InvoiceRepository
	*MatchRepository
}
