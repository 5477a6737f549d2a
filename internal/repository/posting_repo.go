package repository

import (
	"context"
	"errors"
	"fmt"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostingRepository struct {
	db *gorm.DB
}

func NewPostingRepository(db *gorm.DB) *PostingRepository {
	return &PostingRepository{db: db}
}

// Claim inserts the posting record if the (invoice, approved version) slot
// is free. The unique index makes this the mutual-exclusion point for the
// whole posting path.
func (r *PostingRepository) Claim(ctx context.Context, rec *models.PostingRecord) (*models.PostingRecord, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}, {Name: "approved_version"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return rec, true, nil
	}
	var existing models.PostingRecord
	err := r.db.WithContext(ctx).
		First(&existing, "invoice_id = ? AND approved_version = ?", rec.InvoiceID, rec.ApprovedVersion).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("%w: posting record vanished", faults.ErrNotFound)
	}
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

// Reclaim flips a failed record back to claimed. The conditional update
// guarantees exactly one retrier wins.
func (r *PostingRepository) Reclaim(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PostingRecord{}).
		Where("id = ? AND state = ?", id, models.PostingFailed).
		Update("state", models.PostingClaimed)
	return res.RowsAffected > 0, res.Error
}

func (r *PostingRepository) MarkPosted(ctx context.Context, id uuid.UUID, externalID string) error {
	return r.db.WithContext(ctx).Model(&models.PostingRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":       models.PostingPosted,
			"external_id": externalID,
		}).Error
}

func (r *PostingRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.PostingRecord{}).
		Where("id = ?", id).
		Update("state", models.PostingFailed).Error
}
