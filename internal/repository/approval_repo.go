package repository

import (
	"context"

	"invoice-hawk-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Record inserts the action if its idempotency key is new. On a duplicate
// key the stored action is returned unchanged; redeliveries never overwrite
// the first outcome.
func (r *ApprovalRepository) Record(ctx context.Context, action *models.ApprovalAction) (*models.ApprovalAction, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "idempotency_key"}}, DoNothing: true}).
		Create(action)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return action, true, nil
	}
	var existing models.ApprovalAction
	if err := r.db.WithContext(ctx).
		First(&existing, "idempotency_key = ?", action.IdempotencyKey).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *ApprovalRepository) MarkOutcome(ctx context.Context, id uuid.UUID, outcome models.InvoiceStatus, applied bool) error {
	return r.db.WithContext(ctx).Model(&models.ApprovalAction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"outcome_status": outcome,
			"applied":        applied,
		}).Error
}
