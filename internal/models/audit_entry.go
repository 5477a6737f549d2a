package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditEntry is append-only: one row per accepted transition or external
// action. Never mutated or deleted.
type AuditEntry struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey"`
	InvoiceID     uuid.UUID     `gorm:"type:uuid;index:idx_audit_invoice_time,priority:1"`
	PriorStatus   InvoiceStatus `gorm:"column:prior_status"`
	NewStatus     InvoiceStatus `gorm:"column:new_status"`
	Actor         string
	PayloadDigest string `gorm:"size:64"`
	Details       datatypes.JSON
	CreatedAt     time.Time `gorm:"index:idx_audit_invoice_time,priority:2"`
}
