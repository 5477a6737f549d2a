package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// POLine is one line of a purchase-order snapshot as fetched at match time.
type POLine struct {
	LineIndex int             `json:"line_index"`
	SKU       string          `json:"sku"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PurchaseOrderSnapshot is a point-in-time copy of PO data, not the live PO.
// Retained for audit; never updated after creation.
type PurchaseOrderSnapshot struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	PONumber  string    `gorm:"index"`
	InvoiceID uuid.UUID `gorm:"type:uuid;index"`
	Lines     datatypes.JSON
	FetchedAt time.Time
	CreatedAt time.Time
}
