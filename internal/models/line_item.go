package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is immutable once created.
type LineItem struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	InvoiceID     uuid.UUID `gorm:"type:uuid;index"`
	LineIndex     int
	Description   string
	SKU           string          `gorm:"column:sku"`
	Quantity      decimal.Decimal `gorm:"type:numeric(12,3)"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(12,2)"`
	ExtendedPrice decimal.Decimal `gorm:"type:numeric(12,2)"`
	CreatedAt     time.Time
}
