package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	StatusReceived        InvoiceStatus = "received"
	StatusExtracted       InvoiceStatus = "extracted"
	StatusMatched         InvoiceStatus = "matched"
	StatusMismatched      InvoiceStatus = "mismatched"
	StatusNeedsReview     InvoiceStatus = "needs_review"
	StatusPendingApproval InvoiceStatus = "pending_approval"
	StatusApproved        InvoiceStatus = "approved"
	StatusRejected        InvoiceStatus = "rejected"
	StatusPosted          InvoiceStatus = "posted"
	StatusPostFailed      InvoiceStatus = "post_failed"
	StatusVoid            InvoiceStatus = "void"
)

// Terminal reports whether no further transition is defined from s.
func (s InvoiceStatus) Terminal() bool {
	return s == StatusPosted || s == StatusRejected || s == StatusVoid
}

type Invoice struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	Vendor        string    `gorm:"index:ux_invoices_natural_key,unique,priority:1"`
	InvoiceNumber string    `gorm:"index:ux_invoices_natural_key,unique,priority:2"`
	// Revision increments when the same vendor invoice is re-extracted.
	// Line items are immutable, so a re-extraction creates a new row.
	Revision    int             `gorm:"index:ux_invoices_natural_key,unique,priority:3"`
	ArtifactID  string          `gorm:"index"`
	InvoiceDate time.Time       `gorm:"column:invoice_date"`
	Currency    string          `gorm:"size:3"`
	Total       decimal.Decimal `gorm:"type:numeric(12,2)"`
	POReference string          `gorm:"column:po_reference;index"`
	Status      InvoiceStatus   `gorm:"index"`
	// Version increments exactly once per accepted transition. Every
	// transition carries an expected version (optimistic concurrency).
	Version     int
	ExtractedAt time.Time
	LineItems   []LineItem `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
