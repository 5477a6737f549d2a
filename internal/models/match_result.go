package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type MatchVerdict string

const (
	VerdictMatched     MatchVerdict = "matched"
	VerdictMismatched  MatchVerdict = "mismatched"
	VerdictNeedsReview MatchVerdict = "needs_review"
)

// Discrepancy kinds recorded on a MatchResult.
const (
	DiscrepancyPOReference     = "po_reference"
	DiscrepancyUnmatchedLine   = "unmatched_line"
	DiscrepancyPOZeroReference = "po_zero_reference"
	DiscrepancyQuantity        = "quantity"
	DiscrepancyUnitPrice       = "unit_price"
)

// Discrepancy is one per-field disagreement between invoice and PO.
type Discrepancy struct {
	Kind      string          `json:"kind"`
	LineIndex int             `json:"line_index,omitempty"`
	Field     string          `json:"field"`
	Expected  string          `json:"expected"`
	Actual    string          `json:"actual"`
	DeltaPct  decimal.Decimal `json:"delta_pct"`
}

// MatchResult is attached to the invoice per match attempt; only the latest
// attempt governs the current status. The applied tolerances and line-pairing
// strategy are recorded so the verdict can be audited against policy.
type MatchResult struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey"`
	InvoiceID     uuid.UUID    `gorm:"type:uuid;index"`
	SnapshotID    *uuid.UUID   `gorm:"type:uuid"`
	Verdict       MatchVerdict `gorm:"index"`
	Discrepancies datatypes.JSON
	QtyTolerance  decimal.Decimal `gorm:"type:numeric(6,4)"`
	PriceTol      decimal.Decimal `gorm:"column:price_tolerance;type:numeric(6,4)"`
	LineKey       string
	CreatedAt     time.Time `gorm:"index"`
}
