package models

import (
	"time"

	"github.com/google/uuid"
)

type PostingState string

const (
	PostingClaimed PostingState = "claimed"
	PostingPosted  PostingState = "posted"
	PostingFailed  PostingState = "failed"
)

// PostingRecord claims the posting slot for (invoice, version at approval).
// The unique index is the mutual-exclusion primitive that makes the ledger
// post at-most-once under concurrent invocation. LedgerIdempotencyKey is
// fixed at first claim and reused on every retry so a ledger that
// deduplicates by key cannot create a duplicate entry.
type PostingRecord struct {
	ID                   uuid.UUID    `gorm:"type:uuid;primaryKey"`
	InvoiceID            uuid.UUID    `gorm:"type:uuid;index:ux_posting_slot,unique,priority:1"`
	ApprovedVersion      int          `gorm:"index:ux_posting_slot,unique,priority:2"`
	State                PostingState `gorm:"index"`
	LedgerIdempotencyKey string       `gorm:"uniqueIndex"`
	ExternalID           string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
