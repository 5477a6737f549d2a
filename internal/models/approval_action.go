package models

import (
	"time"

	"github.com/google/uuid"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ApprovalAction is the durable inbox record for one inbound decision event.
// The idempotency key is derived from the external event id and the invoice
// id; at most one action per key is ever applied, so redeliveries replay the
// recorded outcome instead of re-invoking the state machine.
type ApprovalAction struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	IdempotencyKey string    `gorm:"uniqueIndex"`
	InvoiceID      uuid.UUID `gorm:"type:uuid;index"`
	Actor          string
	Decision       Decision
	// OutcomeStatus is the invoice status observed after this action was
	// first processed. Duplicates return it unchanged.
	OutcomeStatus InvoiceStatus
	Applied       bool
	ReceivedAt    time.Time
	CreatedAt     time.Time
}
