package lifecycle

import (
	"context"
	"testing"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore()
	return New(store, zap.NewNop()), store
}

func testInvoice() *models.Invoice {
	return &models.Invoice{
		ID:            uuid.New(),
		Vendor:        "Acme Corp",
		InvoiceNumber: "INV-1001",
		Revision:      1,
		Currency:      "USD",
		Total:         decimal.RequireFromString("123.45"),
		POReference:   "PO-1234",
	}
}

func TestCreateStartsAtReceivedVersionOne(t *testing.T) {
	svc, store := newService(t)
	inv := testInvoice()

	require.NoError(t, svc.Create(context.Background(), inv, "extraction-normalizer", nil))

	stored, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, stored.Status)
	assert.Equal(t, 1, stored.Version)

	entries := store.AuditFor(inv.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.InvoiceStatus(""), entries[0].PriorStatus)
	assert.Equal(t, models.StatusReceived, entries[0].NewStatus)
	assert.NotEmpty(t, entries[0].PayloadDigest)
}

func TestTransitionIncrementsVersionAndAppendsAudit(t *testing.T) {
	svc, store := newService(t)
	inv := testInvoice()
	require.NoError(t, svc.Create(context.Background(), inv, "test", nil))

	updated, err := svc.Transition(context.Background(), inv.ID, 1, models.StatusExtracted, "extraction-normalizer", map[string]any{"artifact_id": "a-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracted, updated.Status)
	assert.Equal(t, 2, updated.Version)

	entries := store.AuditFor(inv.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, models.StatusReceived, entries[1].PriorStatus)
	assert.Equal(t, models.StatusExtracted, entries[1].NewStatus)
	assert.Equal(t, "extraction-normalizer", entries[1].Actor)
}

func TestTransitionIllegalTargetRejected(t *testing.T) {
	svc, store := newService(t)
	inv := testInvoice()
	require.NoError(t, svc.Create(context.Background(), inv, "test", nil))

	_, err := svc.Transition(context.Background(), inv.ID, 1, models.StatusApproved, "test", nil)
	assert.ErrorIs(t, err, faults.ErrIllegalTransition)

	stored, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, stored.Status)
	assert.Equal(t, 1, stored.Version)
	assert.Len(t, store.AuditFor(inv.ID), 1)
}

func TestTransitionStaleVersionNeverMutates(t *testing.T) {
	svc, store := newService(t)
	inv := testInvoice()
	require.NoError(t, svc.Create(context.Background(), inv, "test", nil))
	_, err := svc.Transition(context.Background(), inv.ID, 1, models.StatusExtracted, "test", nil)
	require.NoError(t, err)

	// Retry with the old version.
	_, err = svc.Transition(context.Background(), inv.ID, 1, models.StatusMatched, "test", nil)
	assert.ErrorIs(t, err, faults.ErrConcurrentModification)

	stored, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracted, stored.Status)
	assert.Equal(t, 2, stored.Version)
	assert.Len(t, store.AuditFor(inv.ID), 2)
}

func TestFullLifecycleToPosted(t *testing.T) {
	svc, store := newService(t)
	inv := testInvoice()
	require.NoError(t, svc.Create(context.Background(), inv, "test", nil))

	steps := []models.InvoiceStatus{
		models.StatusExtracted,
		models.StatusMismatched,
		models.StatusPendingApproval,
		models.StatusApproved,
		models.StatusPostFailed,
		models.StatusPosted,
	}
	version := 1
	for _, target := range steps {
		updated, err := svc.Transition(context.Background(), inv.ID, version, target, "test", nil)
		require.NoError(t, err, "transition to %s", target)
		version = updated.Version
	}

	stored, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPosted, stored.Status)
	assert.Equal(t, len(steps)+1, stored.Version)
	assert.Len(t, store.AuditFor(inv.ID), len(steps)+1)
	assert.True(t, stored.Status.Terminal())
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []models.InvoiceStatus{models.StatusPosted, models.StatusRejected, models.StatusVoid} {
		assert.Empty(t, legal[s], "terminal state %s must define no transitions", s)
		assert.True(t, s.Terminal())
	}
}

func TestCanTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(models.StatusReceived, models.StatusExtracted))
	assert.True(t, CanTransition(models.StatusPostFailed, models.StatusVoid))
	assert.True(t, CanTransition(models.StatusPostFailed, models.StatusPosted))
	assert.False(t, CanTransition(models.StatusReceived, models.StatusPosted))
	assert.False(t, CanTransition(models.StatusRejected, models.StatusPendingApproval))
	assert.False(t, CanTransition(models.StatusPosted, models.StatusVoid))
}
