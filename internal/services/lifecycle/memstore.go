package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store with the same atomicity contract as the
// database repository: ApplyTransition is a mutex-guarded compare-and-set.
// Used in tests and local development without Postgres.
type MemStore struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*models.Invoice
	audit    []models.AuditEntry
}

func NewMemStore() *MemStore {
	return &MemStore{invoices: make(map[uuid.UUID]*models.Invoice)}
}

// Seed stores an invoice directly, bypassing the creation audit entry.
func (m *MemStore) Seed(inv *models.Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inv
	m.invoices[inv.ID] = &cp
}

func (m *MemStore) GetInvoice(_ context.Context, id uuid.UUID) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, fmt.Errorf("%w: invoice %s", faults.ErrNotFound, id)
	}
	cp := *inv
	cp.LineItems = append([]models.LineItem(nil), inv.LineItems...)
	return &cp, nil
}

func (m *MemStore) CreateInvoice(_ context.Context, inv *models.Invoice, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[inv.ID]; ok {
		return fmt.Errorf("invoice %s already exists", inv.ID)
	}
	cp := *inv
	cp.LineItems = append([]models.LineItem(nil), inv.LineItems...)
	m.invoices[inv.ID] = &cp
	m.audit = append(m.audit, *entry)
	return nil
}

func (m *MemStore) ApplyTransition(_ context.Context, invoiceID uuid.UUID, expectedVersion int, target models.InvoiceStatus, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("%w: invoice %s", faults.ErrNotFound, invoiceID)
	}
	if inv.Version != expectedVersion {
		return fmt.Errorf("%w: invoice %s version %d is stale",
			faults.ErrConcurrentModification, invoiceID, expectedVersion)
	}
	inv.Status = target
	inv.Version++
	m.audit = append(m.audit, *entry)
	return nil
}

// AuditFor returns the recorded entries for an invoice, oldest first.
func (m *MemStore) AuditFor(invoiceID uuid.UUID) []models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range m.audit {
		if e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out
}
