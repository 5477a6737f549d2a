package processing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"
	"invoice-hawk-backend/internal/services/extraction"
	"invoice-hawk-backend/internal/services/lifecycle"
	"invoice-hawk-backend/internal/services/matching"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memProcessingStore struct {
	mu        sync.Mutex
	revisions map[string]int
	snapshots []*models.PurchaseOrderSnapshot
	results   map[uuid.UUID][]*models.MatchResult
}

func newMemProcessingStore() *memProcessingStore {
	return &memProcessingStore{
		revisions: make(map[string]int),
		results:   make(map[uuid.UUID][]*models.MatchResult),
	}
}

func (m *memProcessingStore) LatestRevision(_ context.Context, vendor, number string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revisions[vendor+"|"+number], nil
}

func (m *memProcessingStore) bumpRevision(vendor, number string, rev int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rev > m.revisions[vendor+"|"+number] {
		m.revisions[vendor+"|"+number] = rev
	}
}

func (m *memProcessingStore) SaveSnapshot(_ context.Context, snap *models.PurchaseOrderSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memProcessingStore) SaveMatchResult(_ context.Context, res *models.MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.InvoiceID] = append(m.results[res.InvoiceID], res)
	return nil
}

func (m *memProcessingStore) LatestMatchResult(_ context.Context, invoiceID uuid.UUID) (*models.MatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := m.results[invoiceID]
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no match result", faults.ErrNotFound)
	}
	return results[len(results)-1], nil
}

type fakePOLookup struct {
	data *matching.POData
	err  error
}

func (f *fakePOLookup) FetchPurchaseOrder(context.Context, string) (*matching.POData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	channels  []string
	terminals []models.InvoiceStatus
	err       error
}

func (r *recordingNotifier) ReviewRequested(_ context.Context, _ *models.Invoice, _ models.MatchVerdict, _ []models.Discrepancy, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channel)
	return r.err
}

func (r *recordingNotifier) TerminalState(_ context.Context, inv *models.Invoice, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminals = append(r.terminals, inv.Status)
	return r.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// stubPOData mirrors the stub extractor's line items exactly.
func stubPOData() *matching.POData {
	return &matching.POData{
		PONumber: "PO-1234",
		Lines: []models.POLine{
			{LineIndex: 0, SKU: "WID-1", Quantity: dec("10"), UnitPrice: dec("12.34")},
			{LineIndex: 1, SKU: "GAD-1", Quantity: dec("5"), UnitPrice: dec("7.89")},
		},
	}
}

func reviewChannel(verdict string) string {
	if verdict == "mismatched" {
		return "#ap-mismatches"
	}
	return "#ap-review"
}

type fixture struct {
	svc      *Service
	store    *memProcessingStore
	lcStore  *lifecycle.MemStore
	poLookup *fakePOLookup
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lcStore := lifecycle.NewMemStore()
	lc := lifecycle.New(lcStore, zap.NewNop())
	store := newMemProcessingStore()
	poLookup := &fakePOLookup{data: stubPOData()}
	notifier := &recordingNotifier{}
	engine := matching.NewEngine(matching.Config{
		QtyTolerance:   dec("0.01"),
		PriceTolerance: dec("0.02"),
		LineKey:        "index",
	})
	svc := New(extraction.NewStubExtractor(), poLookup, engine, lc, notifier, store,
		reviewChannel, "#ap-review", zap.NewNop())
	return &fixture{svc: svc, store: store, lcStore: lcStore, poLookup: poLookup, notifier: notifier}
}

func TestIngestArtifactCreatesExtractedInvoice(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.IngestArtifact(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracted, inv.Status)
	assert.Equal(t, 2, inv.Version)
	assert.Equal(t, 1, inv.Revision)
	assert.Equal(t, "INV-1001", inv.InvoiceNumber)

	// Creation plus the extracted transition: two audit entries.
	assert.Len(t, f.lcStore.AuditFor(inv.ID), 2)
}

func TestIngestArtifactReExtractionCreatesNewRevision(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.IngestArtifact(context.Background(), "1001")
	require.NoError(t, err)
	f.store.bumpRevision(first.Vendor, first.InvoiceNumber, first.Revision)

	second, err := f.svc.IngestArtifact(context.Background(), "1001")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Revision)
}

func TestMatchInvoicePersistsSnapshotAndResult(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.IngestArtifact(context.Background(), "1001")
	require.NoError(t, err)

	outcome, updated, err := f.svc.MatchInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictMatched, outcome.Verdict)
	assert.Equal(t, models.StatusMatched, updated.Status)
	assert.Equal(t, 3, updated.Version)

	require.Len(t, f.store.snapshots, 1)
	assert.Equal(t, "PO-1234", f.store.snapshots[0].PONumber)

	result, err := f.store.LatestMatchResult(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictMatched, result.Verdict)
	assert.True(t, result.QtyTolerance.Equal(dec("0.01")))
	assert.True(t, result.PriceTol.Equal(dec("0.02")))
	assert.Equal(t, "index", result.LineKey)
	require.NotNil(t, result.SnapshotID)
	assert.Equal(t, f.store.snapshots[0].ID, *result.SnapshotID)
}

func TestMatchInvoicePONotFoundNeedsReview(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.IngestArtifact(context.Background(), "1001")
	require.NoError(t, err)

	f.poLookup.err = fmt.Errorf("%w: purchase order PO-1234", faults.ErrNotFound)
	outcome, updated, err := f.svc.MatchInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictNeedsReview, outcome.Verdict)
	assert.Equal(t, models.StatusNeedsReview, updated.Status)
	assert.Empty(t, f.store.snapshots)

	var discrepancies []models.Discrepancy
	result, err := f.store.LatestMatchResult(context.Background(), inv.ID)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(result.Discrepancies, &discrepancies))
	require.Len(t, discrepancies, 1)
	assert.Equal(t, models.DiscrepancyPOReference, discrepancies[0].Kind)
}

func TestMatchInvoiceUpstreamFailurePropagates(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.IngestArtifact(context.Background(), "1001")
	require.NoError(t, err)

	f.poLookup.err = fmt.Errorf("%w: po lookup returned 503", faults.ErrUpstreamUnavailable)
	_, _, err = f.svc.MatchInvoice(context.Background(), inv.ID)
	assert.ErrorIs(t, err, faults.ErrUpstreamUnavailable)

	// Invoice unchanged; the stage can be retried.
	stored, err := f.lcStore.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracted, stored.Status)
}

func TestMatchInvoiceWrongStatusRejected(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.IngestArtifact(context.Background(), "1001")
	require.NoError(t, err)
	_, _, err = f.svc.MatchInvoice(context.Background(), inv.ID)
	require.NoError(t, err)

	_, _, err = f.svc.MatchInvoice(context.Background(), inv.ID)
	assert.ErrorIs(t, err, faults.ErrIllegalTransition)
}

func TestRequestApprovalRoutesByVerdict(t *testing.T) {
	f := newFixture(t)
	// Force a mismatch: PO price out of tolerance.
	f.poLookup.data.Lines[0].UnitPrice = dec("10.00")

	inv, err := f.svc.IngestArtifact(context.Background(), "1001")
	require.NoError(t, err)
	outcome, _, err := f.svc.MatchInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, models.VerdictMismatched, outcome.Verdict)

	updated, err := f.svc.RequestApproval(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, updated.Status)
	require.Len(t, f.notifier.channels, 1)
	assert.Equal(t, "#ap-mismatches", f.notifier.channels[0])
}

func TestRequestApprovalNotifierFailureDoesNotBlockTransition(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = fmt.Errorf("webhook returned 500")

	inv, err := f.svc.IngestArtifact(context.Background(), "1001")
	require.NoError(t, err)
	_, _, err = f.svc.MatchInvoice(context.Background(), inv.ID)
	require.NoError(t, err)

	updated, err := f.svc.RequestApproval(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, updated.Status)
}

func TestNotifyTerminalSkipsNonTerminal(t *testing.T) {
	f := newFixture(t)
	f.svc.NotifyTerminal(context.Background(), &models.Invoice{Status: models.StatusPendingApproval})
	assert.Empty(t, f.notifier.terminals)

	f.svc.NotifyTerminal(context.Background(), &models.Invoice{Status: models.StatusPosted})
	assert.Equal(t, []models.InvoiceStatus{models.StatusPosted}, f.notifier.terminals)
}
