package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"
)

// POData is the purchase-order payload fetched at match time. The caller
// persists it as an immutable PurchaseOrderSnapshot.
type POData struct {
	PONumber string          `json:"po_number"`
	Lines    []models.POLine `json:"lines"`
}

// POLookup fetches purchase-order data from the procurement backend.
type POLookup interface {
	FetchPurchaseOrder(ctx context.Context, poReference string) (*POData, error)
}

type httpPOLookup struct {
	baseURL string
	client  *http.Client
}

func NewHTTPPOLookup(baseURL string) POLookup {
	return &httpPOLookup{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (l *httpPOLookup) FetchPurchaseOrder(ctx context.Context, poReference string) (*POData, error) {
	url := fmt.Sprintf("%s/po/%s", l.baseURL, poReference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: po lookup: %v", faults.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: purchase order %s", faults.ErrNotFound, poReference)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: po lookup returned %d", faults.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("po lookup returned %d", resp.StatusCode)
	}

	var data POData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode po payload: %w", err)
	}
	return &data, nil
}
