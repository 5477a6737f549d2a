package posting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"
)

// ledgerClient posts invoices to the ledger system's REST API. Transient
// failures (429 and 5xx) are retried with exponential backoff; the same
// idempotency key is sent on every attempt.
type ledgerClient struct {
	baseURL    string
	maxRetries int
	backoff    time.Duration
	client     *http.Client
	sleep      func(time.Duration)
}

func NewLedgerClient(baseURL string, maxRetries int, backoff time.Duration) Ledger {
	return &ledgerClient{
		baseURL:    baseURL,
		maxRetries: maxRetries,
		backoff:    backoff,
		client:     &http.Client{Timeout: 30 * time.Second},
		sleep:      time.Sleep,
	}
}

type ledgerLine struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
}

type ledgerRequest struct {
	InvoiceNumber  string       `json:"invoice_number"`
	Vendor         string       `json:"vendor"`
	InvoiceDate    string       `json:"invoice_date"`
	Currency       string       `json:"currency"`
	Total          string       `json:"total"`
	POReference    string       `json:"purchase_order_number"`
	IdempotencyKey string       `json:"idempotency_key"`
	LineItems      []ledgerLine `json:"line_items"`
}

func (c *ledgerClient) Post(ctx context.Context, inv *models.Invoice, idempotencyKey string) (string, error) {
	payload := ledgerRequest{
		InvoiceNumber:  inv.InvoiceNumber,
		Vendor:         inv.Vendor,
		InvoiceDate:    inv.InvoiceDate.Format("2006-01-02"),
		Currency:       inv.Currency,
		Total:          inv.Total.StringFixed(2),
		POReference:    inv.POReference,
		IdempotencyKey: idempotencyKey,
	}
	for _, li := range inv.LineItems {
		payload.LineItems = append(payload.LineItems, ledgerLine{
			Description: li.Description,
			Quantity:    li.Quantity.String(),
			Price:       li.UnitPrice.StringFixed(2),
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(c.backoff * (1 << (attempt - 1)))
		}
		externalID, retryable, err := c.attempt(ctx, body, idempotencyKey)
		if err == nil {
			return externalID, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: ledger post exhausted %d retries: %v",
		faults.ErrUpstreamUnavailable, c.maxRetries, lastErr)
}

func (c *ledgerClient) attempt(ctx context.Context, body []byte, idempotencyKey string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoice", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("%w: ledger: %v", faults.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("%w: ledger returned %d", faults.ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return "", false, fmt.Errorf("ledger returned %d: %s", resp.StatusCode, msg)
	}

	var out struct {
		ExternalID string `json:"external_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode ledger response: %w", err)
	}
	return out.ExternalID, false, nil
}
