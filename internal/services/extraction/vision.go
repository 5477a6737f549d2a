package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"invoice-hawk-backend/internal/faults"
)

// visionExtractor calls an HTTP OCR backend that runs a vision model over
// the stored artifact and returns structured fields as loose JSON.
type visionExtractor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewVisionExtractor(baseURL, apiKey string) Extractor {
	return &visionExtractor{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (v *visionExtractor) Extract(ctx context.Context, artifactID string) (*RawExtraction, error) {
	body, _ := json.Marshal(map[string]string{"artifact_id": artifactID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: extraction backend: %v", faults.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: artifact %s", faults.ErrUnsupportedDocument, artifactID)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: extraction backend returned %d", faults.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("extraction backend returned %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read extraction response: %v", faults.ErrUpstreamUnavailable, err)
	}
	return decodeRaw(payload)
}

// decodeRaw tolerates numbers or strings for numeric fields; backends are
// inconsistent about quoting. Everything stays stringly typed until the
// normalizer coerces it.
func decodeRaw(payload []byte) (*RawExtraction, error) {
	var loose struct {
		Vendor        string             `json:"vendor"`
		InvoiceNumber string             `json:"invoice_number"`
		InvoiceDate   string             `json:"invoice_date"`
		Total         json.Number        `json:"total"`
		POReference   string             `json:"purchase_order_number"`
		Confidence    map[string]float64 `json:"confidence"`
		LineItems     []struct {
			Description string      `json:"description"`
			SKU         string      `json:"sku"`
			Quantity    json.Number `json:"quantity"`
			UnitPrice   json.Number `json:"price"`
		} `json:"line_items"`
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&loose); err != nil {
		return nil, fmt.Errorf("decode extraction payload: %w", err)
	}

	raw := &RawExtraction{
		Vendor:        loose.Vendor,
		InvoiceNumber: loose.InvoiceNumber,
		InvoiceDate:   loose.InvoiceDate,
		Total:         loose.Total.String(),
		POReference:   loose.POReference,
		Confidence:    loose.Confidence,
	}
	for _, li := range loose.LineItems {
		raw.LineItems = append(raw.LineItems, RawLineItem{
			Description: li.Description,
			SKU:         li.SKU,
			Quantity:    li.Quantity.String(),
			UnitPrice:   li.UnitPrice.String(),
		})
	}
	return raw, nil
}
