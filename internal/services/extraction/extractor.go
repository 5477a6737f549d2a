package extraction

import "context"

// RawExtraction is the untyped field payload returned by an extraction
// backend. Values stay as strings until the normalizer coerces them.
type RawExtraction struct {
	Vendor        string             `json:"vendor"`
	InvoiceNumber string             `json:"invoice_number"`
	InvoiceDate   string             `json:"invoice_date"`
	Total         string             `json:"total"`
	POReference   string             `json:"purchase_order_number"`
	LineItems     []RawLineItem      `json:"line_items"`
	Confidence    map[string]float64 `json:"confidence,omitempty"`
}

type RawLineItem struct {
	Description string `json:"description"`
	SKU         string `json:"sku"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"price"`
}

// Extractor is the pluggable OCR backend capability. The normalizer is
// indifferent to which variant supplied the payload.
type Extractor interface {
	Extract(ctx context.Context, artifactID string) (*RawExtraction, error)
}
