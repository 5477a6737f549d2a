package extraction

import "context"

// stubExtractor returns a deterministic payload keyed by artifact id. Used
// for local development and tests; selected with EXTRACTOR=stub.
type stubExtractor struct{}

func NewStubExtractor() Extractor {
	return stubExtractor{}
}

func (stubExtractor) Extract(_ context.Context, artifactID string) (*RawExtraction, error) {
	return &RawExtraction{
		Vendor:        "Acme Corp",
		InvoiceNumber: "INV-" + artifactID,
		InvoiceDate:   "2025-07-30",
		Total:         "123.45",
		POReference:   "PO-1234",
		LineItems: []RawLineItem{
			{Description: "Widget", SKU: "WID-1", Quantity: "10", UnitPrice: "12.34"},
			{Description: "Gadget", SKU: "GAD-1", Quantity: "5", UnitPrice: "7.89"},
		},
		Confidence: map[string]float64{"vendor": 0.99, "total": 0.97},
	}, nil
}
