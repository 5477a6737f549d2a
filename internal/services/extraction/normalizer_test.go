package extraction

import (
	"context"
	"testing"
	"time"

	"invoice-hawk-backend/internal/faults"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw() *RawExtraction {
	return &RawExtraction{
		Vendor:        "Acme Corp",
		InvoiceNumber: "INV-1001",
		InvoiceDate:   "2025-07-30",
		Total:         "123.456",
		POReference:   "PO-1234",
		LineItems: []RawLineItem{
			{Description: "Widget", SKU: "WID-1", Quantity: "10", UnitPrice: "12.34"},
			{Description: "Gadget", SKU: "GAD-1", Quantity: "5.5", UnitPrice: "7.891"},
		},
	}
}

func TestNormalizeCoercesFields(t *testing.T) {
	inv, err := Normalize(validRaw(), "artifact-1")
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", inv.Vendor)
	assert.Equal(t, "INV-1001", inv.InvoiceNumber)
	assert.Equal(t, "artifact-1", inv.ArtifactID)
	assert.Equal(t, "PO-1234", inv.POReference)
	// Money coerces to fixed two-decimal scale.
	assert.Equal(t, "123.46", inv.Total.StringFixed(2))
	assert.Equal(t, time.Date(2025, 7, 30, 0, 0, 0, 0, time.UTC), inv.InvoiceDate)

	require.Len(t, inv.LineItems, 2)
	li := inv.LineItems[1]
	assert.Equal(t, 1, li.LineIndex)
	assert.Equal(t, "5.5", li.Quantity.String())
	assert.Equal(t, "7.89", li.UnitPrice.StringFixed(2))
	assert.Equal(t, "43.40", li.ExtendedPrice.StringFixed(2))
	assert.Equal(t, inv.ID, li.InvoiceID)
}

func TestNormalizeMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawExtraction)
		field  string
	}{
		{"missing vendor", func(r *RawExtraction) { r.Vendor = "  " }, "vendor"},
		{"missing invoice number", func(r *RawExtraction) { r.InvoiceNumber = "" }, "invoice_number"},
		{"missing total", func(r *RawExtraction) { r.Total = "" }, "total"},
		{"unparseable total", func(r *RawExtraction) { r.Total = "12,34" }, "total"},
		{"bad date", func(r *RawExtraction) { r.InvoiceDate = "30/07/2025" }, "invoice_date"},
		{"no line items", func(r *RawExtraction) { r.LineItems = nil }, "line_items"},
		{"bad line quantity", func(r *RawExtraction) { r.LineItems[0].Quantity = "ten" }, "line_items[0].quantity"},
		{"bad line price", func(r *RawExtraction) { r.LineItems[1].UnitPrice = "" }, "line_items[1].price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(raw)
			_, err := Normalize(raw, "artifact-1")
			var verr *faults.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNormalizeNilPayload(t *testing.T) {
	_, err := Normalize(nil, "artifact-1")
	var verr *faults.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDecodeRawToleratesNumbersAndStrings(t *testing.T) {
	payload := []byte(`{
		"vendor": "Acme Corp",
		"invoice_number": "INV-1001",
		"invoice_date": "2025-07-30",
		"total": 123.45,
		"purchase_order_number": "PO-1234",
		"confidence": {"vendor": 0.99},
		"line_items": [
			{"description": "Widget", "sku": "WID-1", "quantity": 10, "price": 12.34}
		]
	}`)
	raw, err := decodeRaw(payload)
	require.NoError(t, err)
	assert.Equal(t, "123.45", raw.Total)
	require.Len(t, raw.LineItems, 1)
	assert.Equal(t, "10", raw.LineItems[0].Quantity)
	assert.Equal(t, "12.34", raw.LineItems[0].UnitPrice)
	assert.Equal(t, 0.99, raw.Confidence["vendor"])
}

func TestStubExtractorIsDeterministic(t *testing.T) {
	stub := NewStubExtractor()
	a, err := stub.Extract(context.Background(), "abc")
	require.NoError(t, err)
	b, err := stub.Extract(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "INV-abc", a.InvoiceNumber)

	inv, err := Normalize(a, "abc")
	require.NoError(t, err)
	assert.Len(t, inv.LineItems, 2)
}
