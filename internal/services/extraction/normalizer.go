package extraction

import (
	"fmt"
	"strings"
	"time"

	"invoice-hawk-backend/internal/faults"
	"invoice-hawk-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Normalize validates a raw extraction payload and coerces it into an
// invoice with line items. Missing or unparseable required data fails with
// a ValidationError naming the field; values are never silently substituted.
// Persistence is the caller's responsibility.
func Normalize(raw *RawExtraction, artifactID string) (*models.Invoice, error) {
	if raw == nil {
		return nil, faults.Validation("payload", "no extraction payload")
	}

	vendor := strings.TrimSpace(raw.Vendor)
	if vendor == "" {
		return nil, faults.Validation("vendor", "missing")
	}
	number := strings.TrimSpace(raw.InvoiceNumber)
	if number == "" {
		return nil, faults.Validation("invoice_number", "missing")
	}

	total, err := parseAmount(raw.Total)
	if err != nil {
		return nil, faults.Validation("total", err.Error())
	}

	invoiceDate, err := time.Parse(dateLayout, strings.TrimSpace(raw.InvoiceDate))
	if err != nil {
		return nil, faults.Validation("invoice_date", fmt.Sprintf("expected %s date: %v", dateLayout, raw.InvoiceDate))
	}

	if len(raw.LineItems) == 0 {
		return nil, faults.Validation("line_items", "at least one line item is required")
	}

	now := time.Now().UTC()
	inv := &models.Invoice{
		ID:            uuid.New(),
		Vendor:        vendor,
		InvoiceNumber: number,
		ArtifactID:    artifactID,
		InvoiceDate:   invoiceDate,
		Currency:      "USD",
		Total:         total,
		POReference:   strings.TrimSpace(raw.POReference),
		ExtractedAt:   now,
	}

	for i, li := range raw.LineItems {
		qty, err := parseQuantity(li.Quantity)
		if err != nil {
			return nil, faults.Validation(fmt.Sprintf("line_items[%d].quantity", i), err.Error())
		}
		price, err := parseAmount(li.UnitPrice)
		if err != nil {
			return nil, faults.Validation(fmt.Sprintf("line_items[%d].price", i), err.Error())
		}
		inv.LineItems = append(inv.LineItems, models.LineItem{
			ID:            uuid.New(),
			InvoiceID:     inv.ID,
			LineIndex:     i,
			Description:   strings.TrimSpace(li.Description),
			SKU:           strings.TrimSpace(li.SKU),
			Quantity:      qty,
			UnitPrice:     price,
			ExtendedPrice: qty.Mul(price).Round(2),
			CreatedAt:     now,
		})
	}
	return inv, nil
}

// parseAmount coerces a money field to fixed two-decimal scale.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("missing")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unparseable amount %q", s)
	}
	return d.Round(2), nil
}

func parseQuantity(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("missing")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unparseable quantity %q", s)
	}
	return d, nil
}
