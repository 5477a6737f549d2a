package matching

import (
	"github.com/shopspring/decimal"

	"invoice-hawk-backend/internal/models"
)

// Config is the deployment match policy. Tolerances are relative to the PO
// value; the applied values are copied onto every outcome for audit.
type Config struct {
	QtyTolerance   decimal.Decimal
	PriceTolerance decimal.Decimal
	// LineKey selects line pairing: "sku" pairs by SKU, "index" by position.
	LineKey string
}

// Outcome is the verdict of one match attempt plus the policy that produced it.
type Outcome struct {
	Verdict       models.MatchVerdict
	Discrepancies []models.Discrepancy
	Applied       Config
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

var hundred = decimal.NewFromInt(100)

// Evaluate compares a normalized invoice against a PO snapshot.
//
// Verdict rules: matched iff the PO reference matches and every line passes
// every numeric check; needs_review when structural issues (missing PO
// reference, unmatched lines, zero PO divisors) keep the numeric checks from
// being evaluated; mismatched when a numeric check exceeds tolerance.
func (e *Engine) Evaluate(inv *models.Invoice, poNumber string, poLines []models.POLine) Outcome {
	out := Outcome{Applied: e.cfg}

	if inv.POReference == "" || inv.POReference != poNumber {
		out.Verdict = models.VerdictNeedsReview
		out.Discrepancies = append(out.Discrepancies, models.Discrepancy{
			Kind:     models.DiscrepancyPOReference,
			Field:    "po_reference",
			Expected: poNumber,
			Actual:   inv.POReference,
		})
		return out
	}

	structural := false
	exceeded := false
	claimed := make([]bool, len(poLines))

	for _, line := range inv.LineItems {
		poIdx := e.pairLine(line, poLines, claimed)
		if poIdx < 0 {
			structural = true
			out.Discrepancies = append(out.Discrepancies, models.Discrepancy{
				Kind:      models.DiscrepancyUnmatchedLine,
				LineIndex: line.LineIndex,
				Field:     "line",
				Actual:    line.Description,
			})
			continue
		}
		claimed[poIdx] = true
		po := poLines[poIdx]

		if s, x := e.checkField(&out, line.LineIndex, models.DiscrepancyQuantity, "quantity",
			line.Quantity, po.Quantity, e.cfg.QtyTolerance); true {
			structural = structural || s
			exceeded = exceeded || x
		}
		if s, x := e.checkField(&out, line.LineIndex, models.DiscrepancyUnitPrice, "unit_price",
			line.UnitPrice, po.UnitPrice, e.cfg.PriceTolerance); true {
			structural = structural || s
			exceeded = exceeded || x
		}
	}

	switch {
	case structural:
		out.Verdict = models.VerdictNeedsReview
	case exceeded:
		out.Verdict = models.VerdictMismatched
	default:
		out.Verdict = models.VerdictMatched
	}
	return out
}

// pairLine returns the index of the PO line this invoice line corresponds
// to, or -1. Tie-break is always the lowest unclaimed PO line index.
func (e *Engine) pairLine(line models.LineItem, poLines []models.POLine, claimed []bool) int {
	for i, po := range poLines {
		if claimed[i] {
			continue
		}
		if e.cfg.LineKey == "sku" {
			if line.SKU != "" && line.SKU == po.SKU {
				return i
			}
			continue
		}
		if po.LineIndex == line.LineIndex {
			return i
		}
	}
	return -1
}

// checkField runs one relative-tolerance check. A zero PO value cannot be
// evaluated and is recorded as po_zero_reference rather than passing.
// Returns (structural, exceeded).
func (e *Engine) checkField(out *Outcome, lineIndex int, kind, field string, invVal, poVal, tol decimal.Decimal) (bool, bool) {
	if poVal.IsZero() {
		out.Discrepancies = append(out.Discrepancies, models.Discrepancy{
			Kind:      models.DiscrepancyPOZeroReference,
			LineIndex: lineIndex,
			Field:     field,
			Expected:  poVal.String(),
			Actual:    invVal.String(),
		})
		return true, false
	}
	delta := invVal.Sub(poVal).Abs().Div(poVal)
	if delta.GreaterThan(tol) {
		out.Discrepancies = append(out.Discrepancies, models.Discrepancy{
			Kind:      kind,
			LineIndex: lineIndex,
			Field:     field,
			Expected:  poVal.String(),
			Actual:    invVal.String(),
			DeltaPct:  delta.Mul(hundred),
		})
		return false, true
	}
	return false, false
}
