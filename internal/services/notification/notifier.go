package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"invoice-hawk-backend/internal/models"
)

// Notifier delivers human-facing messages. Delivery is fire-and-forget:
// callers log failures and never roll back a state transition over one.
type Notifier interface {
	ReviewRequested(ctx context.Context, inv *models.Invoice, verdict models.MatchVerdict, discrepancies []models.Discrepancy, channel string) error
	TerminalState(ctx context.Context, inv *models.Invoice, channel string) error
}

// webhookNotifier posts Slack-style payloads to an incoming webhook.
type webhookNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewWebhookNotifier(webhookURL string) Notifier {
	return &webhookNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type message struct {
	Channel     string       `json:"channel,omitempty"`
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type attachment struct {
	Text       string   `json:"text"`
	Fallback   string   `json:"fallback"`
	CallbackID string   `json:"callback_id"`
	Color      string   `json:"color"`
	Actions    []action `json:"actions"`
}

type action struct {
	Name     string `json:"name"`
	Text     string `json:"text"`
	Type     string `json:"type"`
	Style    string `json:"style"`
	Value    string `json:"value"`
	ActionID string `json:"action_id"`
}

func (n *webhookNotifier) ReviewRequested(ctx context.Context, inv *models.Invoice, verdict models.MatchVerdict, discrepancies []models.Discrepancy, channel string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "*Invoice %s from %s*\n", inv.InvoiceNumber, inv.Vendor)
	fmt.Fprintf(&b, "Total: %s %s\n", inv.Currency, inv.Total.StringFixed(2))
	fmt.Fprintf(&b, "PO: %s\n", inv.POReference)
	fmt.Fprintf(&b, "Match verdict: %s\n", verdict)
	if len(discrepancies) > 0 {
		b.WriteString("\nDiscrepancies:\n")
		for _, d := range discrepancies {
			if d.DeltaPct.IsZero() {
				fmt.Fprintf(&b, "• %s %s (expected %s, got %s)\n", d.Kind, d.Field, d.Expected, d.Actual)
			} else {
				fmt.Fprintf(&b, "• %s %s: %s vs %s (Δ %s%%)\n", d.Kind, d.Field, d.Actual, d.Expected, d.DeltaPct.StringFixed(2))
			}
		}
	}
	if len(inv.LineItems) > 0 {
		b.WriteString("\nLine Items:\n")
		for _, li := range inv.LineItems {
			fmt.Fprintf(&b, "• %s × %s @ %s\n", li.Quantity, li.Description, li.UnitPrice.StringFixed(2))
		}
	}

	msg := message{
		Channel: channel,
		Text:    b.String(),
		Attachments: []attachment{{
			Text:       "Please review this invoice.",
			Fallback:   "You are unable to approve this invoice",
			CallbackID: "invoice_" + inv.ID.String(),
			Color:      "#3AA3E3",
			Actions: []action{
				{Name: "approve", Text: "Approve", Type: "button", Style: "primary", Value: inv.ID.String(), ActionID: "approve_invoice"},
				{Name: "reject", Text: "Reject", Type: "button", Style: "danger", Value: inv.ID.String(), ActionID: "reject_invoice"},
			},
		}},
	}
	return n.send(ctx, msg)
}

func (n *webhookNotifier) TerminalState(ctx context.Context, inv *models.Invoice, channel string) error {
	msg := message{
		Channel: channel,
		Text:    fmt.Sprintf("Invoice %s from %s is now %s.", inv.InvoiceNumber, inv.Vendor, inv.Status),
	}
	return n.send(ctx, msg)
}

func (n *webhookNotifier) send(ctx context.Context, msg message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}

// NopNotifier is used when no webhook is configured.
type NopNotifier struct{}

func (NopNotifier) ReviewRequested(context.Context, *models.Invoice, models.MatchVerdict, []models.Discrepancy, string) error {
	return nil
}

func (NopNotifier) TerminalState(context.Context, *models.Invoice, string) error {
	return nil
}
