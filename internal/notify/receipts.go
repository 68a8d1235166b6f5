// Package notify e-mails order receipts.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/config"
	"github.com/fjod/go_pharmacy/internal/events"
)

const storeName = "Pharmacy"

type mailer interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Receipts sends a receipt for every order-placed event that carries an
// e-mail address.
type Receipts struct {
	apiKey    config.SecretFunc
	from      *mail.Email
	log       *zap.Logger
	newMailer func(apiKey string) mailer
}

func NewReceipts(apiKey config.SecretFunc, from string, log *zap.Logger) *Receipts {
	return &Receipts{
		apiKey: apiKey,
		from:   mail.NewEmail(storeName, from),
		log:    log,
		newMailer: func(key string) mailer {
			return sendgrid.NewSendClient(key)
		},
	}
}

func (r *Receipts) HandleOrderPlaced(ctx context.Context, ev events.OrderPlaced) error {
	if strings.TrimSpace(ev.Email) == "" {
		r.log.Debug("no recipient for receipt", zap.String("order_id", ev.OrderID))
		return nil
	}
	if r.from.Address == "" {
		return fmt.Errorf("receipt sender address is empty")
	}

	key, err := r.apiKey(ctx)
	if err != nil {
		return fmt.Errorf("sendgrid api key: %w", err)
	}

	subject, text, html, err := composeReceipt(ev)
	if err != nil {
		return err
	}
	msg := mail.NewSingleEmail(r.from, subject, mail.NewEmail(ev.DisplayName, ev.Email), text, html)

	resp, err := r.newMailer(key).SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", resp.StatusCode, resp.Body)
	}

	r.log.Info("receipt sent",
		zap.String("order_id", ev.OrderID),
		zap.Int("status", resp.StatusCode))
	return nil
}

type receiptLine struct {
	Name     string
	Quantity int
	Subtotal string
}

type receiptView struct {
	Greeting string
	OrderID  string
	Lines    []receiptLine
	Total    string
	Currency string
}

var receiptHTML = template.Must(template.New("receipt").Parse(`<p>{{.Greeting}}</p>
<p>Thank you for your order <strong>{{.OrderID}}</strong>.</p>
<table>
{{range .Lines}}<tr><td>{{.Quantity}} x {{.Name}}</td><td>{{.Subtotal}}</td></tr>
{{end}}<tr><td><strong>Total</strong></td><td><strong>{{.Total}} {{.Currency}}</strong></td></tr>
</table>`))

func composeReceipt(ev events.OrderPlaced) (subject, text, html string, err error) {
	view := receiptView{
		Greeting: "Hello,",
		OrderID:  ev.OrderID,
		Total:    decimal.NewFromFloat(ev.TotalAmount).StringFixed(2),
		Currency: strings.ToUpper(ev.Currency),
	}
	if ev.DisplayName != "" {
		view.Greeting = "Hello " + ev.DisplayName + ","
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nThank you for your order %s.\n\n", view.Greeting, ev.OrderID)
	for _, it := range ev.Items {
		line := receiptLine{Name: it.Name, Quantity: it.Quantity, Subtotal: it.Subtotal().StringFixed(2)}
		view.Lines = append(view.Lines, line)
		fmt.Fprintf(&b, "%d x %s  %s\n", line.Quantity, line.Name, line.Subtotal)
	}
	fmt.Fprintf(&b, "\nTotal: %s %s\n", view.Total, view.Currency)

	var h bytes.Buffer
	if err := receiptHTML.Execute(&h, view); err != nil {
		return "", "", "", fmt.Errorf("render receipt: %w", err)
	}
	return fmt.Sprintf("Your %s order %s", storeName, ev.OrderID), b.String(), h.String(), nil
}
