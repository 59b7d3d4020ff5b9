package email

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"
)

// OrderInfo contains all the information needed for order email templates
type OrderInfo struct {
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	Channel       string
	OrderDate     string
	Items         []OrderItem
	Total         string
}

// OrderItem represents a single line in an order
type OrderItem struct {
	Name      string
	Quantity  int
	UnitPrice string
	LineTotal string
}

// EmailTemplate defines a named email template
type EmailTemplate struct {
	Name string
	HTML string
	Text string
}

// Renderer provides methods to render email templates
type Renderer struct {
	templates *template.Template
}

// NewRenderer creates a new email template renderer with built-in templates
func NewRenderer() (*Renderer, error) {
	templates := map[string]EmailTemplate{
		"order_shipped": {
			Name: "Order Shipped",
			HTML: orderShippedHTML,
			Text: orderShippedText,
		},
		"order_delivered": {
			Name: "Order Delivered",
			HTML: orderDeliveredHTML,
			Text: orderDeliveredText,
		},
	}

	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("January 2, 2006")
		},
	}

	tmpl := template.New("email").Funcs(funcMap)

	for key, t := range templates {
		_, err := tmpl.New(key + "_html").Parse(t.HTML)
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", key, err)
		}
		_, err = tmpl.New(key + "_text").Parse(t.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", key, err)
		}
	}

	return &Renderer{
		templates: tmpl,
	}, nil
}

// Render renders an email template with the given data
func (r *Renderer) Render(ctx context.Context, templateName string, data *OrderInfo) (*Email, error) {
	var htmlBuf, textBuf bytes.Buffer

	err := r.templates.ExecuteTemplate(&htmlBuf, templateName+"_html", data)
	if err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	err = r.templates.ExecuteTemplate(&textBuf, templateName+"_text", data)
	if err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	subject := ""
	switch templateName {
	case "order_shipped":
		subject = fmt.Sprintf("Your Order Has Shipped - %s", data.OrderNumber)
	case "order_delivered":
		subject = fmt.Sprintf("Your Order Has Been Delivered - %s", data.OrderNumber)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: subject,
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

// SendOrderShipped sends an order shipped email
func SendOrderShipped(ctx context.Context, p Provider, orderInfo *OrderInfo) error {
	if p == nil {
		return nil
	}

	renderer, err := NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	email, err := renderer.Render(ctx, "order_shipped", orderInfo)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	return p.SendEmail(ctx, email)
}

// SendOrderDelivered sends an order delivered email
func SendOrderDelivered(ctx context.Context, p Provider, orderInfo *OrderInfo) error {
	if p == nil {
		return nil
	}

	renderer, err := NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	email, err := renderer.Render(ctx, "order_delivered", orderInfo)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	return p.SendEmail(ctx, email)
}

const orderShippedText = `Good news, {{.CustomerName}}!

Your order {{.OrderNumber}} is on its way.

Order placed: {{.OrderDate}}
{{range .Items}}
- {{.Name}} x{{.Quantity}} ({{.LineTotal}})
{{end}}
Total: {{.Total}}

We will let you know as soon as it arrives.
`

const orderShippedHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222; max-width: 560px; margin: 0 auto;">
  <h2>Your order has shipped</h2>
  <p>Good news, {{.CustomerName}}! Order <strong>{{.OrderNumber}}</strong> is on its way.</p>
  <table style="width: 100%; border-collapse: collapse;">
    {{range .Items}}
    <tr>
      <td style="padding: 4px 0;">{{.Name}} &times;{{.Quantity}}</td>
      <td style="padding: 4px 0; text-align: right;">{{.LineTotal}}</td>
    </tr>
    {{end}}
    <tr>
      <td style="padding: 8px 0; border-top: 1px solid #ddd;"><strong>Total</strong></td>
      <td style="padding: 8px 0; border-top: 1px solid #ddd; text-align: right;"><strong>{{.Total}}</strong></td>
    </tr>
  </table>
  <p>We will let you know as soon as it arrives.</p>
</body>
</html>`

const orderDeliveredText = `Hi {{.CustomerName}},

Your order {{.OrderNumber}} has been delivered.

Total: {{.Total}}

Thanks for shopping with us!
`

const orderDeliveredHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222; max-width: 560px; margin: 0 auto;">
  <h2>Your order has been delivered</h2>
  <p>Hi {{.CustomerName}}, order <strong>{{.OrderNumber}}</strong> has been delivered.</p>
  <p><strong>Total:</strong> {{.Total}}</p>
  <p>Thanks for shopping with us!</p>
</body>
</html>`
