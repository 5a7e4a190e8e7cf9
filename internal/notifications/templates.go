package notifications

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

const saleSubject = "Capital Creator: Your inventory spot has been sold!"

const saleHTML = `<!DOCTYPE html>
<html>
<body style="background-color:#000000;color:#ffffff;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif">
<div style="margin:20px auto 0;padding:20px 0 48px;width:580px;background-color:#0a0a0a;border:1px solid rgba(255,255,255,0.1)">
<p style="text-align:center;font-size:24px;font-weight:bold">CAPITAL<span style="color:#BF953F">CREATOR</span></p>
<h1 style="text-align:center">INVENTORY SOLD</h1>
<p>Congratulations{{with .RecipientName}}, {{.}}{{end}}! Your ad placement has been purchased by <strong>{{short .Buyer}}</strong>.</p>
<hr>
<p><strong>ITEM</strong><br>{{if .ItemID}}{{.ItemID}}{{else}}Inventory spot{{end}}</p>
<p><strong>SPONSOR</strong><br>{{short .Buyer}}</p>
<p><strong>SETTLEMENT</strong><br>{{.Amount}} {{.Token}} (price {{.Total}}, platform fee {{.Fee}})</p>
<p><strong>TRANSACTION</strong><br>{{if .ExplorerURL}}<a href="{{.ExplorerURL}}" style="color:#BF953F">{{.TxReference}}</a>{{else}}{{.TxReference}}{{end}}</p>
<hr>
<p>The funds have been routed to your connected wallet. The sponsor may reach out with their brand assets before your stream.</p>
<p>Thank you for using the Capital Creator marketplace.</p>
<p style="font-size:12px;color:#8898aa">Capital Creator Protocol</p>
</div>
</body>
</html>
`

const saleText = `INVENTORY SOLD

Congratulations{{with .RecipientName}}, {{.}}{{end}}! Your ad placement has been purchased by {{short .Buyer}}.

Item: {{if .ItemID}}{{.ItemID}}{{else}}Inventory spot{{end}}
Settlement: {{.Amount}} {{.Token}} (price {{.Total}}, platform fee {{.Fee}})
Transaction: {{.TxReference}}

The funds have been routed to your connected wallet.
`

const saleSMS = `Capital Creator: your inventory spot sold for {{.Total}} {{.Token}}. {{.Amount}} {{.Token}} was paid to your wallet (tx {{short .TxReference}}).`

var templateFuncs = map[string]any{"short": ShortAddress}

var (
	saleHTMLTemplate = htmltemplate.Must(htmltemplate.New("sale_html").Funcs(templateFuncs).Parse(saleHTML))
	saleTextTemplate = texttemplate.Must(texttemplate.New("sale_text").Funcs(templateFuncs).Parse(saleText))
	saleSMSTemplate  = texttemplate.Must(texttemplate.New("sale_sms").Funcs(templateFuncs).Parse(saleSMS))
)

// RenderedEmail is a rendered email ready to be sent
type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

// RenderSaleEmail renders the sale confirmation email
func RenderSaleEmail(data SaleConfirmation) (*RenderedEmail, error) {
	var html, text bytes.Buffer
	if err := saleHTMLTemplate.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}
	if err := saleTextTemplate.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}
	return &RenderedEmail{Subject: saleSubject, HTML: html.String(), Text: text.String()}, nil
}

// RenderSaleSMS renders the sale confirmation text message
func RenderSaleSMS(data SaleConfirmation) (string, error) {
	var buf bytes.Buffer
	if err := saleSMSTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render sms: %w", err)
	}
	return buf.String(), nil
}

// ShortAddress abbreviates a long address as "abcdef...wxyz"
func ShortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
