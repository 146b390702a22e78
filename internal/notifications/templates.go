package notifications

import (
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
)

var templateFuncs = template.FuncMap{
	"money": func(amount decimal.Decimal, currency string) string {
		return amount.StringFixed(2) + " " + strings.ToUpper(currency)
	},
	"upper": strings.ToUpper,
}

const layoutTemplate = `{{define "layout"}}<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
<h2>{{.Brand}}</h2>
{{template "content" .}}
<p style="font-size: 12px; color: #888;"><a href="{{.Website}}">{{.Website}}</a></p>
</body>
</html>{{end}}`

const verificationTemplate = `{{define "content"}}
<p>Hi {{.Data.FirstName}},</p>
<p>Your verification code is <strong>{{.Data.OTP}}</strong>.</p>
<p>You can also confirm your email by following <a href="{{.Data.Link}}">this link</a>.</p>
{{end}}`

const recoveryTemplate = `{{define "content"}}
<p>We received a request to reset your password.</p>
<p><a href="{{.Data.Link}}">Reset password</a></p>
<p>The link expires at {{.Data.ExpiresAt.Format "15:04 MST"}}. If you did not ask for this, ignore this email.</p>
{{end}}`

const promoInviteTemplate = `{{define "content"}}
<p>Subscribe to our newsletter and get <strong>{{.Data.PercentDiscount}}%</strong> off your next order.</p>
<p><a href="{{.Data.Link}}">Get my code</a></p>
{{end}}`

const promoCodeTemplate = `{{define "content"}}
<p>Thanks for subscribing!</p>
<p>Your promo code: <strong>{{.Data.Code}}</strong> ({{.Data.PercentDiscount}}% off).</p>
<p>Valid until {{.Data.EndDate.Format "2006-01-02"}}. Discounts do not apply to items already on sale.</p>
{{end}}`

const orderDetailsTemplate = `{{define "content"}}
<p>Order № {{.Data.OrderNumber}} placed on {{.Data.OrderDate.Format "2006-01-02 15:04"}}.</p>
<table cellpadding="4">
<tr><th align="left">Item</th><th>Color</th><th>Sizes</th><th align="right">Price</th></tr>
{{range .Data.Payment.Products}}<tr>
<td>{{.Name}}</td><td>{{.Color}}</td>
<td>{{range $i, $s := .Sizes}}{{if $i}}, {{end}}{{$s.Size}} x {{$s.Quantity}}{{end}}</td>
<td align="right">{{money .Price .Currency}}</td>
</tr>{{end}}
</table>
<p>Items: {{.Data.Payment.TotalCount}}<br>Total: <strong>{{money .Data.Payment.TotalPrice .Data.Payment.Currency}}</strong></p>
<p>Delivery ({{.Data.DeliveryType}}): {{with .Data.DeliveryAddress}}{{.FirstName}} {{.LastName}}, {{.Street}} {{.HomeNumber}}, {{.City}} {{.PostCode}}, {{.PhoneNumber}}{{end}}</p>
{{end}}`

var (
	verificationMailTemplate = mustTemplate("verification", verificationTemplate)
	recoveryMailTemplate     = mustTemplate("recovery", recoveryTemplate)
	promoInviteMailTemplate  = mustTemplate("promo-invite", promoInviteTemplate)
	promoCodeMailTemplate    = mustTemplate("promo-code", promoCodeTemplate)
	orderDetailsMailTemplate = mustTemplate("order-details", orderDetailsTemplate)
)

func mustTemplate(name, content string) *template.Template {
	tmpl := template.Must(template.New(name).Funcs(templateFuncs).Parse(layoutTemplate))
	return template.Must(tmpl.Parse(content))
}
