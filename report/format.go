package report

import (
	"net/url"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders an amount as Brazilian reais, e.g. "R$ 1.234,50".
func FormatBRL(amount float64) string {
	if amount < 0 {
		return "-R$ " + brl.Sprintf("%.2f", -amount)
	}
	return "R$ " + brl.Sprintf("%.2f", amount)
}

// FormatQuantity renders a quantity without trailing zeros.
func FormatQuantity(q float64) string {
	return brl.Sprintf("%v", q)
}

// WhatsAppLink builds a wa.me share link. digits is the E.164 number without
// the plus sign.
func WhatsAppLink(digits, text string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return "https://wa.me/" + digits + "?text=" + escaped
}
