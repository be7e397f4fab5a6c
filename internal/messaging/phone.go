package messaging

import "strings"

const whatsAppScheme = "whatsapp:"

// NormalizePhone strips channel prefixes and every non-digit character so
// inbound identifiers match stored contact records. It never fails; an input
// without digits yields "".
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WhatsAppAddress renders a digits-only phone as a Twilio WhatsApp address.
func WhatsAppAddress(phone string) string {
	digits := NormalizePhone(phone)
	if digits == "" {
		return ""
	}
	return whatsAppScheme + "+" + digits
}
