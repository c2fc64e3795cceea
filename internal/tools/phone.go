package tools

import "strings"

// NormalizePhone brings a phone number to +7XXXXXXXXXX form, returning
// "" when the digit count is wrong (spec.md §6): strip non-digits; 11 digits
// starting with 7 or 8 → replace the lead with 7; 10 digits → prepend 7;
// anything else is rejected.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 11 && (digits[0] == '7' || digits[0] == '8'):
		digits = "7" + digits[1:]
	case len(digits) == 10:
		digits = "7" + digits
	default:
		return ""
	}
	return "+" + digits
}
