package dialer

import "strings"

// NormalizePhone converts a stored phone number to the E.164-style format the
// provider requires. Digits are kept; a bare 10-digit US number gets a +1
// prefix; an 11-digit number starting with 1 gets a plus.
//
// Numbers that don't fit either shape are passed through with a plus so the
// provider can reject them with a meaningful error.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	default:
		return "+" + digits
	}
}
