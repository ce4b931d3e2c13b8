package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone canonicalizes a phone number to digits with an optional
// leading "+". Formatting characters (spaces, dashes, parentheses, dots)
// are stripped; anything else invalidates the number and yields "".
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// Formatting noise.
		default:
			return ""
		}
	}

	out := b.String()
	if out == "" || out == "+" {
		return ""
	}
	return out
}
