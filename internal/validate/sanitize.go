package validate

import "strings"

// Sanitize trims the string, strips ASCII control characters and collapses
// internal whitespace runs to a single space. Applied uniformly to titles,
// descriptions and option labels.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			space = true
		case r < 0x20 || r == 0x7f:
			// control characters dropped outright
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
