package validator

import "strings"

// SanitizeExtension reduces an extension or format string to a lowercase
// token of letters, digits, '_', '-' and '.', without the leading dot.
func SanitizeExtension(ext string) string {
	cleaned := strings.TrimPrefix(strings.TrimSpace(ext), ".")

	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		}
	}
	return strings.ToLower(b.String())
}
