package matcher

import "strings"

// NormalizeFieldName lowercases a field name and strips separators so
// "Email_Address", "email-address" and "emailAddress" all normalize to
// the same form.
func NormalizeFieldName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch r {
		case '_', '-', ' ', '.', '/':
			// separator, dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TokenizeFieldName splits a field name into lowercase tokens on common
// separators and camelCase boundaries.
func TokenizeFieldName(name string) []string {
	// Break camelCase by inserting separators before upper-case runs.
	var expanded strings.Builder
	expanded.Grow(len(name) + 4)
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(name[i-1])
			if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
				expanded.WriteByte('_')
			}
		}
		expanded.WriteRune(r)
	}

	lower := strings.ToLower(expanded.String())
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		switch r {
		case '_', '-', ' ', '.', '/':
			return true
		}
		return false
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
