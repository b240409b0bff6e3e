// Package slug derives URL-safe identifiers from display names, used when an
// item is created without an explicit id.
package slug

import "strings"

// Generate lowercases the name and collapses every run of characters outside
// [a-z0-9] into a single hyphen, with no leading or trailing hyphen.
// Non-ASCII letters are dropped rather than transliterated, so the result can
// be empty and callers must handle that.
//
// Examples:
//   - "Trail Mix (1kg)" → "trail-mix-1kg"
//   - "  Granola   Bars " → "granola-bars"
func Generate(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}

	return b.String()
}
