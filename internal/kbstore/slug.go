package kbstore

import "strings"

// Slugify derives a deterministic, URL-safe slug from a knowledge base name:
// lowercase, non-alphanumeric runs collapsed to a single hyphen, leading and
// trailing hyphens trimmed. Same name always yields the same slug (spec.md
// §8: "Slug derivation is deterministic").
func Slugify(name string) string {
	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
