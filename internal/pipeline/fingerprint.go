package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

const (
	// fingerprintExcerptLen bounds how much body text feeds the hash, so
	// items differing only past the excerpt still collapse together.
	fingerprintExcerptLen = 500

	fingerprintHexLen = 32
)

// Fingerprint derives the coarse duplicate-content hash from a title and
// body. Whitespace-only variations of the same text yield the same value.
func Fingerprint(title, body string) string {
	excerpt := body
	if runes := []rune(excerpt); len(runes) > fingerprintExcerptLen {
		excerpt = string(runes[:fingerprintExcerptLen])
	}

	normalized := normalizeText(title + " " + excerpt)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:fingerprintHexLen]
}

// normalizeText lowercases, collapses whitespace runs to single spaces, and
// drops control characters.
func normalizeText(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}
