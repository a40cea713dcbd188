// Package textmatch provides the text canonicalization and lexical
// similarity primitives used to decide whether two extracted clinical
// entries describe the same item.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes text for comparison: lower case, NFC composition,
// runs of whitespace collapsed to a single space, leading and trailing
// whitespace trimmed. The input value is never modified.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	composed := norm.NFC.String(strings.ToLower(text))

	var b strings.Builder
	b.Grow(len(composed))
	pendingSpace := false
	for _, r := range composed {
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsExactMatch reports whether a and b are equal after normalization.
func IsExactMatch(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
