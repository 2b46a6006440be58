// Package filename turns user supplied titles into portable file names.
package filename

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sanitize strips diacritics, collapses whitespace runs into a single
// underscore and drops anything that is not a letter, digit, '-', '_' or '.'.
// Case is preserved.
func Sanitize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(folded) {
		switch {
		case unicode.IsSpace(r):
			pendingSep = true
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)),
			r == '-', r == '_', r == '.':
		default:
			continue
		}
		if pendingSep && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSep = false
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "._-")
}

// Slug is Sanitize lower-cased.
func Slug(s string) string {
	return cases.Lower(language.Und).String(Sanitize(s))
}

// WithSuffix joins the sanitized base name and suffix, using fallback when
// nothing of base survives.
func WithSuffix(base, suffix, fallback string) string {
	clean := Sanitize(base)
	if clean == "" {
		return fallback
	}
	return clean + suffix
}
