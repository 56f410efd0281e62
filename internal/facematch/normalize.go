package facematch

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidIdentity is returned for labels that cannot name a folder.
var ErrInvalidIdentity = errors.New("invalid identity")

// RemoveDiacritics removes diacritical marks from a string (e.g., "Letícia" -> "Leticia").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// SanitizeIdentity turns a display label into a folder-safe identity:
// lowercase ASCII letters, digits, '-' and '_' only, whitespace collapsed to '-'.
func SanitizeIdentity(name string) (string, error) {
	name = strings.ToLower(RemoveDiacritics(strings.TrimSpace(name)))

	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastDash = false
		case r == '-' || unicode.IsSpace(r):
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	id := strings.TrimRight(b.String(), "-")
	if id == "" {
		return "", fmt.Errorf("%w: %q has no usable characters", ErrInvalidIdentity, name)
	}
	if strings.EqualFold(id, Unknown) {
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidIdentity, id)
	}
	return id, nil
}

// StorableIdentity reports whether id can name one storage folder as given:
// a single non-hidden path segment without control characters that is not
// the reserved Unknown label. Stored identities need not be sanitized.
func StorableIdentity(id string) bool {
	if id == "" || strings.TrimSpace(id) != id || strings.HasPrefix(id, ".") {
		return false
	}
	if strings.EqualFold(id, Unknown) || strings.ContainsAny(id, `/\`) {
		return false
	}
	return !strings.ContainsFunc(id, unicode.IsControl)
}

// ValidIdentity reports whether id is already in sanitized form.
func ValidIdentity(id string) bool {
	s, err := SanitizeIdentity(id)
	return err == nil && s == id
}
