package render

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Filename maps a URL to a deterministic output file name: the host and a
// slug of the path, suffixed with a short hash of the full URL so distinct
// URLs with the same slug never collide.
func Filename(rawURL string) string {
	host, path := splitURL(rawURL)

	parts := []string{slugify(host)}
	if p := slugify(path); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, urlHash(rawURL))

	return strings.Join(parts, "-") + ".html"
}

func splitURL(rawURL string) (host, path string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL, ""
	}
	return u.Host, u.Path
}

// slugify lowercases s, folds diacritics to their base letters, and
// collapses everything else into single dashes.
func slugify(s string) string {
	// Decompose, strip combining marks, recompose: "café" -> "cafe".
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	dash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// urlHash returns the first 8 hex characters of the URL's SHA-256.
func urlHash(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:8]
}
