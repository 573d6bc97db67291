// Package normalize derives canonical dedup keys from external references.
// Everything here is pure; the repository layer calls it before every
// insert or lookup that touches source_url_normalized.
package normalize

import "strings"

// URL canonicalizes an external video URL into the dedup key stored in
// source_url_normalized: trimmed, lower-cased, scheme stripped, trailing
// slashes stripped. An empty input stays empty (stored as NULL).
//
// The function is idempotent: URL(URL(u)) == URL(u).
func URL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	if u == "" {
		return ""
	}
	for {
		if rest := strings.TrimPrefix(u, "https://"); rest != u {
			u = rest
			continue
		}
		if rest := strings.TrimPrefix(u, "http://"); rest != u {
			u = rest
			continue
		}
		break
	}
	return strings.TrimRight(u, "/")
}
