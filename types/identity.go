package types

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// CanonicalURL normalizes a document URL into the stable identity used for
// deduplication and record keying. Normalization: lowercase scheme and host,
// drop the fragment, strip common tracking query params (utm_*, fbclid,
// gclid), trim trailing slashes.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	out := u.String()
	return strings.TrimRight(out, "/")
}

// HashContent digests normalized document text so content changes can be
// detected without reinspecting stored bodies. Whitespace runs collapse to a
// single space before hashing, so reflows and trailing-space churn do not
// register as new versions.
func HashContent(text string) string {
	fields := strings.Fields(text)
	normalized := strings.Join(fields, " ")
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])
}

// ShortID derives a compact stable identifier from an arbitrary string,
// typically a canonical URL.
func ShortID(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])[:16]
}
