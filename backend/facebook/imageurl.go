package facebook

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// volatile CDN query parameters: signature, expiry and routing hints
var volatileParams = map[string]bool{
	"oh":  true,
	"oe":  true,
	"stp": true,
	"ccb": true,
	"efg": true,
}

// ImageToken maps an image URL onto a stable reference. Facebook CDN links
// rotate their signature and expiry parameters, so those are ignored and two
// links to the same asset share a token.
func ImageToken(rawURL string) string {
	canonical := CanonicalImageURL(rawURL)
	if canonical == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(canonical))
	return "img_" + hex.EncodeToString(sum[:12])
}

// CanonicalImageURL lowercases the host, drops volatile parameters and sorts the rest.
func CanonicalImageURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		if volatileParams[k] || strings.HasPrefix(k, "_nc_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(u.EscapedPath())
	for i, k := range keys {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		vals := q[k]
		sort.Strings(vals)
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(strings.Join(vals, ",")))
	}
	return b.String()
}
