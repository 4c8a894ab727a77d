package blocks

import (
	"net/url"
	"strings"
)

// SafeImageURL accepts http(s), site-relative and inline data:image sources.
func SafeImageURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "data:image/") {
		return raw, true
	}
	return safeURL(raw, "http", "https")
}

// SafeLinkURL accepts http(s), mailto, tel and site-relative links.
func SafeLinkURL(raw string) (string, bool) {
	return safeURL(strings.TrimSpace(raw), "http", "https", "mailto", "tel")
}

func safeURL(raw string, schemes ...string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme == "" {
		// Protocol-relative URLs ("//host") would inherit an arbitrary origin.
		if strings.HasPrefix(raw, "//") {
			return "", false
		}
		return raw, true
	}
	scheme := strings.ToLower(u.Scheme)
	for _, allowed := range schemes {
		if scheme == allowed {
			return raw, true
		}
	}
	return "", false
}
