package saldo

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
)

// FingerprintFunc derives a deterministic key identifying equivalent
// requests for caching and coalescing.
type FingerprintFunc func(*http.Request) string

// Fingerprint builds the canonical request key: method, normalized URL and
// sorted query parameters, plus a body hash for non-idempotent methods so
// two writes with different payloads never collide. The key is stable for
// any ordering of the original query string.
func Fingerprint(req *http.Request) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(normalizeURL(req.URL))

	if q := canonicalQuery(req.URL); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}

	if !methodIsIdempotent(req.Method) {
		if sum := hashBody(req); sum != "" {
			b.WriteByte('#')
			b.WriteString(sum)
		}
	}

	return b.String()
}

// normalizeURL lowercases the host, strips default ports and cleans the
// path so trivially different spellings of one URL share a fingerprint.
func normalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	p := u.EscapedPath()
	if p == "" {
		p = "/"
	} else {
		p = path.Clean(p)
	}

	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteString("://")
	}
	b.WriteString(host)
	b.WriteString(p)
	return b.String()
}

// canonicalQuery renders query parameters sorted by key, values sorted
// within a key.
func canonicalQuery(u *url.URL) string {
	if u == nil || u.RawQuery == "" {
		return ""
	}

	values := u.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// hashBody returns the SHA-256 of the request body via GetBody, which
// leaves the original body intact. Bodiless requests hash to "".
func hashBody(req *http.Request) string {
	if req.Body == nil || req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return ""
	}
	defer body.Close()

	h := sha256.New()
	if _, err := io.Copy(h, body); err != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

func methodIsIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// getEndpointFromRequest extracts host+path, the endpoint key used by the
// circuit breaker and metrics labels.
func getEndpointFromRequest(req *http.Request) string {
	if req.URL == nil {
		return "unknown"
	}

	host := req.URL.Host
	p := req.URL.Path

	var builder strings.Builder
	builder.WriteString(host)

	if p != "" && p != "/" {
		builder.WriteString(p)
	} else {
		builder.WriteByte('/')
	}

	return builder.String()
}
