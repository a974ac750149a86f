// Package sigv4 computes AWS Signature Version 4 request authorization.
package sigv4

import (
	"net/url"
	"sort"
	"strings"
)

// =============================================================================
// Canonical Request Building
// =============================================================================

// BuildCanonicalRequest builds the canonical form of the request. payloadHash
// is the hex SHA-256 of the exact bytes that will be transmitted as the body.
func BuildCanonicalRequest(rd *RequestDescriptor, payloadHash string) CanonicalRequest {
	names := rd.SignedHeaderNames()
	return CanonicalRequest{
		Method:        rd.Method,
		URI:           CanonicalURI(rd.Path),
		QueryString:   CanonicalQueryString(rd.Query),
		Headers:       canonicalHeaders(rd.headers, names),
		SignedHeaders: strings.Join(names, ";"),
		PayloadHash:   payloadHash,
	}
}

// CanonicalURI returns the URI-encoded path. Each segment is percent-encoded
// except unreserved characters; "/" separators are preserved, including
// consecutive slashes. An empty path canonicalizes to "/".
func CanonicalURI(path string) string {
	if path == "" {
		return "/"
	}

	segments := strings.Split(path, "/")
	for i, segment := range segments {
		segments[i] = uriEncode(segment, false)
	}

	return strings.Join(segments, "/")
}

// CanonicalQueryString returns the sorted, URI-encoded query string. Pairs
// are ordered by encoded key, then by encoded value; empty if there are no
// parameters.
func CanonicalQueryString(query url.Values) string {
	if len(query) == 0 {
		return ""
	}

	type pair struct {
		key    string
		values []string
	}

	pairs := make([]pair, 0, len(query))
	for key, values := range query {
		encoded := make([]string, len(values))
		for i, value := range values {
			encoded[i] = uriEncode(value, true)
		}
		sort.Strings(encoded)
		pairs = append(pairs, pair{key: uriEncode(key, true), values: encoded})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	var parts []string
	for _, p := range pairs {
		for _, value := range p.values {
			parts = append(parts, p.key+"="+value)
		}
	}

	return strings.Join(parts, "&")
}

// canonicalHeaders builds the canonical headers block: "name:value\n" per
// signed header, in ascending name order. The order must match the signed
// header names line; values are already canonical in the descriptor, so
// canonicalization here is idempotent.
func canonicalHeaders(headers map[string]string, sortedNames []string) string {
	var b strings.Builder

	for _, name := range sortedNames {
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(canonicalHeaderValue(headers[name]))
		b.WriteString("\n")
	}

	return b.String()
}

// canonicalHeaderValue trims leading/trailing whitespace and collapses
// internal whitespace runs to single spaces.
func canonicalHeaderValue(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// uriEncode percent-encodes every byte except the unreserved characters
// A-Za-z0-9-_.~, with uppercase hex digits. When encodeSlash is false, "/" is
// also left as is. url.PathEscape passes sub-delimiters through and is not
// byte-exact for SigV4, so the encoder is spelled out here.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z',
			c >= 'a' && c <= 'z',
			c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0x0f])
		}
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"
