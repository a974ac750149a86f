// Package sigv4 computes AWS Signature Version 4 request authorization.
package sigv4

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Credential Types
// =============================================================================

// Credentials holds the long-term AWS credential pair. Immutable, supplied by
// the caller, never logged.
type Credentials struct {
	// AccessKeyID is the access key ID.
	AccessKeyID string

	// SecretAccessKey is the secret access key.
	SecretAccessKey string
}

// Validate checks that both credential components are present.
func (c Credentials) Validate() error {
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return ErrMissingCredential
	}
	return nil
}

// Scope limits a derived signing key's validity.
// Format: {date}/{region}/{service}/aws4_request
type Scope struct {
	// Date carries the request timestamp; only its UTC calendar date is used
	// in the scope string, so it can never diverge from the timestamp.
	Date time.Time

	// Region is the AWS region (e.g., "us-east-1").
	Region string

	// Service is the AWS service (e.g., "s3").
	Service string
}

// String returns the credential scope as a string.
// Format: {date}/{region}/{service}/aws4_request
func (s Scope) String() string {
	return s.Date.UTC().Format(YYYYMMDD) + "/" + s.Region + "/" + s.Service + "/" + AWS4Request
}

// Validate checks that region and service are non-empty.
func (s Scope) Validate() error {
	if s.Region == "" || s.Service == "" {
		return ErrUnsupportedRegionOrService
	}
	return nil
}

// =============================================================================
// Request Descriptor
// =============================================================================

// RequestDescriptor describes the request to be signed. Header names are
// case-insensitive and stored canonically lowercase; every stored header is
// signed.
type RequestDescriptor struct {
	// Method is the HTTP method.
	Method string

	// Host is the target host (authority), without scheme.
	Host string

	// Path is the absolute request path. Empty canonicalizes to "/".
	Path string

	// Query holds the query parameters.
	Query url.Values

	headers map[string]string
}

// NewRequestDescriptor creates a descriptor for method/host/path and seeds
// the host header, which S3 always requires in the signed set.
func NewRequestDescriptor(method, host, path string) *RequestDescriptor {
	rd := &RequestDescriptor{
		Method:  method,
		Host:    host,
		Path:    path,
		Query:   url.Values{},
		headers: make(map[string]string),
	}
	if host != "" {
		rd.headers[HostHeader] = host
	}
	return rd
}

// SetHeader records a header to be signed. The name is case-normalized to
// lowercase and the value canonicalized (trimmed, internal whitespace runs
// collapsed). Two headers differing only by case collapse to one entry; it is
// an error if their canonical values differ.
func (rd *RequestDescriptor) SetHeader(name, value string) error {
	if rd.headers == nil {
		rd.headers = make(map[string]string)
	}

	lname := strings.ToLower(strings.TrimSpace(name))
	if lname == "" {
		return ErrInvalidRequestDescriptor
	}

	cvalue := canonicalHeaderValue(value)
	if existing, ok := rd.headers[lname]; ok && existing != cvalue {
		return ErrAmbiguousHeader
	}

	rd.headers[lname] = cvalue
	return nil
}

// Header returns the canonical value of a header, if set.
func (rd *RequestDescriptor) Header(name string) (string, bool) {
	v, ok := rd.headers[strings.ToLower(name)]
	return v, ok
}

// Headers returns a copy of the canonical header map.
func (rd *RequestDescriptor) Headers() map[string]string {
	out := make(map[string]string, len(rd.headers))
	for k, v := range rd.headers {
		out[k] = v
	}
	return out
}

// SignedHeaderNames returns the lowercase header names in ascending order.
func (rd *RequestDescriptor) SignedHeaderNames() []string {
	names := make([]string, 0, len(rd.headers))
	for name := range rd.headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the descriptor for the pieces the pipeline cannot do
// without.
func (rd *RequestDescriptor) Validate() error {
	if rd.Method == "" {
		return ErrInvalidRequestDescriptor
	}
	if rd.Host == "" {
		return ErrInvalidRequestDescriptor
	}
	if _, ok := rd.headers[HostHeader]; !ok {
		return ErrInvalidRequestDescriptor
	}
	return nil
}

// clone returns a deep copy so signing never mutates the caller's descriptor.
func (rd *RequestDescriptor) clone() *RequestDescriptor {
	out := &RequestDescriptor{
		Method:  rd.Method,
		Host:    rd.Host,
		Path:    rd.Path,
		Query:   url.Values{},
		headers: make(map[string]string, len(rd.headers)),
	}
	for k, vs := range rd.Query {
		out.Query[k] = append([]string(nil), vs...)
	}
	for k, v := range rd.headers {
		out.headers[k] = v
	}
	return out
}

// =============================================================================
// Signature Components
// =============================================================================

// CanonicalRequest holds the components of a canonical request. A pure
// function of the request descriptor and payload hash, with no hidden state.
type CanonicalRequest struct {
	// Method is the HTTP method.
	Method string

	// URI is the canonical URI path.
	URI string

	// QueryString is the canonical query string.
	QueryString string

	// Headers is the canonical headers block.
	Headers string

	// SignedHeaders is the semicolon-joined signed header names.
	SignedHeaders string

	// PayloadHash is the hex SHA-256 of the exact body bytes.
	PayloadHash string
}

// String returns the canonical request as the newline-joined string that is
// hashed into the string to sign.
func (cr CanonicalRequest) String() string {
	return cr.Method + "\n" +
		cr.URI + "\n" +
		cr.QueryString + "\n" +
		cr.Headers + "\n" +
		cr.SignedHeaders + "\n" +
		cr.PayloadHash
}

// StringToSign holds the components of the string to sign.
type StringToSign struct {
	// Algorithm is the signing algorithm identifier.
	Algorithm string

	// RequestDateTime is the request timestamp in ISO-8601 basic format.
	RequestDateTime string

	// CredentialScope is the credential scope string.
	CredentialScope string

	// CanonicalRequestHash is the hex SHA-256 of the canonical request.
	CanonicalRequestHash string
}

// String returns the string to sign.
func (sts StringToSign) String() string {
	return sts.Algorithm + "\n" +
		sts.RequestDateTime + "\n" +
		sts.CredentialScope + "\n" +
		sts.CanonicalRequestHash
}

// SignedRequest is the terminal artifact of the signing pipeline. Headers
// must be transmitted exactly as returned; any post-signing mutation
// invalidates the signature.
type SignedRequest struct {
	// Authorization is the value for the Authorization header.
	Authorization string

	// Headers is the finalized set of headers that were canonicalized,
	// including x-amz-date and x-amz-content-sha256.
	Headers map[string]string

	// SignedHeaders is the semicolon-joined signed header names.
	SignedHeaders string

	// Signature is the lowercase-hex final signature.
	Signature string

	// CanonicalRequest is kept for diagnostics; a signature mismatch report
	// from the server carries no useful detail of its own.
	CanonicalRequest string

	// StringToSign is kept for diagnostics.
	StringToSign string

	// Time is the request timestamp the signature is bound to.
	Time time.Time

	// Scope is the credential scope the signature is bound to.
	Scope Scope
}
