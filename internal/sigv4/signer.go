// Package sigv4 computes AWS Signature Version 4 request authorization.
package sigv4

import (
	"time"

	"github.com/prn-tf/ptolemy-upload/internal/pkg/crypto"
)

// =============================================================================
// Signing Key Derivation
// =============================================================================

// DeriveSigningKey derives the scoped signing key:
// HMAC(HMAC(HMAC(HMAC("AWS4"+secret, date), region), service), "aws4_request").
// Each step keys the next with the raw digest bytes of the previous step;
// hex encoding is applied only at the final signature boundary.
func DeriveSigningKey(secretKey string, date time.Time, region, service string) []byte {
	kDate := crypto.HMACSHA256([]byte(AWS4KeyPrefix+secretKey), []byte(date.UTC().Format(YYYYMMDD)))
	kRegion := crypto.HMACSHA256(kDate, []byte(region))
	kService := crypto.HMACSHA256(kRegion, []byte(service))
	return crypto.HMACSHA256(kService, []byte(AWS4Request))
}

// ComputeSignature calculates the lowercase-hex signature of the string to
// sign, keyed by the derived signing key.
func ComputeSignature(signingKey []byte, stringToSign string) string {
	return crypto.HMACSHA256Hex(signingKey, []byte(stringToSign))
}

// =============================================================================
// String to Sign Building
// =============================================================================

// BuildStringToSign combines the algorithm identifier, timestamp, scope and
// hash of the canonical request.
func BuildStringToSign(canonicalRequest string, requestTime time.Time, scope Scope) StringToSign {
	return StringToSign{
		Algorithm:            SignV4Algorithm,
		RequestDateTime:      requestTime.UTC().Format(ISO8601BasicFormat),
		CredentialScope:      scope.String(),
		CanonicalRequestHash: crypto.SHA256Hex([]byte(canonicalRequest)),
	}
}

// BuildAuthorizationHeader assembles the Authorization header value.
func BuildAuthorizationHeader(accessKeyID string, scope Scope, signedHeaders, signature string) string {
	return SignV4Algorithm +
		" Credential=" + accessKeyID + "/" + scope.String() +
		", SignedHeaders=" + signedHeaders +
		", Signature=" + signature
}

// =============================================================================
// Signer
// =============================================================================

// Observer receives signing pipeline events. Implementations must be safe
// for concurrent use.
type Observer interface {
	SignatureComputed()
	KeyCacheHit()
	KeyCacheMiss()
}

// Signer produces SigV4 authorization for requests under one credential and
// scope pair. The pipeline itself is stateless; the only shared state is the
// optional derived-key cache, which is synchronized, so a Signer is safe for
// concurrent use.
type Signer struct {
	creds    Credentials
	region   string
	service  string
	keys     *keyCache
	nowFunc  func() time.Time
	observer Observer
}

// Option configures a Signer.
type Option func(*Signer)

// WithKeyCache enables caching of derived signing keys, keyed by
// (access key, date, region, service) for the validity window of the date.
func WithKeyCache() Option {
	return func(s *Signer) {
		s.keys = newKeyCache()
	}
}

// WithClock sets the time source used when Sign is called with a zero
// timestamp. The default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.nowFunc = now
	}
}

// WithObserver attaches a pipeline event observer, e.g. for metrics.
func WithObserver(o Observer) Option {
	return func(s *Signer) {
		s.observer = o
	}
}

// NewSigner creates a Signer. Credentials and scope are validated here so
// every Sign call starts from a known-good configuration.
func NewSigner(creds Credentials, region, service string, opts ...Option) (*Signer, error) {
	if err := creds.Validate(); err != nil {
		return nil, signErr(StageCredentials, err)
	}
	if err := (Scope{Region: region, Service: service}).Validate(); err != nil {
		return nil, signErr(StageCredentials, err)
	}

	s := &Signer{
		creds:   creds,
		region:  region,
		service: service,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the derived-key cache, if any.
func (s *Signer) Close() {
	if s.keys != nil {
		s.keys.Stop()
	}
}

// Sign runs the signing pipeline for one request. payloadHash is the hex
// SHA-256 of the exact body bytes; requestTime may be zero to use the
// signer's clock. The descriptor is not mutated: the x-amz-date and
// x-amz-content-sha256 headers are bound to the pipeline's own timestamp and
// hash on an internal copy, so they cannot diverge from the scope.
func (s *Signer) Sign(rd *RequestDescriptor, payloadHash string, requestTime time.Time) (*SignedRequest, error) {
	if requestTime.IsZero() {
		if s.nowFunc == nil {
			return nil, signErr(StageSign, ErrClockSource)
		}
		requestTime = s.nowFunc()
		if requestTime.IsZero() {
			return nil, signErr(StageSign, ErrClockSource)
		}
	}
	requestTime = requestTime.UTC()

	if err := rd.Validate(); err != nil {
		return nil, signErr(StageDescriptor, err)
	}
	if !crypto.ValidateSHA256(payloadHash) {
		return nil, signErr(StageDescriptor, ErrInvalidRequestDescriptor)
	}

	signed := rd.clone()
	signed.headers[XAmzDateHeader] = requestTime.Format(ISO8601BasicFormat)
	signed.headers[XAmzContentSHA256Header] = payloadHash

	scope := Scope{Date: requestTime, Region: s.region, Service: s.service}

	canonical := BuildCanonicalRequest(signed, payloadHash)
	stringToSign := BuildStringToSign(canonical.String(), requestTime, scope)

	signingKey := s.signingKey(requestTime)
	signature := ComputeSignature(signingKey, stringToSign.String())
	if s.observer != nil {
		s.observer.SignatureComputed()
	}

	return &SignedRequest{
		Authorization:    BuildAuthorizationHeader(s.creds.AccessKeyID, scope, canonical.SignedHeaders, signature),
		Headers:          signed.Headers(),
		SignedHeaders:    canonical.SignedHeaders,
		Signature:        signature,
		CanonicalRequest: canonical.String(),
		StringToSign:     stringToSign.String(),
		Time:             requestTime,
		Scope:            scope,
	}, nil
}

// signingKey returns the scoped signing key, consulting the cache when
// enabled.
func (s *Signer) signingKey(requestTime time.Time) []byte {
	if s.keys == nil {
		return DeriveSigningKey(s.creds.SecretAccessKey, requestTime, s.region, s.service)
	}

	key, hit := s.keys.Get(s.creds, s.region, s.service, requestTime)
	if s.observer != nil {
		if hit {
			s.observer.KeyCacheHit()
		} else {
			s.observer.KeyCacheMiss()
		}
	}
	return key
}
