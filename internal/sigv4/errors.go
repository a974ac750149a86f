// Package sigv4 computes AWS Signature Version 4 request authorization.
package sigv4

import "errors"

// Signing errors. The server's own response to a bad signature is
// uninformative, so the pipeline fails fast with a typed error naming the
// stage that rejected the input.
var (
	// ErrMissingCredential indicates the access key ID or secret access key is absent.
	ErrMissingCredential = errors.New("access key ID and secret access key are required")

	// ErrInvalidRequestDescriptor indicates the request descriptor is malformed.
	ErrInvalidRequestDescriptor = errors.New("invalid request descriptor")

	// ErrAmbiguousHeader indicates two headers collapse to the same canonical
	// name with differing values.
	ErrAmbiguousHeader = errors.New("ambiguous header set: duplicate canonical header with differing values")

	// ErrUnsupportedRegionOrService indicates an empty region or service string.
	ErrUnsupportedRegionOrService = errors.New("region and service must be non-empty")

	// ErrClockSource indicates no request timestamp is available.
	ErrClockSource = errors.New("request timestamp unavailable")
)

// Stage identifies where in the signing pipeline an error occurred. Failure
// in any stage aborts the pipeline; there is no partial-success state.
type Stage string

const (
	// StageCredentials covers credential validation.
	StageCredentials Stage = "credentials"

	// StageDescriptor covers request descriptor validation.
	StageDescriptor Stage = "descriptor"

	// StageCanonicalize covers canonical request construction.
	StageCanonicalize Stage = "canonicalize"

	// StageDerive covers signing key derivation.
	StageDerive Stage = "derive"

	// StageSign covers final signature computation.
	StageSign Stage = "sign"
)

// SignError wraps a pipeline error with the stage that produced it, so
// callers can distinguish bad credentials from bad request shape.
type SignError struct {
	// Stage is the pipeline stage that failed.
	Stage Stage

	// Err is the underlying error.
	Err error
}

func (e *SignError) Error() string {
	return "sigv4: " + string(e.Stage) + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is matching.
func (e *SignError) Unwrap() error {
	return e.Err
}

// signErr wraps err with its pipeline stage.
func signErr(stage Stage, err error) error {
	return &SignError{Stage: stage, Err: err}
}
