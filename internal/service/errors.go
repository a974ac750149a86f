// Package service provides the upload orchestration for Ptolemy Upload.
package service

import "errors"

// Service-level errors.
var (
	// ErrMissingRequiredParams indicates required upload parameters are absent.
	ErrMissingRequiredParams = errors.New("missing required parameters")

	// ErrInvalidEndpoint indicates the configured endpoint URL is unusable.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)
