// Package transport transmits signed requests to the object store. It sends
// the signed header set verbatim: any mutation after signing invalidates the
// signature, so nothing here rewrites, adds to, or reorders signed headers.
package transport

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrUpload indicates the object store rejected the request.
var ErrUpload = errors.New("upload rejected")

// Request is a fully signed request ready for transmission.
type Request struct {
	// Method is the HTTP method.
	Method string

	// URL is the absolute request URL.
	URL string

	// Headers is the signed header set plus the Authorization header. Sent
	// exactly as given.
	Headers map[string]string

	// Body supplies the payload bytes; may be nil for bodyless methods.
	Body io.ReadCloser

	// ContentLength is the exact payload size.
	ContentLength int64
}

// Result reports the server's response.
type Result struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// ETag is the entity tag returned by the store, if any.
	ETag string

	// RequestID is the server-side request ID, if any.
	RequestID string
}

// s3Error is the error document S3-compatible stores return on failure.
// Surfacing Code and Message gives the caller more than the bare status, which
// for signature problems is an opaque 403.
type s3Error struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestID string   `xml:"RequestId"`
}

// Doer executes a signed request. *Client is the production implementation.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Result, error)
}

// Client sends signed requests over HTTP.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a transport client. A non-positive timeout disables the
// client-side deadline; cancellation then rests entirely on the context.
func NewClient(timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// Do transmits the request and interprets the response. Non-2xx responses are
// returned as errors carrying the store's error code when one is present.
func (c *Client) Do(ctx context.Context, req *Request) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for name, value := range req.Headers {
		if name == "host" {
			// The Host header travels on the request line, not in the map.
			httpReq.Host = value
			continue
		}
		httpReq.Header.Set(name, value)
	}
	httpReq.ContentLength = req.ContentLength

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL).
		Int64("content_length", req.ContentLength).
		Msg("transmitting signed request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transmit: %w", err)
	}
	defer resp.Body.Close()

	result := &Result{
		StatusCode: resp.StatusCode,
		ETag:       resp.Header.Get("ETag"),
		RequestID:  resp.Header.Get("x-amz-request-id"),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return result, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var serverErr s3Error
	if xml.Unmarshal(body, &serverErr) == nil && serverErr.Code != "" {
		if serverErr.RequestID != "" {
			result.RequestID = serverErr.RequestID
		}
		return result, fmt.Errorf("%w: %s %s: %s", ErrUpload, resp.Status, serverErr.Code, serverErr.Message)
	}

	return result, fmt.Errorf("%w: %s", ErrUpload, resp.Status)
}

// Ensure Client implements Doer.
var _ Doer = (*Client)(nil)
