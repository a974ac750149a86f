// Package service provides the upload orchestration for Ptolemy Upload.
package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/ptolemy-upload/internal/metrics"
	"github.com/prn-tf/ptolemy-upload/internal/payload"
	"github.com/prn-tf/ptolemy-upload/internal/sigv4"
	"github.com/prn-tf/ptolemy-upload/internal/transport"
)

// UploadService signs and transmits object uploads. Each upload is an
// independent pipeline run; the only state shared across uploads is the
// signer's synchronized key cache.
type UploadService struct {
	signer  *sigv4.Signer
	client  transport.Doer
	scheme  string
	host    string
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// UploadServiceConfig contains configuration for the upload service.
type UploadServiceConfig struct {
	// Endpoint is the base URL of the object store, e.g.
	// "https://objects.example.com:9000".
	Endpoint string
}

// NewUploadService creates an UploadService. The metrics collector may be
// nil when instrumentation is disabled.
func NewUploadService(
	signer *sigv4.Signer,
	client transport.Doer,
	cfg UploadServiceConfig,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (*UploadService, error) {
	parsed, err := url.Parse(strings.TrimSuffix(cfg.Endpoint, "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, cfg.Endpoint)
	}

	return &UploadService{
		signer:  signer,
		client:  client,
		scheme:  parsed.Scheme,
		host:    parsed.Host,
		logger:  logger.With().Str("service", "upload").Logger(),
		metrics: m,
	}, nil
}

// UploadInput contains the data needed to upload one object.
type UploadInput struct {
	// Bucket is the target bucket name.
	Bucket string

	// Key is the object key.
	Key string

	// Source supplies the payload bytes.
	Source payload.Source

	// ContentType is the object content type. Signed when set.
	ContentType string

	// StorageClass is the x-amz-storage-class value. The header is omitted
	// entirely when empty; no storage class is ever assumed.
	StorageClass string
}

// UploadResult contains the result of a finished upload.
type UploadResult struct {
	// AttemptID identifies this upload attempt in logs.
	AttemptID uuid.UUID

	// ETag is the entity tag the store returned.
	ETag string

	// Size is the payload size in bytes.
	Size int64

	// Signature is the request signature, kept for diagnostics.
	Signature string

	// Duration is the end-to-end upload duration.
	Duration time.Duration
}

// Upload signs and transmits a single object.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	attemptID := uuid.New()
	logger := s.logger.With().
		Stringer("attempt_id", attemptID).
		Str("bucket", input.Bucket).
		Str("key", input.Key).
		Logger()

	started := time.Now()
	result, err := s.upload(ctx, input, logger)
	elapsed := time.Since(started)

	if s.metrics != nil {
		s.metrics.UploadDuration.Observe(elapsed.Seconds())
		if err != nil {
			s.metrics.UploadsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
		} else {
			s.metrics.UploadsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
			s.metrics.UploadBytesTotal.Add(float64(result.Size))
		}
	}

	if err != nil {
		logger.Error().Err(err).Dur("duration", elapsed).Msg("upload failed")
		return nil, err
	}

	result.AttemptID = attemptID
	result.Duration = elapsed
	logger.Info().
		Int64("size", result.Size).
		Str("etag", result.ETag).
		Dur("duration", elapsed).
		Msg("upload complete")
	return result, nil
}

// upload runs the pipeline: hash the payload, sign, transmit.
func (s *UploadService) upload(ctx context.Context, input UploadInput, logger zerolog.Logger) (*UploadResult, error) {
	contentHash, size, err := input.Source.Digest()
	if err != nil {
		return nil, err
	}

	path := "/" + input.Bucket + "/" + input.Key

	rd := sigv4.NewRequestDescriptor(http.MethodPut, s.host, path)
	if err := rd.SetHeader(sigv4.ContentLengthHeader, strconv.FormatInt(size, 10)); err != nil {
		return nil, err
	}
	if input.ContentType != "" {
		if err := rd.SetHeader(sigv4.ContentTypeHeader, input.ContentType); err != nil {
			return nil, err
		}
	}
	if input.StorageClass != "" {
		if err := rd.SetHeader(sigv4.XAmzStorageClassHeader, input.StorageClass); err != nil {
			return nil, err
		}
	}

	signed, err := s.signer.Sign(rd, contentHash, time.Time{})
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("signed_headers", signed.SignedHeaders).
		Str("content_sha256", contentHash).
		Msg("request signed")

	body, err := input.Source.Open()
	if err != nil {
		return nil, err
	}

	// The signed header set goes out exactly as canonicalized; only the
	// Authorization header itself is added on top.
	headers := signed.Headers
	headers[sigv4.AuthorizationHeader] = signed.Authorization

	res, err := s.client.Do(ctx, &transport.Request{
		Method:        http.MethodPut,
		URL:           s.scheme + "://" + s.host + sigv4.CanonicalURI(path),
		Headers:       headers,
		Body:          body,
		ContentLength: size,
	})
	if err != nil {
		if res != nil {
			logger.Debug().
				Int("status", res.StatusCode).
				Str("request_id", res.RequestID).
				Str("string_to_sign", signed.StringToSign).
				Msg("store rejected request")
		}
		return nil, err
	}

	return &UploadResult{
		ETag:      res.ETag,
		Size:      size,
		Signature: signed.Signature,
	}, nil
}

// validateInput validates the upload input.
func (s *UploadService) validateInput(input UploadInput) error {
	if input.Bucket == "" {
		return fmt.Errorf("%w: bucket is required", ErrMissingRequiredParams)
	}
	if input.Key == "" {
		return fmt.Errorf("%w: key is required", ErrMissingRequiredParams)
	}
	if input.Source == nil {
		return fmt.Errorf("%w: payload source is required", ErrMissingRequiredParams)
	}
	return nil
}

// BatchResult pairs one batch item with its outcome.
type BatchResult struct {
	// Input is the item this result belongs to.
	Input UploadInput

	// Result is set on success.
	Result *UploadResult

	// Err is set on failure.
	Err error
}

// UploadBatch uploads independent objects concurrently with a bounded worker
// pool. Results are returned in input order; a failed item never affects the
// others.
func (s *UploadService) UploadBatch(ctx context.Context, inputs []UploadInput, workers int) []BatchResult {
	if workers < 1 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	results := make([]BatchResult, len(inputs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := s.Upload(ctx, inputs[i])
				results[i] = BatchResult{Input: inputs[i], Result: res, Err: err}
			}
		}()
	}

	for i := range inputs {
		select {
		case <-ctx.Done():
			for j := i; j < len(inputs); j++ {
				results[j] = BatchResult{Input: inputs[j], Err: ctx.Err()}
			}
			close(jobs)
			wg.Wait()
			return results
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return results
}
