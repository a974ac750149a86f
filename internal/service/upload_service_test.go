// Package service provides the upload orchestration for Ptolemy Upload.
package service

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/ptolemy-upload/internal/payload"
	"github.com/prn-tf/ptolemy-upload/internal/pkg/crypto"
	"github.com/prn-tf/ptolemy-upload/internal/sigv4"
	"github.com/prn-tf/ptolemy-upload/internal/transport"
)

// =============================================================================
// Mock Transport
// =============================================================================

type mockDoer struct {
	mock.Mock
}

func (m *mockDoer) Do(ctx context.Context, req *transport.Request) (*transport.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transport.Result), args.Error(1)
}

func newTestService(t *testing.T, doer transport.Doer) *UploadService {
	t.Helper()

	signer, err := sigv4.NewSigner(sigv4.Credentials{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	}, "us-east-1", "s3", sigv4.WithKeyCache())
	require.NoError(t, err)
	t.Cleanup(signer.Close)

	svc, err := NewUploadService(signer, doer,
		UploadServiceConfig{Endpoint: "https://objects.local:9000"}, nil, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

// =============================================================================
// Upload
// =============================================================================

func TestUploadSignsAndTransmits(t *testing.T) {
	content := []byte("month,total\n2021-01,42\n")

	doer := &mockDoer{}
	doer.On("Do", mock.Anything, mock.MatchedBy(func(req *transport.Request) bool {
		return req.Method == "PUT" &&
			req.URL == "https://objects.local:9000/reports/2021-01.csv" &&
			req.ContentLength == int64(len(content)) &&
			strings.HasPrefix(req.Headers[sigv4.AuthorizationHeader], "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/") &&
			req.Headers[sigv4.XAmzContentSHA256Header] == crypto.SHA256Hex(content) &&
			req.Headers[sigv4.ContentLengthHeader] == "23" &&
			req.Headers[sigv4.HostHeader] == "objects.local:9000"
	})).Return(&transport.Result{StatusCode: 200, ETag: `"etag1"`}, nil)

	svc := newTestService(t, doer)

	res, err := svc.Upload(context.Background(), UploadInput{
		Bucket: "reports",
		Key:    "2021-01.csv",
		Source: payload.NewBytesSource("inline", content),
	})
	require.NoError(t, err)

	assert.Equal(t, `"etag1"`, res.ETag)
	assert.Equal(t, int64(len(content)), res.Size)
	assert.NotEmpty(t, res.Signature)
	assert.NotEqual(t, res.AttemptID.String(), "00000000-0000-0000-0000-000000000000")
	doer.AssertExpectations(t)
}

func TestUploadOptionalHeaders(t *testing.T) {
	doer := &mockDoer{}
	doer.On("Do", mock.Anything, mock.MatchedBy(func(req *transport.Request) bool {
		return req.Headers[sigv4.XAmzStorageClassHeader] == "REDUCED_REDUNDANCY" &&
			req.Headers[sigv4.ContentTypeHeader] == "text/csv" &&
			strings.Contains(req.Headers[sigv4.AuthorizationHeader],
				"SignedHeaders=content-length;content-type;host;x-amz-content-sha256;x-amz-date;x-amz-storage-class,")
	})).Return(&transport.Result{StatusCode: 200}, nil)

	svc := newTestService(t, doer)

	_, err := svc.Upload(context.Background(), UploadInput{
		Bucket:       "reports",
		Key:          "2021-01.csv",
		Source:       payload.NewBytesSource("inline", nil),
		ContentType:  "text/csv",
		StorageClass: "REDUCED_REDUNDANCY",
	})
	require.NoError(t, err)
	doer.AssertExpectations(t)
}

func TestUploadOmitsStorageClassWhenUnset(t *testing.T) {
	doer := &mockDoer{}
	doer.On("Do", mock.Anything, mock.MatchedBy(func(req *transport.Request) bool {
		_, present := req.Headers[sigv4.XAmzStorageClassHeader]
		return !present
	})).Return(&transport.Result{StatusCode: 200}, nil)

	svc := newTestService(t, doer)

	_, err := svc.Upload(context.Background(), UploadInput{
		Bucket: "reports",
		Key:    "2021-01.csv",
		Source: payload.NewBytesSource("inline", nil),
	})
	require.NoError(t, err)
	doer.AssertExpectations(t)
}

func TestUploadValidatesInput(t *testing.T) {
	svc := newTestService(t, &mockDoer{})

	tests := []struct {
		name  string
		input UploadInput
	}{
		{name: "missing bucket", input: UploadInput{Key: "k", Source: payload.NewBytesSource("x", nil)}},
		{name: "missing key", input: UploadInput{Bucket: "b", Source: payload.NewBytesSource("x", nil)}},
		{name: "missing source", input: UploadInput{Bucket: "b", Key: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrMissingRequiredParams)
		})
	}
}

func TestUploadPropagatesPayloadError(t *testing.T) {
	svc := newTestService(t, &mockDoer{})

	_, err := svc.Upload(context.Background(), UploadInput{
		Bucket: "b",
		Key:    "k",
		Source: payload.NewFileSource("/does/not/exist"),
	})
	assert.ErrorIs(t, err, payload.ErrRead)
}

func TestUploadPropagatesTransportError(t *testing.T) {
	doer := &mockDoer{}
	doer.On("Do", mock.Anything, mock.Anything).
		Return(&transport.Result{StatusCode: 403}, transport.ErrUpload)

	svc := newTestService(t, doer)

	_, err := svc.Upload(context.Background(), UploadInput{
		Bucket: "b",
		Key:    "k",
		Source: payload.NewBytesSource("x", nil),
	})
	assert.ErrorIs(t, err, transport.ErrUpload)
}

func TestNewUploadServiceRejectsBadEndpoint(t *testing.T) {
	signer, err := sigv4.NewSigner(sigv4.Credentials{AccessKeyID: "A", SecretAccessKey: "S"}, "us-east-1", "s3")
	require.NoError(t, err)
	defer signer.Close()

	_, err = NewUploadService(signer, &mockDoer{}, UploadServiceConfig{Endpoint: "not a url"}, nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}

// =============================================================================
// Batch Upload
// =============================================================================

type countingDoer struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (d *countingDoer) Do(ctx context.Context, req *transport.Request) (*transport.Result, error) {
	cur := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		seen := d.maxSeen.Load()
		if cur <= seen || d.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	d.calls.Add(1)
	if req.Body != nil {
		io.Copy(io.Discard, req.Body)
		req.Body.Close()
	}
	return &transport.Result{StatusCode: 200}, nil
}

func TestUploadBatch(t *testing.T) {
	doer := &countingDoer{}
	svc := newTestService(t, doer)

	inputs := make([]UploadInput, 8)
	for i := range inputs {
		inputs[i] = UploadInput{
			Bucket: "reports",
			Key:    "object-" + string(rune('a'+i)),
			Source: payload.NewBytesSource("inline", []byte{byte(i)}),
		}
	}

	results := svc.UploadBatch(context.Background(), inputs, 3)

	require.Len(t, results, 8)
	for i, r := range results {
		assert.NoError(t, r.Err)
		require.NotNil(t, r.Result)
		assert.Equal(t, inputs[i].Key, r.Input.Key)
	}
	assert.Equal(t, int32(8), doer.calls.Load())
	assert.LessOrEqual(t, doer.maxSeen.Load(), int32(3))
}

func TestUploadBatchCancelledContext(t *testing.T) {
	svc := newTestService(t, &countingDoer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inputs := []UploadInput{
		{Bucket: "b", Key: "k1", Source: payload.NewBytesSource("x", nil)},
		{Bucket: "b", Key: "k2", Source: payload.NewBytesSource("x", nil)},
	}

	results := svc.UploadBatch(ctx, inputs, 2)
	require.Len(t, results, 2)
	for _, r := range results {
		// Dispatch may have raced cancellation; an item either errored or
		// completed, never vanished.
		if r.Err == nil {
			require.NotNil(t, r.Result)
		}
	}
}
