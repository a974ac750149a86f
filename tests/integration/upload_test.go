// Package integration provides end-to-end tests for Ptolemy Upload against
// an in-process S3-compatible verifier.
package integration

import (
	"context"
	"crypto/hmac"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/ptolemy-upload/internal/payload"
	"github.com/prn-tf/ptolemy-upload/internal/pkg/crypto"
	"github.com/prn-tf/ptolemy-upload/internal/service"
	"github.com/prn-tf/ptolemy-upload/internal/sigv4"
	"github.com/prn-tf/ptolemy-upload/internal/transport"
)

const (
	testAccessKeyID     = "PTOLEMYTESTACCESSKEY"
	testSecretAccessKey = "ptolemy-test-secret-access-key"
	testRegion          = "us-east-1"
)

// verifyingHandler recomputes the SigV4 signature of every incoming request
// from the raw wire data, the way a store would, and rejects mismatches.
func verifyingHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "AWS4-HMAC-SHA256 ") {
			http.Error(w, "missing authorization", http.StatusForbidden)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "body read", http.StatusBadRequest)
			return
		}

		requestTime, err := time.Parse(sigv4.ISO8601BasicFormat, r.Header.Get("x-amz-date"))
		if err != nil {
			http.Error(w, "bad x-amz-date", http.StatusBadRequest)
			return
		}

		// Rebuild the canonical request from the signed header list.
		signedHeaderList := extractSignedHeaders(authz)
		rd := sigv4.NewRequestDescriptor(r.Method, r.Host, r.URL.Path)
		for _, name := range strings.Split(signedHeaderList, ";") {
			var value string
			if name == "host" {
				value = r.Host
			} else {
				value = r.Header.Get(name)
			}
			if err := rd.SetHeader(name, value); err != nil {
				http.Error(w, "bad header set", http.StatusBadRequest)
				return
			}
		}
		for k, vs := range r.URL.Query() {
			rd.Query[k] = vs
		}

		payloadHash := crypto.SHA256Hex(body)
		if got := r.Header.Get("x-amz-content-sha256"); got != payloadHash {
			msg := fmt.Sprintf("content hash mismatch: header %s, body %s", got, payloadHash)
			http.Error(w, msg, http.StatusBadRequest)
			return
		}

		canonical := sigv4.BuildCanonicalRequest(rd, payloadHash)
		scope := sigv4.Scope{Date: requestTime, Region: testRegion, Service: sigv4.ServiceS3}
		stringToSign := sigv4.BuildStringToSign(canonical.String(), requestTime, scope)
		signingKey := sigv4.DeriveSigningKey(testSecretAccessKey, requestTime, testRegion, sigv4.ServiceS3)
		expected := sigv4.ComputeSignature(signingKey, stringToSign.String())

		provided := extractSignature(authz)
		if !hmac.Equal([]byte(expected), []byte(provided)) {
			t.Logf("canonical request:\n%s", canonical.String())
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `<?xml version="1.0"?><Error><Code>SignatureDoesNotMatch</Code><Message>signature mismatch</Message></Error>`)
			return
		}

		w.Header().Set("ETag", `"`+crypto.SHA256Hex(body)[:32]+`"`)
		w.WriteHeader(http.StatusOK)
	})
}

func extractSignedHeaders(authz string) string {
	return extractField(authz, "SignedHeaders=")
}

func extractSignature(authz string) string {
	return extractField(authz, "Signature=")
}

func extractField(authz, prefix string) string {
	for _, part := range strings.Split(authz, ", ") {
		part = strings.TrimPrefix(part, "AWS4-HMAC-SHA256 ")
		if strings.HasPrefix(part, prefix) {
			return strings.TrimPrefix(part, prefix)
		}
	}
	return ""
}

func newTestService(t *testing.T, endpoint string) *service.UploadService {
	t.Helper()

	signer, err := sigv4.NewSigner(sigv4.Credentials{
		AccessKeyID:     testAccessKeyID,
		SecretAccessKey: testSecretAccessKey,
	}, testRegion, sigv4.ServiceS3, sigv4.WithKeyCache())
	require.NoError(t, err)
	t.Cleanup(signer.Close)

	client := transport.NewClient(10*time.Second, zerolog.Nop())

	svc, err := service.NewUploadService(signer, client,
		service.UploadServiceConfig{Endpoint: endpoint}, nil, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func TestUploadRoundTrip(t *testing.T) {
	srv := httptest.NewServer(verifyingHandler(t))
	defer srv.Close()

	svc := newTestService(t, srv.URL)

	content := []byte("month,total\n2021-01,42\n")
	res, err := svc.Upload(context.Background(), service.UploadInput{
		Bucket:       "reports",
		Key:          "2021-01.csv",
		Source:       payload.NewBytesSource("inline", content),
		ContentType:  "text/csv",
		StorageClass: "STANDARD",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ETag)
	assert.Equal(t, int64(len(content)), res.Size)
}

func TestUploadRoundTripBinaryPayload(t *testing.T) {
	srv := httptest.NewServer(verifyingHandler(t))
	defer srv.Close()

	svc := newTestService(t, srv.URL)

	// Byte values that would corrupt if routed through text interpolation.
	content := make([]byte, 512)
	for i := range content {
		content[i] = byte(i % 256)
	}

	_, err := svc.Upload(context.Background(), service.UploadInput{
		Bucket: "artifacts",
		Key:    "blob.bin",
		Source: payload.NewBytesSource("inline", content),
	})
	require.NoError(t, err)
}

func TestUploadRoundTripEmptyFile(t *testing.T) {
	srv := httptest.NewServer(verifyingHandler(t))
	defer srv.Close()

	svc := newTestService(t, srv.URL)

	path := filepath.Join(t.TempDir(), "empty.dat")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	res, err := svc.Upload(context.Background(), service.UploadInput{
		Bucket: "reports",
		Key:    "empty.dat",
		Source: payload.NewFileSource(path),
	})
	require.NoError(t, err)
	assert.Zero(t, res.Size)
}

func TestUploadRoundTripKeyNeedingEncoding(t *testing.T) {
	srv := httptest.NewServer(verifyingHandler(t))
	defer srv.Close()

	svc := newTestService(t, srv.URL)

	_, err := svc.Upload(context.Background(), service.UploadInput{
		Bucket: "reports",
		Key:    "monthly totals/2021 01.csv",
		Source: payload.NewBytesSource("inline", []byte("x")),
	})
	require.NoError(t, err)
}

func TestUploadRejectedOnTamperedSecret(t *testing.T) {
	srv := httptest.NewServer(verifyingHandler(t))
	defer srv.Close()

	signer, err := sigv4.NewSigner(sigv4.Credentials{
		AccessKeyID:     testAccessKeyID,
		SecretAccessKey: "wrong-secret",
	}, testRegion, sigv4.ServiceS3)
	require.NoError(t, err)
	defer signer.Close()

	client := transport.NewClient(10*time.Second, zerolog.Nop())
	svc, err := service.NewUploadService(signer, client,
		service.UploadServiceConfig{Endpoint: srv.URL}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = svc.Upload(context.Background(), service.UploadInput{
		Bucket: "reports",
		Key:    "2021-01.csv",
		Source: payload.NewBytesSource("inline", []byte("x")),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrUpload)
	assert.Contains(t, err.Error(), "SignatureDoesNotMatch")
}

func TestUploadBatchRoundTrip(t *testing.T) {
	srv := httptest.NewServer(verifyingHandler(t))
	defer srv.Close()

	svc := newTestService(t, srv.URL)

	inputs := make([]service.UploadInput, 6)
	for i := range inputs {
		inputs[i] = service.UploadInput{
			Bucket: "reports",
			Key:    fmt.Sprintf("part-%d.csv", i),
			Source: payload.NewBytesSource("inline", []byte(fmt.Sprintf("row,%d\n", i))),
		}
	}

	results := svc.UploadBatch(context.Background(), inputs, 3)
	require.Len(t, results, 6)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}
