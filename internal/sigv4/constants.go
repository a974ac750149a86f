// Package sigv4 computes AWS Signature Version 4 request authorization for
// outbound S3-compatible requests without a vendor SDK.
// This implementation follows the AWS v4 signature specification.
package sigv4

// =============================================================================
// Constants
// =============================================================================

const (
	// SignV4Algorithm is the algorithm identifier for AWS Signature Version 4.
	SignV4Algorithm = "AWS4-HMAC-SHA256"

	// ISO8601BasicFormat is the timestamp format used in AWS v4 signatures.
	ISO8601BasicFormat = "20060102T150405Z"

	// YYYYMMDD is the short date format used in credential scope.
	YYYYMMDD = "20060102"

	// AWS4Request is the termination string for credential scope.
	AWS4Request = "aws4_request"

	// AWS4KeyPrefix is prepended to the secret key in signing key derivation.
	AWS4KeyPrefix = "AWS4"

	// ServiceS3 is the service name for S3-compatible object storage.
	ServiceS3 = "s3"

	// DefaultRegion is the default region if not specified.
	DefaultRegion = "us-east-1"
)

// =============================================================================
// Header Names
// =============================================================================

const (
	// AuthorizationHeader is the HTTP header carrying the signature.
	AuthorizationHeader = "Authorization"

	// HostHeader is the host header, always signed for S3.
	HostHeader = "host"

	// ContentLengthHeader is the content length header.
	ContentLengthHeader = "content-length"

	// ContentTypeHeader is the content type header.
	ContentTypeHeader = "content-type"

	// XAmzDateHeader is the AWS request timestamp header.
	XAmzDateHeader = "x-amz-date"

	// XAmzContentSHA256Header is the content hash header.
	XAmzContentSHA256Header = "x-amz-content-sha256"

	// XAmzStorageClassHeader is the storage class header.
	XAmzStorageClassHeader = "x-amz-storage-class"
)

// =============================================================================
// Special Content Hash Values
// =============================================================================

const (
	// EmptyStringSHA256 is the SHA-256 digest of zero bytes. An empty payload
	// hashes to this value; it is not an error.
	EmptyStringSHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)
