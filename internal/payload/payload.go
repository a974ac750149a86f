// Package payload abstracts the byte sources an upload can be built from.
// The signing core only needs the exact body bytes and their SHA-256; this
// package supplies both without any platform-specific metadata calls.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prn-tf/ptolemy-upload/internal/pkg/crypto"
)

// ErrRead indicates the payload source failed. The signing pipeline
// propagates it without recovery.
var ErrRead = errors.New("payload read failed")

// Source supplies the exact bytes for one request body. Digest and Open must
// observe the same bytes: any mutation between the two invalidates the
// signature.
type Source interface {
	// Digest returns the lowercase hex SHA-256 and size of the payload.
	Digest() (string, int64, error)

	// Open returns a fresh reader over the payload, positioned at the start.
	Open() (io.ReadCloser, error)

	// Name describes the source for logging.
	Name() string
}

// =============================================================================
// Bytes Source
// =============================================================================

// BytesSource serves a payload held in memory.
type BytesSource struct {
	name string
	data []byte
}

// NewBytesSource creates a source over the given bytes. The slice is not
// copied; callers must not mutate it after handing it over.
func NewBytesSource(name string, data []byte) *BytesSource {
	return &BytesSource{name: name, data: data}
}

// Digest returns the hex SHA-256 and size of the bytes.
func (s *BytesSource) Digest() (string, int64, error) {
	return crypto.SHA256Hex(s.data), int64(len(s.data)), nil
}

// Open returns a reader over the bytes.
func (s *BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

// Name returns the source description.
func (s *BytesSource) Name() string {
	return s.name
}

// =============================================================================
// File Source
// =============================================================================

// FileSource serves a payload from a file on disk. The digest is computed by
// streaming the file once and cached; the file must not change between
// Digest and the transmission read.
type FileSource struct {
	path string

	once   sync.Once
	digest string
	size   int64
	err    error
}

// NewFileSource creates a source over the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Digest streams the file through SHA-256. The size reported is the byte
// count actually hashed, not a stat result, so it is portable and always
// consistent with the digest.
func (s *FileSource) Digest() (string, int64, error) {
	s.once.Do(func() {
		f, err := os.Open(s.path)
		if err != nil {
			s.err = fmt.Errorf("%w: %s: %v", ErrRead, s.path, err)
			return
		}
		defer f.Close()

		s.digest, s.size, s.err = crypto.ComputeStreamSHA256(f)
		if s.err != nil {
			s.err = fmt.Errorf("%w: %s: %v", ErrRead, s.path, s.err)
		}
	})
	return s.digest, s.size, s.err
}

// Open opens the file for transmission.
func (s *FileSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRead, s.path, err)
	}
	return f, nil
}

// Name returns the file path.
func (s *FileSource) Name() string {
	return s.path
}

// =============================================================================
// Reader Source
// =============================================================================

// FromReader drains r into memory and returns a source over the buffered
// bytes. The body must be re-readable for transmission after hashing, so a
// one-shot reader has to be buffered.
func FromReader(name string, r io.Reader) (*BytesSource, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRead, name, err)
	}
	return NewBytesSource(name, data), nil
}
