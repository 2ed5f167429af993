package firmware

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
	"io"
)

// A SigningWriter signs a firmware image incrementally. Payload bytes written
// to it are forwarded to the underlying writer while being fed to the MAC;
// Close finalizes the tag and appends it. Chunk boundaries do not affect the
// resulting envelope: any sequence of Writes producing the same byte stream
// yields the same signed image as a single Sign call.
type SigningWriter struct {
	w      io.Writer
	mac    hash.Hash
	size   int64
	closed bool
}

// NewSigningWriter returns a SigningWriter that emits a signed image to w.
func NewSigningWriter(w io.Writer, key Key) *SigningWriter {
	return &SigningWriter{w: w, mac: hmac.New(sha256.New, key)}
}

func (s *SigningWriter) Write(p []byte) (int, error) {
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.mac.Write(p)
	n, err := s.w.Write(p)
	s.size += int64(n)
	return n, err
}

// Size returns the number of payload bytes written so far. The tag is not
// included.
func (s *SigningWriter) Size() int64 {
	return s.size
}

// Close appends the authentication tag to the underlying writer. The
// SigningWriter cannot be used afterwards.
func (s *SigningWriter) Close() error {
	if s.closed {
		return io.ErrClosedPipe
	}
	s.closed = true
	_, err := s.w.Write(s.mac.Sum(nil))
	return err
}

// A StreamVerifier checks a signed image fed to it in arbitrary chunks.
//
// The trailing TagSize bytes of the stream are the tag, but their position is
// only known once the stream ends, so the verifier withholds the most recent
// TagSize bytes in a rolling buffer and hashes everything that falls out of
// it. This mirrors the chunked-upload verification the device performs before
// installing an image.
type StreamVerifier struct {
	mac  hash.Hash
	tail []byte
	size int64
}

// NewStreamVerifier returns a StreamVerifier for key.
func NewStreamVerifier(key Key) *StreamVerifier {
	return &StreamVerifier{
		mac:  hmac.New(sha256.New, key),
		tail: make([]byte, 0, TagSize),
	}
}

func (v *StreamVerifier) Write(p []byte) (int, error) {
	n := len(p)
	v.size += int64(n)
	if len(v.tail)+n <= TagSize {
		v.tail = append(v.tail, p...)
		return n, nil
	}
	// Everything except the last TagSize bytes of (tail || p) is payload.
	excess := len(v.tail) + n - TagSize
	if excess >= len(v.tail) {
		v.mac.Write(v.tail)
		v.mac.Write(p[:excess-len(v.tail)])
		v.tail = append(v.tail[:0], p[excess-len(v.tail):]...)
	} else {
		v.mac.Write(v.tail[:excess])
		v.tail = append(v.tail[:0], v.tail[excess:]...)
		v.tail = append(v.tail, p...)
	}
	return n, nil
}

// Size returns the total number of bytes written, tag included.
func (v *StreamVerifier) Size() int64 {
	return v.size
}

// PayloadSize returns the number of payload bytes seen so far, assuming the
// stream is complete.
func (v *StreamVerifier) PayloadSize() int64 {
	return v.size - int64(len(v.tail))
}

// Verify checks the stream received so far against its trailing tag. It
// returns ErrEnvelopeTooShort if fewer than TagSize bytes were written and
// ErrSignatureInvalid on a tag mismatch. The comparison is constant-time.
func (v *StreamVerifier) Verify() error {
	if v.size < TagSize {
		return ErrEnvelopeTooShort
	}
	if !hmac.Equal(v.mac.Sum(nil), v.tail) {
		return ErrSignatureInvalid
	}
	return nil
}
