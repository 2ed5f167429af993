package firmware

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Tag computes the HMAC-SHA256 authentication tag for payload under key. The
// full payload is hashed as a single message, so the result is independent of
// how callers buffer their reads.
func Tag(key Key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil)
}

// Sign produces a signed image: payload with its authentication tag appended.
// The payload is not modified. Sign is deterministic; identical (key, payload)
// inputs always yield byte-identical output.
func Sign(key Key, payload []byte) []byte {
	signed := make([]byte, 0, len(payload)+TagSize)
	signed = append(signed, payload...)
	return append(signed, Tag(key, payload)...)
}

// Verify checks the trailing tag of a signed image and returns the payload it
// covers.
//
// Images shorter than TagSize are rejected with ErrEnvelopeTooShort. A tag
// mismatch is reported as ErrSignatureInvalid with a nil payload; callers must
// treat rejection as "do not flash, do not execute". Tag comparison uses
// hmac.Equal, so verification time does not depend on where the tags differ.
func Verify(key Key, signed []byte) ([]byte, error) {
	if len(signed) < TagSize {
		return nil, ErrEnvelopeTooShort
	}
	payload := signed[:len(signed)-TagSize]
	receivedTag := signed[len(signed)-TagSize:]
	if !hmac.Equal(Tag(key, payload), receivedTag) {
		return nil, ErrSignatureInvalid
	}
	return payload, nil
}
