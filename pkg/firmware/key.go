package firmware

import (
	"encoding/hex"
	"io"
)

// A Key authenticates firmware images. It is always exactly KeySize bytes; the
// constructors below are the only supported ways to obtain one.
type Key []byte

// ParseKey decodes a hex-encoded signing key.
//
// The string must be exactly HexKeySize characters and decode cleanly; the
// function never truncates or pads. Both validation checks run before any key
// material is handled, so a malformed key is rejected without touching the
// decoder.
func ParseKey(hexKey string) (Key, error) {
	if len(hexKey) != HexKeySize {
		return nil, &InvalidKeyLengthError{Length: len(hexKey)}
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKeyEncoding
	}
	return Key(key), nil
}

// NewKey wraps raw key bytes. Returns an InvalidKeyLengthError if raw is not
// exactly KeySize bytes.
func NewKey(raw []byte) (Key, error) {
	if len(raw) != KeySize {
		return nil, &InvalidKeyLengthError{Length: 2 * len(raw)}
	}
	return Key(append([]byte{}, raw...)), nil
}

// GenerateKey draws a fresh signing key from rng, which must be a
// cryptographically secure source (crypto/rand.Reader in production). If the
// source cannot be read the returned error is an *EntropyError; the function
// never substitutes a weaker source.
func GenerateKey(rng io.Reader) (Key, error) {
	key := make(Key, KeySize)
	if _, err := io.ReadFull(rng, key); err != nil {
		return nil, &EntropyError{Err: err}
	}
	return key, nil
}

// Hex returns the canonical 64-character lowercase encoding of k. This is the
// sole interchange format for keys between the signing tool and the device.
func (k Key) Hex() string {
	return hex.EncodeToString(k)
}

// String renders a redacted form suitable for logs.
func (k Key) String() string {
	return "Key(redacted)"
}
