package firmware

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeyEncoding indicates a key string contained characters outside
	// [0-9a-fA-F].
	ErrInvalidKeyEncoding = errors.New("signing key is not valid hexadecimal")
	// ErrEnvelopeTooShort indicates a verification input shorter than the
	// 32-byte tag. There is no payload to recover from such an input.
	ErrEnvelopeTooShort = errors.New("signed image shorter than authentication tag")
	// ErrSignatureInvalid indicates the recomputed tag did not match the tag at
	// the end of the image. The payload must not be flashed or executed.
	ErrSignatureInvalid = errors.New("firmware signature invalid")
)

// InvalidKeyLengthError indicates a key string was not exactly HexKeySize
// characters. It carries the observed length for diagnostics.
type InvalidKeyLengthError struct {
	Length int
}

func (e *InvalidKeyLengthError) Error() string {
	return fmt.Sprintf("signing key must be %d hex characters (%d bytes), got %d characters", HexKeySize, KeySize, e.Length)
}

// EntropyError indicates the secure random source could not be read during key
// generation.
type EntropyError struct {
	Err error
}

func (e *EntropyError) Error() string {
	return fmt.Sprintf("entropy source unavailable: %s", e.Err)
}

func (e *EntropyError) Unwrap() error {
	return e.Err
}
