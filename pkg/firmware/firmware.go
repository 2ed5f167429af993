/*
Package firmware implements the DeskBuddy firmware signing scheme.

A signed firmware image is the raw image with a 32-byte HMAC-SHA256 tag
appended. There is no header, magic number, or length field; the device locates
the tag by stripping the fixed-size suffix. The same 256-bit symmetric key is
used by the signing workstation and by the device's OTA verifier, and is
interchanged as a 64-character lowercase hex string.

Signing is deterministic: the same (key, image) pair always produces the same
envelope. Verification is binary; a rejected image must never be flashed or
executed.
*/
package firmware

const (
	// KeySize is the length of a signing key in bytes.
	KeySize = 32
	// HexKeySize is the length of a hex-encoded signing key.
	HexKeySize = 2 * KeySize
	// TagSize is the length of the HMAC-SHA256 tag appended to a signed image.
	TagSize = 32
)
