package firmware

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

// writeInChunks feeds data to w split at the given boundaries.
func writeInChunks(t *testing.T, w interface{ Write([]byte) (int, error) }, data []byte, chunkSize int) {
	t.Helper()
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := w.Write(data[off:end]); err != nil {
			t.Fatalf("Error writing chunk at offset %d: %s", off, err)
		}
	}
}

func TestSigningWriterMatchesSign(t *testing.T) {
	key := testKey(t)
	payload := make([]byte, 1000)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("Error generating payload: %s", err)
	}
	expected := Sign(key, payload)

	for _, chunkSize := range []int{1, 7, 32, 333, 1000} {
		var buf bytes.Buffer
		sw := NewSigningWriter(&buf, key)
		writeInChunks(t, sw, payload, chunkSize)
		if sw.Size() != int64(len(payload)) {
			t.Errorf("SigningWriter reports size %d after %d bytes", sw.Size(), len(payload))
		}
		if err := sw.Close(); err != nil {
			t.Fatalf("Error finalizing stream: %s", err)
		}
		if !bytes.Equal(buf.Bytes(), expected) {
			t.Errorf("Chunk size %d produced a different envelope", chunkSize)
		}
	}
}

func TestSigningWriterClosed(t *testing.T) {
	sw := NewSigningWriter(&bytes.Buffer{}, testKey(t))
	if err := sw.Close(); err != nil {
		t.Fatalf("Error closing stream: %s", err)
	}
	if _, err := sw.Write([]byte("late")); err == nil {
		t.Error("Write after Close succeeded")
	}
	if err := sw.Close(); err == nil {
		t.Error("Double Close succeeded")
	}
}

func TestStreamVerifier(t *testing.T) {
	key := testKey(t)
	payload := make([]byte, 777)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("Error generating payload: %s", err)
	}
	signed := Sign(key, payload)

	// Chunk sizes chosen so writes straddle the payload/tag boundary in
	// different ways, including single-byte dribbles through the tail buffer.
	for _, chunkSize := range []int{1, 16, 31, 32, 33, 100, len(signed)} {
		sv := NewStreamVerifier(key)
		writeInChunks(t, sv, signed, chunkSize)
		if err := sv.Verify(); err != nil {
			t.Errorf("Chunk size %d: rejected authentic stream: %s", chunkSize, err)
		}
		if sv.Size() != int64(len(signed)) {
			t.Errorf("Chunk size %d: size %d, expected %d", chunkSize, sv.Size(), len(signed))
		}
		if sv.PayloadSize() != int64(len(payload)) {
			t.Errorf("Chunk size %d: payload size %d, expected %d", chunkSize, sv.PayloadSize(), len(payload))
		}
	}
}

func TestStreamVerifierRejectsTampering(t *testing.T) {
	key := testKey(t)
	signed := Sign(key, []byte("boot me"))
	for i := range signed {
		mutated := append([]byte{}, signed...)
		mutated[i] ^= 0x80
		sv := NewStreamVerifier(key)
		writeInChunks(t, sv, mutated, 3)
		if err := sv.Verify(); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("Accepted stream with byte %d corrupted: %v", i, err)
		}
	}
}

func TestStreamVerifierTooShort(t *testing.T) {
	sv := NewStreamVerifier(testKey(t))
	if _, err := sv.Write(make([]byte, TagSize-1)); err != nil {
		t.Fatalf("Error writing short stream: %s", err)
	}
	if err := sv.Verify(); !errors.Is(err, ErrEnvelopeTooShort) {
		t.Errorf("Expected ErrEnvelopeTooShort, got %v", err)
	}
}

func TestStreamVerifierEmptyPayload(t *testing.T) {
	key := testKey(t)
	sv := NewStreamVerifier(key)
	writeInChunks(t, sv, Sign(key, nil), 5)
	if err := sv.Verify(); err != nil {
		t.Errorf("Rejected tag-only stream for empty payload: %s", err)
	}
	if sv.PayloadSize() != 0 {
		t.Errorf("Empty payload reported as %d bytes", sv.PayloadSize())
	}
}
