package rscode

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codecs, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	data := []byte{0xAB, 0xCD, 0xEF}
	encoded, err := Encode(codecs.Group3, data)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(encoded) != codecs.Group3.Total() {
		t.Fatalf("encoded length = %d; want %d", len(encoded), codecs.Group3.Total())
	}

	decoded, corrected, err := Decode(codecs.Group3, encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if corrected {
		t.Error("uncorrupted data should not be reported as corrected")
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("decoded = %v; want %v", decoded, data)
	}
}

func TestDecodeCorrectsSingleByteError(t *testing.T) {
	codecs, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	data := []byte{0x01, 0x02, 0x03}
	encoded, err := Encode(codecs.Group3, data)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	corrupted := make([]byte, len(encoded))
	copy(corrupted, encoded)
	corrupted[0] ^= 0xFF

	decoded, corrected, err := Decode(codecs.Group3, corrupted)
	if err != nil {
		t.Fatalf("Decode should recover from a single flipped byte: %v", err)
	}
	if !corrected {
		t.Error("corrupted input should be reported as corrected")
	}
	if !bytes.Equal(decoded, data) {
		t.Errorf("decoded = %v; want %v", decoded, data)
	}
}

func TestDecodeFailsWhenUnrecoverable(t *testing.T) {
	codecs, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	data := []byte{0x10, 0x20, 0x30}
	encoded, err := Encode(codecs.Group3, data)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for i := range encoded {
		encoded[i] ^= byte(i + 1)
	}

	if _, _, err := Decode(codecs.Group3, encoded); err == nil {
		t.Error("fully corrupted data should be unrecoverable")
	}
}

func TestEncodeRejectsWrongLength(t *testing.T) {
	codecs, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := Encode(codecs.Header16, []byte{1, 2, 3}); err == nil {
		t.Error("Encode should reject input of the wrong length")
	}
}

func TestHeader32RoundTrip(t *testing.T) {
	codecs, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}

	encoded, err := Encode(codecs.Header32, data)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, _, err := Decode(codecs.Header32, encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Error("decoded Header32 data mismatch")
	}
}
