package crypto

import (
	"io"
	"testing"

	"golang.org/x/crypto/chacha20"
)

// BenchmarkDeriveKeyNormal measures Argon2id key derivation at the default
// profile parameters. Intentionally slow (~100ms+) - that cost is the point.
func BenchmarkDeriveKeyNormal(b *testing.B) {
	password := []byte("test-password-123")
	salt := make([]byte, 32)
	params := DefaultKDFParams()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = DeriveKey(password, salt, params)
	}
}

// BenchmarkDeriveKeyParanoid measures Argon2id key derivation at the
// paranoid profile parameters (1 GiB memory, 4 passes).
func BenchmarkDeriveKeyParanoid(b *testing.B) {
	password := []byte("test-password-123")
	salt := make([]byte, 32)
	params := ParanoidKDFParams()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = DeriveKey(password, salt, params)
	}
}

// BenchmarkNewMAC_BLAKE2b measures BLAKE2b-512 MAC initialization.
func BenchmarkNewMAC_BLAKE2b(b *testing.B) {
	subkey := make([]byte, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = NewMAC(subkey, false)
	}
}

// BenchmarkNewMAC_HMACSHA3 measures HMAC-SHA3-512 MAC initialization.
func BenchmarkNewMAC_HMACSHA3(b *testing.B) {
	subkey := make([]byte, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = NewMAC(subkey, true)
	}
}

// BenchmarkMACWrite_BLAKE2b measures BLAKE2b-512 data processing throughput.
func BenchmarkMACWrite_BLAKE2b(b *testing.B) {
	subkey := make([]byte, 64)
	mac, _ := NewMAC(subkey, false)
	data := make([]byte, 1<<20) // 1 MiB

	b.ResetTimer()
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		mac.Reset()
		mac.Write(data)
		_ = mac.Sum(nil)
	}
}

// BenchmarkMACWrite_HMACSHA3 measures HMAC-SHA3-512 data processing throughput.
func BenchmarkMACWrite_HMACSHA3(b *testing.B) {
	subkey := make([]byte, 64)
	mac, _ := NewMAC(subkey, true)
	data := make([]byte, 1<<20) // 1 MiB

	b.ResetTimer()
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		mac.Reset()
		mac.Write(data)
		_ = mac.Sum(nil)
	}
}

// BenchmarkXChaCha20 measures raw XChaCha20 keystream throughput.
func BenchmarkXChaCha20(b *testing.B) {
	key := make([]byte, 32)
	nonce := make([]byte, 24)
	cipher, _ := chacha20.NewUnauthenticatedCipher(key, nonce)
	data := make([]byte, 1<<20) // 1 MiB
	dst := make([]byte, len(data))

	b.ResetTimer()
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		cipher.XORKeyStream(dst, data)
	}
}

// BenchmarkStreamEncrypt measures the chunked StreamEncrypt path used by the
// folder mover for vault entry payloads.
func BenchmarkStreamEncrypt(b *testing.B) {
	cipherKey := make([]byte, 32)
	nonce := make([]byte, 24)
	macSubkey := make([]byte, 64)
	salt := make([]byte, 32)
	data := make([]byte, 1<<20) // 1 MiB

	b.ResetTimer()
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		stream := NewHKDFStream(cipherKey, salt, nil)
		suite, _ := NewCipherSuite(cipherKey, nonce, nil, nil, macSubkey, stream, false, nil)
		_, _ = StreamEncrypt(suite, discardWriter{}, bytesReader(data), 0)
		suite.Close()
	}
}

// BenchmarkSecureZero measures secure memory zeroing for a typical key size.
func BenchmarkSecureZero(b *testing.B) {
	data := make([]byte, 32)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SecureZero(data)
	}
}

// BenchmarkSecureZeroLarge measures secure zeroing of a 1 MiB buffer.
func BenchmarkSecureZeroLarge(b *testing.B) {
	data := make([]byte, 1<<20)

	b.ResetTimer()
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		SecureZero(data)
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func bytesReader(b []byte) *sliceReader { return &sliceReader{data: b} }

// sliceReader is a minimal io.Reader over a fixed byte slice, avoiding a
// bytes.Reader allocation per benchmark iteration's setup.
type sliceReader struct {
	data []byte
	pos  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
