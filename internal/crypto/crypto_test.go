package crypto

import (
	"bytes"
	"testing"
)

func TestDeriveKey(t *testing.T) {
	password := []byte("test-password")
	salt := make([]byte, 32)
	for i := range salt {
		salt[i] = byte(i)
	}

	normal := DefaultKDFParams()
	key1, err := DeriveKey(password, salt, normal)
	if err != nil {
		t.Fatalf("DeriveKey(normal) failed: %v", err)
	}
	if len(key1) != normal.KeyLen {
		t.Errorf("key length = %d; want %d", len(key1), normal.KeyLen)
	}

	paranoid := ParanoidKDFParams()
	key2, err := DeriveKey(password, salt, paranoid)
	if err != nil {
		t.Fatalf("DeriveKey(paranoid) failed: %v", err)
	}

	if bytes.Equal(key1, key2) {
		t.Error("normal and paranoid params should derive different keys")
	}

	key1b, err := DeriveKey(password, salt, normal)
	if err != nil {
		t.Fatalf("DeriveKey(normal) second call failed: %v", err)
	}
	if !bytes.Equal(key1, key1b) {
		t.Error("same inputs should produce the same key")
	}
}

func TestDeriveKeyRejectsWeakParams(t *testing.T) {
	password := []byte("p")
	salt := make([]byte, 32)

	weak := KDFParams{MemoryCostKiB: 1024, TimeCost: 1, Parallelism: 1, SaltLen: 32, KeyLen: 32}
	if _, err := DeriveKey(password, salt, weak); err == nil {
		t.Error("DeriveKey should reject memory_cost_kib below the floor")
	}

	okMemory := KDFParams{MemoryCostKiB: MinMemoryCostKiB, TimeCost: 1, Parallelism: 1, SaltLen: 32, KeyLen: 32}
	if _, err := DeriveKey(password, salt, okMemory); err == nil {
		t.Error("DeriveKey should reject time_cost below the floor")
	}
}

func TestSubkeyReaderOrder(t *testing.T) {
	root := make([]byte, 32)
	salt := make([]byte, 32)
	for i := range root {
		root[i] = byte(i)
		salt[i] = byte(255 - i)
	}

	stream := NewHKDFStream(root, salt, []byte("test"))
	reader := NewSubkeyReader(stream)

	mac, err := reader.MACSubkey()
	if err != nil {
		t.Fatalf("MACSubkey() failed: %v", err)
	}
	if len(mac) != SubkeyMACSize {
		t.Errorf("MAC subkey length = %d; want %d", len(mac), SubkeyMACSize)
	}
	if _, err := reader.MACSubkey(); err == nil {
		t.Error("second MACSubkey() call should fail")
	}

	cph, err := reader.CipherSubkey()
	if err != nil {
		t.Fatalf("CipherSubkey() failed: %v", err)
	}
	if len(cph) != SubkeyCipherSize {
		t.Errorf("cipher subkey length = %d; want %d", len(cph), SubkeyCipherSize)
	}

	serp, err := reader.SerpentSubkey()
	if err != nil {
		t.Fatalf("SerpentSubkey() failed: %v", err)
	}
	if len(serp) != SubkeySerpentSize {
		t.Errorf("serpent subkey length = %d; want %d", len(serp), SubkeySerpentSize)
	}

	nonce, iv, err := reader.RekeyValues()
	if err != nil {
		t.Fatalf("RekeyValues() failed: %v", err)
	}
	if len(nonce) != RekeyNonceSize || len(iv) != RekeySerpentIVSize {
		t.Errorf("unexpected rekey value sizes: nonce=%d iv=%d", len(nonce), len(iv))
	}
	if reader.RekeyCount() != 1 {
		t.Errorf("RekeyCount() = %d; want 1", reader.RekeyCount())
	}
}

func TestSubkeyReaderRejectsOutOfOrderReads(t *testing.T) {
	stream := NewHKDFStream(make([]byte, 32), make([]byte, 32), nil)
	reader := NewSubkeyReader(stream)

	if _, err := reader.CipherSubkey(); err == nil {
		t.Error("CipherSubkey() before MACSubkey() should fail")
	}
	if _, err := reader.SerpentSubkey(); err == nil {
		t.Error("SerpentSubkey() before MACSubkey()/CipherSubkey() should fail")
	}
}

func TestNewMAC(t *testing.T) {
	subkey := make([]byte, 64)
	for i := range subkey {
		subkey[i] = byte(i)
	}

	normalMAC, err := NewMAC(subkey, false)
	if err != nil {
		t.Fatalf("NewMAC(paranoid=false) failed: %v", err)
	}
	normalMAC.Write([]byte("test data"))
	sum1 := normalMAC.Sum(nil)
	if len(sum1) != MACSize {
		t.Errorf("MAC size = %d; want %d", len(sum1), MACSize)
	}

	paranoidMAC, err := NewMAC(subkey, true)
	if err != nil {
		t.Fatalf("NewMAC(paranoid=true) failed: %v", err)
	}
	paranoidMAC.Write([]byte("test data"))
	sum2 := paranoidMAC.Sum(nil)

	if bytes.Equal(sum1, sum2) {
		t.Error("BLAKE2b-512 and HMAC-SHA3-512 should produce different tags")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{1, 2, 3, 4}
	c := []byte{1, 2, 3, 5}

	if !ConstantTimeEqual(a, b) {
		t.Error("identical slices should compare equal")
	}
	if ConstantTimeEqual(a, c) {
		t.Error("differing slices should not compare equal")
	}
	if ConstantTimeEqual(a, []byte{1, 2, 3}) {
		t.Error("differing lengths should not compare equal")
	}
}

func TestCounter(t *testing.T) {
	c := NewCounter()

	if c.Add(1000) {
		t.Error("small amounts should not trigger rekey")
	}

	c.Reset()
	if c.Count() != 0 {
		t.Error("counter should be 0 after reset")
	}

	if !c.Add(RekeyThreshold) {
		t.Error("reaching the threshold should trigger rekey")
	}
}

func newTestSuite(t *testing.T, paranoid bool) (*CipherSuite, *CipherSuite) {
	t.Helper()

	cipherKey := make([]byte, 32)
	nonce := make([]byte, 24)
	serpentKey := make([]byte, 32)
	serpentIV := make([]byte, 16)
	macSubkey := make([]byte, 64)
	hkdfSalt := make([]byte, 32)
	for i := range cipherKey {
		cipherKey[i] = byte(i)
		serpentKey[i] = byte(i + 32)
	}
	for i := range macSubkey {
		macSubkey[i] = byte(i + 7)
	}

	encStream := NewHKDFStream(cipherKey, hkdfSalt, []byte("test"))
	encSuite, err := NewCipherSuite(cipherKey, nonce, serpentKey, serpentIV, macSubkey, encStream, paranoid, []byte("aad"))
	if err != nil {
		t.Fatalf("NewCipherSuite(enc) failed: %v", err)
	}

	decStream := NewHKDFStream(cipherKey, hkdfSalt, []byte("test"))
	decSuite, err := NewCipherSuite(cipherKey, nonce, serpentKey, serpentIV, macSubkey, decStream, paranoid, []byte("aad"))
	if err != nil {
		t.Fatalf("NewCipherSuite(dec) failed: %v", err)
	}

	return encSuite, decSuite
}

func TestCipherSuiteEncryptDecrypt(t *testing.T) {
	plaintext := []byte("Hello, World! This is a test message for encryption.")

	for _, paranoid := range []bool{false, true} {
		name := "normal"
		if paranoid {
			name = "paranoid"
		}
		t.Run(name, func(t *testing.T) {
			encSuite, decSuite := newTestSuite(t, paranoid)
			defer encSuite.Close()
			defer decSuite.Close()

			ciphertext, tag := EncryptBuffer(encSuite, plaintext)
			if bytes.Equal(ciphertext, plaintext) {
				t.Error("ciphertext should differ from plaintext")
			}

			plaintextOut, err := DecryptBuffer(decSuite, ciphertext, tag)
			if err != nil {
				t.Fatalf("DecryptBuffer failed: %v", err)
			}
			if !bytes.Equal(plaintextOut, plaintext) {
				t.Errorf("decrypted = %q; want %q", plaintextOut, plaintext)
			}
		})
	}
}

func TestDecryptBufferRejectsBadTag(t *testing.T) {
	encSuite, decSuite := newTestSuite(t, false)
	defer encSuite.Close()
	defer decSuite.Close()

	ciphertext, tag := EncryptBuffer(encSuite, []byte("secret"))
	tag[0] ^= 0xFF

	if _, err := DecryptBuffer(decSuite, ciphertext, tag); err == nil {
		t.Error("DecryptBuffer should reject a tampered tag")
	}
}

func TestStreamEncryptDecryptRoundTrip(t *testing.T) {
	encSuite, decSuite := newTestSuite(t, true)
	defer encSuite.Close()
	defer decSuite.Close()

	plaintext := bytes.Repeat([]byte("stream-chunk-payload-"), 4096)

	var ciphertext bytes.Buffer
	encTag, err := StreamEncrypt(encSuite, &ciphertext, bytes.NewReader(plaintext), 1024)
	if err != nil {
		t.Fatalf("StreamEncrypt failed: %v", err)
	}

	var recovered bytes.Buffer
	decTag, err := StreamDecrypt(decSuite, &recovered, bytes.NewReader(ciphertext.Bytes()), 1024)
	if err != nil {
		t.Fatalf("StreamDecrypt failed: %v", err)
	}

	if !bytes.Equal(recovered.Bytes(), plaintext) {
		t.Error("round-tripped plaintext does not match original")
	}
	if !ConstantTimeEqual(encTag, decTag) {
		t.Error("encrypt and decrypt MAC tags should match")
	}
}
