package crypto

import (
	"crypto/hmac"
	"crypto/subtle"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// MACSize is the output size of the MAC, 64 bytes in both modes.
const MACSize = 64

// NewMAC builds the keyed MAC for payload authentication. Paranoid mode uses
// HMAC-SHA3-512; normal mode uses keyed BLAKE2b-512. Both take a 64-byte
// subkey from SubkeyReader.MACSubkey.
func NewMAC(subkey []byte, paranoid bool) (hash.Hash, error) {
	if paranoid {
		return hmac.New(sha3.New512, subkey), nil
	}
	return blake2b.New512(subkey)
}

// ConstantTimeEqual compares two byte slices in constant time, used for AEAD
// tag verification and authentication verifier comparison so a timing
// side-channel never leaks how many leading bytes matched.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
