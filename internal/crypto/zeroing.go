// Package crypto - memory zeroing utilities for secure cleanup of sensitive data.
package crypto

import (
	"crypto/subtle"
	"hash"
)

// SecureZero overwrites a byte slice with zeros to prevent sensitive data
// from persisting in memory. Due to Go's garbage collector and potential
// compiler optimizations this cannot guarantee complete erasure, but it
// closes the easy window.
//
// Uses subtle.ConstantTimeCopy from a zero slice so the compiler cannot
// recognize and elide the write as dead code.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// SecureZeroMultiple zeros several byte slices in one call.
func SecureZeroMultiple(slices ...[]byte) {
	for _, s := range slices {
		SecureZero(s)
	}
}

// SecureZeroHash resets a hash.Hash state so partial MAC/digest data does
// not linger in memory. Not all hash.Hash implementations fully clear their
// internal state on Reset(), but it is the best the interface offers.
func SecureZeroHash(h hash.Hash) {
	if h != nil {
		h.Reset()
	}
}

// KeyMaterial wraps sensitive key data with automatic zeroing on Close().
type KeyMaterial struct {
	data   []byte
	closed bool
}

// NewKeyMaterial copies data into an owned KeyMaterial wrapper.
func NewKeyMaterial(data []byte) *KeyMaterial {
	if data == nil {
		return &KeyMaterial{}
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return &KeyMaterial{data: copied}
}

// Bytes returns the underlying key data, or nil once closed.
func (km *KeyMaterial) Bytes() []byte {
	if km.closed {
		return nil
	}
	return km.data
}

// Len returns the length of the key data.
func (km *KeyMaterial) Len() int {
	if km.closed || km.data == nil {
		return 0
	}
	return len(km.data)
}

// Close zeros the key data and marks the material closed. Idempotent.
func (km *KeyMaterial) Close() {
	if km.closed || km.data == nil {
		return
	}
	SecureZero(km.data)
	km.data = nil
	km.closed = true
}

// IsClosed reports whether Close has already run.
func (km *KeyMaterial) IsClosed() bool {
	return km.closed
}

// CryptoContext holds all sensitive key material derived for a single
// authenticate/hide/unhide/recovery operation. Callers that build one MUST
// defer Close() immediately. DeriveKey and the SubkeyReader methods return
// plain []byte slices, not a CryptoContext.
type CryptoContext struct {
	MasterKey    []byte
	MACSubkey    []byte
	CipherSubkey []byte
	SerpentKey   []byte
	closed       bool
}

// Close zeros every field. Idempotent.
func (cc *CryptoContext) Close() {
	if cc == nil || cc.closed {
		return
	}
	SecureZeroMultiple(cc.MasterKey, cc.MACSubkey, cc.CipherSubkey, cc.SerpentKey)
	cc.MasterKey = nil
	cc.MACSubkey = nil
	cc.CipherSubkey = nil
	cc.SerpentKey = nil
	cc.closed = true
}
