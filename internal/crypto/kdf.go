// Package crypto implements the CryptoEngine: password-based key derivation,
// authenticated encryption of arbitrary byte streams, CSPRNG access,
// constant-time comparison, and explicit key zeroization.
//
// This is AUDIT-CRITICAL code - changes here directly affect every profile's
// confidentiality and integrity guarantees.
package crypto

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"phantomvault/internal/errs"
)

// RandomBytes draws n cryptographically secure bytes from the OS CSPRNG. It
// fails loudly on an all-zero result, which indicates a broken entropy
// source rather than genuine randomness.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, errs.NewCryptoOpError("rand", err)
	}

	allZero := true
	for _, v := range b {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return nil, errs.NewCryptoOpError("rand", errs.ErrCsprngUnavailable)
	}

	return b, nil
}

// NewSalt draws a KDF salt of n bytes (floor: 16 bytes).
func NewSalt(n int) ([]byte, error) { return RandomBytes(n) }

// NewNonce draws a nonce of n bytes.
func NewNonce(n int) ([]byte, error) { return RandomBytes(n) }

// KDFParams parameterizes the memory-hard KDF for one profile. Persisted
// alongside the profile's salt; once a profile is created these values MUST
// NOT change, or the profile becomes unrecoverable.
type KDFParams struct {
	MemoryCostKiB uint32
	TimeCost      uint32
	Parallelism   uint8
	SaltLen       int
	KeyLen        int // 32 or 64
}

// Non-negotiable floors below which Argon2id stops being memory-hard enough
// to resist GPU/ASIC cracking at a meaningful cost.
const (
	MinMemoryCostKiB = 19456
	MinTimeCost      = 2
)

// DefaultKDFParams returns the standard profile default: 64 MiB / 3 passes / 4 lanes.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		MemoryCostKiB: 64 * 1024,
		TimeCost:      3,
		Parallelism:   4,
		SaltLen:       32,
		KeyLen:        64,
	}
}

// ParanoidKDFParams returns a stronger parameter set (1 GiB / 4 passes /
// 8 lanes). Paranoid-mode profiles (HMAC-SHA3-512 MAC, Serpent layer) are
// not switched to it automatically: they keep the parameters they were
// created with.
func ParanoidKDFParams() KDFParams {
	p := DefaultKDFParams()
	p.MemoryCostKiB = 1 << 20 // 1 GiB
	p.TimeCost = 4
	p.Parallelism = 8
	return p
}

// Validate enforces the required minimums before any derivation is attempted.
func (p KDFParams) Validate() error {
	if p.MemoryCostKiB < MinMemoryCostKiB {
		return errs.NewValidationError("kdf.memory_cost_kib", "below minimum 19456 KiB")
	}
	if p.TimeCost < MinTimeCost {
		return errs.NewValidationError("kdf.time_cost", "below minimum 2")
	}
	if p.Parallelism == 0 {
		return errs.NewValidationError("kdf.parallelism", "must be >= 1")
	}
	if p.SaltLen < 16 {
		return errs.NewValidationError("kdf.salt_len", "must be >= 16 bytes")
	}
	if p.KeyLen != 32 && p.KeyLen != 64 {
		return errs.NewValidationError("kdf.key_len", "must be 32 or 64 bytes")
	}
	return nil
}

// DeriveKey runs Argon2id(password, salt, params) -> key. Deterministic: the
// same inputs always produce the same output.
//
// CRITICAL: a profile's KDFParams and salt are immutable once the profile is
// created. Changing either means the profile can no longer authenticate.
func DeriveKey(password, salt []byte, params KDFParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	key := argon2.IDKey(password, salt, params.TimeCost, params.MemoryCostKiB, params.Parallelism, uint32(params.KeyLen))

	if bytes.Equal(key, make([]byte, params.KeyLen)) {
		return nil, errs.NewCryptoOpError("kdf", fmt.Errorf("argon2id produced a zero key"))
	}

	return key, nil
}

// HKDF subkey sizes for the AEAD construction in cipher.go. Every profile's
// master key spawns its own HKDF stream per use (authentication unwrap,
// vault-entry stream encryption, recovery-token wrap) rather than one stream
// per on-disk file, so subkey order is scoped to a single SubkeyReader
// instance rather than a file-format version.
const (
	SubkeyMACSize      = 64 // keyed MAC subkey (HMAC-SHA3-512 / BLAKE2b-512)
	SubkeyCipherSize   = 32 // XChaCha20 key
	SubkeySerpentSize  = 32 // optional second-layer Serpent key
	RekeyNonceSize     = 24 // XChaCha20 nonce per rekey cycle
	RekeySerpentIVSize = 16
)

// NewHKDFStream derives an HKDF-SHA3-256 stream from a root key, the same
// construction used to split one Argon2 output into independent
// MAC/cipher/Serpent subkeys.
func NewHKDFStream(rootKey, salt, info []byte) io.Reader {
	return hkdf.New(sha3.New256, rootKey, salt, info)
}

// SubkeyReader sequentially reads fixed-size subkeys off an HKDF stream and
// enforces strict consumption order: MAC subkey, then cipher subkey, then
// (optionally) the Serpent subkey, then any number of rekey value pairs.
// Reading out of order or re-reading an already-consumed subkey returns a
// CryptoOpError rather than silently reusing key material.
type SubkeyReader struct {
	hkdf     io.Reader
	macRead  bool
	cphRead  bool
	serpRead bool
	rekeys   int
}

// NewSubkeyReader wraps an HKDF stream for ordered subkey extraction.
func NewSubkeyReader(stream io.Reader) *SubkeyReader {
	return &SubkeyReader{hkdf: stream}
}

// MACSubkey reads the 64-byte MAC subkey. Must be called first.
func (r *SubkeyReader) MACSubkey() ([]byte, error) {
	if r.macRead {
		return nil, errs.NewCryptoOpError("hkdf", fmt.Errorf("MAC subkey already consumed"))
	}
	b := make([]byte, SubkeyMACSize)
	if _, err := io.ReadFull(r.hkdf, b); err != nil {
		return nil, errs.NewCryptoOpError("hkdf", err)
	}
	r.macRead = true
	return b, nil
}

// CipherSubkey reads the 32-byte XChaCha20 key. Must follow MACSubkey.
func (r *SubkeyReader) CipherSubkey() ([]byte, error) {
	if !r.macRead {
		return nil, errs.NewCryptoOpError("hkdf", fmt.Errorf("must read MAC subkey before cipher subkey"))
	}
	if r.cphRead {
		return nil, errs.NewCryptoOpError("hkdf", fmt.Errorf("cipher subkey already consumed"))
	}
	b := make([]byte, SubkeyCipherSize)
	if _, err := io.ReadFull(r.hkdf, b); err != nil {
		return nil, errs.NewCryptoOpError("hkdf", err)
	}
	r.cphRead = true
	return b, nil
}

// SerpentSubkey reads the optional 32-byte second-layer Serpent key. Must
// follow CipherSubkey and is only consumed in paranoid mode.
func (r *SubkeyReader) SerpentSubkey() ([]byte, error) {
	if !r.cphRead {
		return nil, errs.NewCryptoOpError("hkdf", fmt.Errorf("must read cipher subkey before Serpent subkey"))
	}
	if r.serpRead {
		return nil, errs.NewCryptoOpError("hkdf", fmt.Errorf("serpent subkey already consumed"))
	}
	b := make([]byte, SubkeySerpentSize)
	if _, err := io.ReadFull(r.hkdf, b); err != nil {
		return nil, errs.NewCryptoOpError("hkdf", err)
	}
	r.serpRead = true
	return b, nil
}

// RekeyValues draws the next chunk-nonce/Serpent-IV pair once a stream
// crosses RekeyThreshold (rekey.go). Safe to call any number of times after
// the required subkeys have been consumed.
func (r *SubkeyReader) RekeyValues() (nonce, serpentIV []byte, err error) {
	nonce = make([]byte, RekeyNonceSize)
	if _, err := io.ReadFull(r.hkdf, nonce); err != nil {
		return nil, nil, errs.NewCryptoOpError("hkdf", err)
	}
	serpentIV = make([]byte, RekeySerpentIVSize)
	if _, err := io.ReadFull(r.hkdf, serpentIV); err != nil {
		return nil, nil, errs.NewCryptoOpError("hkdf", err)
	}
	r.rekeys++
	return nonce, serpentIV, nil
}

// RekeyCount reports how many rekey cycles this stream has served.
func (r *SubkeyReader) RekeyCount() int { return r.rekeys }
