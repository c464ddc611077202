// Package recovery implements the RecoveryService (C4): grouped
// alphanumeric recovery token generation, checksum validation, and
// constant-time-scan redemption against a profile's recovery wrap.
//
// A recovery token wraps the same master key as the password does, under an
// independent KDF/AEAD derivation keyed by the token's own entropy rather
// than a password. Losing the password but keeping the token (or vice
// versa) is sufficient to regain access; losing both is not recoverable by
// design - there is no "contact support" backdoor in this vault.
package recovery

import (
	"crypto/sha256"
	"encoding/base32"
	"strings"

	"phantomvault/internal/crypto"
	"phantomvault/internal/errs"
	"phantomvault/internal/rscode"
)

// entropyBytes is the raw entropy drawn per token: six 3-byte groups,
// 144 bits total, comfortably above the 128-bit floor and exactly
// divisible into rscode.Group3's 3-byte codec unit.
const entropyBytes = 18
const groupDataBytes = 3
const numDataGroups = entropyBytes / groupDataBytes

var displayEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Material is the persisted recovery wrap for one profile: salt, verifier,
// master_wrapped, nonce, aad, and token_fingerprint record fields.
type Material struct {
	Salt             []byte
	Verifier         []byte
	MasterWrapped    []byte // ciphertext || MAC tag
	Nonce            []byte
	AAD              []byte
	TokenFingerprint []byte
}

// Generate draws fresh recovery-token entropy, wraps masterKey under it, and
// returns the token's display form alongside the Material to persist.
func Generate(kdf crypto.KDFParams, paranoid bool, masterKey, aad []byte) (token string, mat Material, err error) {
	entropy, err := crypto.RandomBytes(entropyBytes)
	if err != nil {
		return "", Material{}, err
	}

	salt, err := crypto.NewSalt(kdf.SaltLen)
	if err != nil {
		return "", Material{}, err
	}

	wrapped, nonce, err := wrapMasterKey(entropy, salt, kdf, paranoid, masterKey, aad)
	if err != nil {
		return "", Material{}, err
	}

	verifier, err := deriveVerifier(entropy, salt, kdf)
	if err != nil {
		return "", Material{}, err
	}

	fingerprint := sha256.Sum256(entropy)

	display, err := encodeToken(entropy)
	if err != nil {
		return "", Material{}, err
	}

	return display, Material{
		Salt:             salt,
		Verifier:         verifier,
		MasterWrapped:    wrapped,
		Nonce:            nonce,
		AAD:              aad,
		TokenFingerprint: fingerprint[:8],
	}, nil
}

// DecodeAndVerifyChecksum parses a displayed token and validates its
// checksum group before any KDF work is attempted. Returns the recovered
// raw entropy on success.
func DecodeAndVerifyChecksum(token string) ([]byte, error) {
	groups := strings.Split(strings.TrimSpace(token), "-")
	if len(groups) != numDataGroups+1 {
		return nil, errs.NewValidationError("recovery_token", "wrong number of groups")
	}

	codecs, err := rscode.New()
	if err != nil {
		return nil, errs.NewCryptoOpError("recovery-init", err)
	}

	entropy := make([]byte, 0, entropyBytes)
	for _, g := range groups[:numDataGroups] {
		coded, err := displayEncoding.DecodeString(g)
		if err != nil {
			return nil, errs.NewValidationError("recovery_token", "malformed group")
		}
		decoded, _, err := rscode.Decode(codecs.Group3, coded)
		if err != nil {
			return nil, errs.NewValidationError("recovery_token", "unrecoverable group")
		}
		entropy = append(entropy, decoded...)
	}

	checksumCoded, err := displayEncoding.DecodeString(groups[numDataGroups])
	if err != nil {
		return nil, errs.NewValidationError("recovery_token", "malformed checksum group")
	}
	checksumDecoded, _, err := rscode.Decode(codecs.Group3, checksumCoded)
	if err != nil {
		return nil, errs.NewValidationError("recovery_token", "unrecoverable checksum group")
	}

	want := checksumGroup(entropy)
	if !crypto.ConstantTimeEqual(checksumDecoded, want) {
		return nil, errs.NewValidationError("recovery_token", "checksum mismatch")
	}

	return entropy, nil
}

// Unwrap derives the recovery KDF key from entropy, compares it against
// mat.Verifier in constant time, and - only on a match - unwraps the master
// key. A mismatch returns errs.ErrAuthenticationFailed, indistinguishable
// from any other redemption failure to the caller.
func Unwrap(entropy []byte, kdf crypto.KDFParams, paranoid bool, mat Material) ([]byte, error) {
	verifier, err := deriveVerifier(entropy, mat.Salt, kdf)
	if err != nil {
		return nil, err
	}
	if !crypto.ConstantTimeEqual(verifier, mat.Verifier) {
		return nil, errs.ErrAuthenticationFailed
	}

	return unwrapMasterKey(entropy, mat.Salt, kdf, paranoid, mat.MasterWrapped, mat.Nonce, mat.AAD)
}

func checksumGroup(entropy []byte) []byte {
	sum := sha256.Sum256(entropy)
	return sum[:groupDataBytes]
}

func encodeToken(entropy []byte) (string, error) {
	codecs, err := rscode.New()
	if err != nil {
		return "", errs.NewCryptoOpError("recovery-init", err)
	}

	groups := make([]string, 0, numDataGroups+1)
	for i := 0; i < numDataGroups; i++ {
		chunk := entropy[i*groupDataBytes : (i+1)*groupDataBytes]
		coded, err := rscode.Encode(codecs.Group3, chunk)
		if err != nil {
			return "", errs.NewCryptoOpError("recovery-encode", err)
		}
		groups = append(groups, displayEncoding.EncodeToString(coded))
	}

	checksumCoded, err := rscode.Encode(codecs.Group3, checksumGroup(entropy))
	if err != nil {
		return "", errs.NewCryptoOpError("recovery-encode", err)
	}
	groups = append(groups, displayEncoding.EncodeToString(checksumCoded))

	return strings.Join(groups, "-"), nil
}

// deriveVerifier recomputes K_rec = KDF(entropy, salt) and then
// recovery_verifier = KDF(K_rec || domain-label, salt) under a distinct
// domain separator, so the verifier never equals the key used to wrap data.
func deriveVerifier(entropy, salt []byte, kdf crypto.KDFParams) ([]byte, error) {
	kRec, err := crypto.DeriveKey(entropy, salt, kdf)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureZero(kRec)

	label := append(append([]byte{}, kRec...), []byte("phantomvault/recovery-verifier/v1")...)
	return crypto.DeriveKey(label, salt, kdf)
}

func wrapMasterKey(entropy, salt []byte, kdf crypto.KDFParams, paranoid bool, masterKey, aad []byte) (wrapped, nonce []byte, err error) {
	kRec, err := crypto.DeriveKey(entropy, salt, kdf)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureZero(kRec)

	cs, nonce, err := newWrapSuite(kRec, salt, paranoid, aad)
	if err != nil {
		return nil, nil, err
	}
	defer cs.Close()

	ciphertext, tag := crypto.EncryptBuffer(cs, masterKey)
	return append(ciphertext, tag...), nonce, nil
}

func unwrapMasterKey(entropy, salt []byte, kdf crypto.KDFParams, paranoid bool, wrapped, nonce, aad []byte) ([]byte, error) {
	kRec, err := crypto.DeriveKey(entropy, salt, kdf)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureZero(kRec)

	cs, err := rewrapSuite(kRec, salt, nonce, paranoid, aad)
	if err != nil {
		return nil, err
	}
	defer cs.Close()

	tagStart := len(wrapped) - crypto.MACSize
	if tagStart < 0 {
		return nil, errs.ErrCorrupted
	}
	plaintext, err := crypto.DecryptBuffer(cs, wrapped[:tagStart], wrapped[tagStart:])
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// newWrapSuite derives a fresh HKDF stream from rootKey and builds a
// CipherSuite for wrapping, generating and returning the initial nonce to
// persist alongside the ciphertext.
func newWrapSuite(rootKey, salt []byte, paranoid bool, aad []byte) (*crypto.CipherSuite, []byte, error) {
	stream := crypto.NewHKDFStream(rootKey, salt, []byte("phantomvault/recovery-wrap/v1"))
	subkeys := crypto.NewSubkeyReader(stream)

	macKey, err := subkeys.MACSubkey()
	if err != nil {
		return nil, nil, err
	}
	cipherKey, err := subkeys.CipherSubkey()
	if err != nil {
		return nil, nil, err
	}

	var serpentKey []byte
	if paranoid {
		serpentKey, err = subkeys.SerpentSubkey()
		if err != nil {
			return nil, nil, err
		}
	}

	nonce, serpentIV, err := subkeys.RekeyValues()
	if err != nil {
		return nil, nil, err
	}

	cs, err := crypto.NewCipherSuite(cipherKey, nonce, serpentKey, serpentIV, macKey, stream, paranoid, aad)
	if err != nil {
		return nil, nil, err
	}
	return cs, nonce, nil
}

// rewrapSuite rebuilds the same HKDF stream and subkeys deterministically
// from rootKey, but reuses a persisted nonce instead of drawing a new one -
// required to reproduce the exact keystream used at wrap time.
func rewrapSuite(rootKey, salt, nonce []byte, paranoid bool, aad []byte) (*crypto.CipherSuite, error) {
	stream := crypto.NewHKDFStream(rootKey, salt, []byte("phantomvault/recovery-wrap/v1"))
	subkeys := crypto.NewSubkeyReader(stream)

	macKey, err := subkeys.MACSubkey()
	if err != nil {
		return nil, err
	}
	cipherKey, err := subkeys.CipherSubkey()
	if err != nil {
		return nil, err
	}

	var serpentKey []byte
	if paranoid {
		serpentKey, err = subkeys.SerpentSubkey()
		if err != nil {
			return nil, err
		}
	}

	// Consume the same RekeyValues() draw as newWrapSuite did, discarding it
	// in favor of the persisted nonce (the serpent IV draw must still happen
	// to keep the stream position in lockstep for any future Rekey call).
	_, serpentIV, err := subkeys.RekeyValues()
	if err != nil {
		return nil, err
	}

	return crypto.NewCipherSuite(cipherKey, nonce, serpentKey, serpentIV, macKey, stream, paranoid, aad)
}
