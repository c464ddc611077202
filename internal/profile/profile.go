// Package profile implements the ProfileRegistry (C3) and its Session
// handle: per-identity records persisted one JSON file per profile id,
// password and recovery-token wrapping of a single master key, and
// password-strength gating before any KDF work is attempted.
package profile

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"phantomvault/internal/crypto"
)

// schemaVersion guards forward compatibility of the persisted record.
const schemaVersion = 1

// HexBytes marshals as a lowercase hex string, matching the convention "all
// binary fields hex-encoded" requirement for profile records.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = b
	return nil
}

// KDFBlock is the persisted form of crypto.KDFParams. Immutable once a
// profile is created - see crypto.KDFParams' own warning.
type KDFBlock struct {
	MemoryCostKiB uint32 `json:"memory_cost_kib"`
	TimeCost      uint32 `json:"time_cost"`
	Parallelism   uint8  `json:"parallelism"`
	SaltLen       int    `json:"salt_len"`
	KeyLen        int    `json:"key_len"`
	Paranoid      bool   `json:"paranoid"`
}

func (k KDFBlock) toParams() crypto.KDFParams {
	return crypto.KDFParams{
		MemoryCostKiB: k.MemoryCostKiB,
		TimeCost:      k.TimeCost,
		Parallelism:   k.Parallelism,
		SaltLen:       k.SaltLen,
		KeyLen:        k.KeyLen,
	}
}

func kdfBlockFrom(p crypto.KDFParams, paranoid bool) KDFBlock {
	return KDFBlock{
		MemoryCostKiB: p.MemoryCostKiB,
		TimeCost:      p.TimeCost,
		Parallelism:   p.Parallelism,
		SaltLen:       p.SaltLen,
		KeyLen:        p.KeyLen,
		Paranoid:      paranoid,
	}
}

// AuthBlock holds the password-authentication salt and verifier. The
// verifier IS the raw KDF output - compared constant-time, never hashed
// again - so a compromised profile record alone never yields the data key.
type AuthBlock struct {
	Salt     HexBytes `json:"salt"`
	Verifier HexBytes `json:"verifier"`
}

// DataBlock wraps the master key under a key derived from the password and
// a salt independent from AuthBlock's, so the auth verifier and the
// data-unwrap key are never the same bytes.
type DataBlock struct {
	Salt          HexBytes `json:"salt"`
	MasterWrapped HexBytes `json:"master_wrapped"` // ciphertext || MAC tag
	Nonce         HexBytes `json:"nonce"`
	AAD           HexBytes `json:"aad"`
}

// RecoveryBlock wraps the same master key under a key derived from a
// recovery token's entropy instead of a password.
type RecoveryBlock struct {
	Salt             HexBytes `json:"salt"`
	Verifier         HexBytes `json:"verifier"`
	MasterWrapped    HexBytes `json:"master_wrapped"`
	Nonce            HexBytes `json:"nonce"`
	AAD              HexBytes `json:"aad"`
	TokenFingerprint HexBytes `json:"token_fingerprint"`
}

// Profile is the on-disk record for one user identity.
type Profile struct {
	SchemaVersion int           `json:"schema_version"`
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	CreatedAt     time.Time     `json:"created_at"`
	LastAccessAt  time.Time     `json:"last_access_at"`
	KDF           KDFBlock      `json:"kdf"`
	Auth          AuthBlock     `json:"auth"`
	Data          DataBlock     `json:"data"`
	Recovery      RecoveryBlock `json:"recovery"`
	// Corrupted is set once, never cleared automatically, when a recovery
	// redemption finds this profile's verifier colliding with another
	// profile's. A colliding profile can no longer be trusted to unwrap to
	// the right master key, so Authenticate refuses it outright.
	Corrupted bool `json:"corrupted"`
}

func newProfile(id, name string, kdf crypto.KDFParams, paranoid bool) Profile {
	now := timeNow()
	return Profile{
		SchemaVersion: schemaVersion,
		ID:            id,
		Name:          name,
		CreatedAt:     now,
		LastAccessAt:  now,
		KDF:           kdfBlockFrom(kdf, paranoid),
	}
}

// timeNow is a seam so tests can freeze time if ever needed; production
// code always calls time.Now().
var timeNow = time.Now
