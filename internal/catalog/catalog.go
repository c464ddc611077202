// Package catalog implements the VaultCatalog (C7): the per-profile index
// of hidden folders. Persisted as one file per entry under
// "<profile_root>/catalog/", plus a single manifest.json summarizing
// counts. Entry plaintext fields (backup_path, state, checksum) are
// visible on disk - they carry no information about the original folder -
// while the preserved filesystem metadata (which does, via the original
// path) is AEAD-encrypted under the session master key.
//
// Grounded on Picocrypt-NG's internal/header (fixed-field header with
// Reed-Solomon-protected fields and an auth tag), generalized from "one
// header describing one volume" to "many entry files describing many
// vault entries."
package catalog

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"phantomvault/internal/crypto"
	"phantomvault/internal/errs"
	"phantomvault/internal/rscode"
	"phantomvault/internal/store"
)

const schemaVersion = 1

// obfuscatedIDSize is the 128-bit opaque handle size assigned to
// every vault entry (no information-theoretic link to the original path).
const obfuscatedIDSize = 16

// EntryState is a vault entry's position in the lock/unlock state machine.
type EntryState string

const (
	StateLocked              EntryState = "Locked"
	StateTemporarilyUnlocked EntryState = "TemporarilyUnlocked"
	StateCorrupted           EntryState = "Corrupted"
)

// VaultEntry is one hidden folder's record, including the decrypted
// preserved-metadata blob once Lookup has verified and opened it.
type VaultEntry struct {
	ObfuscatedID        []byte
	BackupPath          string
	ContentChecksum     [32]byte
	State               EntryState
	TempUnlockExpiresAt *time.Time
	CreatedAt           time.Time
	Metadata            []byte // caller-defined encoding (internal/metadata owns the schema)
}

// EntrySummary is the subset of a VaultEntry visible without the session
// master key - what List() returns.
type EntrySummary struct {
	ObfuscatedID string
	State        EntryState
	CreatedAt    time.Time
}

// IntegrityReport is the result of CheckIntegrity: {ok, damaged_ids,
// orphan_files}, supplemented with checked_count and
// duration for operational visibility (never surfaced as a security
// property - audit-logged as an InfoEvent by the caller).
type IntegrityReport struct {
	OK           bool
	DamagedIDs   []string
	OrphanFiles  []string
	CheckedCount int
	Duration     time.Duration
}

// hexBytes round-trips through JSON as a lowercase hex string, the same
// convention internal/profile uses for its on-disk byte fields.
type hexBytes []byte

func (h hexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *hexBytes) UnmarshalJSON(data []byte) error {
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

// entryFile is the on-disk shape of one catalog entry.
type entryFile struct {
	SchemaVersion       int        `json:"schema_version"`
	ObfuscatedID        hexBytes   `json:"obfuscated_id"`
	ObfuscatedIDRS      hexBytes   `json:"obfuscated_id_rs"`
	BackupPath          string     `json:"backup_path"`
	ContentChecksum     hexBytes   `json:"content_checksum"`
	ContentChecksumRS   hexBytes   `json:"content_checksum_rs"`
	State               EntryState `json:"state"`
	TempUnlockExpiresAt *time.Time `json:"temp_unlock_expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	MetaSalt            hexBytes   `json:"meta_salt"`
	MetaNonce           hexBytes   `json:"meta_nonce"`
	MetaCiphertext      hexBytes   `json:"meta_ciphertext"`
}

// manifest summarizes the catalog's entry count. Updated last on every
// mutation, after the per-entry file has been durably written.
type manifest struct {
	SchemaVersion int       `json:"schema_version"`
	EntryCount    int       `json:"entry_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Catalog is one profile's vault entry index.
type Catalog struct {
	profileRoot   string
	catalogDir    string
	blobsDir      string
	quarantineDir string
	manifestPath  string
	rs            *rscode.Codecs
}

// New opens (creating if needed) the catalog rooted at profileRoot.
func New(profileRoot string) (*Catalog, error) {
	rs, err := rscode.New()
	if err != nil {
		return nil, errs.Wrap(err, "init catalog rscode")
	}

	c := &Catalog{
		profileRoot:   profileRoot,
		catalogDir:    filepath.Join(profileRoot, "catalog"),
		blobsDir:      filepath.Join(profileRoot, "blobs"),
		quarantineDir: filepath.Join(profileRoot, "quarantine"),
		manifestPath:  filepath.Join(profileRoot, "catalog", "manifest.json"),
		rs:            rs,
	}

	if err := os.MkdirAll(c.catalogDir, store.DirPermissions); err != nil {
		return nil, errs.NewIOOpError("mkdir", c.catalogDir, err)
	}

	if !store.Exists(c.manifestPath) {
		if err := store.WriteAtomic(c.manifestPath, manifest{SchemaVersion: schemaVersion, UpdatedAt: time.Now()}); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// GenerateObfuscatedID draws a fresh 128-bit handle for a new vault entry.
// Callers (FolderMover) use it to derive the backup path before the
// catalog entry itself exists.
func GenerateObfuscatedID() ([]byte, error) {
	id := make([]byte, obfuscatedIDSize)
	if _, err := rand.Read(id); err != nil {
		return nil, errs.NewCryptoOpError("rand", err)
	}
	return id, nil
}

// BlobPath returns the backup directory for id, rooted under this
// profile's blobs directory.
func (c *Catalog) BlobPath(id []byte) string {
	return filepath.Join(c.blobsDir, hex.EncodeToString(id))
}

func (c *Catalog) entryPath(id []byte) string {
	return filepath.Join(c.catalogDir, hex.EncodeToString(id)+".json")
}

// Insert records a newly ingested folder. metadataPlaintext is the caller-
// serialized preserved-metadata blob (internal/mover owns its schema); it
// is AEAD-encrypted here under masterKey before anything touches disk.
func (c *Catalog) Insert(id []byte, backupPath string, checksum [32]byte, metadataPlaintext, masterKey []byte, paranoid bool) (VaultEntry, error) {
	if store.Exists(c.entryPath(id)) {
		return VaultEntry{}, errs.ErrAlreadyExists
	}

	salt := make([]byte, crypto.DefaultKDFParams().SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return VaultEntry{}, errs.NewCryptoOpError("rand", err)
	}

	cs, nonce, err := newEntrySuite(masterKey, salt, paranoid, id)
	if err != nil {
		return VaultEntry{}, err
	}
	defer cs.Close()

	ciphertext, tag := crypto.EncryptBuffer(cs, metadataPlaintext)

	idRS, err := rscode.Encode(c.rs.Header16, id)
	if err != nil {
		return VaultEntry{}, errs.Wrap(err, "encode obfuscated id")
	}
	checksumRS, err := rscode.Encode(c.rs.Header32, checksum[:])
	if err != nil {
		return VaultEntry{}, errs.Wrap(err, "encode content checksum")
	}

	now := time.Now()
	ef := entryFile{
		SchemaVersion:     schemaVersion,
		ObfuscatedID:      id,
		ObfuscatedIDRS:    idRS,
		BackupPath:        backupPath,
		ContentChecksum:   checksum[:],
		ContentChecksumRS: checksumRS,
		State:             StateLocked,
		CreatedAt:         now,
		MetaSalt:          salt,
		MetaNonce:         nonce,
		MetaCiphertext:    append(ciphertext, tag...),
	}

	if err := store.WriteAtomic(c.entryPath(id), ef); err != nil {
		return VaultEntry{}, err
	}
	if err := c.bumpManifest(1); err != nil {
		return VaultEntry{}, err
	}

	return VaultEntry{
		ObfuscatedID:    id,
		BackupPath:      backupPath,
		ContentChecksum: checksum,
		State:           StateLocked,
		CreatedAt:       now,
		Metadata:        metadataPlaintext,
	}, nil
}

// Lookup loads id's entry and decrypts its preserved-metadata blob.
func (c *Catalog) Lookup(id, masterKey []byte, paranoid bool) (VaultEntry, error) {
	ef, err := c.readEntry(id)
	if err != nil {
		return VaultEntry{}, err
	}

	cs, err := rewrapEntrySuite(masterKey, ef.MetaSalt, ef.MetaNonce, paranoid, id)
	if err != nil {
		return VaultEntry{}, err
	}
	defer cs.Close()

	tagStart := len(ef.MetaCiphertext) - crypto.MACSize
	if tagStart < 0 {
		return VaultEntry{}, errs.ErrCorrupted
	}
	plaintext, err := crypto.DecryptBuffer(cs, ef.MetaCiphertext[:tagStart], ef.MetaCiphertext[tagStart:])
	if err != nil {
		return VaultEntry{}, errs.ErrIntegrityViolation
	}

	var checksum [32]byte
	copy(checksum[:], ef.ContentChecksum)

	return VaultEntry{
		ObfuscatedID:        []byte(ef.ObfuscatedID),
		BackupPath:          ef.BackupPath,
		ContentChecksum:     checksum,
		State:               ef.State,
		TempUnlockExpiresAt: ef.TempUnlockExpiresAt,
		CreatedAt:           ef.CreatedAt,
		Metadata:            plaintext,
	}, nil
}

func (c *Catalog) readEntry(id []byte) (entryFile, error) {
	var ef entryFile
	if err := store.ReadJSON(c.entryPath(id), &ef); err != nil {
		return entryFile{}, err
	}

	decodedID, _, err := rscode.Decode(c.rs.Header16, ef.ObfuscatedIDRS)
	if err != nil {
		return entryFile{}, errs.ErrCorrupted
	}
	decodedChecksum, _, err := rscode.Decode(c.rs.Header32, ef.ContentChecksumRS)
	if err != nil {
		return entryFile{}, errs.ErrCorrupted
	}
	ef.ObfuscatedID = decodedID
	ef.ContentChecksum = decodedChecksum
	return ef, nil
}

// MarkTemporarilyUnlocked transitions id to TemporarilyUnlocked. No master
// key is needed: state is a plaintext field, untouched by the encrypted
// metadata blob.
func (c *Catalog) MarkTemporarilyUnlocked(id []byte, expiresAt *time.Time) error {
	return c.mutateState(id, StateTemporarilyUnlocked, expiresAt)
}

// MarkLocked transitions id back to Locked, clearing any unlock deadline.
func (c *Catalog) MarkLocked(id []byte) error {
	return c.mutateState(id, StateLocked, nil)
}

// MarkCorrupted flags id as Corrupted after a detected integrity failure.
// The entry remains in the catalog so the operator can see what failed.
func (c *Catalog) MarkCorrupted(id []byte) error {
	return c.mutateState(id, StateCorrupted, nil)
}

func (c *Catalog) mutateState(id []byte, state EntryState, expiresAt *time.Time) error {
	ef, err := c.readEntry(id)
	if err != nil {
		return err
	}
	ef.State = state
	ef.TempUnlockExpiresAt = expiresAt
	return store.WriteAtomic(c.entryPath(id), ef)
}

// Remove deletes id's entry entirely (permanent release).
func (c *Catalog) Remove(id []byte) error {
	path := c.entryPath(id)
	if !store.Exists(path) {
		return errs.ErrNotFound
	}
	if err := store.Remove(path); err != nil {
		return err
	}
	return c.bumpManifest(-1)
}

// List returns every entry's plaintext summary.
func (c *Catalog) List() ([]EntrySummary, error) {
	files, err := store.ListDir(c.catalogDir)
	if err != nil {
		return nil, err
	}

	out := make([]EntrySummary, 0, len(files))
	for _, f := range files {
		if filepath.Base(f) == "manifest.json" {
			continue
		}
		var ef entryFile
		if err := store.ReadJSON(f, &ef); err != nil {
			continue // unreadable entry surfaces via CheckIntegrity, not List
		}
		out = append(out, EntrySummary{
			ObfuscatedID: hex.EncodeToString(ef.ObfuscatedID),
			State:        ef.State,
			CreatedAt:    ef.CreatedAt,
		})
	}
	return out, nil
}

func (c *Catalog) bumpManifest(delta int) error {
	var m manifest
	if err := store.ReadJSON(c.manifestPath, &m); err != nil {
		return err
	}
	m.EntryCount += delta
	m.UpdatedAt = time.Now()
	return store.WriteAtomic(c.manifestPath, m)
}

// CheckIntegrity enumerates every catalog entry, verifies its backup_path
// exists and its metadata AEAD tag holds, quarantines any blob directory
// with no catalog entry, and recounts the manifest in the same pass
// (a fuller sweep than a one-line description would suggest, matching what
// a reference C++ vault implementation performs).
func (c *Catalog) CheckIntegrity(masterKey []byte, paranoid bool) (IntegrityReport, error) {
	start := time.Now()
	report := IntegrityReport{OK: true}

	files, err := store.ListDir(c.catalogDir)
	if err != nil {
		return IntegrityReport{}, err
	}

	known := make(map[string]bool)
	for _, f := range files {
		if filepath.Base(f) == "manifest.json" {
			continue
		}
		report.CheckedCount++

		var ef entryFile
		if err := store.ReadJSON(f, &ef); err != nil {
			report.OK = false
			report.DamagedIDs = append(report.DamagedIDs, filepath.Base(f))
			continue
		}
		known[hex.EncodeToString(ef.ObfuscatedID)] = true

		damaged := !store.Exists(ef.BackupPath)
		if _, err := c.Lookup(ef.ObfuscatedID, masterKey, paranoid); err != nil {
			damaged = true
		}
		if damaged {
			report.OK = false
			id := hex.EncodeToString(ef.ObfuscatedID)
			report.DamagedIDs = append(report.DamagedIDs, id)
			_ = c.MarkCorrupted(ef.ObfuscatedID)
		}
	}

	orphans, err := c.quarantineOrphans(known)
	if err != nil {
		return IntegrityReport{}, err
	}
	report.OrphanFiles = orphans
	if len(orphans) > 0 {
		report.OK = false
	}

	if err := c.recountManifest(); err != nil {
		return IntegrityReport{}, err
	}

	report.Duration = time.Since(start)
	return report, nil
}

// quarantineOrphans moves any blob directory not referenced by known into
// the quarantine area, never deleting it outright.
func (c *Catalog) quarantineOrphans(known map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(c.blobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.NewIOOpError("readdir", c.blobsDir, err)
	}

	if err := os.MkdirAll(c.quarantineDir, store.DirPermissions); err != nil {
		return nil, errs.NewIOOpError("mkdir", c.quarantineDir, err)
	}

	var orphans []string
	for _, e := range entries {
		if known[e.Name()] {
			continue
		}
		src := filepath.Join(c.blobsDir, e.Name())
		dst := filepath.Join(c.quarantineDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return nil, errs.NewIOOpError("quarantine", src, err)
		}
		orphans = append(orphans, e.Name())
	}
	return orphans, nil
}

func (c *Catalog) recountManifest() error {
	files, err := store.ListDir(c.catalogDir)
	if err != nil {
		return err
	}
	count := 0
	for _, f := range files {
		if filepath.Base(f) != "manifest.json" {
			count++
		}
	}

	var m manifest
	if err := store.ReadJSON(c.manifestPath, &m); err != nil {
		return err
	}
	m.EntryCount = count
	m.UpdatedAt = time.Now()
	return store.WriteAtomic(c.manifestPath, m)
}

// newEntrySuite derives a fresh per-entry AEAD suite directly from the
// session master key - no password KDF layer, since the threat
// model already trusts whoever holds the unwrapped master key. aad binds
// the ciphertext to this entry's obfuscated id so a catalog entry file
// cannot be silently swapped with another entry's.
func newEntrySuite(masterKey, salt []byte, paranoid bool, aad []byte) (*crypto.CipherSuite, []byte, error) {
	stream := crypto.NewHKDFStream(masterKey, salt, []byte("phantomvault/catalog/entry/v1"))
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

func rewrapEntrySuite(masterKey, salt, nonce []byte, paranoid bool, aad []byte) (*crypto.CipherSuite, error) {
	stream := crypto.NewHKDFStream(masterKey, salt, []byte("phantomvault/catalog/entry/v1"))
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

	_, serpentIV, err := subkeys.RekeyValues()
	if err != nil {
		return nil, err
	}

	return crypto.NewCipherSuite(cipherKey, nonce, serpentKey, serpentIV, macKey, stream, paranoid, aad)
}
