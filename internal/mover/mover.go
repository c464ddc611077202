// Package mover implements the FolderMover (C8): ingesting a folder tree
// into the vault and restoring it. Every regular file is streamed through
// CryptoEngine into an obfuscated on-disk name, so the backup directory
// reveals only a uniform tree of opaque files - the original structure
// lives solely in the encrypted metadata blob the caller persists via
// VaultCatalog.
//
// Grounded on Picocrypt-NG's internal/volume encrypt.go/decrypt.go phase
// decomposition (one function per step, early return on failure, explicit
// cleanup on the error path), generalized from "one file" to "one
// directory tree" - the per-chunk loop itself is inherited unchanged via
// internal/crypto's StreamEncrypt/StreamDecrypt.
package mover

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"phantomvault/internal/crypto"
	"phantomvault/internal/errs"
	"phantomvault/internal/metadata"
)

// Mode selects how Unhide's caller should leave the vault entry afterward.
type Mode string

const (
	ModeTemporary Mode = "Temporary"
	ModePermanent Mode = "Permanent"
)

const contentInfo = "phantomvault/mover/content/v1"

// FileRecord is one tree entry's identity inside the encrypted metadata
// blob: its original relative path, its obfuscated on-disk name (files
// only - directories and symlinks have no ciphertext blob of their own),
// and its preserved filesystem metadata.
type FileRecord struct {
	RelPath        string
	ObfuscatedName string
	Metadata       metadata.FilesystemMetadata
}

// EntryMetadata is the full plaintext preserved for one hidden folder.
// VaultCatalog stores this JSON-encoded and AEAD-encrypted under the
// session master key; Hide produces it, Unhide consumes it.
type EntryMetadata struct {
	OriginalPath string
	Files        []FileRecord
	ContentSalt  []byte
	ContentNonce []byte
	ContentTag   []byte // final MAC over the whole ciphertext stream, in record order
}

// Hide ingests the folder tree at originalPath into backupPath under id,
// returning the plaintext whole-tree checksum (for VaultCatalog's
// plaintext content_checksum field) and the JSON-encoded EntryMetadata
// (for VaultCatalog to AEAD-encrypt and persist).
//
// Steps run in strict order: capture metadata, stream-encrypt every
// regular file under an obfuscated name, and only once every file has
// landed does the source get relocated and securely wiped. A failure at
// any point leaves originalPath untouched and removes the partial backup.
func Hide(originalPath string, id []byte, backupPath string, masterKey []byte, paranoid bool, chunkSize int) (checksum [32]byte, metadataBlob []byte, err error) {
	info, statErr := os.Lstat(originalPath)
	if statErr != nil {
		return checksum, nil, errs.NewIOOpError("lstat", originalPath, statErr)
	}
	if !info.IsDir() {
		return checksum, nil, &errs.ValidationError{Field: "original_path", Message: "must be a directory"}
	}

	salt := make([]byte, 32)
	if _, rerr := rand.Read(salt); rerr != nil {
		return checksum, nil, errs.NewCryptoOpError("rand", rerr)
	}

	cs, nonce, err := newContentSuite(masterKey, salt, paranoid, id)
	if err != nil {
		return checksum, nil, err
	}
	defer cs.Close()

	if err := os.MkdirAll(backupPath, 0o700); err != nil {
		return checksum, nil, errs.NewIOOpError("mkdir", backupPath, err)
	}

	hasher := sha256.New()
	var records []FileRecord

	walkErr := filepath.Walk(originalPath, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == originalPath {
			return nil
		}
		rel, relErr := filepath.Rel(originalPath, path)
		if relErr != nil {
			return relErr
		}

		md, capErr := metadata.Capture(path)
		if capErr != nil {
			return capErr
		}

		rec := FileRecord{RelPath: filepath.ToSlash(rel), Metadata: md}
		writeRecordHeader(hasher, rec)

		switch {
		case md.LinkTarget != "":
			// symlink: its target string is the only "content", already
			// captured in Metadata and folded into the hash above.
		case fi.IsDir():
			// no ciphertext blob; directory structure lives in Files alone.
		default:
			obfName, nameErr := randomName()
			if nameErr != nil {
				return nameErr
			}
			rec.ObfuscatedName = obfName
			if ferr := encryptFileInto(cs, path, filepath.Join(backupPath, obfName), chunkSize, hasher); ferr != nil {
				return ferr
			}
		}

		records = append(records, rec)
		return nil
	})
	if walkErr != nil {
		_ = os.RemoveAll(backupPath)
		return checksum, nil, walkErr
	}

	copy(checksum[:], hasher.Sum(nil))

	em := EntryMetadata{
		OriginalPath: originalPath,
		Files:        records,
		ContentSalt:  salt,
		ContentNonce: nonce,
		ContentTag:   cs.Sum(),
	}
	blob, merr := encodeEntryMetadata(em)
	if merr != nil {
		_ = os.RemoveAll(backupPath)
		return checksum, nil, merr
	}

	if err := relocateAndWipe(originalPath); err != nil {
		_ = os.RemoveAll(backupPath)
		return checksum, nil, err
	}

	return checksum, blob, nil
}

// Unhide decrypts and materializes backupPath's tree at em.OriginalPath.
// Restoration happens in a staging directory first and is only renamed
// into place once both the AEAD tag and the whole-tree checksum verify -
// on any mismatch the staging tree is discarded and original_path is
// never touched - no partial restoration is ever left in place.
func Unhide(id []byte, em EntryMetadata, backupPath string, expectedChecksum [32]byte, masterKey []byte, paranoid bool, chunkSize int) ([]metadata.Warning, error) {
	if !pathExists(backupPath) {
		return nil, errs.ErrNotFound
	}
	if pathExists(em.OriginalPath) {
		return nil, &errs.ValidationError{Field: "original_path", Message: "already exists"}
	}

	cs, err := rewrapContentSuite(masterKey, em.ContentSalt, em.ContentNonce, paranoid, id)
	if err != nil {
		return nil, err
	}
	defer cs.Close()

	staging := em.OriginalPath + ".pv-restore-" + randomSuffix()
	if err := os.MkdirAll(staging, 0o700); err != nil {
		return nil, errs.NewIOOpError("mkdir", staging, err)
	}

	sorted := append([]FileRecord(nil), em.Files...)
	sortRecords(sorted)

	hasher := sha256.New()
	for _, rec := range sorted {
		dst := filepath.Join(staging, filepath.FromSlash(rec.RelPath))
		writeRecordHeader(hasher, rec)

		switch {
		case rec.Metadata.LinkTarget != "":
			if err := os.Symlink(rec.Metadata.LinkTarget, dst); err != nil {
				_ = os.RemoveAll(staging)
				return nil, errs.NewIOOpError("symlink", dst, err)
			}
		case rec.Metadata.IsDir:
			if err := os.MkdirAll(dst, 0o700); err != nil {
				_ = os.RemoveAll(staging)
				return nil, errs.NewIOOpError("mkdir", dst, err)
			}
		default:
			src := filepath.Join(backupPath, rec.ObfuscatedName)
			if err := decryptFileInto(cs, src, dst, chunkSize, hasher); err != nil {
				_ = os.RemoveAll(staging)
				return nil, err
			}
		}
	}

	if !crypto.ConstantTimeEqual(cs.Sum(), em.ContentTag) {
		_ = os.RemoveAll(staging)
		return nil, errs.ErrIntegrityViolation
	}

	var gotChecksum [32]byte
	copy(gotChecksum[:], hasher.Sum(nil))
	if gotChecksum != expectedChecksum {
		_ = os.RemoveAll(staging)
		return nil, errs.ErrIntegrityViolation
	}

	// Apply preserved metadata deepest-first: writing a child touches its
	// parent directory's mtime, so a parent's own timestamps must be
	// restored only after every child underneath it is finished (the
	// "timestamps must be applied last" rule, extended across the tree).
	deepestFirst := append([]FileRecord(nil), sorted...)
	sortDeepestFirst(deepestFirst)

	var warnings []metadata.Warning
	for _, rec := range deepestFirst {
		dst := filepath.Join(staging, filepath.FromSlash(rec.RelPath))
		w, err := metadata.Restore(dst, rec.Metadata)
		if err != nil {
			_ = os.RemoveAll(staging)
			return nil, err
		}
		warnings = append(warnings, w...)
	}

	if err := os.Rename(staging, em.OriginalPath); err != nil {
		_ = os.RemoveAll(staging)
		return nil, errs.NewIOOpError("rename", staging, err)
	}

	return warnings, nil
}

// WipeBackup securely erases a vault entry's backup directory: every
// obfuscated file has its content overwritten before the tree is removed.
// Called after a Permanent unhide or an entry removal.
func WipeBackup(backupPath string) error {
	return secureRemoveTree(backupPath)
}

func encryptFileInto(cs *crypto.CipherSuite, srcPath, dstPath string, chunkSize int, hasher io.Writer) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return errs.NewIOOpError("open", srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errs.NewIOOpError("create", dstPath, err)
	}
	defer dst.Close()

	tee := io.TeeReader(src, hasher)
	if _, err := crypto.StreamEncrypt(cs, dst, tee, chunkSize); err != nil {
		return err
	}
	return dst.Sync()
}

func decryptFileInto(cs *crypto.CipherSuite, srcPath, dstPath string, chunkSize int, hasher io.Writer) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return errs.NewIOOpError("open", srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errs.NewIOOpError("create", dstPath, err)
	}
	defer dst.Close()

	w := io.MultiWriter(dst, hasher)
	if _, err := crypto.StreamDecrypt(cs, w, src, chunkSize); err != nil {
		return err
	}
	return dst.Sync()
}

// writeRecordHeader feeds one record's canonical representation into the
// running whole-tree hash: relative path, kind, and (for symlinks) target.
// Hide and Unhide call this identically so the checksum matches regardless
// of direction; file content is folded in separately via Tee/MultiWriter.
func writeRecordHeader(h hash.Hash, rec FileRecord) {
	kind := byte('f')
	if rec.Metadata.IsDir {
		kind = 'd'
	} else if rec.Metadata.LinkTarget != "" {
		kind = 'l'
	}
	h.Write([]byte(rec.RelPath))
	h.Write([]byte{0, kind, 0})
	if kind == 'l' {
		h.Write([]byte(rec.Metadata.LinkTarget))
	}
}

func sortRecords(records []FileRecord) {
	// '/' ranks below every filename byte so "a/b" sorts before "a.txt",
	// which is the order filepath.Walk visits them in.
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].RelPath, records[j].RelPath
		for k := 0; k < len(a) && k < len(b); k++ {
			ca, cb := a[k], b[k]
			if ca == '/' {
				ca = 0
			}
			if cb == '/' {
				cb = 0
			}
			if ca != cb {
				return ca < cb
			}
		}
		return len(a) < len(b)
	})
}

// sortDeepestFirst orders records so every child path sorts before its
// parent, by path depth descending (ties broken lexicographically).
func sortDeepestFirst(records []FileRecord) {
	sort.Slice(records, func(i, j int) bool {
		di, dj := depth(records[i].RelPath), depth(records[j].RelPath)
		if di != dj {
			return di > dj
		}
		return records[i].RelPath > records[j].RelPath
	})
}

func depth(relPath string) int {
	n := 0
	for _, r := range relPath {
		if r == '/' {
			n++
		}
	}
	return n
}

func randomName() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errs.NewCryptoOpError("rand", err)
	}
	return hex.EncodeToString(b), nil
}

func randomSuffix() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(b)
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// relocateAndWipe moves originalPath aside, then zeroes and removes it -
// atomically rename, then securely wipe and remove. The zero-then-remove
// step is the one internal/profile's overwriteThenRemove applies to a
// deleted profile's record; the rename beforehand is specific to this package.
func relocateAndWipe(originalPath string) error {
	staged := originalPath + ".pv-remove-" + randomSuffix()
	if err := os.Rename(originalPath, staged); err != nil {
		return errs.NewIOOpError("rename", originalPath, err)
	}
	return secureRemoveTree(staged)
}

// secureRemoveTree overwrites every regular file's content with zeros
// before removing the tree, so a crash or disk remnant between overwrite
// and removal never leaves plaintext recoverable.
func secureRemoveTree(root string) error {
	walkErr := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if fi.Mode().IsRegular() {
			if zerr := zeroFile(path, fi.Size()); zerr != nil {
				return zerr
			}
		}
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		return errs.Wrap(walkErr, "secure wipe")
	}
	if err := os.RemoveAll(root); err != nil {
		return errs.NewIOOpError("removeall", root, err)
	}
	return nil
}

func zeroFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errs.NewIOOpError("open", path, err)
	}
	defer f.Close()

	const bufSize = 1 << 20
	buf := make([]byte, bufSize)
	var written int64
	for written < size {
		n := bufSize
		if remaining := size - written; remaining < int64(bufSize) {
			n = int(remaining)
		}
		if _, err := f.WriteAt(buf[:n], written); err != nil {
			return errs.NewIOOpError("write", path, err)
		}
		written += int64(n)
	}
	return f.Sync()
}

// newContentSuite derives a fresh per-entry content cipher suite from the
// session master key, the same one-HKDF-stream-per-purpose pattern
// internal/profile and internal/catalog use. aad binds the ciphertext
// stream to this entry's obfuscated id.
func newContentSuite(masterKey, salt []byte, paranoid bool, aad []byte) (*crypto.CipherSuite, []byte, error) {
	stream := crypto.NewHKDFStream(masterKey, salt, []byte(contentInfo))
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

func rewrapContentSuite(masterKey, salt, nonce []byte, paranoid bool, aad []byte) (*crypto.CipherSuite, error) {
	stream := crypto.NewHKDFStream(masterKey, salt, []byte(contentInfo))
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
