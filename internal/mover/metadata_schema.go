package mover

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"phantomvault/internal/metadata"
)

// hexBytes round-trips through JSON as a lowercase hex string - the same
// convention internal/catalog and internal/profile use for on-disk byte
// fields, kept independently here so mover never imports catalog's type.
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

// xattrFile round-trips one map[string][]byte entry with a hex-encoded value, since
// raw extended-attribute bytes are not always valid UTF-8.
type xattrFile struct {
	Name  string   `json:"name"`
	Value hexBytes `json:"value"`
}

type fileMetadataFile struct {
	IsDir        bool        `json:"is_dir"`
	LinkTarget   string      `json:"link_target,omitempty"`
	ModeBits     uint32      `json:"mode_bits"`
	OwnerUID     int         `json:"owner_uid"`
	OwnerGID     int         `json:"owner_gid"`
	ModTime      time.Time   `json:"mod_time"`
	AccessTime   time.Time   `json:"access_time"`
	Xattrs       []xattrFile `json:"xattrs,omitempty"`
	PlatformBlob hexBytes    `json:"platform_blob,omitempty"`
}

type fileRecordFile struct {
	RelPath        string           `json:"rel_path"`
	ObfuscatedName string           `json:"obfuscated_name,omitempty"`
	Metadata       fileMetadataFile `json:"metadata"`
}

// entryMetadataFile is EntryMetadata's on-disk JSON shape. VaultCatalog
// treats the encoded bytes as an opaque blob it AEAD-encrypts; only mover
// ever parses this schema.
type entryMetadataFile struct {
	SchemaVersion int              `json:"schema_version"`
	OriginalPath  string           `json:"original_path"`
	Files         []fileRecordFile `json:"files"`
	ContentSalt   hexBytes         `json:"content_salt"`
	ContentNonce  hexBytes         `json:"content_nonce"`
	ContentTag    hexBytes         `json:"content_tag"`
}

const metadataSchemaVersion = 1

// DecodeEntryMetadata parses the plaintext blob VaultCatalog decrypted
// back into an EntryMetadata, for callers that need to pass it to Unhide.
func DecodeEntryMetadata(blob []byte) (EntryMetadata, error) {
	return decodeEntryMetadata(blob)
}

func encodeEntryMetadata(em EntryMetadata) ([]byte, error) {
	f := entryMetadataFile{
		SchemaVersion: metadataSchemaVersion,
		OriginalPath:  em.OriginalPath,
		ContentSalt:   em.ContentSalt,
		ContentNonce:  em.ContentNonce,
		ContentTag:    em.ContentTag,
	}
	for _, rec := range em.Files {
		f.Files = append(f.Files, toFileRecordFile(rec))
	}
	return json.Marshal(f)
}

func decodeEntryMetadata(blob []byte) (EntryMetadata, error) {
	var f entryMetadataFile
	if err := json.Unmarshal(blob, &f); err != nil {
		return EntryMetadata{}, err
	}
	em := EntryMetadata{
		OriginalPath: f.OriginalPath,
		ContentSalt:  f.ContentSalt,
		ContentNonce: f.ContentNonce,
		ContentTag:   f.ContentTag,
	}
	for _, rf := range f.Files {
		em.Files = append(em.Files, fromFileRecordFile(rf))
	}
	return em, nil
}

func toFileRecordFile(rec FileRecord) fileRecordFile {
	md := rec.Metadata
	rf := fileRecordFile{
		RelPath:        rec.RelPath,
		ObfuscatedName: rec.ObfuscatedName,
		Metadata: fileMetadataFile{
			IsDir:        md.IsDir,
			LinkTarget:   md.LinkTarget,
			ModeBits:     md.ModeBits,
			OwnerUID:     md.OwnerUID,
			OwnerGID:     md.OwnerGID,
			ModTime:      md.ModTime,
			AccessTime:   md.AccessTime,
			PlatformBlob: md.PlatformBlob,
		},
	}
	for name, value := range md.Xattrs {
		rf.Metadata.Xattrs = append(rf.Metadata.Xattrs, xattrFile{Name: name, Value: value})
	}
	return rf
}

func fromFileRecordFile(rf fileRecordFile) FileRecord {
	mf := rf.Metadata
	md := metadata.FilesystemMetadata{
		IsDir:        mf.IsDir,
		LinkTarget:   mf.LinkTarget,
		ModeBits:     mf.ModeBits,
		OwnerUID:     mf.OwnerUID,
		OwnerGID:     mf.OwnerGID,
		ModTime:      mf.ModTime,
		AccessTime:   mf.AccessTime,
		PlatformBlob: mf.PlatformBlob,
	}
	if len(mf.Xattrs) > 0 {
		md.Xattrs = make(map[string][]byte, len(mf.Xattrs))
		for _, x := range mf.Xattrs {
			md.Xattrs[x.Name] = x.Value
		}
	}
	return FileRecord{
		RelPath:        rf.RelPath,
		ObfuscatedName: rf.ObfuscatedName,
		Metadata:       md,
	}
}
