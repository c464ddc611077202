// Package rscode provides Reed-Solomon forward error correction for small,
// fixed-size records: recovery-token display groups and catalog entry
// header fields. Unlike a checksum, FEC can repair a handful of flipped or
// mistyped bytes without asking the user to start over.
//
// Scoped deliberately small: this vault's bulk payload integrity comes from
// the AEAD tag plus a whole-tree SHA-256 checksum, so there is no bulk
// payload codec here - only the fixed-size-record codecs a person might
// actually transcribe or a header that must survive a few flipped bits.
package rscode

import (
	"fmt"

	"github.com/Picocrypt/infectious"
)

// Codecs holds pre-initialized Reed-Solomon FEC codecs, created once and
// reused for the lifetime of the process.
type Codecs struct {
	// Group3 protects one 3-byte recovery-token group (its 9 coded bytes
	// display as 15 unpadded base32 characters) against single-character
	// transcription errors.
	Group3 *infectious.FEC // 3 data -> 9 total bytes

	// Header16 protects small fixed catalog header fields (the catalog
	// entry's obfuscated id) against bit rot.
	Header16 *infectious.FEC // 16 data -> 48 total bytes

	// Header32 protects larger fixed fields, such as the content checksum
	// stored in a catalog entry.
	Header32 *infectious.FEC // 32 data -> 96 total bytes
}

// New initializes all Reed-Solomon codecs used across the vault.
func New() (*Codecs, error) {
	g3, err1 := infectious.NewFEC(3, 9)
	h16, err2 := infectious.NewFEC(16, 48)
	h32, err3 := infectious.NewFEC(32, 96)

	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("rscode: failed to initialize FEC codecs")
	}

	return &Codecs{Group3: g3, Header16: h16, Header32: h32}, nil
}

// Encode applies Reed-Solomon encoding to data using the given codec. len(data)
// must equal rs.Required(); the result has length rs.Total().
func Encode(rs *infectious.FEC, data []byte) ([]byte, error) {
	if len(data) != rs.Required() {
		return nil, fmt.Errorf("rscode: encode input length %d, want %d", len(data), rs.Required())
	}

	res := make([]byte, rs.Total())
	err := rs.Encode(data, func(s infectious.Share) {
		res[s.Number] = s.Data[0]
	})
	if err != nil {
		return nil, fmt.Errorf("rscode: encode failed: %w", err)
	}
	return res, nil
}

// Decode recovers the original data from a (possibly corrupted) encoded
// record. Returns the decoded data and, separately, whether any correction
// was needed. A non-nil error means too many bytes were corrupted to
// recover - the caller should treat the record as unrecoverable.
func Decode(rs *infectious.FEC, data []byte) (decoded []byte, corrected bool, err error) {
	if len(data) != rs.Total() {
		return nil, false, fmt.Errorf("rscode: decode input length %d, want %d", len(data), rs.Total())
	}

	shares := make([]infectious.Share, rs.Total())
	for i := range shares {
		shares[i].Number = i
		shares[i].Data = append(shares[i].Data, data[i])
	}

	res, err := rs.Decode(nil, shares)
	if err != nil {
		return nil, false, fmt.Errorf("rscode: unrecoverable: %w", err)
	}

	corrected = !bytesEqual(res, data[:rs.Required()])
	return res, corrected, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
