package crypto

import (
	"crypto/cipher"
	"encoding/binary"
	"hash"
	"io"

	"github.com/Picocrypt/serpent"
	"golang.org/x/crypto/chacha20"

	"phantomvault/internal/errs"
	"phantomvault/internal/util"
)

// CipherSuite holds the initialized ciphers and MAC for one encrypt or
// decrypt pass over a single stream (one vault entry's worth of bytes, or
// one small catalog/profile record).
//
// CRITICAL: encryption order is Serpent-CTR (paranoid only) -> XChaCha20 ->
// MAC(ciphertext); decryption reverses it. This order is load-bearing -
// swapping it changes the construction's integrity guarantees and makes
// previously encrypted data unreadable.
type CipherSuite struct {
	chacha       *chacha20.Cipher
	serpent      cipher.Stream
	serpentBlock cipher.Block // retained across Rekey for a fresh CTR instance
	mac          hash.Hash
	hkdf         io.Reader
	paranoid     bool
	key          []byte
}

// NewCipherSuite builds a cipher suite from already-derived subkeys. If aad
// is non-empty it is folded into the MAC (length-prefixed, before any
// ciphertext) so the tag binds to caller context - such as a vault entry's
// obfuscated_id - without that context ever being encrypted itself.
func NewCipherSuite(cipherKey, nonce, serpentKey, serpentIV, macSubkey []byte, hkdfStream io.Reader, paranoid bool, aad []byte) (*CipherSuite, error) {
	chachaCipher, err := chacha20.NewUnauthenticatedCipher(cipherKey, nonce)
	if err != nil {
		return nil, errs.NewCryptoOpError("aead-init", err)
	}

	mac, err := NewMAC(macSubkey, paranoid)
	if err != nil {
		return nil, errs.NewCryptoOpError("aead-init", err)
	}

	cs := &CipherSuite{
		chacha:   chachaCipher,
		mac:      mac,
		hkdf:     hkdfStream,
		paranoid: paranoid,
		key:      cipherKey,
	}

	if paranoid {
		block, err := serpent.NewCipher(serpentKey)
		if err != nil {
			return nil, errs.NewCryptoOpError("aead-init", err)
		}
		cs.serpentBlock = block
		cs.serpent = cipher.NewCTR(block, serpentIV)
	}

	if len(aad) > 0 {
		var lenPrefix [8]byte
		binary.BigEndian.PutUint64(lenPrefix[:], uint64(len(aad)))
		cs.mac.Write(lenPrefix[:])
		cs.mac.Write(aad)
	}

	return cs, nil
}

// Encrypt processes one block: [Serpent-CTR if paranoid] -> XChaCha20 ->
// MAC(ciphertext). dst and src may overlap/alias (dst == src is fine).
func (cs *CipherSuite) Encrypt(dst, src []byte) {
	if cs.paranoid {
		cs.serpent.XORKeyStream(dst, src)
		cs.chacha.XORKeyStream(dst, dst) // serpent output becomes chacha input
	} else {
		cs.chacha.XORKeyStream(dst, src)
	}
	cs.mac.Write(dst)
}

// Decrypt processes one block: MAC(ciphertext) -> XChaCha20 -> [Serpent-CTR
// if paranoid]. The MAC write MUST happen before the XChaCha20 pass so the
// accumulated tag authenticates what was actually on disk.
func (cs *CipherSuite) Decrypt(dst, src []byte) {
	cs.mac.Write(src)

	cs.chacha.XORKeyStream(dst, src)

	if cs.paranoid {
		cs.serpent.XORKeyStream(dst, dst)
	}
}

// Rekey reinitializes the ciphers with a fresh nonce/IV pulled from the same
// HKDF stream used to derive the original subkeys. Must be called every
// RekeyThreshold bytes to stay clear of XChaCha20 nonce exhaustion on very
// large vault entries.
func (cs *CipherSuite) Rekey() error {
	nonce := make([]byte, RekeyNonceSize)
	if _, err := io.ReadFull(cs.hkdf, nonce); err != nil {
		return errs.NewCryptoOpError("rekey", err)
	}

	chachaCipher, err := chacha20.NewUnauthenticatedCipher(cs.key, nonce)
	if err != nil {
		return errs.NewCryptoOpError("rekey", err)
	}
	cs.chacha = chachaCipher

	if cs.paranoid {
		iv := make([]byte, RekeySerpentIVSize)
		if _, err := io.ReadFull(cs.hkdf, iv); err != nil {
			return errs.NewCryptoOpError("rekey", err)
		}
		cs.serpent = cipher.NewCTR(cs.serpentBlock, iv)
	}

	return nil
}

// MAC returns the accumulated MAC hash for advanced use.
func (cs *CipherSuite) MAC() hash.Hash { return cs.mac }

// Sum returns the current MAC tag without resetting accumulation.
func (cs *CipherSuite) Sum() []byte { return cs.mac.Sum(nil) }

// IsParanoid reports whether the Serpent second layer is active.
func (cs *CipherSuite) IsParanoid() bool { return cs.paranoid }

// Close zeros the cipher key and resets the MAC state. Callers must defer
// Close() immediately after construction.
func (cs *CipherSuite) Close() {
	if cs == nil {
		return
	}
	SecureZero(cs.key)
	cs.key = nil
	cs.chacha = nil
	cs.serpent = nil
	cs.serpentBlock = nil
	SecureZeroHash(cs.mac)
	cs.mac = nil
}

// EncryptBuffer authenticates and encrypts a single in-memory buffer (a
// profile record or catalog metadata blob), returning ciphertext and its
// trailing MAC tag. Intended for values small enough to hold in memory
// whole; large vault-entry payloads use StreamEncrypt instead.
func EncryptBuffer(cs *CipherSuite, plaintext []byte) (ciphertext, tag []byte) {
	ciphertext = make([]byte, len(plaintext))
	cs.Encrypt(ciphertext, plaintext)
	return ciphertext, cs.Sum()
}

// DecryptBuffer authenticates ciphertext against expectedTag before
// returning plaintext. Returns errs.ErrInvalidTag on mismatch; the caller
// must discard any partially-decrypted output on that path.
func DecryptBuffer(cs *CipherSuite, ciphertext, expectedTag []byte) ([]byte, error) {
	plaintext := make([]byte, len(ciphertext))
	cs.Decrypt(plaintext, ciphertext)
	tag := cs.Sum()
	if !ConstantTimeEqual(tag, expectedTag) {
		SecureZero(plaintext)
		return nil, errs.ErrInvalidTag
	}
	return plaintext, nil
}

// StreamEncrypt reads plaintext from r in chunkSize blocks (0 defaults to
// 1 MiB, matching Picocrypt-NG's chunking), encrypts each block with cs,
// writes ciphertext to w, and transparently rekeys every RekeyThreshold
// bytes. Returns the final MAC tag once r is exhausted.
func StreamEncrypt(cs *CipherSuite, w io.Writer, r io.Reader, chunkSize int) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = util.MiB
	}
	counter := NewCounter()
	in := make([]byte, chunkSize)
	out := make([]byte, chunkSize)

	for {
		n, rerr := r.Read(in)
		if n > 0 {
			cs.Encrypt(out[:n], in[:n])
			if _, werr := w.Write(out[:n]); werr != nil {
				return nil, errs.NewIOOpError("write", "", werr)
			}
			if counter.Add(n) {
				if err := cs.Rekey(); err != nil {
					return nil, err
				}
				counter.Reset()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, errs.NewIOOpError("read", "", rerr)
		}
	}

	return cs.Sum(), nil
}

// StreamDecrypt mirrors StreamEncrypt: reads ciphertext from r, feeds each
// chunk into the running MAC before decrypting it (no per-chunk check; the
// returned tag is compared by the caller once the whole stream is consumed,
// so plaintext reaches w before authentication), writes plaintext to w, and
// rekeys in lockstep with the encrypting side.
func StreamDecrypt(cs *CipherSuite, w io.Writer, r io.Reader, chunkSize int) ([]byte, error) {
	if chunkSize <= 0 {
		chunkSize = util.MiB
	}
	counter := NewCounter()
	in := make([]byte, chunkSize)
	out := make([]byte, chunkSize)

	for {
		n, rerr := r.Read(in)
		if n > 0 {
			cs.Decrypt(out[:n], in[:n])
			if _, werr := w.Write(out[:n]); werr != nil {
				return nil, errs.NewIOOpError("write", "", werr)
			}
			if counter.Add(n) {
				if err := cs.Rekey(); err != nil {
					return nil, err
				}
				counter.Reset()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, errs.NewIOOpError("read", "", rerr)
		}
	}

	return cs.Sum(), nil
}
