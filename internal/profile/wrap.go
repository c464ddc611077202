package profile

import (
	"phantomvault/internal/crypto"
	"phantomvault/internal/errs"
)

// wrapWithPassword derives a data-wrap root key from password and salt
// (independent from the auth salt, so the stored auth verifier never
// doubles as key material) and uses it to AEAD-encrypt masterKey.
func wrapWithPassword(password string, salt []byte, kdf crypto.KDFParams, paranoid bool, masterKey, aad []byte) (wrapped, nonce []byte, err error) {
	rootKey, err := crypto.DeriveKey([]byte(password), salt, kdf)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureZero(rootKey)

	cs, nonce, err := newDataWrapSuite(rootKey, salt, paranoid, aad)
	if err != nil {
		return nil, nil, err
	}
	defer cs.Close()

	ciphertext, tag := crypto.EncryptBuffer(cs, masterKey)
	return append(ciphertext, tag...), nonce, nil
}

// unwrapWithPassword reverses wrapWithPassword using the persisted nonce.
func unwrapWithPassword(password string, salt []byte, kdf crypto.KDFParams, paranoid bool, wrapped, nonce, aad []byte) ([]byte, error) {
	rootKey, err := crypto.DeriveKey([]byte(password), salt, kdf)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureZero(rootKey)

	cs, err := rewrapDataSuite(rootKey, salt, nonce, paranoid, aad)
	if err != nil {
		return nil, err
	}
	defer cs.Close()

	tagStart := len(wrapped) - crypto.MACSize
	if tagStart < 0 {
		return nil, errs.ErrCorrupted
	}
	return crypto.DecryptBuffer(cs, wrapped[:tagStart], wrapped[tagStart:])
}

func newDataWrapSuite(rootKey, salt []byte, paranoid bool, aad []byte) (*crypto.CipherSuite, []byte, error) {
	stream := crypto.NewHKDFStream(rootKey, salt, []byte("phantomvault/profile/data-wrap/v1"))
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

func rewrapDataSuite(rootKey, salt, nonce []byte, paranoid bool, aad []byte) (*crypto.CipherSuite, error) {
	stream := crypto.NewHKDFStream(rootKey, salt, []byte("phantomvault/profile/data-wrap/v1"))
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
