package cryptosvc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	shielderrors "github.com/storyforge/shield/internal/errors"
)

const (
	// kdfIterations is the PBKDF2 iteration count. Fixed and high so
	// password-derived keys stay expensive to brute-force.
	kdfIterations = 100_000

	kdfKeyLen   = 32
	saltLen     = 16
	gcmNonceLen = 12
)

// ClientCiphertext is the result of password-based encryption. Salt and
// IV are fresh per call and required for decryption.
type ClientCiphertext struct {
	Ciphertext []byte
	IV         []byte
	Salt       []byte
}

// HashedSecret is a salted one-way derivation of a secret, suitable for
// verification without reversible storage.
type HashedSecret struct {
	Hash []byte
	Salt []byte
}

// deriveKey stretches a password into an AES-256 key. The same
// password and salt always yield the same key.
func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfIterations, kdfKeyLen, sha256.New)
}

// ClientEncrypt encrypts data under a password-derived key with
// AES-256-GCM. Salt and nonce are freshly generated per call.
func ClientEncrypt(data []byte, password string) (*ClientCiphertext, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, shielderrors.EncryptionError{Op: "client", Err: err}
	}
	iv := make([]byte, gcmNonceLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, shielderrors.EncryptionError{Op: "client", Err: err}
	}

	aead, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, shielderrors.EncryptionError{Op: "client", Err: err}
	}

	return &ClientCiphertext{
		Ciphertext: aead.Seal(nil, iv, data, nil),
		IV:         iv,
		Salt:       salt,
	}, nil
}

// ClientDecrypt reverses ClientEncrypt given the same password, IV, and
// salt. Authentication failure (wrong password, tampered ciphertext)
// returns a DecryptionError.
func ClientDecrypt(ciphertext []byte, password string, iv, salt []byte) ([]byte, error) {
	if len(iv) != gcmNonceLen || len(salt) != saltLen {
		return nil, shielderrors.DecryptionError{Op: "client", Err: fmt.Errorf("bad iv or salt length")}
	}

	aead, err := newGCM(deriveKey(password, salt))
	if err != nil {
		return nil, shielderrors.DecryptionError{Op: "client", Err: err}
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, shielderrors.DecryptionError{Op: "client", Err: err}
	}
	return plaintext, nil
}

// SecureHash derives a salted one-way hash of data. When salt is nil a
// fresh random salt is generated.
func SecureHash(data []byte, salt []byte) (*HashedSecret, error) {
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, shielderrors.EncryptionError{Op: "hash", Err: err}
		}
	}
	return &HashedSecret{
		Hash: pbkdf2.Key(data, salt, kdfIterations, kdfKeyLen, sha256.New),
		Salt: salt,
	}, nil
}

// VerifyHash recomputes the derivation and compares in constant time,
// so verification leaks no timing information about the stored hash.
func VerifyHash(data []byte, hash, salt []byte) bool {
	computed := pbkdf2.Key(data, salt, kdfIterations, kdfKeyLen, sha256.New)
	return subtle.ConstantTimeCompare(computed, hash) == 1
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
