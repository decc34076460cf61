// Package keyenc protects the activation's server private key at rest
// (§3.1, §6 serverPrivateKeyEncryption), deriving a per-activation key from
// the server-wide masterDbEncryptionKey and (userId, activationId), in the
// same HMAC-derive-then-AEAD shape as the teacher's
// infrastructure/crypto envelope helpers.
package keyenc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

// DeriveKey derives the 32-byte AES-256-GCM key protecting one
// activation's server private key, from the server-wide
// masterDbEncryptionKey and the owning (userId, activationId) pair.
func DeriveKey(masterKey []byte, userID, activationID string) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, fmt.Errorf("keyenc: empty master key")
	}
	mac := hmac.New(sha256.New, masterKey)
	mac.Write([]byte("pa-server-private-key"))
	mac.Write([]byte{0})
	mac.Write([]byte(userID))
	mac.Write([]byte{0})
	mac.Write([]byte(activationID))
	return mac.Sum(nil), nil
}

// Seal encrypts the server private key bytes under the derived key using
// AES-256-GCM, binding (userId, activationId) as additional data so a
// ciphertext cannot be replayed onto a different activation's row.
func Seal(masterKey []byte, userID, activationID string, plaintext []byte) ([]byte, error) {
	key, err := DeriveKey(masterKey, userID, activationID)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	aad := aad(userID, activationID)
	ciphertext := aead.Seal(nil, nonce, plaintext, aad)
	return append(nonce, ciphertext...), nil
}

// Open reverses Seal.
func Open(masterKey []byte, userID, activationID string, sealed []byte) ([]byte, error) {
	key, err := DeriveKey(masterKey, userID, activationID)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("keyenc: ciphertext too short")
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, body, aad(userID, activationID))
}

func aad(userID, activationID string) []byte {
	return []byte(userID + "|" + activationID)
}
