// Package activationcrypto implements the per-protocol-version envelope
// formats of §4.1: the v3 ECIES-like envelope that protects device/server
// public keys during key exchange, and the v2 legacy AES-CBC envelope
// authenticated by an application HMAC signature.
package activationcrypto

import (
	"fmt"

	"crypto/ecdsa"

	pacrypto "powerauth-server/internal/crypto"
)

// EciesEnvelope is the wire layout of the v3 ECIES-like scheme: an
// ephemeral EC public key, the IV, the AES-128-CBC ciphertext and a
// trailing HMAC-SHA-256 MAC, all bit-exact per §6 ("All public keys:
// uncompressed SEC1 point").
type EciesEnvelope struct {
	EphemeralPublicKey []byte // 65 bytes, uncompressed SEC1.
	IV                 []byte // 16 bytes.
	EncryptedData      []byte
	MAC                []byte // 32 bytes, HMAC-SHA256.
}

// eciesKeys are the two subkeys KDF_X9.63 derives from the ECIES shared
// secret: one for AES-CBC encryption, one for the authenticating MAC.
type eciesKeys struct {
	encKey []byte
	macKey []byte
}

func deriveEciesKeys(sharedSecret []byte, sharedInfo []byte) (eciesKeys, error) {
	km, err := pacrypto.DeriveX963(sharedSecret, sharedInfo, 32)
	if err != nil {
		return eciesKeys{}, err
	}
	return eciesKeys{encKey: km[:16], macKey: km[16:32]}, nil
}

// EciesEncrypt seals plaintext under recipientPublicKey: it generates an
// ephemeral EC key pair, derives the shared secret via ECDH against the
// recipient's public key, and protects plaintext with
// AES-128-CBC/HMAC-SHA256 keys derived from it via KDF_X9.63(SHA-256).
// sharedInfo binds context (e.g. "activation_prepare") into the KDF.
func EciesEncrypt(recipientPublicKey *ecdsa.PublicKey, plaintext, sharedInfo []byte) (*EciesEnvelope, error) {
	ephemeral, err := pacrypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	shared, err := pacrypto.ECDH(ephemeral.PrivateKey, recipientPublicKey)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	defer pacrypto.ZeroBytes(shared)

	keys, err := deriveEciesKeys(shared, sharedInfo)
	if err != nil {
		return nil, fmt.Errorf("derive keys: %w", err)
	}
	defer pacrypto.ZeroBytes(keys.encKey)
	defer pacrypto.ZeroBytes(keys.macKey)

	iv, err := pacrypto.GenerateRandomBytes(16)
	if err != nil {
		return nil, err
	}

	ciphertext, err := pacrypto.EncryptCBCWithIV(keys.encKey, iv, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	mac := pacrypto.HMACSign(keys.macKey, append(append([]byte{}, iv...), ciphertext...))

	return &EciesEnvelope{
		EphemeralPublicKey: pacrypto.PublicKeyToUncompressed(ephemeral.PublicKey),
		IV:                 iv,
		EncryptedData:      ciphertext,
		MAC:                mac,
	}, nil
}

// EciesDecrypt opens an envelope produced by EciesEncrypt using the
// recipient's private key.
func EciesDecrypt(recipientPrivateKey *ecdsa.PrivateKey, env *EciesEnvelope, sharedInfo []byte) ([]byte, error) {
	ephemeralPub, err := pacrypto.PublicKeyFromBytes(env.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("parse ephemeral public key: %w", err)
	}

	shared, err := pacrypto.ECDH(recipientPrivateKey, ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	defer pacrypto.ZeroBytes(shared)

	keys, err := deriveEciesKeys(shared, sharedInfo)
	if err != nil {
		return nil, fmt.Errorf("derive keys: %w", err)
	}
	defer pacrypto.ZeroBytes(keys.encKey)
	defer pacrypto.ZeroBytes(keys.macKey)

	if !pacrypto.HMACVerify(keys.macKey, append(append([]byte{}, env.IV...), env.EncryptedData...), env.MAC) {
		return nil, fmt.Errorf("mac mismatch")
	}

	plaintext, err := pacrypto.DecryptCBCWithIV(keys.encKey, env.IV, env.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
