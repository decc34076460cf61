package activationcrypto

import (
	"fmt"

	"crypto/ecdsa"

	pacrypto "powerauth-server/internal/crypto"
)

// V2Envelope is the legacy key-transport format: the device public key
// encrypted with AES-128-CBC under a key derived from the short
// activation code, the activation OTP, and an ephemeral ECDH exchange
// with the application master key, authenticated by an application
// signature (§4.1 "v2 (legacy, still supported)").
type V2Envelope struct {
	EphemeralPublicKey    []byte
	EncryptedDevicePubKey []byte
	ActivationNonce       []byte
	ApplicationSignature  []byte
}

// deriveV2Key derives the AES-128-CBC key protecting the v2 device public
// key from the ECDH shared secret, the short activation id and the OTP.
func deriveV2Key(shared []byte, activationIDShort, otp string) ([]byte, error) {
	info := append([]byte(activationIDShort), []byte(otp)...)
	km, err := pacrypto.DeriveX963(shared, info, 16)
	if err != nil {
		return nil, err
	}
	return km, nil
}

// EncryptV2DevicePublicKey builds a V2Envelope sealing devicePublicKey
// under the application's master public key.
func EncryptV2DevicePublicKey(masterPublicKey *ecdsa.PublicKey, devicePublicKey *ecdsa.PublicKey, activationIDShort, otp string, applicationKey, applicationSecret []byte) (*V2Envelope, error) {
	ephemeral, err := pacrypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	shared, err := pacrypto.ECDH(ephemeral.PrivateKey, masterPublicKey)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	defer pacrypto.ZeroBytes(shared)

	key, err := deriveV2Key(shared, activationIDShort, otp)
	if err != nil {
		return nil, err
	}
	defer pacrypto.ZeroBytes(key)

	devicePubBytes := pacrypto.PublicKeyToUncompressed(devicePublicKey)
	ciphertext, err := pacrypto.EncryptCBC(key, devicePubBytes)
	if err != nil {
		return nil, fmt.Errorf("encrypt device public key: %w", err)
	}

	nonce, err := pacrypto.GenerateRandomBytes(16)
	if err != nil {
		return nil, err
	}

	sig := applicationSignature(activationIDShort, nonce, ciphertext, applicationKey, applicationSecret)

	return &V2Envelope{
		EphemeralPublicKey:    pacrypto.PublicKeyToUncompressed(ephemeral.PublicKey),
		EncryptedDevicePubKey: ciphertext,
		ActivationNonce:       nonce,
		ApplicationSignature:  sig,
	}, nil
}

// DecryptV2DevicePublicKey opens a V2Envelope using the application master
// private key, verifying the application signature first.
func DecryptV2DevicePublicKey(masterPrivateKey *ecdsa.PrivateKey, env *V2Envelope, activationIDShort, otp string, applicationKey, applicationSecret []byte) (*ecdsa.PublicKey, error) {
	base := make([]byte, 0, len(activationIDShort)+len(env.ActivationNonce)+len(env.EncryptedDevicePubKey)+len(applicationKey))
	base = append(base, []byte(activationIDShort)...)
	base = append(base, env.ActivationNonce...)
	base = append(base, env.EncryptedDevicePubKey...)
	base = append(base, applicationKey...)
	if !pacrypto.HMACVerify(applicationSecret, base, env.ApplicationSignature) {
		return nil, fmt.Errorf("application signature mismatch")
	}

	ephemeralPub, err := pacrypto.PublicKeyFromBytes(env.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("parse ephemeral public key: %w", err)
	}

	shared, err := pacrypto.ECDH(masterPrivateKey, ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	defer pacrypto.ZeroBytes(shared)

	key, err := deriveV2Key(shared, activationIDShort, otp)
	if err != nil {
		return nil, err
	}
	defer pacrypto.ZeroBytes(key)

	plaintext, err := pacrypto.DecryptCBC(key, env.EncryptedDevicePubKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt device public key: %w", err)
	}

	return pacrypto.PublicKeyFromBytes(plaintext)
}

// applicationSignature computes
// HMAC-SHA-256(applicationSecret, activationIdShort || activationNonce ||
// C_devicePublicKey || applicationKey), the v2 application authentication
// tag (§4.1).
func applicationSignature(activationIDShort string, nonce, encryptedDevicePubKey, applicationKey, applicationSecret []byte) []byte {
	base := make([]byte, 0, len(activationIDShort)+len(nonce)+len(encryptedDevicePubKey)+len(applicationKey))
	base = append(base, []byte(activationIDShort)...)
	base = append(base, nonce...)
	base = append(base, encryptedDevicePubKey...)
	base = append(base, applicationKey...)
	return pacrypto.HMACSign(applicationSecret, base)
}

// FallbackSignature returns 71 random bytes, matching the source's
// behaviour when v2 ECDSA signing errors (§9 open question (b)): it is
// unclear whether any client actually verifies this fallback, but the
// byte count is preserved so wire framing does not change shape on error.
func FallbackSignature() ([]byte, error) {
	return pacrypto.GenerateRandomBytes(71)
}
