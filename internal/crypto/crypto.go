// Package crypto provides the cryptographic primitives that back the
// PowerAuth activation and signature protocol: P-256 key agreement, the
// X9.63 and "internal" key derivation functions, AES-128-CBC with PKCS7
// padding, HMAC-SHA256 and ECDSA sign/verify.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
)

// KeyPair represents a P-256 ECDSA key pair, used both for the PowerAuth
// device/server key agreement pair and for ECDSA signing keys.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
}

// GenerateKeyPair generates a new EC key pair on P-256, the curve PowerAuth
// uses for both key agreement and offline signatures.
func GenerateKeyPair() (*KeyPair, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// =============================================================================
// ECDH key agreement
// =============================================================================

// ECDH computes the P-256 shared secret point and returns its X coordinate,
// left-padded to 32 bytes, as required by KDF_X9.63's Z input.
func ECDH(privateKey *ecdsa.PrivateKey, publicKey *ecdsa.PublicKey) ([]byte, error) {
	if privateKey == nil || publicKey == nil {
		return nil, fmt.Errorf("ecdh: nil key")
	}
	if privateKey.Curve != elliptic.P256() || publicKey.Curve != elliptic.P256() {
		return nil, fmt.Errorf("ecdh: keys must be on P-256")
	}

	x, _ := privateKey.Curve.ScalarMult(publicKey.X, publicKey.Y, privateKey.D.Bytes())
	if x == nil {
		return nil, fmt.Errorf("ecdh: scalar multiplication failed")
	}

	shared := make([]byte, 32)
	xBytes := x.Bytes()
	copy(shared[32-len(xBytes):], xBytes)
	return shared, nil
}

// =============================================================================
// Key derivation: KDF_X9.63 and KDF_INTERNAL
// =============================================================================

// DeriveX963 implements ANSI X9.63 key derivation with SHA-256, as used to
// turn the ECDH shared secret Z into the PowerAuth master secret:
//
//	K = Hash(Z || 00000001) || Hash(Z || 00000002) || ...
//
// truncated to keyLen bytes. sharedInfo is optional and may be nil.
func DeriveX963(z, sharedInfo []byte, keyLen int) ([]byte, error) {
	if keyLen <= 0 {
		return nil, fmt.Errorf("derive x9.63: keyLen must be positive")
	}

	hashLen := sha256.Size
	counter := uint32(1)
	out := make([]byte, 0, keyLen+hashLen)

	for len(out) < keyLen {
		h := sha256.New()
		h.Write(z)
		var counterBytes [4]byte
		binary.BigEndian.PutUint32(counterBytes[:], counter)
		h.Write(counterBytes[:])
		if len(sharedInfo) > 0 {
			h.Write(sharedInfo)
		}
		out = append(out, h.Sum(nil)...)
		counter++
	}

	return out[:keyLen], nil
}

// DeriveSecretKey derives the 16-byte PowerAuth "secret key" (often called
// KEY_MASTER_SECRET) from an ECDH shared secret using KDF_X9.63(SHA-256).
func DeriveSecretKey(devicePrivateKey *ecdsa.PrivateKey, serverPublicKey *ecdsa.PublicKey) ([]byte, error) {
	z, err := ECDH(devicePrivateKey, serverPublicKey)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(z)
	return DeriveX963(z, nil, 16)
}

// KDF_INTERNAL index constants identify the derived subkey, per the protocol.
const (
	KeyIndexMasterSecret        = uint64(0)
	KeyIndexSignaturePossession = uint64(1)
	KeyIndexSignatureKnowledge  = uint64(2)
	KeyIndexSignatureBiometry   = uint64(3)
	KeyIndexTransport           = uint64(1000)
	KeyIndexEncryptedVault      = uint64(2000)
	KeyIndexToken               = uint64(3000)
)

// DeriveInternal implements PowerAuth's KDF_INTERNAL: an HMAC-SHA256 of an
// 8-byte big-endian index, keyed by the master secret, truncated to 16 bytes.
// It is used to fan the single master secret out into the possession,
// knowledge, biometry, transport and vault-encryption subkeys.
func DeriveInternal(masterSecret []byte, index uint64) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, fmt.Errorf("derive internal: empty master secret")
	}

	var indexBytes [8]byte
	binary.BigEndian.PutUint64(indexBytes[:], index)

	h := hmac.New(sha256.New, masterSecret)
	h.Write(indexBytes[:])
	sum := h.Sum(nil)
	return sum[:16], nil
}

// =============================================================================
// Random material
// =============================================================================

// GenerateRandomBytes generates cryptographically secure random bytes.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// =============================================================================
// HMAC-SHA256
// =============================================================================

// HMACSign generates an HMAC-SHA256 signature.
func HMACSign(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// HMACVerify verifies an HMAC-SHA256 signature in constant time.
func HMACVerify(key, data, signature []byte) bool {
	expectedSig := HMACSign(key, data)
	return hmac.Equal(signature, expectedSig)
}

// =============================================================================
// AES-128-CBC with PKCS7 padding
// =============================================================================

// pkcs7Pad pads data to a multiple of blockSize using PKCS7.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad strips PKCS7 padding, validating it.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("pkcs7: invalid padded length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("pkcs7: invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("pkcs7: invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// EncryptCBC encrypts plaintext with AES-128-CBC, PKCS7 padding and a random
// IV, returning iv||ciphertext. key must be 16 bytes.
func EncryptCBC(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	return append(iv, ciphertext...), nil
}

// DecryptCBC decrypts iv||ciphertext produced by EncryptCBC.
func DecryptCBC(key, ivAndCiphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if len(ivAndCiphertext) < aes.BlockSize {
		return nil, fmt.Errorf("decrypt cbc: ciphertext too short")
	}
	iv := ivAndCiphertext[:aes.BlockSize]
	ciphertext := ivAndCiphertext[aes.BlockSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("decrypt cbc: ciphertext not block aligned")
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext, aes.BlockSize)
}

// EncryptCBCWithIV encrypts plaintext with AES-128-CBC/PKCS7 using a caller
// supplied IV, returning only the ciphertext (no IV prefix). This matches the
// v3 ECIES envelope format, which transmits the IV separately.
func EncryptCBCWithIV(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("encrypt cbc: iv must be %d bytes", aes.BlockSize)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// DecryptCBCWithIV decrypts ciphertext with AES-128-CBC/PKCS7 using a caller
// supplied IV.
func DecryptCBCWithIV(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("decrypt cbc: iv must be %d bytes", aes.BlockSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("decrypt cbc: ciphertext not block aligned")
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

// =============================================================================
// ECDSA signing over P-256
// =============================================================================

// Sign produces an ASN.1 DER ECDSA signature over the SHA-256 hash of data,
// the wire format PowerAuth specifies for device-key and offline signatures.
func Sign(privateKey *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, privateKey, hash[:])
}

// Verify verifies a DER-encoded ECDSA signature over the SHA-256 hash of
// data.
func Verify(publicKey *ecdsa.PublicKey, data, signature []byte) bool {
	hash := sha256.Sum256(data)
	return ecdsa.VerifyASN1(publicKey, hash[:], signature)
}

// =============================================================================
// EC point encoding
// =============================================================================

// PublicKeyToUncompressed encodes a public key in SEC1 uncompressed format
// (0x04 || X || Y, 65 bytes), the wire format PowerAuth uses for device and
// server public keys.
func PublicKeyToUncompressed(pub *ecdsa.PublicKey) []byte {
	x := pub.X.Bytes()
	y := pub.Y.Bytes()
	xPadded := make([]byte, 32)
	yPadded := make([]byte, 32)
	copy(xPadded[32-len(x):], x)
	copy(yPadded[32-len(y):], y)

	result := make([]byte, 65)
	result[0] = 0x04
	copy(result[1:33], xPadded)
	copy(result[33:], yPadded)
	return result
}

// PublicKeyToCompressed encodes a public key in SEC1 compressed format
// (33 bytes).
func PublicKeyToCompressed(pub *ecdsa.PublicKey) []byte {
	x := pub.X.Bytes()
	xPadded := make([]byte, 32)
	copy(xPadded[32-len(x):], x)

	prefix := byte(0x02)
	if pub.Y.Bit(0) == 1 {
		prefix = 0x03
	}

	result := make([]byte, 33)
	result[0] = prefix
	copy(result[1:], xPadded)
	return result
}

// PublicKeyFromBytes parses a compressed (33-byte) or uncompressed (65-byte)
// SEC1-encoded P-256 public key.
func PublicKeyFromBytes(data []byte) (*ecdsa.PublicKey, error) {
	curve := elliptic.P256()

	switch len(data) {
	case 33:
		x := new(big.Int).SetBytes(data[1:])
		y := decompressPoint(curve, x, data[0] == 0x03)
		if y == nil {
			return nil, fmt.Errorf("invalid compressed public key")
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil

	case 65:
		if data[0] != 0x04 {
			return nil, fmt.Errorf("invalid uncompressed public key prefix")
		}
		x := new(big.Int).SetBytes(data[1:33])
		y := new(big.Int).SetBytes(data[33:65])
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil

	default:
		return nil, fmt.Errorf("invalid public key length: %d", len(data))
	}
}

// decompressPoint recovers Y from X and a parity bit using the curve
// equation y² = x³ - 3x + b (mod p).
func decompressPoint(curve elliptic.Curve, x *big.Int, yOdd bool) *big.Int {
	params := curve.Params()

	x3 := new(big.Int).Mul(x, x)
	x3.Mul(x3, x)

	threeX := new(big.Int).Mul(x, big.NewInt(3))
	x3.Sub(x3, threeX)
	x3.Add(x3, params.B)
	x3.Mod(x3, params.P)

	y := new(big.Int).ModSqrt(x3, params.P)
	if y == nil {
		return nil
	}

	if (y.Bit(0) != 0) != yOdd {
		y.Sub(params.P, y)
	}

	return y
}

// =============================================================================
// Utility
// =============================================================================

// Hash256 computes SHA-256.
func Hash256(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// AdvanceCtrData implements the v3 hash-chain counter advance:
// ctrData' = SHA-256(ctrData)[0..16], used in place of the integer
// counter inside the v3 signature base (§4.2).
func AdvanceCtrData(ctrData [16]byte) [16]byte {
	sum := Hash256(ctrData[:])
	var next [16]byte
	copy(next[:], sum[:16])
	return next
}

// ZeroBytes securely zeros a byte slice, used to tombstone key material
// (shared secrets, master secrets) as soon as derivation is complete.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
