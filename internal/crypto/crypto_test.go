package crypto

import (
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECDH_RoundTripMatchesBothSides(t *testing.T) {
	device, err := GenerateKeyPair()
	require.NoError(t, err)
	server, err := GenerateKeyPair()
	require.NoError(t, err)

	fromDevice, err := ECDH(device.PrivateKey, server.PublicKey)
	require.NoError(t, err)
	fromServer, err := ECDH(server.PrivateKey, device.PublicKey)
	require.NoError(t, err)

	assert.Equal(t, fromDevice, fromServer, "both sides of an ECDH exchange must derive the same shared secret")
	assert.Len(t, fromDevice, 32)
}

func TestDeriveX963_DeterministicAndLengthBound(t *testing.T) {
	z := []byte("shared-secret-material")

	k1, err := DeriveX963(z, nil, 16)
	require.NoError(t, err)
	k2, err := DeriveX963(z, nil, 16)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "KDF_X9.63 must be deterministic for the same inputs")
	assert.Len(t, k1, 16)

	k32, err := DeriveX963(z, nil, 32)
	require.NoError(t, err)
	assert.Equal(t, k1, k32[:16], "a longer derivation must be a prefix-consistent extension of a shorter one")
}

func TestDeriveInternal_IndicesDeriveDistinctKeys(t *testing.T) {
	master := []byte("0123456789abcdef")

	possession, err := DeriveInternal(master, KeyIndexSignaturePossession)
	require.NoError(t, err)
	knowledge, err := DeriveInternal(master, KeyIndexSignatureKnowledge)
	require.NoError(t, err)

	assert.Len(t, possession, 16)
	assert.Len(t, knowledge, 16)
	assert.NotEqual(t, possession, knowledge, "distinct indices must derive distinct subkeys")

	again, err := DeriveInternal(master, KeyIndexSignaturePossession)
	require.NoError(t, err)
	assert.Equal(t, possession, again, "KDF_INTERNAL must be deterministic")
}

func TestDeriveInternal_EmptyMasterSecretRejected(t *testing.T) {
	_, err := DeriveInternal(nil, KeyIndexTransport)
	assert.Error(t, err)
}

func TestEncryptDecryptCBC_RoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ciphertext, err := EncryptCBC(key, plaintext)
	require.NoError(t, err)
	got, err := DecryptCBC(key, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptCBC_RejectsTamperedPadding(t *testing.T) {
	key := []byte("0123456789abcdef")
	ciphertext, err := EncryptCBC(key, []byte("hello"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = DecryptCBC(key, ciphertext)
	assert.Error(t, err, "expected a padding error for tampered ciphertext")
}

func TestEncryptDecryptCBCWithIV_RoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := make([]byte, 16)
	plaintext := []byte("vault unlock key material")

	ciphertext, err := EncryptCBCWithIV(key, iv, plaintext)
	require.NoError(t, err)
	got, err := DecryptCBCWithIV(key, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestHMACSignVerify(t *testing.T) {
	key := []byte("factor-key-material-16b")
	data := []byte("request-base-string")

	sig := HMACSign(key, data)
	assert.True(t, HMACVerify(key, data, sig), "HMACVerify must accept a signature produced by HMACSign")

	tampered := append([]byte(nil), sig...)
	tampered[0] ^= 0x01
	assert.False(t, HMACVerify(key, data, tampered), "HMACVerify must reject a tampered signature")
}

func TestSignVerify_ECDSA(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	data := []byte("operation-approval-payload")

	sig, err := Sign(kp.PrivateKey, data)
	require.NoError(t, err)

	var asn1Sig struct{ R, S *big.Int }
	_, err = asn1.Unmarshal(sig, &asn1Sig)
	require.NoError(t, err, "expected a DER-encoded signature")

	assert.True(t, Verify(kp.PublicKey, data, sig), "Verify must accept a signature produced by Sign")
	assert.False(t, Verify(kp.PublicKey, []byte("different-payload"), sig), "Verify must reject a signature over different data")
}

func TestPublicKeyUncompressedRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	encoded := PublicKeyToUncompressed(kp.PublicKey)
	require.Len(t, encoded, 65)
	assert.Equal(t, byte(0x04), encoded[0])

	decoded, err := PublicKeyFromBytes(encoded)
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.X.Cmp(kp.PublicKey.X))
	assert.Equal(t, 0, decoded.Y.Cmp(kp.PublicKey.Y))
}

func TestPublicKeyCompressedRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	encoded := PublicKeyToCompressed(kp.PublicKey)
	require.Len(t, encoded, 33)

	decoded, err := PublicKeyFromBytes(encoded)
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.X.Cmp(kp.PublicKey.X))
	assert.Equal(t, 0, decoded.Y.Cmp(kp.PublicKey.Y))
}

func TestAdvanceCtrData_DeterministicChain(t *testing.T) {
	var seed [16]byte
	copy(seed[:], []byte("0123456789abcdef"))

	next1 := AdvanceCtrData(seed)
	next2 := AdvanceCtrData(seed)
	assert.Equal(t, next1, next2, "ctrData advance must be deterministic given the same input")
	assert.NotEqual(t, seed, next1, "ctrData advance must change the value")
}

func TestZeroBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	ZeroBytes(b)
	assert.Equal(t, []byte{0, 0, 0, 0}, b)
}
