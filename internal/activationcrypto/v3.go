package activationcrypto

import (
	"crypto/ecdsa"
	"fmt"

	pacrypto "powerauth-server/internal/crypto"
)

// FactorKeys holds the per-activation subkeys KDF_INTERNAL derives from
// the master secret (§4.1).
type FactorKeys struct {
	MasterSecret       []byte
	Possession         []byte
	Knowledge          []byte
	Biometry           []byte
	Transport          []byte
	EncryptedVaultKey  []byte
}

// DeriveFactorKeys computes the full v3 key family from an ECDH shared
// secret: KEY_MASTER_SECRET = KDF_INTERNAL(S, 0), and every other subkey
// fans out from it.
func DeriveFactorKeys(serverPrivateKey *ecdsa.PrivateKey, devicePublicKey *ecdsa.PublicKey) (*FactorKeys, error) {
	shared, err := pacrypto.ECDH(serverPrivateKey, devicePublicKey)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	defer pacrypto.ZeroBytes(shared)

	master, err := pacrypto.DeriveInternal(shared, pacrypto.KeyIndexMasterSecret)
	if err != nil {
		return nil, fmt.Errorf("derive master secret: %w", err)
	}

	return DeriveFactorKeysFromMaster(master)
}

// DeriveFactorKeysFromMaster fans KEY_MASTER_SECRET out into the
// possession/knowledge/biometry/transport/vault subkeys via KDF_INTERNAL.
// Exposed separately so the master secret, once derived once at key
// exchange and persisted in encrypted form, never needs re-deriving from
// the ECDH shared secret on every signature verification.
func DeriveFactorKeysFromMaster(master []byte) (*FactorKeys, error) {
	possession, err := pacrypto.DeriveInternal(master, pacrypto.KeyIndexSignaturePossession)
	if err != nil {
		return nil, err
	}
	knowledge, err := pacrypto.DeriveInternal(master, pacrypto.KeyIndexSignatureKnowledge)
	if err != nil {
		return nil, err
	}
	biometry, err := pacrypto.DeriveInternal(master, pacrypto.KeyIndexSignatureBiometry)
	if err != nil {
		return nil, err
	}
	transport, err := pacrypto.DeriveInternal(master, pacrypto.KeyIndexTransport)
	if err != nil {
		return nil, err
	}
	vault, err := pacrypto.DeriveInternal(master, pacrypto.KeyIndexEncryptedVault)
	if err != nil {
		return nil, err
	}

	return &FactorKeys{
		MasterSecret:      master,
		Possession:        possession,
		Knowledge:         knowledge,
		Biometry:          biometry,
		Transport:         transport,
		EncryptedVaultKey: vault,
	}, nil
}

// Zero wipes every derived key in place, called as soon as a verification
// or vault-unlock request has used them.
func (k *FactorKeys) Zero() {
	if k == nil {
		return
	}
	pacrypto.ZeroBytes(k.MasterSecret)
	pacrypto.ZeroBytes(k.Possession)
	pacrypto.ZeroBytes(k.Knowledge)
	pacrypto.ZeroBytes(k.Biometry)
	pacrypto.ZeroBytes(k.Transport)
	pacrypto.ZeroBytes(k.EncryptedVaultKey)
}

// AdvanceCtrData re-exports the v3 hash-chain counter advance from
// internal/crypto for callers that only import activationcrypto.
func AdvanceCtrData(ctrData [16]byte) [16]byte {
	return pacrypto.AdvanceCtrData(ctrData)
}

// VaultUnlockKey produces C_vaultKey = AES-CBC-Encrypt(KEY_TRANSPORT,
// PKCS7(KEY_ENCRYPTED_VAULT)) with a zero IV, the format §4.4 specifies.
func VaultUnlockKey(transportKey, vaultKey []byte) ([]byte, error) {
	zeroIV := make([]byte, 16)
	return pacrypto.EncryptCBCWithIV(transportKey, zeroIV, vaultKey)
}
