package service

import (
	"encoding/base64"

	"powerauth-server/internal/config"
	"powerauth-server/internal/domain"
)

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func unb64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// encModeFromConfig maps the config-layer encryption mode onto the
// domain-layer one stored on each ActivationRecord, keeping
// internal/config free of a domain import (config is a leaf package
// shared by every layer; domain types belong to the façade that
// interprets them).
func encModeFromConfig(m config.PrivateKeyEncryptionMode) domain.PrivateKeyEncryption {
	if m == config.AESHMACEncryption {
		return domain.PrivateKeyAESHMAC
	}
	return domain.PrivateKeyNoEncryption
}
