// Package signature implements the PowerAuth signature engine of §4.2:
// canonical base-string construction, per-factor HMAC computation, the
// lookahead window, and the v2/v3 counter advance rules.
package signature

import (
	"encoding/base64"
	"fmt"
	"strings"

	pacrypto "powerauth-server/internal/crypto"
)

// Type is one of the four factor combinations a client may sign with.
type Type string

const (
	TypePossession                   Type = "POSSESSION"
	TypePossessionKnowledge          Type = "POSSESSION_KNOWLEDGE"
	TypePossessionBiometry           Type = "POSSESSION_BIOMETRY"
	TypePossessionKnowledgeBiometry  Type = "POSSESSION_KNOWLEDGE_BIOMETRY"
)

// factorsFor returns the ordered factor keys a Type combines, fixed as
// (POSSESSION, KNOWLEDGE, BIOMETRY) per §4.2.
func factorsFor(t Type, possession, knowledge, biometry []byte) ([][]byte, error) {
	switch t {
	case TypePossession:
		return [][]byte{possession}, nil
	case TypePossessionKnowledge:
		return [][]byte{possession, knowledge}, nil
	case TypePossessionBiometry:
		return [][]byte{possession, biometry}, nil
	case TypePossessionKnowledgeBiometry:
		return [][]byte{possession, knowledge, biometry}, nil
	default:
		return nil, fmt.Errorf("signature: unknown signature type %q", t)
	}
}

// FactorKeys bundles the subkeys available for signing/verifying, any of
// which may be nil if the corresponding factor was never provisioned.
type FactorKeys struct {
	Possession []byte
	Knowledge  []byte
	Biometry   []byte
}

// BaseStringV3 builds the canonical v3 signature base:
// data || "&" || Base64(ctrData) || "&" || Base64(applicationSecret).
func BaseStringV3(data []byte, ctrData [16]byte, applicationSecret []byte) []byte {
	return buildBase(data, ctrData[:], applicationSecret)
}

// BaseStringV2 builds the legacy base with the integer counter in place of
// ctrData: data || "&" || Base64(counterBytes) || "&" || Base64(applicationSecret).
func BaseStringV2(data []byte, counterBytes []byte, applicationSecret []byte) []byte {
	return buildBase(data, counterBytes, applicationSecret)
}

func buildBase(data, counterPart, applicationSecret []byte) []byte {
	var sb strings.Builder
	sb.Write(data)
	sb.WriteByte('&')
	sb.WriteString(base64.StdEncoding.EncodeToString(counterPart))
	sb.WriteByte('&')
	sb.WriteString(base64.StdEncoding.EncodeToString(applicationSecret))
	return []byte(sb.String())
}

// Compute produces the dash-joined decimal signature string for base under
// the factor keys selected by sigType, in POSSESSION/KNOWLEDGE/BIOMETRY
// order (§4.2).
func Compute(sigType Type, keys FactorKeys, base []byte) (string, error) {
	factorKeys, err := factorsFor(sigType, keys.Possession, keys.Knowledge, keys.Biometry)
	if err != nil {
		return "", err
	}
	for i, k := range factorKeys {
		if len(k) == 0 {
			return "", fmt.Errorf("signature: missing factor key at position %d for type %s", i, sigType)
		}
	}

	components := make([]string, len(factorKeys))
	for i, key := range factorKeys {
		mac := pacrypto.HMACSign(key, base)
		components[i] = decimalize(mac)
	}
	return strings.Join(components, "-"), nil
}

// decimalize takes the low 4 bytes of mac, reduces modulo 10^8 and
// zero-pads to 8 digits, per §4.2.
func decimalize(mac []byte) string {
	low4 := mac[len(mac)-4:]
	value := uint32(low4[0])<<24 | uint32(low4[1])<<16 | uint32(low4[2])<<8 | uint32(low4[3])
	value %= 100000000
	return fmt.Sprintf("%08d", value)
}

// ConstantTimeEqual compares two signature strings without leaking timing
// information about a partial match.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
