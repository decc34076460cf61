package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys() FactorKeys {
	return FactorKeys{
		Possession: []byte("0123456789abcdef"),
		Knowledge:  []byte("fedcba9876543210"),
		Biometry:   []byte("abcdef0123456789"),
	}
}

func TestCompute_FactorCountMatchesType(t *testing.T) {
	base := []byte("base-string")
	keys := testKeys()

	cases := []struct {
		sigType Type
		parts   int
	}{
		{TypePossession, 1},
		{TypePossessionKnowledge, 2},
		{TypePossessionBiometry, 2},
		{TypePossessionKnowledgeBiometry, 3},
	}
	for _, c := range cases {
		sig, err := Compute(c.sigType, keys, base)
		require.NoError(t, err, "%s: compute", c.sigType)

		parts := strings.Split(sig, "-")
		assert.Len(t, parts, c.parts, "%s: expected %d dash-joined components, got %q", c.sigType, c.parts, sig)
		for _, part := range parts {
			assert.Len(t, part, 8, "%s: expected 8-digit components, got %q", c.sigType, part)
		}
	}
}

func TestCompute_MissingFactorKeyRejected(t *testing.T) {
	keys := FactorKeys{Possession: []byte("0123456789abcdef")}
	_, err := Compute(TypePossessionKnowledge, keys, []byte("base"))
	assert.Error(t, err, "expected an error when the knowledge factor key is missing")
}

func TestCompute_UnknownTypeRejected(t *testing.T) {
	_, err := Compute(Type("BOGUS"), testKeys(), []byte("base"))
	assert.Error(t, err, "expected an error for an unrecognized signature type")
}

func TestCompute_Deterministic(t *testing.T) {
	keys := testKeys()
	base := []byte("same-base-string")

	a, err := Compute(TypePossessionKnowledge, keys, base)
	require.NoError(t, err)
	b, err := Compute(TypePossessionKnowledge, keys, base)
	require.NoError(t, err)
	assert.Equal(t, a, b, "signature computation must be deterministic")
}

func TestBaseStringV3_EncodesCtrDataAndSecret(t *testing.T) {
	var ctr [16]byte
	copy(ctr[:], []byte("0123456789abcdef"))
	base := BaseStringV3([]byte("payload"), ctr, []byte("app-secret"))

	s := string(base)
	assert.True(t, strings.HasPrefix(s, "payload&"), "expected base string to begin with data&, got %q", s)
	assert.Equal(t, 2, strings.Count(s, "&"))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("12345678-87654321", "12345678-87654321"), "identical strings must compare equal")
	assert.False(t, ConstantTimeEqual("12345678", "12345679"), "differing strings must not compare equal")
	assert.False(t, ConstantTimeEqual("short", "muchlonger"), "strings of different length must not compare equal")
}
