package activationcode

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noneExist(string) (bool, error) { return false, nil }

func TestGenerateActivationID_RetriesOnCollision(t *testing.T) {
	seen := map[string]bool{}
	calls := 0
	exists := func(id string) (bool, error) {
		calls++
		if calls <= 2 {
			return true, nil // force two collisions before success.
		}
		return seen[id], nil
	}

	id, err := GenerateActivationID(10, exists)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestGenerateActivationID_ExhaustsRetries(t *testing.T) {
	alwaysTaken := func(string) (bool, error) { return true, nil }
	_, err := GenerateActivationID(3, alwaysTaken)
	assert.Error(t, err)
}

func TestGenerateActivationCode_FormatAndChecksum(t *testing.T) {
	code, err := GenerateActivationCode(10, noneExist)
	require.NoError(t, err)

	groups := strings.Split(code, "-")
	require.Len(t, groups, 4, "expected 4 dash-separated groups in %q", code)
	for _, g := range groups {
		assert.Len(t, g, 5, "expected each group to be 5 characters, got %q in %q", g, code)
	}

	assert.True(t, VerifyChecksum(StripDashes(code)), "generated code %q must carry a valid checksum", code)
}

func TestVerifyChecksum_RejectsTamperedCode(t *testing.T) {
	code, err := GenerateActivationCode(10, noneExist)
	require.NoError(t, err)
	bare := []byte(StripDashes(code))

	// Flip one non-checksum symbol and expect the checksum to catch it.
	original := bare[0]
	for _, c := range []byte(base32Alphabet) {
		if c != original {
			bare[0] = c
			break
		}
	}
	assert.False(t, VerifyChecksum(string(bare)), "checksum must reject a tampered code (original %q, tampered %q)", code, bare)
}

func TestVerifyChecksum_RejectsWrongLength(t *testing.T) {
	assert.False(t, VerifyChecksum("TOOSHORT"))
}

func TestStripDashes(t *testing.T) {
	got := StripDashes("ABCDE-FGHIJ-KLMNO-PQRST")
	assert.Equal(t, "ABCDEFGHIJKLMNOPQRST", got)
}

func TestGenerateActivationIDShort_Format(t *testing.T) {
	id, err := GenerateActivationIDShort(10, noneExist)
	require.NoError(t, err)
	parts := strings.Split(id, "-")
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 5)
	assert.Len(t, parts[1], 5)
}

func TestGenerateOTP_DigitsOnly(t *testing.T) {
	otp, err := GenerateOTP(5)
	require.NoError(t, err)
	require.Len(t, otp, 5)
	for _, c := range otp {
		assert.True(t, c >= '0' && c <= '9', "expected only digits, got %q", otp)
	}
}

func TestGenerateActivationCode_UniquenessRespected(t *testing.T) {
	used := map[string]bool{}
	exists := func(code string) (bool, error) { return used[code], nil }

	first, err := GenerateActivationCode(10, exists)
	require.NoError(t, err)
	used[first] = true

	second, err := GenerateActivationCode(10, exists)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "two codes generated against the same uniqueness predicate must differ")
}

func ExampleGenerateActivationCode() {
	code, err := GenerateActivationCode(10, noneExist)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(len(strings.Split(code, "-")))
	// Output: 4
}
