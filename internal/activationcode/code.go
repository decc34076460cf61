// Package activationcode generates activation identifiers and
// human-typeable activation codes (§4.6): a UUIDv4 activationId, and a 20
// character Base32-with-checksum activationCode (v3) or a shorter
// activationIdShort (v2), retrying on collision up to a configured bound.
package activationcode

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// base32Alphabet is the RFC 4648 Base32 alphabet without padding, the
// alphabet PowerAuth mobile SDKs expect for activation codes.
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// GenerateActivationID produces a UUIDv4 string. The caller supplies
// exists to check for collisions and retries up to maxIterations times,
// matching activationGenerateActivationIdIterations (§6).
func GenerateActivationID(maxIterations int, exists func(id string) (bool, error)) (string, error) {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	for i := 0; i < maxIterations; i++ {
		id := uuid.New().String()
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("unable to generate unique activation id after %d attempts", maxIterations)
}

// GenerateActivationCode produces a v3 activation code: four groups of
// five Base32 characters (`XXXXX-XXXXX-XXXXX-XXXXX`), where the last
// character of the last group is a checksum over the preceding 19
// characters. The caller's exists predicate restricts uniqueness to
// records in {CREATED, PENDING_COMMIT} per I5.
func GenerateActivationCode(maxIterations int, exists func(code string) (bool, error)) (string, error) {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	for i := 0; i < maxIterations; i++ {
		code, err := generateRandomCode()
		if err != nil {
			return "", err
		}
		taken, err := exists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("unable to generate unique activation code after %d attempts", maxIterations)
}

// generateRandomCode builds one candidate 5-5-5-5 code with a checksum
// character in the final position.
func generateRandomCode() (string, error) {
	// 19 random symbols, then a checksum character derived from them (the
	// 20th symbol of the 4x5 layout).
	symbols := make([]byte, 19)
	raw := make([]byte, 19)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	for i, b := range raw {
		symbols[i] = base32Alphabet[int(b)%len(base32Alphabet)]
	}

	checksum := luhnMod32Checksum(symbols)
	full := append(symbols, checksum)

	var sb strings.Builder
	for i, c := range full {
		if i > 0 && i%5 == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(c)
	}
	return sb.String(), nil
}

// luhnMod32Checksum computes a Luhn-mod-N checksum character over symbols
// drawn from base32Alphabet, the "20-char group layout with the last char
// as checksum" contract of §9 open question (c). The algorithm is the
// standard Luhn mod N: double every second digit counting from the
// rightmost, summing digit values (subtracting (N-1) when the doubled
// value overflows N-1), and choosing the checksum symbol that brings the
// total to a multiple of N.
func luhnMod32Checksum(symbols []byte) byte {
	n := len(base32Alphabet)
	sum := 0
	double := true // rightmost existing symbol is doubled first.
	for i := len(symbols) - 1; i >= 0; i-- {
		v := strings.IndexByte(base32Alphabet, symbols[i])
		if v < 0 {
			v = 0
		}
		if double {
			v *= 2
			if v >= n {
				v -= n - 1
			}
		}
		sum += v
		double = !double
	}
	checkValue := (n - (sum % n)) % n
	return base32Alphabet[checkValue]
}

// VerifyChecksum validates a full 20-symbol (no dashes) activation code
// string against its trailing checksum character.
func VerifyChecksum(codeNoDashes string) bool {
	if len(codeNoDashes) != 20 {
		return false
	}
	body := []byte(codeNoDashes[:19])
	want := codeNoDashes[19]
	return luhnMod32Checksum(body) == want
}

// StripDashes removes the `-` group separators from a formatted activation
// code, returning the bare 20 character symbol string.
func StripDashes(code string) string {
	return strings.ReplaceAll(code, "-", "")
}

// GenerateActivationIDShort produces a v2 legacy short activation id: two
// groups of five Base32 characters (`XXXXX-XXXXX`), no checksum (the v2
// client library never validated one).
func GenerateActivationIDShort(maxIterations int, exists func(id string) (bool, error)) (string, error) {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	for i := 0; i < maxIterations; i++ {
		raw := make([]byte, 10)
		if _, err := rand.Read(raw); err != nil {
			return "", err
		}
		symbols := make([]byte, 10)
		for j, b := range raw {
			symbols[j] = base32Alphabet[int(b)%len(base32Alphabet)]
		}
		id := string(symbols[:5]) + "-" + string(symbols[5:])
		taken, err := exists(id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("unable to generate unique activation id short after %d attempts", maxIterations)
}

// GenerateOTP produces a numeric one-time password of the given length,
// used for activationOtp and recovery PUKs.
func GenerateOTP(digits int) (string, error) {
	if digits <= 0 {
		digits = 5
	}
	b := make([]byte, digits)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, digits)
	for i, v := range b {
		out[i] = byte('0') + v%10
	}
	return string(out), nil
}
