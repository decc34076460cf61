package signature

import (
	"encoding/binary"

	pacrypto "powerauth-server/internal/crypto"
)

// VerifyResult reports the outcome of checking a client signature against
// the stored counter and its lookahead window (§4.2, P4).
type VerifyResult struct {
	Matched        bool
	MatchedCounter uint64  // only meaningful if Matched.
	NextCounter    uint64  // counter to persist: matchedCounter+1 on success, storedCounter+1 on failure.
	NextCtrData    [16]byte // v3 only: hash-chain advanced the same number of steps as NextCounter-storedCounter.
}

// VerifyV3 recomputes the expected signature for the stored ctrData and for
// the next lookahead values, accepting the first match (§4.2). On no
// match, the counter (and ctrData chain) still advances by exactly one
// step, preserving the counter-advance-on-failure invariant (§9).
func VerifyV3(sigType Type, keys FactorKeys, data []byte, applicationSecret []byte, storedCounter uint64, storedCtrData [16]byte, lookahead int, candidate string) (VerifyResult, error) {
	ctr := storedCtrData
	for step := 0; step <= lookahead; step++ {
		base := BaseStringV3(data, ctr, applicationSecret)
		expected, err := Compute(sigType, keys, base)
		if err != nil {
			return VerifyResult{}, err
		}
		if ConstantTimeEqual(expected, candidate) {
			return VerifyResult{
				Matched:        true,
				MatchedCounter: storedCounter + uint64(step),
				NextCounter:    storedCounter + uint64(step) + 1,
				NextCtrData:    pacrypto.AdvanceCtrData(ctr),
			}, nil
		}
		ctr = pacrypto.AdvanceCtrData(ctr)
	}
	return VerifyResult{
		Matched:     false,
		NextCounter: storedCounter + 1,
		NextCtrData: pacrypto.AdvanceCtrData(storedCtrData),
	}, nil
}

// VerifyV2 recomputes the expected signature for the stored integer
// counter and for the next lookahead values.
func VerifyV2(sigType Type, keys FactorKeys, data []byte, applicationSecret []byte, storedCounter uint64, lookahead int, candidate string) (VerifyResult, error) {
	for step := 0; step <= lookahead; step++ {
		counterBytes := counterToBytes(storedCounter + uint64(step))
		base := BaseStringV2(data, counterBytes, applicationSecret)
		expected, err := Compute(sigType, keys, base)
		if err != nil {
			return VerifyResult{}, err
		}
		if ConstantTimeEqual(expected, candidate) {
			return VerifyResult{
				Matched:        true,
				MatchedCounter: storedCounter + uint64(step),
				NextCounter:    storedCounter + uint64(step) + 1,
			}, nil
		}
	}
	return VerifyResult{
		Matched:     false,
		NextCounter: storedCounter + 1,
	}, nil
}

func counterToBytes(counter uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, counter)
	return b
}
