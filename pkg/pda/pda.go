// Package pda implements program-derived address (PDA) operations.
//
// A PDA is a deterministic, collision-resistant address derived from a set
// of seeds and a program ID. Derived addresses are required to fall off the
// ed25519 curve, so no private key can ever exist for them: a program proves
// authority over a PDA structurally, by re-deriving it from the seeds,
// rather than by producing a signature.
package pda

import (
	"crypto/sha256"
	"errors"
	"math/big"
)

// Derivation constants.
const (
	MaxSeeds   = 16
	MaxSeedLen = 32
)

// Marker appended to the hash input during derivation.
var pdaMarker = []byte("ProgramDerivedAddress")

// Derivation errors.
var (
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrMaxSeedsExceeded      = errors.New("max seeds exceeded")
	ErrInvalidSeeds          = errors.New("invalid seeds: derived address is on curve")
	ErrNoViableBump          = errors.New("unable to find a viable program address bump seed")
)

// CreateProgramAddress derives a program address from seeds and a program ID.
// Returns ErrInvalidSeeds if the derived address lies on the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, programID [32]byte) ([32]byte, error) {
	var out [32]byte

	if len(seeds) > MaxSeeds {
		return out, ErrMaxSeedsExceeded
	}
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return out, ErrMaxSeedLengthExceeded
		}
	}

	// Hash input: seeds + programID + marker
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)

	sum := h.Sum(nil)
	if isOnCurve(sum) {
		return out, ErrInvalidSeeds
	}

	copy(out[:], sum)
	return out, nil
}

// FindProgramAddress finds a valid PDA by iterating bump seeds from 255 to 0.
// It returns the first off-curve address together with the bump that
// produced it; that bump is the canonical derivation proof for the address.
func FindProgramAddress(seeds [][]byte, programID [32]byte) ([32]byte, uint8, error) {
	if len(seeds) > MaxSeeds-1 { // need room for the bump seed
		return [32]byte{}, 0, ErrMaxSeedsExceeded
	}

	for bump := uint8(255); ; bump-- {
		seedsWithBump := make([][]byte, len(seeds)+1)
		copy(seedsWithBump, seeds)
		seedsWithBump[len(seeds)] = []byte{bump}

		addr, err := CreateProgramAddress(seedsWithBump, programID)
		if err == nil {
			return addr, bump, nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return [32]byte{}, 0, err
		}

		if bump == 0 {
			break
		}
	}

	return [32]byte{}, 0, ErrNoViableBump
}

// VerifyProgramAddress reports whether the supplied bump reconstructs the
// expected address from the seeds. This is the verification half of the
// derivation: authority over a PDA is proven by recomputation, never by key.
func VerifyProgramAddress(expected [32]byte, bump uint8, seeds [][]byte, programID [32]byte) bool {
	seedsWithBump := make([][]byte, len(seeds)+1)
	copy(seedsWithBump, seeds)
	seedsWithBump[len(seeds)] = []byte{bump}

	addr, err := CreateProgramAddress(seedsWithBump, programID)
	if err != nil {
		return false
	}
	return addr == expected
}

// isOnCurve checks if the given bytes represent a point on the ed25519 curve.
//
// Ed25519 uses the twisted Edwards curve: -x^2 + y^2 = 1 + d*x^2*y^2
// where d = -121665/121666 (mod p) and p = 2^255 - 19.
//
// A compressed point stores the y-coordinate and the sign of x. To verify,
// compute x^2 from y and check whether it has a square root in the field.
func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}

	// Field prime p = 2^255 - 19
	p := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))

	// Curve parameter d = -121665/121666 (mod p)
	d := new(big.Int).Mul(big.NewInt(-121665), new(big.Int).ModInverse(big.NewInt(121666), p))
	d.Mod(d, p)

	// Extract y-coordinate (little-endian, clear the sign bit of x)
	yBytes := make([]byte, 32)
	copy(yBytes, point)
	yBytes[31] &= 0x7F

	y := new(big.Int)
	for i := 31; i >= 0; i-- {
		y.Lsh(y, 8)
		y.Or(y, big.NewInt(int64(yBytes[i])))
	}

	if y.Cmp(p) >= 0 {
		return false
	}

	// x^2 = (y^2 - 1) / (d*y^2 + 1)
	y2 := new(big.Int).Mul(y, y)
	y2.Mod(y2, p)

	num := new(big.Int).Sub(y2, big.NewInt(1))
	num.Mod(num, p)

	den := new(big.Int).Mul(d, y2)
	den.Add(den, big.NewInt(1))
	den.Mod(den, p)

	denInv := new(big.Int).ModInverse(den, p)
	if denInv == nil {
		return false
	}
	x2 := new(big.Int).Mul(num, denInv)
	x2.Mod(x2, p)

	// Euler's criterion: x^2 is a quadratic residue iff x^2^((p-1)/2) = 1 (mod p)
	exp := new(big.Int).Sub(p, big.NewInt(1))
	exp.Rsh(exp, 1)

	legendre := new(big.Int).Exp(x2, exp, p)
	return legendre.Cmp(big.NewInt(1)) == 0 || x2.Sign() == 0
}
