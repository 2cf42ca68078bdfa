package sale

import (
	"math/bits"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/runtime"
)

// CheckedMul multiplies two uint64 values, failing on overflow.
// Used to scale whole-token counts into base units and into lamports.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// CheckedAdd adds two uint64 values, failing on overflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// requireAdmin verifies that view is the recorded admin and signed the
// transaction. The address check runs first so a non-admin caller is
// rejected as such even when they did sign.
func requireAdmin(recorded types.Pubkey, view *runtime.View) error {
	if view.Key != recorded {
		return ErrInvalidAdmin
	}
	if !view.IsSigner {
		return ErrMissingRequiredSignature
	}
	return nil
}
