package sale

import (
	"errors"
	"fmt"
)

// Error is a coded sale program failure surfaced to clients.
// Codes start at 6000, below which the runtime's own errors live.
type Error struct {
	Code    uint32
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("custom program error %d: %s", e.Code, e.Message)
}

// Coded program errors.
var (
	// ErrOverflow rejects any arithmetic whose result does not fit in
	// 64 bits. No operation saturates or wraps.
	ErrOverflow = &Error{Code: 6000, Message: "arithmetic overflow"}

	// ErrInvalidAdmin rejects privileged operations whose signer is not
	// the admin recorded in the sale state.
	ErrInvalidAdmin = &Error{Code: 6001, Message: "invalid admin"}

	// ErrInvalidDerivedAddress rejects a supplied account whose address
	// does not reconstruct from the expected seeds and bump.
	ErrInvalidDerivedAddress = &Error{Code: 6002, Message: "derived address mismatch"}

	// ErrAlreadyInitialized rejects a second initialization for a mint.
	ErrAlreadyInitialized = &Error{Code: 6003, Message: "sale already initialized"}

	// ErrNotInitialized rejects operations against a sale that was never
	// initialized for the given mint.
	ErrNotInitialized = &Error{Code: 6004, Message: "sale not initialized"}

	// ErrInsufficientSupply rejects a purchase larger than the unsold
	// remainder of the funded supply.
	ErrInsufficientSupply = &Error{Code: 6005, Message: "insufficient unsold supply"}
)

// Envelope errors, matching the other native programs.
var (
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrNotEnoughAccountKeys     = errors.New("not enough account keys")
	ErrMissingRequiredSignature = errors.New("missing required signature")
	ErrAccountNotWritable       = errors.New("account not writable")
	ErrInvalidStateOwner        = errors.New("state account not owned by sale program")
)
