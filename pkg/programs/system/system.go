// Package system implements the System Program.
//
// The System Program is responsible for:
// - Creating new accounts
// - Transferring lamports
// - Assigning account ownership
// - Allocating account space
//
// All accounts start out owned by the System Program until assigned to
// another program. In this runtime it doubles as the native-currency
// transfer service used by the sale program to move a buyer's payment.
package system

import (
	"encoding/binary"
	"errors"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/runtime"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants (little-endian uint32 prefix).
const (
	InstructionCreateAccount = iota
	InstructionAssign
	InstructionTransfer
	InstructionAllocate
)

// Error types.
var (
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrAccountAlreadyInUse      = errors.New("account already in use")
	ErrNotEnoughAccountKeys     = errors.New("not enough account keys")
	ErrInvalidAccountOwner      = errors.New("invalid account owner")
	ErrAccountNotRentExempt     = errors.New("account not rent exempt")
	ErrMissingRequiredSignature = errors.New("missing required signature")
	ErrAccountNotWritable       = errors.New("account not writable")
	ErrAccountDataTooSmall      = errors.New("account data too small")
	ErrAccountDataTooLarge      = errors.New("account data too large")
	ErrLamportOverflow          = errors.New("lamport balance overflow")
)

// MaxAccountDataSize bounds allocated account data.
const MaxAccountDataSize = 10 * 1024 * 1024 // 10 MB

// Processor executes System Program instructions.
type Processor struct{}

// New creates a new System Program processor.
func New() *Processor {
	return &Processor{}
}

// Execute runs a System Program instruction.
func (p *Processor) Execute(ctx *runtime.Context, data []byte) error {
	if len(data) < 4 {
		return ErrInvalidInstructionData
	}

	instruction := binary.LittleEndian.Uint32(data[:4])

	switch instruction {
	case InstructionCreateAccount:
		return p.processCreateAccount(ctx, data[4:])
	case InstructionAssign:
		return p.processAssign(ctx, data[4:])
	case InstructionTransfer:
		return p.processTransfer(ctx, data[4:])
	case InstructionAllocate:
		return p.processAllocate(ctx, data[4:])
	default:
		return ErrInvalidInstructionData
	}
}

// CreateAccountParams for the CreateAccount instruction.
type CreateAccountParams struct {
	Lamports uint64
	Space    uint64
	Owner    types.Pubkey
}

// EncodeCreateAccount encodes a CreateAccount instruction.
func EncodeCreateAccount(params CreateAccountParams) []byte {
	buf := make([]byte, 4+8+8+32)
	binary.LittleEndian.PutUint32(buf[0:4], InstructionCreateAccount)
	binary.LittleEndian.PutUint64(buf[4:12], params.Lamports)
	binary.LittleEndian.PutUint64(buf[12:20], params.Space)
	copy(buf[20:52], params.Owner[:])
	return buf
}

// EncodeTransfer encodes a Transfer instruction.
func EncodeTransfer(lamports uint64) []byte {
	buf := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(buf[0:4], InstructionTransfer)
	binary.LittleEndian.PutUint64(buf[4:12], lamports)
	return buf
}

// EncodeAssign encodes an Assign instruction.
func EncodeAssign(owner types.Pubkey) []byte {
	buf := make([]byte, 4+32)
	binary.LittleEndian.PutUint32(buf[0:4], InstructionAssign)
	copy(buf[4:36], owner[:])
	return buf
}

// EncodeAllocate encodes an Allocate instruction.
func EncodeAllocate(space uint64) []byte {
	buf := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(buf[0:4], InstructionAllocate)
	binary.LittleEndian.PutUint64(buf[4:12], space)
	return buf
}

// processCreateAccount creates a new account.
// Accounts: [0] funding account (signer, writable), [1] new account (signer, writable).
func (p *Processor) processCreateAccount(ctx *runtime.Context, data []byte) error {
	// lamports (8) + space (8) + owner (32)
	if len(data) < 48 {
		return ErrInvalidInstructionData
	}

	params := CreateAccountParams{
		Lamports: binary.LittleEndian.Uint64(data[0:8]),
		Space:    binary.LittleEndian.Uint64(data[8:16]),
	}
	copy(params.Owner[:], data[16:48])

	if params.Space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}

	funder, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	newAccount, err := ctx.Account(1)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !funder.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !newAccount.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !funder.IsWritable || !newAccount.IsWritable {
		return ErrAccountNotWritable
	}

	if funder.Lamports < params.Lamports {
		return ErrInsufficientFunds
	}

	// The new account must be untouched: system-owned, no data, no balance.
	if newAccount.Owner != ProgramID || len(newAccount.Data) > 0 || newAccount.Lamports > 0 {
		return ErrAccountAlreadyInUse
	}

	if params.Lamports < ctx.RentMinimum(params.Space) {
		return ErrAccountNotRentExempt
	}

	funder.Lamports -= params.Lamports
	newAccount.Lamports = params.Lamports
	newAccount.Data = make([]byte, params.Space)
	newAccount.Owner = params.Owner

	ctx.Log("CreateAccount: success")
	return nil
}

// processAssign changes the owner of an account.
// Accounts: [0] assigned account (signer).
func (p *Processor) processAssign(ctx *runtime.Context, data []byte) error {
	if len(data) < 32 {
		return ErrInvalidInstructionData
	}

	var newOwner types.Pubkey
	copy(newOwner[:], data[0:32])

	account, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !account.IsSigner {
		return ErrMissingRequiredSignature
	}
	if account.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}

	account.Owner = newOwner

	ctx.Log("Assign: success")
	return nil
}

// processTransfer transfers lamports between accounts.
// Accounts: [0] from (signer, writable), [1] to (writable).
func (p *Processor) processTransfer(ctx *runtime.Context, data []byte) error {
	if len(data) < 8 {
		return ErrInvalidInstructionData
	}

	lamports := binary.LittleEndian.Uint64(data[0:8])

	from, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	to, err := ctx.Account(1)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !from.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !from.IsWritable || !to.IsWritable {
		return ErrAccountNotWritable
	}

	if from.Lamports < lamports {
		return ErrInsufficientFunds
	}
	if to.Lamports > ^uint64(0)-lamports {
		return ErrLamportOverflow
	}

	from.Lamports -= lamports
	to.Lamports += lamports

	ctx.Log("Transfer: success")
	return nil
}

// processAllocate allocates space in an account.
// Accounts: [0] allocated account (signer).
func (p *Processor) processAllocate(ctx *runtime.Context, data []byte) error {
	if len(data) < 8 {
		return ErrInvalidInstructionData
	}

	space := binary.LittleEndian.Uint64(data[0:8])
	if space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}

	account, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !account.IsSigner {
		return ErrMissingRequiredSignature
	}
	if account.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}
	if uint64(len(account.Data)) > space {
		return ErrAccountDataTooSmall
	}

	if uint64(len(account.Data)) < space {
		newData := make([]byte, space)
		copy(newData, account.Data)
		account.Data = newData
	}

	ctx.Log("Allocate: success")
	return nil
}
