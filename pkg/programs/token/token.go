// Package token implements the Token Program.
//
// The Token Program manages mints and token accounts. A mint defines a
// token kind; a token account holds a balance of exactly one mint for one
// owner. Moving tokens requires the source account's owner to sign, which
// in a cross-program invocation may be a program-derived address signed by
// its owning program.
package token

import (
	"encoding/binary"
	"errors"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/runtime"
)

// ProgramID is the Token Program address.
var ProgramID = types.TokenProgramAddr

// Instruction discriminants (single-byte prefix).
const (
	InstructionInitializeMint    = 0
	InstructionInitializeAccount = 1
	InstructionTransfer          = 3
	InstructionMintTo            = 7
)

// Error types.
var (
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrNotEnoughAccountKeys     = errors.New("not enough account keys")
	ErrInvalidProgramOwner      = errors.New("account not owned by token program")
	ErrAlreadyInitialized       = errors.New("account already initialized")
	ErrMissingRequiredSignature = errors.New("missing required signature")
	ErrAccountNotWritable       = errors.New("account not writable")
	ErrOwnerMismatch            = errors.New("owner does not match")
	ErrMintMismatch             = errors.New("token account mint mismatch")
	ErrInsufficientFunds        = errors.New("insufficient token funds")
	ErrSupplyOverflow           = errors.New("mint supply overflow")
	ErrBalanceOverflow          = errors.New("token balance overflow")
)

// Processor executes Token Program instructions.
type Processor struct{}

// New creates a new Token Program processor.
func New() *Processor {
	return &Processor{}
}

// Execute runs a Token Program instruction.
func (p *Processor) Execute(ctx *runtime.Context, data []byte) error {
	if len(data) < 1 {
		return ErrInvalidInstructionData
	}

	switch data[0] {
	case InstructionInitializeMint:
		return p.processInitializeMint(ctx, data[1:])
	case InstructionInitializeAccount:
		return p.processInitializeAccount(ctx)
	case InstructionTransfer:
		return p.processTransfer(ctx, data[1:])
	case InstructionMintTo:
		return p.processMintTo(ctx, data[1:])
	default:
		return ErrInvalidInstructionData
	}
}

// EncodeInitializeMint encodes an InitializeMint instruction.
func EncodeInitializeMint(authority types.Pubkey, decimals uint8) []byte {
	buf := make([]byte, 1+32+1)
	buf[0] = InstructionInitializeMint
	copy(buf[1:33], authority[:])
	buf[33] = decimals
	return buf
}

// EncodeInitializeAccount encodes an InitializeAccount instruction.
func EncodeInitializeAccount() []byte {
	return []byte{InstructionInitializeAccount}
}

// EncodeTransfer encodes a Transfer instruction.
func EncodeTransfer(amount uint64) []byte {
	buf := make([]byte, 1+8)
	buf[0] = InstructionTransfer
	binary.LittleEndian.PutUint64(buf[1:9], amount)
	return buf
}

// EncodeMintTo encodes a MintTo instruction.
func EncodeMintTo(amount uint64) []byte {
	buf := make([]byte, 1+8)
	buf[0] = InstructionMintTo
	binary.LittleEndian.PutUint64(buf[1:9], amount)
	return buf
}

// processInitializeMint initializes a mint account.
// Accounts: [0] mint (writable).
// Data: authority (32) + decimals (1).
func (p *Processor) processInitializeMint(ctx *runtime.Context, data []byte) error {
	if len(data) < 33 {
		return ErrInvalidInstructionData
	}

	mintAcct, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	if !mintAcct.IsWritable {
		return ErrAccountNotWritable
	}
	if mintAcct.Owner != ProgramID {
		return ErrInvalidProgramOwner
	}
	if len(mintAcct.Data) < MintLen {
		return ErrInvalidAccountData
	}

	existing, err := DeserializeMint(mintAcct.Data)
	if err != nil {
		return err
	}
	if existing.Initialized {
		return ErrAlreadyInitialized
	}

	mint := Mint{
		Decimals:    data[32],
		Initialized: true,
	}
	copy(mint.Authority[:], data[0:32])
	copy(mintAcct.Data, mint.Serialize())

	ctx.Logf("InitializeMint: %s decimals=%d", mintAcct.Key, mint.Decimals)
	return nil
}

// processInitializeAccount initializes a token account.
// Accounts: [0] token account (writable), [1] mint, [2] owner.
func (p *Processor) processInitializeAccount(ctx *runtime.Context) error {
	acct, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	mintAcct, err := ctx.Account(1)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	ownerAcct, err := ctx.Account(2)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !acct.IsWritable {
		return ErrAccountNotWritable
	}
	if acct.Owner != ProgramID {
		return ErrInvalidProgramOwner
	}
	if len(acct.Data) < AccountLen {
		return ErrInvalidAccountData
	}
	if mintAcct.Owner != ProgramID {
		return ErrInvalidProgramOwner
	}
	mint, err := DeserializeMint(mintAcct.Data)
	if err != nil {
		return err
	}
	if !mint.Initialized {
		return ErrUninitialized
	}

	existing, err := DeserializeTokenAccount(acct.Data)
	if err != nil {
		return err
	}
	if existing.Initialized {
		return ErrAlreadyInitialized
	}

	ta := TokenAccount{
		Mint:        mintAcct.Key,
		Owner:       ownerAcct.Key,
		Initialized: true,
	}
	copy(acct.Data, ta.Serialize())

	ctx.Logf("InitializeAccount: %s mint=%s owner=%s", acct.Key, mintAcct.Key, ownerAcct.Key)
	return nil
}

// processTransfer moves tokens between accounts of the same mint.
// Accounts: [0] source (writable), [1] destination (writable), [2] source owner (signer).
// Data: amount (8).
func (p *Processor) processTransfer(ctx *runtime.Context, data []byte) error {
	if len(data) < 8 {
		return ErrInvalidInstructionData
	}
	amount := binary.LittleEndian.Uint64(data[0:8])

	srcAcct, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	dstAcct, err := ctx.Account(1)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	authority, err := ctx.Account(2)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !srcAcct.IsWritable || !dstAcct.IsWritable {
		return ErrAccountNotWritable
	}
	if srcAcct.Owner != ProgramID || dstAcct.Owner != ProgramID {
		return ErrInvalidProgramOwner
	}

	src, err := DeserializeTokenAccount(srcAcct.Data)
	if err != nil {
		return err
	}
	dst, err := DeserializeTokenAccount(dstAcct.Data)
	if err != nil {
		return err
	}
	if !src.Initialized || !dst.Initialized {
		return ErrUninitialized
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}

	if src.Owner != authority.Key {
		return ErrOwnerMismatch
	}
	if !authority.IsSigner {
		return ErrMissingRequiredSignature
	}

	if src.Amount < amount {
		return ErrInsufficientFunds
	}
	if dst.Amount > ^uint64(0)-amount {
		return ErrBalanceOverflow
	}

	src.Amount -= amount
	dst.Amount += amount
	copy(srcAcct.Data, src.Serialize())
	copy(dstAcct.Data, dst.Serialize())

	ctx.Logf("Transfer: %d base units %s -> %s", amount, srcAcct.Key, dstAcct.Key)
	return nil
}

// processMintTo mints new tokens to an account.
// Accounts: [0] mint (writable), [1] destination (writable), [2] mint authority (signer).
// Data: amount (8).
func (p *Processor) processMintTo(ctx *runtime.Context, data []byte) error {
	if len(data) < 8 {
		return ErrInvalidInstructionData
	}
	amount := binary.LittleEndian.Uint64(data[0:8])

	mintAcct, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	dstAcct, err := ctx.Account(1)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	authority, err := ctx.Account(2)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !mintAcct.IsWritable || !dstAcct.IsWritable {
		return ErrAccountNotWritable
	}
	if mintAcct.Owner != ProgramID || dstAcct.Owner != ProgramID {
		return ErrInvalidProgramOwner
	}

	mint, err := DeserializeMint(mintAcct.Data)
	if err != nil {
		return err
	}
	if !mint.Initialized {
		return ErrUninitialized
	}
	dst, err := DeserializeTokenAccount(dstAcct.Data)
	if err != nil {
		return err
	}
	if !dst.Initialized {
		return ErrUninitialized
	}
	if dst.Mint != mintAcct.Key {
		return ErrMintMismatch
	}

	if mint.Authority != authority.Key {
		return ErrOwnerMismatch
	}
	if !authority.IsSigner {
		return ErrMissingRequiredSignature
	}

	if mint.Supply > ^uint64(0)-amount {
		return ErrSupplyOverflow
	}
	if dst.Amount > ^uint64(0)-amount {
		return ErrBalanceOverflow
	}

	mint.Supply += amount
	dst.Amount += amount
	copy(mintAcct.Data, mint.Serialize())
	copy(dstAcct.Data, dst.Serialize())

	ctx.Logf("MintTo: %d base units to %s", amount, dstAcct.Key)
	return nil
}
