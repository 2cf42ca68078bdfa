package sale

import (
	"github.com/near/borsh-go"
)

// Instruction discriminants (single-byte prefix, Borsh-encoded args).
const (
	InstructionInitialize = 0
	InstructionTopUp      = 1
	InstructionPurchase   = 2
)

// InitializeArgs funds a new sale.
type InitializeArgs struct {
	// Amount is the whole tokens to deposit into custody.
	Amount uint64
}

// TopUpArgs deposits additional supply into an existing sale.
type TopUpArgs struct {
	Amount uint64
}

// PurchaseArgs buys tokens at the fixed price.
type PurchaseArgs struct {
	// CustodyBump is the caller-supplied bump seed; the program accepts
	// it only if it reconstructs the custody account's address.
	CustodyBump uint8

	// Amount is the whole tokens to buy.
	Amount uint64
}

// EncodeInitialize encodes an Initialize instruction.
func EncodeInitialize(args InitializeArgs) ([]byte, error) {
	return encodeInstruction(InstructionInitialize, args)
}

// EncodeTopUp encodes a TopUp instruction.
func EncodeTopUp(args TopUpArgs) ([]byte, error) {
	return encodeInstruction(InstructionTopUp, args)
}

// EncodePurchase encodes a Purchase instruction.
func EncodePurchase(args PurchaseArgs) ([]byte, error) {
	return encodeInstruction(InstructionPurchase, args)
}

func encodeInstruction(discriminant byte, args interface{}) ([]byte, error) {
	body, err := borsh.Serialize(args)
	if err != nil {
		return nil, err
	}
	return append([]byte{discriminant}, body...), nil
}

func decodeArgs(data []byte, out interface{}) error {
	if err := borsh.Deserialize(out, data); err != nil {
		return ErrInvalidInstructionData
	}
	return nil
}
