// Package sale implements the fixed-price token sale program.
//
// A sale is configured per mint: the admin funds a program-controlled
// custody account with supply, buyers pay the admin in native currency at a
// fixed lamports-per-token price, and the program releases tokens from
// custody by signing as the custody account's derived address. All state
// lives in two program-derived accounts, so any node can re-derive and
// audit them from the mint address alone.
package sale

import (
	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/runtime"
)

// ProgramID is the sale program address.
var ProgramID = types.SaleProgramAddr

// Processor executes sale program instructions.
type Processor struct {
	cfg Config
}

// New creates a sale processor with the given pricing terms.
// Zero config fields fall back to the defaults.
func New(cfg Config) *Processor {
	return &Processor{cfg: cfg.withDefaults()}
}

// Config returns the pricing terms the processor applies.
func (p *Processor) Config() Config {
	return p.cfg
}

// Execute runs a sale program instruction.
func (p *Processor) Execute(ctx *runtime.Context, data []byte) error {
	if len(data) < 1 {
		return ErrInvalidInstructionData
	}

	switch data[0] {
	case InstructionInitialize:
		var args InitializeArgs
		if err := decodeArgs(data[1:], &args); err != nil {
			return err
		}
		return p.processInitialize(ctx, args)
	case InstructionTopUp:
		var args TopUpArgs
		if err := decodeArgs(data[1:], &args); err != nil {
			return err
		}
		return p.processTopUp(ctx, args)
	case InstructionPurchase:
		var args PurchaseArgs
		if err := decodeArgs(data[1:], &args); err != nil {
			return err
		}
		return p.processPurchase(ctx, args)
	default:
		return ErrInvalidInstructionData
	}
}
