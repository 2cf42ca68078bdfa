package receipts

import (
	"log"
	"time"

	"github.com/near/borsh-go"

	"github.com/fortiblox/x1-tokensale/pkg/runtime"
	"github.com/fortiblox/x1-tokensale/pkg/sale"
)

// Hook returns a commit hook that appends one receipt per committed sale
// instruction. Pricing terms come from cfg so the receipt carries the same
// scaled amounts the program settled. Observers run after each successful
// append with the fully chained receipt.
//
// The hook runs after the accounts batch is durable; a receipt write
// failure is logged and skipped rather than unwinding the settlement.
func Hook(l *Log, cfg sale.Config, observers ...func(*Receipt)) runtime.CommitHook {
	return func(tx *runtime.Transaction, res *runtime.Result) {
		now := time.Now().UTC()
		for _, ix := range tx.Instructions {
			if ix.ProgramID != sale.ProgramID {
				continue
			}
			r, ok := receiptFromInstruction(&ix, cfg, now)
			if !ok {
				continue
			}
			if err := l.Append(r); err != nil {
				log.Printf("receipts: append failed: %v", err)
				continue
			}
			for _, o := range observers {
				o(r)
			}
		}
	}
}

func receiptFromInstruction(ix *runtime.Instruction, cfg sale.Config, now time.Time) (*Receipt, bool) {
	if len(ix.Data) < 1 {
		return nil, false
	}

	// Account order is fixed per instruction: actor at 0, mint at 2.
	if len(ix.Accounts) < 3 {
		return nil, false
	}
	r := &Receipt{
		Mint:  ix.Accounts[2].Pubkey,
		Actor: ix.Accounts[0].Pubkey,
		Time:  now,
	}

	switch ix.Data[0] {
	case sale.InstructionInitialize:
		var args sale.InitializeArgs
		if borsh.Deserialize(&args, ix.Data[1:]) != nil {
			return nil, false
		}
		r.Kind = KindInitialize
		r.Tokens = args.Amount
	case sale.InstructionTopUp:
		var args sale.TopUpArgs
		if borsh.Deserialize(&args, ix.Data[1:]) != nil {
			return nil, false
		}
		r.Kind = KindTopUp
		r.Tokens = args.Amount
	case sale.InstructionPurchase:
		var args sale.PurchaseArgs
		if borsh.Deserialize(&args, ix.Data[1:]) != nil {
			return nil, false
		}
		r.Kind = KindPurchase
		r.Tokens = args.Amount
		r.Lamports = args.Amount * cfg.PriceLamports
	default:
		return nil, false
	}

	r.BaseUnits = r.Tokens * cfg.BaseUnitsPerToken
	return r, true
}
