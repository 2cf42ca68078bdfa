package sale

import (
	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/pda"
	"github.com/fortiblox/x1-tokensale/pkg/programs/system"
	"github.com/fortiblox/x1-tokensale/pkg/programs/token"
	"github.com/fortiblox/x1-tokensale/pkg/runtime"
)

// saleAccounts are the accounts common to every sale instruction, in their
// fixed positions within the instruction's account list.
type saleAccounts struct {
	state   *runtime.View
	mint    *runtime.View
	custody *runtime.View
}

func loadSaleAccounts(ctx *runtime.Context) (*saleAccounts, error) {
	state, err := ctx.Account(1)
	if err != nil {
		return nil, ErrNotEnoughAccountKeys
	}
	mint, err := ctx.Account(2)
	if err != nil {
		return nil, ErrNotEnoughAccountKeys
	}
	custody, err := ctx.Account(3)
	if err != nil {
		return nil, ErrNotEnoughAccountKeys
	}
	if !state.IsWritable || !custody.IsWritable {
		return nil, ErrAccountNotWritable
	}
	return &saleAccounts{state: state, mint: mint, custody: custody}, nil
}

// processInitialize creates and funds a sale for a mint.
//
// Accounts:
//
//	[0] admin          (signer, writable) pays rent, becomes the recorded admin
//	[1] state PDA      (writable)
//	[2] mint
//	[3] custody PDA    (writable)
//	[4] admin token account (writable) supplies the initial deposit
func (p *Processor) processInitialize(ctx *runtime.Context, args InitializeArgs) error {
	admin, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	accts, err := loadSaleAccounts(ctx)
	if err != nil {
		return err
	}
	adminToken, err := ctx.Account(4)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !admin.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !admin.IsWritable || !adminToken.IsWritable {
		return ErrAccountNotWritable
	}

	mint := accts.mint.Key
	stateAddr, stateBump, err := StateAddress(mint)
	if err != nil {
		return err
	}
	custodyAddr, custodyBump, err := CustodyAddress(mint)
	if err != nil {
		return err
	}
	if accts.state.Key != stateAddr || accts.custody.Key != custodyAddr {
		return ErrInvalidDerivedAddress
	}

	// One sale per mint, forever. A used state account means a previous
	// initialization already claimed this mint.
	if accts.state.Lamports > 0 || len(accts.state.Data) > 0 {
		return ErrAlreadyInitialized
	}

	// Reject an overflowing deposit before any account is created.
	baseUnits, err := CheckedMul(args.Amount, p.cfg.BaseUnitsPerToken)
	if err != nil {
		return err
	}

	stateSeeds := [][]byte{StateSeed, mint[:], {stateBump}}
	custodySeeds := [][]byte{CustodySeed, mint[:], {custodyBump}}

	// Create the state account, owned by this program.
	err = ctx.Invoke(system.ProgramID,
		[]runtime.AccountMeta{
			{Pubkey: admin.Key, IsSigner: true, IsWritable: true},
			{Pubkey: stateAddr, IsSigner: true, IsWritable: true},
		},
		system.EncodeCreateAccount(system.CreateAccountParams{
			Lamports: ctx.RentMinimum(StateSpace),
			Space:    StateSpace,
			Owner:    ProgramID,
		}),
		[][][]byte{stateSeeds},
	)
	if err != nil {
		return err
	}

	// Create the custody token account, owned by the token program and
	// controlled by its own derived address.
	err = ctx.Invoke(system.ProgramID,
		[]runtime.AccountMeta{
			{Pubkey: admin.Key, IsSigner: true, IsWritable: true},
			{Pubkey: custodyAddr, IsSigner: true, IsWritable: true},
		},
		system.EncodeCreateAccount(system.CreateAccountParams{
			Lamports: ctx.RentMinimum(token.AccountLen),
			Space:    token.AccountLen,
			Owner:    token.ProgramID,
		}),
		[][][]byte{custodySeeds},
	)
	if err != nil {
		return err
	}

	err = ctx.Invoke(token.ProgramID,
		[]runtime.AccountMeta{
			{Pubkey: custodyAddr, IsWritable: true},
			{Pubkey: mint},
			{Pubkey: custodyAddr, IsWritable: true},
		},
		token.EncodeInitializeAccount(),
		nil,
	)
	if err != nil {
		return err
	}

	// Move the initial deposit from the admin's token account.
	err = ctx.Invoke(token.ProgramID,
		[]runtime.AccountMeta{
			{Pubkey: adminToken.Key, IsWritable: true},
			{Pubkey: custodyAddr, IsWritable: true},
			{Pubkey: admin.Key, IsSigner: true},
		},
		token.EncodeTransfer(baseUnits),
		nil,
	)
	if err != nil {
		return err
	}

	state := State{
		Admin:       admin.Key,
		TotalTokens: args.Amount,
		TokensSold:  0,
	}
	if err := writeState(accts.state, &state); err != nil {
		return err
	}

	ctx.Logf("Initialize: mint=%s admin=%s tokens=%d base_units=%d",
		mint, admin.Key, args.Amount, baseUnits)
	return nil
}

// processTopUp deposits additional supply into an existing sale.
//
// Accounts:
//
//	[0] admin          (signer) must match the recorded admin
//	[1] state PDA      (writable)
//	[2] mint
//	[3] custody PDA    (writable)
//	[4] admin token account (writable) supplies the deposit
func (p *Processor) processTopUp(ctx *runtime.Context, args TopUpArgs) error {
	admin, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	accts, err := loadSaleAccounts(ctx)
	if err != nil {
		return err
	}
	adminToken, err := ctx.Account(4)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	if !adminToken.IsWritable {
		return ErrAccountNotWritable
	}

	state, err := p.loadState(accts, accts.mint.Key)
	if err != nil {
		return err
	}

	// Authorization before arithmetic: a non-admin caller learns nothing
	// about the supply math.
	if err := requireAdmin(state.Admin, admin); err != nil {
		return err
	}

	baseUnits, err := CheckedMul(args.Amount, p.cfg.BaseUnitsPerToken)
	if err != nil {
		return err
	}
	newTotal, err := CheckedAdd(state.TotalTokens, args.Amount)
	if err != nil {
		return err
	}

	err = ctx.Invoke(token.ProgramID,
		[]runtime.AccountMeta{
			{Pubkey: adminToken.Key, IsWritable: true},
			{Pubkey: accts.custody.Key, IsWritable: true},
			{Pubkey: admin.Key, IsSigner: true},
		},
		token.EncodeTransfer(baseUnits),
		nil,
	)
	if err != nil {
		return err
	}

	state.TotalTokens = newTotal
	if err := writeState(accts.state, state); err != nil {
		return err
	}

	ctx.Logf("TopUp: mint=%s tokens=%d total=%d", accts.mint.Key, args.Amount, newTotal)
	return nil
}

// processPurchase sells tokens to a buyer at the fixed price.
//
// Accounts:
//
//	[0] buyer          (signer, writable) pays lamports
//	[1] state PDA      (writable)
//	[2] mint
//	[3] custody PDA    (writable)
//	[4] buyer token account (writable) receives tokens
//	[5] payment destination (writable) must be the recorded admin
func (p *Processor) processPurchase(ctx *runtime.Context, args PurchaseArgs) error {
	buyer, err := ctx.Account(0)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	accts, err := loadSaleAccounts(ctx)
	if err != nil {
		return err
	}
	buyerToken, err := ctx.Account(4)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}
	paymentDest, err := ctx.Account(5)
	if err != nil {
		return ErrNotEnoughAccountKeys
	}

	if !buyer.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !buyer.IsWritable || !buyerToken.IsWritable || !paymentDest.IsWritable {
		return ErrAccountNotWritable
	}

	mint := accts.mint.Key
	state, err := p.loadState(accts, mint)
	if err != nil {
		return err
	}

	// The caller supplies the custody bump; accept it only if it
	// reconstructs the custody account's address under this program.
	custodySeeds := [][]byte{CustodySeed, mint[:]}
	if !pda.VerifyProgramAddress(accts.custody.Key, args.CustodyBump, custodySeeds, ProgramID) {
		return ErrInvalidDerivedAddress
	}

	// Payment goes to the recorded admin, never to a caller-chosen account.
	if paymentDest.Key != state.Admin {
		return ErrInvalidAdmin
	}

	cost, err := CheckedMul(args.Amount, p.cfg.PriceLamports)
	if err != nil {
		return err
	}
	baseUnits, err := CheckedMul(args.Amount, p.cfg.BaseUnitsPerToken)
	if err != nil {
		return err
	}
	newSold, err := CheckedAdd(state.TokensSold, args.Amount)
	if err != nil {
		return err
	}
	if newSold > state.TotalTokens {
		return ErrInsufficientSupply
	}

	// Buyer pays the admin.
	err = ctx.Invoke(system.ProgramID,
		[]runtime.AccountMeta{
			{Pubkey: buyer.Key, IsSigner: true, IsWritable: true},
			{Pubkey: paymentDest.Key, IsWritable: true},
		},
		system.EncodeTransfer(cost),
		nil,
	)
	if err != nil {
		return err
	}

	// Custody releases the tokens, signed by its derived address.
	signerSeeds := [][]byte{CustodySeed, mint[:], {args.CustodyBump}}
	err = ctx.Invoke(token.ProgramID,
		[]runtime.AccountMeta{
			{Pubkey: accts.custody.Key, IsWritable: true},
			{Pubkey: buyerToken.Key, IsWritable: true},
			{Pubkey: accts.custody.Key, IsSigner: true},
		},
		token.EncodeTransfer(baseUnits),
		[][][]byte{signerSeeds},
	)
	if err != nil {
		return err
	}

	state.TokensSold = newSold
	if err := writeState(accts.state, state); err != nil {
		return err
	}

	ctx.Logf("Purchase: mint=%s buyer=%s tokens=%d cost=%d sold=%d/%d",
		mint, buyer.Key, args.Amount, cost, newSold, state.TotalTokens)
	return nil
}

// loadState reads and validates the sale state for a mint, including the
// derivation of both program addresses.
func (p *Processor) loadState(accts *saleAccounts, mint types.Pubkey) (*State, error) {
	stateAddr, _, err := StateAddress(mint)
	if err != nil {
		return nil, err
	}
	custodyAddr, _, err := CustodyAddress(mint)
	if err != nil {
		return nil, err
	}
	if accts.state.Key != stateAddr || accts.custody.Key != custodyAddr {
		return nil, ErrInvalidDerivedAddress
	}

	if accts.state.Owner != ProgramID {
		return nil, ErrInvalidStateOwner
	}
	state, err := DeserializeState(accts.state.Data)
	if err != nil {
		return nil, err
	}
	if !state.Initialized() {
		return nil, ErrNotInitialized
	}
	return state, nil
}

func writeState(view *runtime.View, state *State) error {
	raw, err := state.Serialize()
	if err != nil {
		return err
	}
	if len(view.Data) < len(raw) {
		return ErrInvalidInstructionData
	}
	copy(view.Data, raw)
	return nil
}
