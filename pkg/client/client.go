// Package client builds sale program transactions.
//
// Callers hold keys and addresses; this package derives the program
// accounts, assembles the account lists in the order the program expects,
// and encodes the instruction data. The resulting transactions go to
// runtime.Engine.Execute (in-process) or a node's submit endpoint.
package client

import (
	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/runtime"
	"github.com/fortiblox/x1-tokensale/pkg/sale"
)

// SaleAddresses are the derived program accounts for one mint.
type SaleAddresses struct {
	State       types.Pubkey
	StateBump   uint8
	Custody     types.Pubkey
	CustodyBump uint8
}

// DeriveSaleAddresses computes the state and custody addresses for a mint.
func DeriveSaleAddresses(mint types.Pubkey) (*SaleAddresses, error) {
	state, stateBump, err := sale.StateAddress(mint)
	if err != nil {
		return nil, err
	}
	custody, custodyBump, err := sale.CustodyAddress(mint)
	if err != nil {
		return nil, err
	}
	return &SaleAddresses{
		State:       state,
		StateBump:   stateBump,
		Custody:     custody,
		CustodyBump: custodyBump,
	}, nil
}

// InitializeParams describe an Initialize transaction.
type InitializeParams struct {
	Admin      types.Pubkey
	Mint       types.Pubkey
	AdminToken types.Pubkey
	Tokens     uint64
}

// NewInitializeTransaction builds a transaction that creates and funds the
// sale for a mint.
func NewInitializeTransaction(p InitializeParams) (*runtime.Transaction, error) {
	addrs, err := DeriveSaleAddresses(p.Mint)
	if err != nil {
		return nil, err
	}
	data, err := sale.EncodeInitialize(sale.InitializeArgs{Amount: p.Tokens})
	if err != nil {
		return nil, err
	}
	return &runtime.Transaction{
		Instructions: []runtime.Instruction{{
			ProgramID: sale.ProgramID,
			Accounts: []runtime.AccountMeta{
				{Pubkey: p.Admin, IsSigner: true, IsWritable: true},
				{Pubkey: addrs.State, IsWritable: true},
				{Pubkey: p.Mint},
				{Pubkey: addrs.Custody, IsWritable: true},
				{Pubkey: p.AdminToken, IsWritable: true},
			},
			Data: data,
		}},
	}, nil
}

// TopUpParams describe a TopUp transaction.
type TopUpParams struct {
	Admin      types.Pubkey
	Mint       types.Pubkey
	AdminToken types.Pubkey
	Tokens     uint64
}

// NewTopUpTransaction builds a transaction that deposits additional supply.
func NewTopUpTransaction(p TopUpParams) (*runtime.Transaction, error) {
	addrs, err := DeriveSaleAddresses(p.Mint)
	if err != nil {
		return nil, err
	}
	data, err := sale.EncodeTopUp(sale.TopUpArgs{Amount: p.Tokens})
	if err != nil {
		return nil, err
	}
	return &runtime.Transaction{
		Instructions: []runtime.Instruction{{
			ProgramID: sale.ProgramID,
			Accounts: []runtime.AccountMeta{
				{Pubkey: p.Admin, IsSigner: true},
				{Pubkey: addrs.State, IsWritable: true},
				{Pubkey: p.Mint},
				{Pubkey: addrs.Custody, IsWritable: true},
				{Pubkey: p.AdminToken, IsWritable: true},
			},
			Data: data,
		}},
	}, nil
}

// PurchaseParams describe a Purchase transaction.
type PurchaseParams struct {
	Buyer      types.Pubkey
	Mint       types.Pubkey
	BuyerToken types.Pubkey

	// PaymentDest is the recorded sale admin. The program rejects any
	// other destination.
	PaymentDest types.Pubkey

	Tokens uint64
}

// NewPurchaseTransaction builds a transaction that buys tokens at the
// fixed price. The custody bump travels in the instruction data and is
// re-verified by the program.
func NewPurchaseTransaction(p PurchaseParams) (*runtime.Transaction, error) {
	addrs, err := DeriveSaleAddresses(p.Mint)
	if err != nil {
		return nil, err
	}
	data, err := sale.EncodePurchase(sale.PurchaseArgs{
		CustodyBump: addrs.CustodyBump,
		Amount:      p.Tokens,
	})
	if err != nil {
		return nil, err
	}
	return &runtime.Transaction{
		Instructions: []runtime.Instruction{{
			ProgramID: sale.ProgramID,
			Accounts: []runtime.AccountMeta{
				{Pubkey: p.Buyer, IsSigner: true, IsWritable: true},
				{Pubkey: addrs.State, IsWritable: true},
				{Pubkey: p.Mint},
				{Pubkey: addrs.Custody, IsWritable: true},
				{Pubkey: p.BuyerToken, IsWritable: true},
				{Pubkey: p.PaymentDest, IsWritable: true},
			},
			Data: data,
		}},
	}, nil
}
