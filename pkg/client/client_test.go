package client

import (
	"testing"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/pda"
	"github.com/fortiblox/x1-tokensale/pkg/sale"
)

func testPubkey(b byte) types.Pubkey {
	var p types.Pubkey
	p[0] = b
	return p
}

func TestDeriveSaleAddresses(t *testing.T) {
	mint := testPubkey(1)
	addrs, err := DeriveSaleAddresses(mint)
	if err != nil {
		t.Fatal(err)
	}

	if addrs.State == addrs.Custody {
		t.Error("state and custody addresses must differ")
	}
	if !pda.VerifyProgramAddress(addrs.State, addrs.StateBump,
		[][]byte{sale.StateSeed, mint[:]}, sale.ProgramID) {
		t.Error("state address does not verify")
	}
	if !pda.VerifyProgramAddress(addrs.Custody, addrs.CustodyBump,
		[][]byte{sale.CustodySeed, mint[:]}, sale.ProgramID) {
		t.Error("custody address does not verify")
	}

	// Deterministic per mint.
	again, err := DeriveSaleAddresses(mint)
	if err != nil {
		t.Fatal(err)
	}
	if *again != *addrs {
		t.Error("derivation is not deterministic")
	}

	other, err := DeriveSaleAddresses(testPubkey(2))
	if err != nil {
		t.Fatal(err)
	}
	if other.State == addrs.State || other.Custody == addrs.Custody {
		t.Error("different mints must derive different addresses")
	}
}

func TestNewInitializeTransaction(t *testing.T) {
	admin, mint, adminToken := testPubkey(1), testPubkey(2), testPubkey(3)
	tx, err := NewInitializeTransaction(InitializeParams{
		Admin:      admin,
		Mint:       mint,
		AdminToken: adminToken,
		Tokens:     1000,
	})
	if err != nil {
		t.Fatal(err)
	}

	ix := tx.Instructions[0]
	if ix.ProgramID != sale.ProgramID {
		t.Errorf("program: got %s", ix.ProgramID)
	}
	if len(ix.Accounts) != 5 {
		t.Fatalf("accounts: got %d, want 5", len(ix.Accounts))
	}
	if ix.Accounts[0].Pubkey != admin || !ix.Accounts[0].IsSigner || !ix.Accounts[0].IsWritable {
		t.Errorf("admin meta: %+v", ix.Accounts[0])
	}
	if ix.Accounts[2].Pubkey != mint || ix.Accounts[2].IsWritable {
		t.Errorf("mint meta: %+v", ix.Accounts[2])
	}
	if ix.Accounts[4].Pubkey != adminToken || !ix.Accounts[4].IsWritable {
		t.Errorf("admin token meta: %+v", ix.Accounts[4])
	}
	if ix.Data[0] != sale.InstructionInitialize {
		t.Errorf("discriminant: got %d", ix.Data[0])
	}
}

func TestNewTopUpTransactionAdminNotWritable(t *testing.T) {
	tx, err := NewTopUpTransaction(TopUpParams{
		Admin:      testPubkey(1),
		Mint:       testPubkey(2),
		AdminToken: testPubkey(3),
		Tokens:     500,
	})
	if err != nil {
		t.Fatal(err)
	}

	ix := tx.Instructions[0]
	// The admin signs a topup but no lamports move from their account.
	if !ix.Accounts[0].IsSigner || ix.Accounts[0].IsWritable {
		t.Errorf("admin meta: %+v", ix.Accounts[0])
	}
	if ix.Data[0] != sale.InstructionTopUp {
		t.Errorf("discriminant: got %d", ix.Data[0])
	}
}

func TestNewPurchaseTransactionCarriesBump(t *testing.T) {
	mint := testPubkey(2)
	tx, err := NewPurchaseTransaction(PurchaseParams{
		Buyer:       testPubkey(1),
		Mint:        mint,
		BuyerToken:  testPubkey(3),
		PaymentDest: testPubkey(4),
		Tokens:      10,
	})
	if err != nil {
		t.Fatal(err)
	}

	ix := tx.Instructions[0]
	if len(ix.Accounts) != 6 {
		t.Fatalf("accounts: got %d, want 6", len(ix.Accounts))
	}
	if ix.Data[0] != sale.InstructionPurchase {
		t.Fatalf("discriminant: got %d", ix.Data[0])
	}

	addrs, err := DeriveSaleAddresses(mint)
	if err != nil {
		t.Fatal(err)
	}
	// Instruction data is discriminant, then the borsh args: bump first.
	if ix.Data[1] != addrs.CustodyBump {
		t.Errorf("embedded bump: got %d, want %d", ix.Data[1], addrs.CustodyBump)
	}
	if ix.Accounts[3].Pubkey != addrs.Custody {
		t.Errorf("custody account: got %s, want %s", ix.Accounts[3].Pubkey, addrs.Custody)
	}
}
