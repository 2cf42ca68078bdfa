package sale_test

import (
	"errors"
	"testing"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/accounts"
	"github.com/fortiblox/x1-tokensale/pkg/client"
	"github.com/fortiblox/x1-tokensale/pkg/programs/system"
	"github.com/fortiblox/x1-tokensale/pkg/programs/token"
	"github.com/fortiblox/x1-tokensale/pkg/runtime"
	"github.com/fortiblox/x1-tokensale/pkg/sale"
)

func testPubkey(b byte) types.Pubkey {
	var p types.Pubkey
	p[0] = b
	return p
}

// saleEnv is a full in-process ledger with the three programs registered
// and a funded admin, buyer, mint, and token accounts.
type saleEnv struct {
	engine *runtime.Engine
	db     *accounts.MemoryDB
	cfg    sale.Config

	admin      types.Pubkey
	buyer      types.Pubkey
	mint       types.Pubkey
	adminToken types.Pubkey
	buyerToken types.Pubkey
}

func newSaleEnv(t *testing.T) *saleEnv {
	t.Helper()
	db := accounts.NewMemoryDB()
	t.Cleanup(func() { db.Close() })

	processor := sale.New(sale.Config{})
	engine := runtime.NewEngine(db)
	engine.Register(system.ProgramID, system.New())
	engine.Register(token.ProgramID, token.New())
	engine.Register(sale.ProgramID, processor)

	e := &saleEnv{
		engine:     engine,
		db:         db,
		cfg:        processor.Config(),
		admin:      testPubkey(1),
		buyer:      testPubkey(2),
		mint:       testPubkey(3),
		adminToken: testPubkey(4),
		buyerToken: testPubkey(5),
	}

	e.fund(t, e.admin, 10_000_000_000)
	e.fund(t, e.buyer, 1_000_000_000)

	// Mint with nine decimals, authority held by the admin.
	e.seedTokenOwned(t, e.mint, token.MintLen)
	e.mustExecute(t,
		[]runtime.AccountMeta{{Pubkey: e.mint, IsWritable: true}},
		token.EncodeInitializeMint(e.admin, 9))

	e.seedTokenOwned(t, e.adminToken, token.AccountLen)
	e.mustExecute(t,
		[]runtime.AccountMeta{
			{Pubkey: e.adminToken, IsWritable: true},
			{Pubkey: e.mint},
			{Pubkey: e.admin},
		},
		token.EncodeInitializeAccount())

	e.seedTokenOwned(t, e.buyerToken, token.AccountLen)
	e.mustExecute(t,
		[]runtime.AccountMeta{
			{Pubkey: e.buyerToken, IsWritable: true},
			{Pubkey: e.mint},
			{Pubkey: e.buyer},
		},
		token.EncodeInitializeAccount())

	// Give the admin 10000 whole tokens of supply to work with.
	e.mustExecute(t,
		[]runtime.AccountMeta{
			{Pubkey: e.mint, IsWritable: true},
			{Pubkey: e.adminToken, IsWritable: true},
			{Pubkey: e.admin, IsSigner: true},
		},
		token.EncodeMintTo(10_000*e.cfg.BaseUnitsPerToken))

	return e
}

func (e *saleEnv) fund(t *testing.T, key types.Pubkey, lamports uint64) {
	t.Helper()
	if err := e.db.SetAccount(key, &accounts.Account{Lamports: lamports, Owner: system.ProgramID}); err != nil {
		t.Fatal(err)
	}
}

func (e *saleEnv) seedTokenOwned(t *testing.T, key types.Pubkey, size int) {
	t.Helper()
	err := e.db.SetAccount(key, &accounts.Account{
		Lamports: 1_000_000,
		Data:     make([]byte, size),
		Owner:    token.ProgramID,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (e *saleEnv) mustExecute(t *testing.T, metas []runtime.AccountMeta, data []byte) {
	t.Helper()
	_, err := e.engine.Execute(&runtime.Transaction{
		Instructions: []runtime.Instruction{{ProgramID: token.ProgramID, Accounts: metas, Data: data}},
	})
	if err != nil {
		t.Fatalf("setup instruction: %v", err)
	}
}

func (e *saleEnv) lamports(t *testing.T, key types.Pubkey) uint64 {
	t.Helper()
	acct, err := e.db.GetAccount(key)
	if err != nil {
		t.Fatalf("lamports of %s: %v", key, err)
	}
	return acct.Lamports
}

func (e *saleEnv) tokenBalance(t *testing.T, key types.Pubkey) uint64 {
	t.Helper()
	acct, err := e.db.GetAccount(key)
	if err != nil {
		t.Fatalf("token account %s: %v", key, err)
	}
	ta, err := token.DeserializeTokenAccount(acct.Data)
	if err != nil {
		t.Fatal(err)
	}
	return ta.Amount
}

func (e *saleEnv) saleState(t *testing.T) *sale.State {
	t.Helper()
	stateAddr, _, err := sale.StateAddress(e.mint)
	if err != nil {
		t.Fatal(err)
	}
	acct, err := e.db.GetAccount(stateAddr)
	if err != nil {
		t.Fatalf("state account: %v", err)
	}
	state, err := sale.DeserializeState(acct.Data)
	if err != nil {
		t.Fatalf("deserialize state: %v", err)
	}
	return state
}

func (e *saleEnv) initialize(t *testing.T, tokens uint64) error {
	t.Helper()
	tx, err := client.NewInitializeTransaction(client.InitializeParams{
		Admin:      e.admin,
		Mint:       e.mint,
		AdminToken: e.adminToken,
		Tokens:     tokens,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.engine.Execute(tx)
	return err
}

func (e *saleEnv) topUp(t *testing.T, admin, adminToken types.Pubkey, tokens uint64) error {
	t.Helper()
	tx, err := client.NewTopUpTransaction(client.TopUpParams{
		Admin:      admin,
		Mint:       e.mint,
		AdminToken: adminToken,
		Tokens:     tokens,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.engine.Execute(tx)
	return err
}

func (e *saleEnv) purchase(t *testing.T, paymentDest types.Pubkey, tokens uint64) error {
	t.Helper()
	tx, err := client.NewPurchaseTransaction(client.PurchaseParams{
		Buyer:       e.buyer,
		Mint:        e.mint,
		BuyerToken:  e.buyerToken,
		PaymentDest: paymentDest,
		Tokens:      tokens,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.engine.Execute(tx)
	return err
}

func TestSaleLifecycle(t *testing.T) {
	e := newSaleEnv(t)
	custodyAddr, _, err := sale.CustodyAddress(e.mint)
	if err != nil {
		t.Fatal(err)
	}

	// Fund the sale with 1000 tokens.
	if err := e.initialize(t, 1000); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	state := e.saleState(t)
	if state.Admin != e.admin {
		t.Errorf("recorded admin: got %s, want %s", state.Admin, e.admin)
	}
	if state.TotalTokens != 1000 || state.TokensSold != 0 {
		t.Errorf("state after initialize: total=%d sold=%d", state.TotalTokens, state.TokensSold)
	}
	if got := e.tokenBalance(t, custodyAddr); got != 1000*e.cfg.BaseUnitsPerToken {
		t.Errorf("custody balance: got %d, want %d", got, 1000*e.cfg.BaseUnitsPerToken)
	}
	if got := e.tokenBalance(t, e.adminToken); got != 9000*e.cfg.BaseUnitsPerToken {
		t.Errorf("admin token balance: got %d, want %d", got, 9000*e.cfg.BaseUnitsPerToken)
	}

	// Buy 10 tokens at the fixed price.
	buyerBefore := e.lamports(t, e.buyer)
	adminBefore := e.lamports(t, e.admin)
	if err := e.purchase(t, e.admin, 10); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	cost := 10 * e.cfg.PriceLamports
	if got := e.lamports(t, e.buyer); got != buyerBefore-cost {
		t.Errorf("buyer lamports: got %d, want %d", got, buyerBefore-cost)
	}
	if got := e.lamports(t, e.admin); got != adminBefore+cost {
		t.Errorf("admin lamports: got %d, want %d", got, adminBefore+cost)
	}
	if got := e.tokenBalance(t, e.buyerToken); got != 10*e.cfg.BaseUnitsPerToken {
		t.Errorf("buyer token balance: got %d, want %d", got, 10*e.cfg.BaseUnitsPerToken)
	}
	if got := e.tokenBalance(t, custodyAddr); got != 990*e.cfg.BaseUnitsPerToken {
		t.Errorf("custody balance: got %d, want %d", got, 990*e.cfg.BaseUnitsPerToken)
	}
	state = e.saleState(t)
	if state.TokensSold != 10 {
		t.Errorf("tokens sold: got %d, want 10", state.TokensSold)
	}

	// Top up 500 more tokens.
	if err := e.topUp(t, e.admin, e.adminToken, 500); err != nil {
		t.Fatalf("topup: %v", err)
	}
	state = e.saleState(t)
	if state.TotalTokens != 1500 || state.TokensSold != 10 {
		t.Errorf("state after topup: total=%d sold=%d", state.TotalTokens, state.TokensSold)
	}
	if got := e.tokenBalance(t, custodyAddr); got != 1490*e.cfg.BaseUnitsPerToken {
		t.Errorf("custody balance after topup: got %d, want %d", got, 1490*e.cfg.BaseUnitsPerToken)
	}

	// An overbuy fails and settles nothing.
	buyerBefore = e.lamports(t, e.buyer)
	adminBefore = e.lamports(t, e.admin)
	custodyBefore := e.tokenBalance(t, custodyAddr)
	buyerTokBefore := e.tokenBalance(t, e.buyerToken)

	if err := e.purchase(t, e.admin, 2000); !errors.Is(err, sale.ErrInsufficientSupply) {
		t.Fatalf("overbuy: expected ErrInsufficientSupply, got %v", err)
	}

	state = e.saleState(t)
	if state.TokensSold != 10 || state.TotalTokens != 1500 {
		t.Errorf("state after failed overbuy: total=%d sold=%d", state.TotalTokens, state.TokensSold)
	}
	if got := e.lamports(t, e.buyer); got != buyerBefore {
		t.Errorf("buyer lamports moved on failed purchase: got %d, want %d", got, buyerBefore)
	}
	if got := e.lamports(t, e.admin); got != adminBefore {
		t.Errorf("admin lamports moved on failed purchase: got %d, want %d", got, adminBefore)
	}
	if got := e.tokenBalance(t, custodyAddr); got != custodyBefore {
		t.Errorf("custody moved on failed purchase: got %d, want %d", got, custodyBefore)
	}
	if got := e.tokenBalance(t, e.buyerToken); got != buyerTokBefore {
		t.Errorf("buyer tokens moved on failed purchase: got %d, want %d", got, buyerTokBefore)
	}

	// The exact remainder is still purchasable.
	if err := e.purchase(t, e.admin, 1490); err != nil {
		t.Fatalf("buying the remainder: %v", err)
	}
	state = e.saleState(t)
	if state.TokensSold != 1500 {
		t.Errorf("tokens sold after buying out: got %d, want 1500", state.TokensSold)
	}
	if got := e.tokenBalance(t, custodyAddr); got != 0 {
		t.Errorf("custody after buying out: got %d, want 0", got)
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	e := newSaleEnv(t)
	if err := e.initialize(t, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := e.initialize(t, 100); !errors.Is(err, sale.ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
	if state := e.saleState(t); state.TotalTokens != 100 {
		t.Errorf("total tokens after failed reinit: %d", state.TotalTokens)
	}
}

func TestTopUpRequiresAdmin(t *testing.T) {
	e := newSaleEnv(t)
	if err := e.initialize(t, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// The buyer signs a topup from their own token account. The signature
	// is valid, the identity is not.
	if err := e.topUp(t, e.buyer, e.buyerToken, 50); !errors.Is(err, sale.ErrInvalidAdmin) {
		t.Errorf("expected ErrInvalidAdmin, got %v", err)
	}
	if state := e.saleState(t); state.TotalTokens != 100 {
		t.Errorf("total tokens changed: %d", state.TotalTokens)
	}
}

func TestPurchaseRejectsWrongPaymentDestination(t *testing.T) {
	e := newSaleEnv(t)
	if err := e.initialize(t, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	attacker := testPubkey(9)
	e.fund(t, attacker, 1)
	if err := e.purchase(t, attacker, 1); !errors.Is(err, sale.ErrInvalidAdmin) {
		t.Errorf("expected ErrInvalidAdmin, got %v", err)
	}
	if state := e.saleState(t); state.TokensSold != 0 {
		t.Errorf("tokens sold after rejected purchase: %d", state.TokensSold)
	}
}

func TestPurchaseBeforeInitialize(t *testing.T) {
	e := newSaleEnv(t)
	if err := e.purchase(t, e.admin, 1); !errors.Is(err, sale.ErrInvalidStateOwner) {
		t.Errorf("expected ErrInvalidStateOwner, got %v", err)
	}
}

func TestInitializeOverflowingDeposit(t *testing.T) {
	e := newSaleEnv(t)
	// ^uint64(0) tokens cannot be scaled into base units.
	if err := e.initialize(t, ^uint64(0)); !errors.Is(err, sale.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}

	// Nothing was created.
	stateAddr, _, err := sale.StateAddress(e.mint)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.db.GetAccount(stateAddr); !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Errorf("state account exists after failed initialize: %v", err)
	}
}

func TestTopUpOverflowingTotal(t *testing.T) {
	e := newSaleEnv(t)
	if err := e.initialize(t, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := e.topUp(t, e.admin, e.adminToken, ^uint64(0)); !errors.Is(err, sale.ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	if state := e.saleState(t); state.TotalTokens != 100 {
		t.Errorf("total tokens after failed topup: %d", state.TotalTokens)
	}
}

func TestPurchaseRejectsWrongCustodyBump(t *testing.T) {
	e := newSaleEnv(t)
	if err := e.initialize(t, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	addrs, err := client.DeriveSaleAddresses(e.mint)
	if err != nil {
		t.Fatal(err)
	}
	data, err := sale.EncodePurchase(sale.PurchaseArgs{
		CustodyBump: addrs.CustodyBump - 1,
		Amount:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.engine.Execute(&runtime.Transaction{
		Instructions: []runtime.Instruction{{
			ProgramID: sale.ProgramID,
			Accounts: []runtime.AccountMeta{
				{Pubkey: e.buyer, IsSigner: true, IsWritable: true},
				{Pubkey: addrs.State, IsWritable: true},
				{Pubkey: e.mint},
				{Pubkey: addrs.Custody, IsWritable: true},
				{Pubkey: e.buyerToken, IsWritable: true},
				{Pubkey: e.admin, IsWritable: true},
			},
			Data: data,
		}},
	})
	if !errors.Is(err, sale.ErrInvalidDerivedAddress) {
		t.Errorf("expected ErrInvalidDerivedAddress, got %v", err)
	}
}

func TestPurchaseRequiresBuyerSignature(t *testing.T) {
	e := newSaleEnv(t)
	if err := e.initialize(t, 100); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	tx, err := client.NewPurchaseTransaction(client.PurchaseParams{
		Buyer:       e.buyer,
		Mint:        e.mint,
		BuyerToken:  e.buyerToken,
		PaymentDest: e.admin,
		Tokens:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	tx.Instructions[0].Accounts[0].IsSigner = false
	if _, err := e.engine.Execute(tx); !errors.Is(err, sale.ErrMissingRequiredSignature) {
		t.Errorf("expected ErrMissingRequiredSignature, got %v", err)
	}
}

func TestCheckedMul(t *testing.T) {
	if got, err := sale.CheckedMul(3, 7); err != nil || got != 21 {
		t.Errorf("CheckedMul(3, 7): got (%d, %v)", got, err)
	}
	if got, err := sale.CheckedMul(0, ^uint64(0)); err != nil || got != 0 {
		t.Errorf("CheckedMul(0, max): got (%d, %v)", got, err)
	}
	if _, err := sale.CheckedMul(^uint64(0), 2); !errors.Is(err, sale.ErrOverflow) {
		t.Errorf("CheckedMul overflow: got %v", err)
	}
	if _, err := sale.CheckedMul(1<<32, 1<<32); !errors.Is(err, sale.ErrOverflow) {
		t.Errorf("CheckedMul(2^32, 2^32): got %v", err)
	}
}

func TestCheckedAdd(t *testing.T) {
	if got, err := sale.CheckedAdd(1, 2); err != nil || got != 3 {
		t.Errorf("CheckedAdd(1, 2): got (%d, %v)", got, err)
	}
	if got, err := sale.CheckedAdd(^uint64(0), 0); err != nil || got != ^uint64(0) {
		t.Errorf("CheckedAdd(max, 0): got (%d, %v)", got, err)
	}
	if _, err := sale.CheckedAdd(^uint64(0), 1); !errors.Is(err, sale.ErrOverflow) {
		t.Errorf("CheckedAdd overflow: got %v", err)
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := sale.State{Admin: testPubkey(1), TotalTokens: 1500, TokensSold: 10}
	raw, err := s.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != sale.StateLen {
		t.Errorf("serialized length: got %d, want %d", len(raw), sale.StateLen)
	}
	decoded, err := sale.DeserializeState(raw)
	if err != nil {
		t.Fatal(err)
	}
	if *decoded != s {
		t.Errorf("round trip mismatch: %+v vs %+v", *decoded, s)
	}
	if !decoded.Initialized() {
		t.Error("decoded state should report initialized")
	}
	var zero sale.State
	if zero.Initialized() {
		t.Error("zero state should report uninitialized")
	}
}
