package token

import (
	"errors"
	"testing"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/accounts"
	"github.com/fortiblox/x1-tokensale/pkg/runtime"
)

func testPubkey(b byte) types.Pubkey {
	var p types.Pubkey
	p[0] = b
	return p
}

type env struct {
	engine *runtime.Engine
	db     *accounts.MemoryDB
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := accounts.NewMemoryDB()
	t.Cleanup(func() { db.Close() })
	engine := runtime.NewEngine(db)
	engine.Register(ProgramID, New())
	return &env{engine: engine, db: db}
}

func (e *env) execute(t *testing.T, metas []runtime.AccountMeta, data []byte) error {
	t.Helper()
	_, err := e.engine.Execute(&runtime.Transaction{
		Instructions: []runtime.Instruction{{ProgramID: ProgramID, Accounts: metas, Data: data}},
	})
	return err
}

// newRawAccount seeds an allocated, token-program-owned account.
func (e *env) newRawAccount(t *testing.T, key types.Pubkey, size int) {
	t.Helper()
	err := e.db.SetAccount(key, &accounts.Account{
		Lamports: 1_000_000,
		Data:     make([]byte, size),
		Owner:    ProgramID,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (e *env) initMint(t *testing.T, mint, authority types.Pubkey, decimals uint8) {
	t.Helper()
	e.newRawAccount(t, mint, MintLen)
	metas := []runtime.AccountMeta{{Pubkey: mint, IsWritable: true}}
	if err := e.execute(t, metas, EncodeInitializeMint(authority, decimals)); err != nil {
		t.Fatalf("initialize mint: %v", err)
	}
}

func (e *env) initAccount(t *testing.T, account, mint, owner types.Pubkey) {
	t.Helper()
	e.newRawAccount(t, account, AccountLen)
	metas := []runtime.AccountMeta{
		{Pubkey: account, IsWritable: true},
		{Pubkey: mint},
		{Pubkey: owner},
	}
	if err := e.execute(t, metas, EncodeInitializeAccount()); err != nil {
		t.Fatalf("initialize account: %v", err)
	}
}

func (e *env) mintTo(t *testing.T, mint, dest, authority types.Pubkey, amount uint64) error {
	t.Helper()
	metas := []runtime.AccountMeta{
		{Pubkey: mint, IsWritable: true},
		{Pubkey: dest, IsWritable: true},
		{Pubkey: authority, IsSigner: true},
	}
	return e.execute(t, metas, EncodeMintTo(amount))
}

func (e *env) balance(t *testing.T, account types.Pubkey) uint64 {
	t.Helper()
	stored, err := e.db.GetAccount(account)
	if err != nil {
		t.Fatal(err)
	}
	ta, err := DeserializeTokenAccount(stored.Data)
	if err != nil {
		t.Fatal(err)
	}
	return ta.Amount
}

func TestMintStateRoundTrip(t *testing.T) {
	m := Mint{Authority: testPubkey(1), Supply: 999, Decimals: 9, Initialized: true}
	decoded, err := DeserializeMint(m.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if *decoded != m {
		t.Errorf("round trip mismatch: %+v vs %+v", *decoded, m)
	}
}

func TestTokenAccountStateRoundTrip(t *testing.T) {
	a := TokenAccount{Mint: testPubkey(1), Owner: testPubkey(2), Amount: 77, Initialized: true}
	decoded, err := DeserializeTokenAccount(a.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if *decoded != a {
		t.Errorf("round trip mismatch: %+v vs %+v", *decoded, a)
	}
}

func TestInitializeMint(t *testing.T) {
	e := newEnv(t)
	mint, authority := testPubkey(1), testPubkey(2)
	e.initMint(t, mint, authority, 9)

	stored, _ := e.db.GetAccount(mint)
	m, err := DeserializeMint(stored.Data)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Initialized || m.Authority != authority || m.Decimals != 9 || m.Supply != 0 {
		t.Errorf("mint state: %+v", m)
	}
}

func TestInitializeMintTwiceFails(t *testing.T) {
	e := newEnv(t)
	mint, authority := testPubkey(1), testPubkey(2)
	e.initMint(t, mint, authority, 9)

	metas := []runtime.AccountMeta{{Pubkey: mint, IsWritable: true}}
	err := e.execute(t, metas, EncodeInitializeMint(authority, 9))
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestMintToAndTransfer(t *testing.T) {
	e := newEnv(t)
	mint, authority := testPubkey(1), testPubkey(2)
	alice, bob := testPubkey(3), testPubkey(4)
	aliceToken, bobToken := testPubkey(5), testPubkey(6)

	e.initMint(t, mint, authority, 9)
	e.initAccount(t, aliceToken, mint, alice)
	e.initAccount(t, bobToken, mint, bob)

	if err := e.mintTo(t, mint, aliceToken, authority, 1000); err != nil {
		t.Fatalf("mint to: %v", err)
	}
	if got := e.balance(t, aliceToken); got != 1000 {
		t.Errorf("alice balance after mint: %d", got)
	}

	metas := []runtime.AccountMeta{
		{Pubkey: aliceToken, IsWritable: true},
		{Pubkey: bobToken, IsWritable: true},
		{Pubkey: alice, IsSigner: true},
	}
	if err := e.execute(t, metas, EncodeTransfer(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if got := e.balance(t, aliceToken); got != 600 {
		t.Errorf("alice balance: got %d, want 600", got)
	}
	if got := e.balance(t, bobToken); got != 400 {
		t.Errorf("bob balance: got %d, want 400", got)
	}

	// Supply tracks minted amount.
	stored, _ := e.db.GetAccount(mint)
	m, _ := DeserializeMint(stored.Data)
	if m.Supply != 1000 {
		t.Errorf("supply: got %d, want 1000", m.Supply)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	e := newEnv(t)
	mint, authority := testPubkey(1), testPubkey(2)
	alice, bob := testPubkey(3), testPubkey(4)
	aliceToken, bobToken := testPubkey(5), testPubkey(6)

	e.initMint(t, mint, authority, 9)
	e.initAccount(t, aliceToken, mint, alice)
	e.initAccount(t, bobToken, mint, bob)
	if err := e.mintTo(t, mint, aliceToken, authority, 10); err != nil {
		t.Fatal(err)
	}

	metas := []runtime.AccountMeta{
		{Pubkey: aliceToken, IsWritable: true},
		{Pubkey: bobToken, IsWritable: true},
		{Pubkey: alice, IsSigner: true},
	}
	if err := e.execute(t, metas, EncodeTransfer(11)); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := e.balance(t, aliceToken); got != 10 {
		t.Errorf("failed transfer changed the balance: %d", got)
	}
}

func TestTransferWrongOwner(t *testing.T) {
	e := newEnv(t)
	mint, authority := testPubkey(1), testPubkey(2)
	alice, mallory := testPubkey(3), testPubkey(7)
	aliceToken, bobToken := testPubkey(5), testPubkey(6)

	e.initMint(t, mint, authority, 9)
	e.initAccount(t, aliceToken, mint, alice)
	e.initAccount(t, bobToken, mint, testPubkey(4))
	if err := e.mintTo(t, mint, aliceToken, authority, 10); err != nil {
		t.Fatal(err)
	}

	metas := []runtime.AccountMeta{
		{Pubkey: aliceToken, IsWritable: true},
		{Pubkey: bobToken, IsWritable: true},
		{Pubkey: mallory, IsSigner: true}, // signs, but does not own the source
	}
	if err := e.execute(t, metas, EncodeTransfer(5)); !errors.Is(err, ErrOwnerMismatch) {
		t.Errorf("expected ErrOwnerMismatch, got %v", err)
	}
}

func TestTransferMissingSignature(t *testing.T) {
	e := newEnv(t)
	mint, authority := testPubkey(1), testPubkey(2)
	alice := testPubkey(3)
	aliceToken, bobToken := testPubkey(5), testPubkey(6)

	e.initMint(t, mint, authority, 9)
	e.initAccount(t, aliceToken, mint, alice)
	e.initAccount(t, bobToken, mint, testPubkey(4))
	if err := e.mintTo(t, mint, aliceToken, authority, 10); err != nil {
		t.Fatal(err)
	}

	metas := []runtime.AccountMeta{
		{Pubkey: aliceToken, IsWritable: true},
		{Pubkey: bobToken, IsWritable: true},
		{Pubkey: alice}, // owner named but did not sign
	}
	if err := e.execute(t, metas, EncodeTransfer(5)); !errors.Is(err, ErrMissingRequiredSignature) {
		t.Errorf("expected ErrMissingRequiredSignature, got %v", err)
	}
}

func TestTransferMintMismatch(t *testing.T) {
	e := newEnv(t)
	mintA, mintB, authority := testPubkey(1), testPubkey(8), testPubkey(2)
	alice := testPubkey(3)
	tokenA, tokenB := testPubkey(5), testPubkey(6)

	e.initMint(t, mintA, authority, 9)
	e.initMint(t, mintB, authority, 9)
	e.initAccount(t, tokenA, mintA, alice)
	e.initAccount(t, tokenB, mintB, alice)
	if err := e.mintTo(t, mintA, tokenA, authority, 10); err != nil {
		t.Fatal(err)
	}

	metas := []runtime.AccountMeta{
		{Pubkey: tokenA, IsWritable: true},
		{Pubkey: tokenB, IsWritable: true},
		{Pubkey: alice, IsSigner: true},
	}
	if err := e.execute(t, metas, EncodeTransfer(5)); !errors.Is(err, ErrMintMismatch) {
		t.Errorf("expected ErrMintMismatch, got %v", err)
	}
}

func TestMintToWrongAuthority(t *testing.T) {
	e := newEnv(t)
	mint, authority, impostor := testPubkey(1), testPubkey(2), testPubkey(9)
	aliceToken := testPubkey(5)

	e.initMint(t, mint, authority, 9)
	e.initAccount(t, aliceToken, mint, testPubkey(3))

	if err := e.mintTo(t, mint, aliceToken, impostor, 10); !errors.Is(err, ErrOwnerMismatch) {
		t.Errorf("expected ErrOwnerMismatch, got %v", err)
	}
}
