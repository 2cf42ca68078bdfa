package receipts

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/runtime"
	"github.com/fortiblox/x1-tokensale/pkg/sale"
)

func testPubkey(b byte) types.Pubkey {
	var p types.Pubkey
	p[0] = b
	return p
}

func openTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipts.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func appendReceipt(t *testing.T, l *Log, kind string, mint types.Pubkey, tokens uint64) *Receipt {
	t.Helper()
	r := &Receipt{
		Kind:      kind,
		Mint:      mint,
		Actor:     testPubkey(99),
		Tokens:    tokens,
		BaseUnits: tokens * 1_000_000_000,
		Time:      time.Now().UTC(),
	}
	if err := l.Append(r); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return r
}

func TestAppendAssignsChain(t *testing.T) {
	l, _ := openTestLog(t)
	mint := testPubkey(1)

	r1 := appendReceipt(t, l, KindInitialize, mint, 1000)
	r2 := appendReceipt(t, l, KindPurchase, mint, 10)

	if r1.Seq != 1 || r2.Seq != 2 {
		t.Errorf("sequences: got %d, %d", r1.Seq, r2.Seq)
	}
	if !r1.PrevHash.IsZero() {
		t.Error("first receipt should chain from the zero hash")
	}
	if r2.PrevHash != r1.Hash {
		t.Error("second receipt does not chain to the first")
	}
	if r1.Hash != r1.ComputeHash() || r2.Hash != r2.ComputeHash() {
		t.Error("stored hash does not match recomputation")
	}
	if l.LastSeq() != 2 {
		t.Errorf("LastSeq: got %d, want 2", l.LastSeq())
	}
}

func TestGet(t *testing.T) {
	l, _ := openTestLog(t)
	mint := testPubkey(1)
	want := appendReceipt(t, l, KindTopUp, mint, 500)

	got, err := l.Get(want.Seq)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != KindTopUp || got.Tokens != 500 || got.Mint != mint || got.Hash != want.Hash {
		t.Errorf("Get returned %+v", got)
	}

	if _, err := l.Get(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecent(t *testing.T) {
	l, _ := openTestLog(t)
	mint := testPubkey(1)
	for i := uint64(1); i <= 5; i++ {
		appendReceipt(t, l, KindPurchase, mint, i)
	}

	out, err := l.Recent(3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("Recent: got %d receipts, want 3", len(out))
	}
	// Newest first.
	if out[0].Seq != 5 || out[1].Seq != 4 || out[2].Seq != 3 {
		t.Errorf("order: got %d, %d, %d", out[0].Seq, out[1].Seq, out[2].Seq)
	}

	if out, _ := l.Recent(0); out != nil {
		t.Error("Recent(0) should return nothing")
	}
}

func TestByMint(t *testing.T) {
	l, _ := openTestLog(t)
	mintA, mintB := testPubkey(1), testPubkey(2)

	appendReceipt(t, l, KindInitialize, mintA, 100) // seq 1
	appendReceipt(t, l, KindInitialize, mintB, 200) // seq 2
	appendReceipt(t, l, KindPurchase, mintA, 5)     // seq 3
	appendReceipt(t, l, KindPurchase, mintB, 7)     // seq 4

	out, err := l.ByMint(mintA, 10)
	if err != nil {
		t.Fatalf("ByMint: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("ByMint: got %d receipts, want 2", len(out))
	}
	if out[0].Seq != 3 || out[1].Seq != 1 {
		t.Errorf("order: got %d, %d", out[0].Seq, out[1].Seq)
	}
	for _, r := range out {
		if r.Mint != mintA {
			t.Errorf("foreign mint in result: %s", r.Mint)
		}
	}

	if out, err := l.ByMint(testPubkey(9), 10); err != nil || len(out) != 0 {
		t.Errorf("unknown mint: got (%d receipts, %v)", len(out), err)
	}
}

func TestVerify(t *testing.T) {
	l, _ := openTestLog(t)
	mint := testPubkey(1)
	for i := uint64(1); i <= 10; i++ {
		appendReceipt(t, l, KindPurchase, mint, i)
	}
	if err := l.Verify(); err != nil {
		t.Errorf("Verify on intact chain: %v", err)
	}
}

func TestReopenResumesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.db")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	mint := testPubkey(1)
	appendReceipt(t, l, KindInitialize, mint, 1000)
	last := appendReceipt(t, l, KindPurchase, mint, 10)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	if l2.LastSeq() != 2 {
		t.Errorf("LastSeq after reopen: got %d, want 2", l2.LastSeq())
	}
	r3 := appendReceipt(t, l2, KindTopUp, mint, 500)
	if r3.Seq != 3 {
		t.Errorf("seq after reopen: got %d, want 3", r3.Seq)
	}
	if r3.PrevHash != last.Hash {
		t.Error("receipt after reopen does not chain to the persisted tail")
	}
	if err := l2.Verify(); err != nil {
		t.Errorf("Verify after reopen: %v", err)
	}
}

func TestReceiptFromInstruction(t *testing.T) {
	cfg := sale.DefaultConfig()
	now := time.Now().UTC()
	admin, mint := testPubkey(1), testPubkey(3)

	metas := []runtime.AccountMeta{
		{Pubkey: admin}, {Pubkey: testPubkey(2)}, {Pubkey: mint},
	}

	t.Run("purchase", func(t *testing.T) {
		data, err := sale.EncodePurchase(sale.PurchaseArgs{CustodyBump: 254, Amount: 10})
		if err != nil {
			t.Fatal(err)
		}
		ix := &runtime.Instruction{ProgramID: sale.ProgramID, Accounts: metas, Data: data}
		r, ok := receiptFromInstruction(ix, cfg, now)
		if !ok {
			t.Fatal("expected a receipt")
		}
		if r.Kind != KindPurchase || r.Tokens != 10 || r.Actor != admin || r.Mint != mint {
			t.Errorf("receipt: %+v", r)
		}
		if r.Lamports != 10*cfg.PriceLamports {
			t.Errorf("lamports: got %d, want %d", r.Lamports, 10*cfg.PriceLamports)
		}
		if r.BaseUnits != 10*cfg.BaseUnitsPerToken {
			t.Errorf("base units: got %d, want %d", r.BaseUnits, 10*cfg.BaseUnitsPerToken)
		}
	})

	t.Run("topup carries no payment", func(t *testing.T) {
		data, err := sale.EncodeTopUp(sale.TopUpArgs{Amount: 500})
		if err != nil {
			t.Fatal(err)
		}
		ix := &runtime.Instruction{ProgramID: sale.ProgramID, Accounts: metas, Data: data}
		r, ok := receiptFromInstruction(ix, cfg, now)
		if !ok {
			t.Fatal("expected a receipt")
		}
		if r.Kind != KindTopUp || r.Tokens != 500 || r.Lamports != 0 {
			t.Errorf("receipt: %+v", r)
		}
	})

	t.Run("garbage data yields nothing", func(t *testing.T) {
		ix := &runtime.Instruction{ProgramID: sale.ProgramID, Accounts: metas, Data: []byte{0xFF}}
		if _, ok := receiptFromInstruction(ix, cfg, now); ok {
			t.Error("unknown discriminant should not produce a receipt")
		}
		ix.Data = nil
		if _, ok := receiptFromInstruction(ix, cfg, now); ok {
			t.Error("empty data should not produce a receipt")
		}
	})
}

func TestHookAppendsAndNotifies(t *testing.T) {
	l, _ := openTestLog(t)
	cfg := sale.DefaultConfig()

	var observed []*Receipt
	hook := Hook(l, cfg, func(r *Receipt) { observed = append(observed, r) })

	data, err := sale.EncodeInitialize(sale.InitializeArgs{Amount: 1000})
	if err != nil {
		t.Fatal(err)
	}
	tx := &runtime.Transaction{
		Instructions: []runtime.Instruction{{
			ProgramID: sale.ProgramID,
			Accounts: []runtime.AccountMeta{
				{Pubkey: testPubkey(1)}, {Pubkey: testPubkey(7)}, {Pubkey: testPubkey(3)},
			},
			Data: data,
		}},
	}
	hook(tx, &runtime.Result{})

	if l.LastSeq() != 1 {
		t.Fatalf("LastSeq: got %d, want 1", l.LastSeq())
	}
	if len(observed) != 1 {
		t.Fatalf("observers: got %d calls, want 1", len(observed))
	}
	if observed[0].Kind != KindInitialize || observed[0].Seq != 1 {
		t.Errorf("observed receipt: %+v", observed[0])
	}

	// Non-sale instructions produce nothing.
	other := &runtime.Transaction{
		Instructions: []runtime.Instruction{{ProgramID: testPubkey(8), Data: []byte{0}}},
	}
	hook(other, &runtime.Result{})
	if l.LastSeq() != 1 {
		t.Errorf("non-sale instruction appended a receipt")
	}
}
