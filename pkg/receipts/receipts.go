// Package receipts keeps an append-only log of settled sale operations.
//
// Every committed sale instruction produces one receipt. Receipts are hash
// chained: each one commits to its predecessor's hash, so any rewrite of
// history is detectable by re-walking the chain.
package receipts

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"time"

	"github.com/zeebo/blake3"

	"github.com/fortiblox/x1-tokensale/internal/types"
)

// Receipt kinds.
const (
	KindInitialize = "initialize"
	KindTopUp      = "topup"
	KindPurchase   = "purchase"
)

// Log errors.
var (
	ErrNotFound    = errors.New("receipt not found")
	ErrChainBroken = errors.New("receipt chain broken")
)

// Receipt records one settled sale operation.
type Receipt struct {
	// Seq is the position in the log, starting at 1.
	Seq uint64

	// Kind is one of the Kind constants.
	Kind string

	// Mint identifies the sale.
	Mint types.Pubkey

	// Actor is the admin (initialize, topup) or the buyer (purchase).
	Actor types.Pubkey

	// Tokens is the whole-token amount of the operation.
	Tokens uint64

	// BaseUnits is Tokens scaled to ledger base units.
	BaseUnits uint64

	// Lamports is the payment moved, zero for deposits.
	Lamports uint64

	// Time is the local settlement time.
	Time time.Time

	// PrevHash chains this receipt to its predecessor; zero for the first.
	PrevHash types.Hash

	// Hash covers every field above.
	Hash types.Hash
}

// ComputeHash returns the chain hash for the receipt, excluding the Hash
// field itself.
func (r *Receipt) ComputeHash() types.Hash {
	h := blake3.New()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], r.Seq)
	h.Write(buf[:])
	h.Write([]byte(r.Kind))
	h.Write(r.Mint[:])
	h.Write(r.Actor[:])
	binary.LittleEndian.PutUint64(buf[:], r.Tokens)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], r.BaseUnits)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], r.Lamports)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(r.Time.UnixNano()))
	h.Write(buf[:])
	h.Write(r.PrevHash[:])

	var out types.Hash
	h.Sum(out[:0])
	return out
}

func encodeReceipt(r *Receipt) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeReceipt(raw []byte) (*Receipt, error) {
	var r Receipt
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
