package receipts

import (
	"encoding/binary"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/x1-tokensale/internal/types"
)

// Bucket layout.
var (
	bucketReceipts = []byte("receipts") // seq (8 bytes BE) -> gob receipt
	bucketByMint   = []byte("by_mint")  // mint (32) + seq (8 BE) -> seq (8 BE)
	bucketMeta     = []byte("meta")
)

var (
	metaLastSeq  = []byte("last_seq")
	metaLastHash = []byte("last_hash")
)

// Log is the bbolt-backed receipt store.
type Log struct {
	db *bolt.DB

	mu       sync.Mutex
	lastSeq  uint64
	lastHash types.Hash
}

// Open opens or creates a receipt log at path.
func Open(path string) (*Log, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open receipt log: %w", err)
	}

	l := &Log{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketReceipts, bucketByMint, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if raw := meta.Get(metaLastSeq); raw != nil {
			l.lastSeq = binary.BigEndian.Uint64(raw)
		}
		if raw := meta.Get(metaLastHash); len(raw) == 32 {
			copy(l.lastHash[:], raw)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init receipt log: %w", err)
	}
	return l, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append chains and persists a receipt. The Seq, PrevHash and Hash fields
// are assigned here; callers fill in everything else.
func (l *Log) Append(r *Receipt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r.Seq = l.lastSeq + 1
	r.PrevHash = l.lastHash
	r.Hash = r.ComputeHash()

	raw, err := encodeReceipt(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	seqKey := make([]byte, 8)
	binary.BigEndian.PutUint64(seqKey, r.Seq)

	mintKey := make([]byte, 40)
	copy(mintKey[:32], r.Mint[:])
	copy(mintKey[32:], seqKey)

	err = l.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketReceipts).Put(seqKey, raw); err != nil {
			return err
		}
		if err := tx.Bucket(bucketByMint).Put(mintKey, seqKey); err != nil {
			return err
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(metaLastSeq, seqKey); err != nil {
			return err
		}
		return meta.Put(metaLastHash, r.Hash[:])
	})
	if err != nil {
		return fmt.Errorf("append receipt: %w", err)
	}

	l.lastSeq = r.Seq
	l.lastHash = r.Hash
	return nil
}

// Get returns the receipt at seq.
func (l *Log) Get(seq uint64) (*Receipt, error) {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)

	var raw []byte
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketReceipts).Get(key)
		if v == nil {
			return ErrNotFound
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodeReceipt(raw)
}

// LastSeq returns the sequence of the newest receipt, zero when empty.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Recent returns up to limit receipts, newest first.
func (l *Log) Recent(limit int) ([]*Receipt, error) {
	if limit <= 0 {
		return nil, nil
	}

	var out []*Receipt
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketReceipts).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			r, err := decodeReceipt(v)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ByMint returns up to limit receipts for a mint, newest first.
func (l *Log) ByMint(mint types.Pubkey, limit int) ([]*Receipt, error) {
	if limit <= 0 {
		return nil, nil
	}

	var out []*Receipt
	err := l.db.View(func(tx *bolt.Tx) error {
		receipts := tx.Bucket(bucketReceipts)
		c := tx.Bucket(bucketByMint).Cursor()

		// Seek past the last key of this mint's range, then walk back.
		var upper [40]byte
		copy(upper[:32], mint[:])
		for i := 32; i < 40; i++ {
			upper[i] = 0xFF
		}

		k, v := c.Seek(upper[:])
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for ; k != nil && len(out) < limit; k, v = c.Prev() {
			if len(k) != 40 || !equalPrefix(k, mint[:]) {
				break
			}
			raw := receipts.Get(v)
			if raw == nil {
				return ErrChainBroken
			}
			r, err := decodeReceipt(raw)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Verify re-walks the whole chain and checks every link.
func (l *Log) Verify() error {
	return l.db.View(func(tx *bolt.Tx) error {
		var prev types.Hash
		var expectSeq uint64 = 1

		c := tx.Bucket(bucketReceipts).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			r, err := decodeReceipt(v)
			if err != nil {
				return err
			}
			if r.Seq != expectSeq {
				return fmt.Errorf("%w: expected seq %d, got %d", ErrChainBroken, expectSeq, r.Seq)
			}
			if r.PrevHash != prev {
				return fmt.Errorf("%w: bad prev hash at seq %d", ErrChainBroken, r.Seq)
			}
			if r.ComputeHash() != r.Hash {
				return fmt.Errorf("%w: bad hash at seq %d", ErrChainBroken, r.Seq)
			}
			prev = r.Hash
			expectSeq++
		}
		return nil
	})
}

func equalPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
