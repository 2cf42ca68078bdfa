// Package accounts provides the BadgerDB-backed storage implementation.
package accounts

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/fortiblox/x1-tokensale/internal/types"
)

// Key prefixes for BadgerDB storage.
// Using prefixes allows efficient iteration over specific data types.
var (
	// prefixAccount is the prefix for account data.
	// Key format: prefixAccount + pubkey (32 bytes)
	prefixAccount = []byte{0x01}

	// prefixMeta is the prefix for metadata.
	// Key format: prefixMeta + key name
	prefixMeta = []byte{0x02}

	// metaSequence is the key for the committed batch sequence.
	metaSequence = append(prefixMeta, []byte("seq")...)

	// metaAccountsCount is the key for the accounts count.
	metaAccountsCount = append(prefixMeta, []byte("count")...)
)

// BadgerDBConfig contains configuration for BadgerDB.
type BadgerDBConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	// Setting to false improves performance but risks data loss on crash.
	SyncWrites bool

	// NumCompactors is the number of compaction workers.
	NumCompactors int

	// NumMemtables is the number of memtables.
	NumMemtables int

	// ValueLogFileSize is the size of each value log file.
	ValueLogFileSize int64

	// Logger is an optional logger. Set to nil to disable logging.
	Logger badger.Logger
}

// DefaultBadgerDBConfig returns default configuration.
func DefaultBadgerDBConfig(path string) BadgerDBConfig {
	return BadgerDBConfig{
		Path:             path,
		InMemory:         false,
		SyncWrites:       true, // settlement state, durability first
		NumCompactors:    2,
		NumMemtables:     5,
		ValueLogFileSize: 64 << 20, // 64MB
		Logger:           nil,
	}
}

// BadgerDB is a BadgerDB-backed implementation of the accounts database.
//
// Accounts are stored with the pubkey as key and the compact binary account
// encoding as value. The sequence counter and accounts count live under
// metadata keys and are cached in memory. Multi-account commits go through
// a single WriteBatch, so an operation's effects land together or not at all.
type BadgerDB struct {
	db *badger.DB

	// sequence is cached in memory for fast access
	sequence atomic.Uint64

	// accountsCount is cached in memory
	accountsCount atomic.Uint64

	// mu serializes writers
	mu sync.Mutex

	// closed indicates if the database is closed
	closed atomic.Bool
}

// NewBadgerDB creates a new BadgerDB-backed accounts database.
func NewBadgerDB(cfg BadgerDBConfig) (*BadgerDB, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumCompactors(cfg.NumCompactors).
		WithNumMemtables(cfg.NumMemtables).
		WithValueLogFileSize(cfg.ValueLogFileSize).
		WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	bdb := &BadgerDB{
		db: db,
	}

	if err := bdb.loadMetadata(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	return bdb, nil
}

// loadMetadata loads the sequence and count from disk.
func (b *BadgerDB) loadMetadata() error {
	return b.db.View(func(txn *badger.Txn) error {
		load := func(key []byte, dst *atomic.Uint64) error {
			item, err := txn.Get(key)
			if err == badger.ErrKeyNotFound {
				dst.Store(0)
				return nil
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				if len(val) >= 8 {
					dst.Store(binary.LittleEndian.Uint64(val))
				}
				return nil
			})
		}
		if err := load(metaSequence, &b.sequence); err != nil {
			return err
		}
		return load(metaAccountsCount, &b.accountsCount)
	})
}

// accountKey returns the BadgerDB key for an account.
func accountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, 1+32)
	key[0] = prefixAccount[0]
	copy(key[1:], pubkey[:])
	return key
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// GetAccount retrieves an account by public key.
func (b *BadgerDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	var account *Account

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(pubkey))
		if err == badger.ErrKeyNotFound {
			return ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			account, err = DeserializeAccount(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// SetAccount stores an account.
func (b *BadgerDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if account.IsZero() {
		return b.DeleteAccount(pubkey)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existed, err := b.hasAccount(pubkey)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(accountKey(pubkey), account.Serialize())
	})
	if err != nil {
		return err
	}

	if !existed {
		b.bumpCount(1)
	}
	return nil
}

// DeleteAccount removes an account.
func (b *BadgerDB) DeleteAccount(pubkey types.Pubkey) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existed, err := b.hasAccount(pubkey)
	if err != nil {
		return err
	}
	if !existed {
		return nil
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(accountKey(pubkey))
	})
	if err != nil {
		return err
	}

	b.bumpCount(-1)
	return nil
}

// HasAccount checks if an account exists.
func (b *BadgerDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	return b.hasAccount(pubkey)
}

func (b *BadgerDB) hasAccount(pubkey types.Pubkey) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(accountKey(pubkey))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ApplyBatch atomically applies a set of account updates inside a single
// transaction and advances the sequence counter.
func (b *BadgerDB) ApplyBatch(updates []Update) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var created, deleted int64
	for _, u := range updates {
		existed, err := b.hasAccount(u.Pubkey)
		if err != nil {
			return err
		}
		remove := u.Account == nil || u.Account.IsZero()
		if existed && remove {
			deleted++
		} else if !existed && !remove {
			created++
		}
	}

	seq := b.sequence.Load() + 1
	count := b.accountsCount.Load() + uint64(created) - uint64(deleted)

	err := b.db.Update(func(txn *badger.Txn) error {
		for _, u := range updates {
			if u.Account == nil || u.Account.IsZero() {
				if err := txn.Delete(accountKey(u.Pubkey)); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(accountKey(u.Pubkey), u.Account.Serialize()); err != nil {
				return err
			}
		}
		if err := txn.Set(metaSequence, encodeUint64(seq)); err != nil {
			return err
		}
		return txn.Set(metaAccountsCount, encodeUint64(count))
	})
	if err != nil {
		return err
	}

	b.sequence.Store(seq)
	b.accountsCount.Store(count)
	return nil
}

// Sequence returns the number of committed batches.
func (b *BadgerDB) Sequence() uint64 {
	return b.sequence.Load()
}

// AccountsCount returns the total number of accounts.
func (b *BadgerDB) AccountsCount() (uint64, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	return b.accountsCount.Load(), nil
}

// bumpCount adjusts the cached and persisted accounts count.
func (b *BadgerDB) bumpCount(delta int64) {
	count := b.accountsCount.Load()
	if delta < 0 {
		count -= uint64(-delta)
	} else {
		count += uint64(delta)
	}
	b.accountsCount.Store(count)
	_ = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaAccountsCount, encodeUint64(count))
	})
}

// IterateAccounts calls fn for every stored account.
// Iteration stops on the first error.
func (b *BadgerDB) IterateAccounts(fn func(pubkey types.Pubkey, account *Account) error) error {
	if b.closed.Load() {
		return ErrClosed
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixAccount
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) != 33 {
				continue
			}
			var pubkey types.Pubkey
			copy(pubkey[:], key[1:])

			err := item.Value(func(val []byte) error {
				account, err := DeserializeAccount(val)
				if err != nil {
					return err
				}
				return fn(pubkey, account)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

// Verify interface compliance.
var _ DB = (*BadgerDB)(nil)
var _ DB = (*MemoryDB)(nil)
