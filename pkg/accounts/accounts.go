// Package accounts implements the accounts database backing the sale runtime.
//
// Every sale instance lives entirely in accounts: the program-owned sale
// ledger record, the custody token account, buyer token accounts and plain
// lamport accounts. The database stores only current state; history is the
// receipt log's concern.
//
// Two implementations are provided: MemoryDB for tests and BadgerDB for
// durable storage. Both commit multi-account updates atomically through
// ApplyBatch, which is the all-or-nothing primitive the execution engine
// relies on.
package accounts

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/fortiblox/x1-tokensale/internal/types"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCorrupted is returned when data corruption is detected.
	ErrCorrupted = errors.New("data corrupted")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database closed")

	// ErrInvalidData is returned when account data is malformed.
	ErrInvalidData = errors.New("invalid account data")
)

// MaxAccountDataSize bounds stored account data.
const MaxAccountDataSize = 10 * 1024 * 1024 // 10 MB

// Account represents a single account in the state.
type Account struct {
	// Lamports is the account balance in lamports (1e9 lamports per native unit).
	Lamports uint64

	// Data is the account data. The owning program defines its layout.
	Data []byte

	// Owner is the program that owns this account.
	// Only the owner program may modify the account data.
	Owner types.Pubkey

	// Executable indicates if this is a program account.
	Executable bool

	// RentEpoch is the epoch at which rent was last collected.
	// Rent-exempt accounts carry the maximum value.
	RentEpoch uint64
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	dataCopy := make([]byte, len(a.Data))
	copy(dataCopy, a.Data)
	return &Account{
		Lamports:   a.Lamports,
		Data:       dataCopy,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
}

// IsZero returns true if the account has no lamports and no data.
// Zero accounts are deleted from storage.
func (a *Account) IsZero() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// DataLen returns the length of account data.
func (a *Account) DataLen() int {
	return len(a.Data)
}

// Size returns the total serialized size of the account.
func (a *Account) Size() int {
	// 8 (lamports) + 8 (data_len) + data + 32 (owner) + 1 (executable) + 8 (rent_epoch)
	return 8 + 8 + len(a.Data) + 32 + 1 + 8
}

// Serialize encodes the account to bytes for storage.
// Format: lamports (8) + data_len (8) + data + owner (32) + executable (1) + rent_epoch (8)
func (a *Account) Serialize() []byte {
	buf := make([]byte, a.Size())
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], a.Lamports)
	offset += 8

	binary.LittleEndian.PutUint64(buf[offset:], uint64(len(a.Data)))
	offset += 8

	copy(buf[offset:], a.Data)
	offset += len(a.Data)

	copy(buf[offset:], a.Owner[:])
	offset += 32

	if a.Executable {
		buf[offset] = 1
	}
	offset++

	binary.LittleEndian.PutUint64(buf[offset:], a.RentEpoch)

	return buf
}

// DeserializeAccount decodes an account from bytes.
func DeserializeAccount(data []byte) (*Account, error) {
	if len(data) < 57 { // Minimum: 8 + 8 + 0 + 32 + 1 + 8
		return nil, ErrInvalidData
	}

	offset := 0

	lamports := binary.LittleEndian.Uint64(data[offset:])
	offset += 8

	dataLen := binary.LittleEndian.Uint64(data[offset:])
	offset += 8

	if dataLen > MaxAccountDataSize {
		return nil, ErrInvalidData
	}
	if uint64(len(data)-offset) < dataLen+41 { // 32 (owner) + 1 (executable) + 8 (rent_epoch)
		return nil, ErrInvalidData
	}

	accountData := make([]byte, dataLen)
	copy(accountData, data[offset:offset+int(dataLen)])
	offset += int(dataLen)

	var owner types.Pubkey
	copy(owner[:], data[offset:offset+32])
	offset += 32

	executable := data[offset] != 0
	offset++

	rentEpoch := binary.LittleEndian.Uint64(data[offset:])

	return &Account{
		Lamports:   lamports,
		Data:       accountData,
		Owner:      owner,
		Executable: executable,
		RentEpoch:  rentEpoch,
	}, nil
}

// Update pairs a pubkey with its new account state for a batch commit.
// A nil Account deletes the entry.
type Update struct {
	Pubkey  types.Pubkey
	Account *Account
}

// DB is the accounts database interface.
// Implementations must be safe for concurrent read access.
type DB interface {
	// GetAccount retrieves an account by public key.
	// Returns ErrAccountNotFound if the account doesn't exist.
	GetAccount(pubkey types.Pubkey) (*Account, error)

	// SetAccount stores an account.
	// If the account is zero (no lamports and no data), it is deleted.
	SetAccount(pubkey types.Pubkey, account *Account) error

	// DeleteAccount removes an account.
	// Returns nil if the account doesn't exist.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount checks if an account exists.
	HasAccount(pubkey types.Pubkey) (bool, error)

	// ApplyBatch atomically applies a set of account updates and advances
	// the sequence counter. Either every update commits or none does.
	ApplyBatch(updates []Update) error

	// Sequence returns the number of batches committed so far.
	Sequence() uint64

	// AccountsCount returns the total number of accounts.
	AccountsCount() (uint64, error)

	// Close closes the database.
	Close() error
}

// MemoryDB is an in-memory implementation of DB for testing.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*Account
	sequence uint64
	closed   bool
}

// NewMemoryDB creates a new in-memory accounts database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*Account),
	}
}

// GetAccount retrieves an account.
func (m *MemoryDB) GetAccount(pubkey types.Pubkey) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	acc, ok := m.accounts[pubkey]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// SetAccount stores an account.
func (m *MemoryDB) SetAccount(pubkey types.Pubkey, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if account.IsZero() {
		delete(m.accounts, pubkey)
		return nil
	}
	m.accounts[pubkey] = account.Clone()
	return nil
}

// DeleteAccount removes an account.
func (m *MemoryDB) DeleteAccount(pubkey types.Pubkey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.accounts, pubkey)
	return nil
}

// HasAccount checks if an account exists.
func (m *MemoryDB) HasAccount(pubkey types.Pubkey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.accounts[pubkey]
	return ok, nil
}

// ApplyBatch applies all updates and bumps the sequence counter.
// The in-memory map makes this trivially atomic under the engine's locks.
func (m *MemoryDB) ApplyBatch(updates []Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, u := range updates {
		if u.Account == nil || u.Account.IsZero() {
			delete(m.accounts, u.Pubkey)
			continue
		}
		m.accounts[u.Pubkey] = u.Account.Clone()
	}
	m.sequence++
	return nil
}

// Sequence returns the number of committed batches.
func (m *MemoryDB) Sequence() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sequence
}

// AccountsCount returns the number of accounts.
func (m *MemoryDB) AccountsCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return uint64(len(m.accounts)), nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.accounts = nil
	return nil
}

// GetAllAccounts returns all accounts (for testing/debugging).
func (m *MemoryDB) GetAllAccounts() map[types.Pubkey]*Account {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[types.Pubkey]*Account, len(m.accounts))
	for k, v := range m.accounts {
		result[k] = v.Clone()
	}
	return result
}
