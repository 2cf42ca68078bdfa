package token

import (
	"encoding/binary"
	"errors"

	"github.com/fortiblox/x1-tokensale/internal/types"
)

// State layout sizes.
const (
	// MintLen is the serialized size of a Mint: authority (32) +
	// supply (8) + decimals (1) + initialized (1).
	MintLen = 42

	// AccountLen is the serialized size of a TokenAccount: mint (32) +
	// owner (32) + amount (8) + initialized (1).
	AccountLen = 73
)

// State errors.
var (
	ErrInvalidAccountData = errors.New("invalid token account data")
	ErrUninitialized      = errors.New("account not initialized")
)

// Mint is the on-ledger record for one token kind.
type Mint struct {
	// Authority may mint new supply.
	Authority types.Pubkey

	// Supply is the total base units in circulation.
	Supply uint64

	// Decimals scales base units to display units.
	Decimals uint8

	Initialized bool
}

// Serialize encodes the mint into its fixed layout.
func (m *Mint) Serialize() []byte {
	buf := make([]byte, MintLen)
	copy(buf[0:32], m.Authority[:])
	binary.LittleEndian.PutUint64(buf[32:40], m.Supply)
	buf[40] = m.Decimals
	if m.Initialized {
		buf[41] = 1
	}
	return buf
}

// DeserializeMint decodes a mint from account data.
func DeserializeMint(data []byte) (*Mint, error) {
	if len(data) < MintLen {
		return nil, ErrInvalidAccountData
	}
	m := &Mint{
		Supply:      binary.LittleEndian.Uint64(data[32:40]),
		Decimals:    data[40],
		Initialized: data[41] == 1,
	}
	copy(m.Authority[:], data[0:32])
	return m, nil
}

// TokenAccount holds a balance of one mint for one owner.
type TokenAccount struct {
	Mint  types.Pubkey
	Owner types.Pubkey

	// Amount is the balance in base units.
	Amount uint64

	Initialized bool
}

// Serialize encodes the token account into its fixed layout.
func (a *TokenAccount) Serialize() []byte {
	buf := make([]byte, AccountLen)
	copy(buf[0:32], a.Mint[:])
	copy(buf[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(buf[64:72], a.Amount)
	if a.Initialized {
		buf[72] = 1
	}
	return buf
}

// DeserializeTokenAccount decodes a token account from account data.
func DeserializeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < AccountLen {
		return nil, ErrInvalidAccountData
	}
	a := &TokenAccount{
		Amount:      binary.LittleEndian.Uint64(data[64:72]),
		Initialized: data[72] == 1,
	}
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	return a, nil
}
