package sale

import (
	"github.com/near/borsh-go"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/pda"
)

// State sizes. The record itself is 48 bytes; the account is allocated
// larger so the layout can grow without a migration.
const (
	// StateLen is the serialized size of State: admin (32) +
	// total tokens (8) + tokens sold (8).
	StateLen = 48

	// StateSpace is the allocated size of the state account.
	StateSpace = 128
)

// PDA seed prefixes. Both addresses are derived per mint, so one program
// deployment serves any number of independent sales.
var (
	StateSeed   = []byte("sale")
	CustodySeed = []byte("custody")
)

// State is the on-ledger sale record for one mint.
type State struct {
	// Admin funded the sale and receives every buyer's payment.
	// A zero admin marks the record uninitialized.
	Admin types.Pubkey

	// TotalTokens is the cumulative whole tokens ever funded.
	TotalTokens uint64

	// TokensSold is the cumulative whole tokens ever purchased.
	// Invariant: TokensSold <= TotalTokens.
	TokensSold uint64
}

// Serialize encodes the state record with Borsh.
func (s *State) Serialize() ([]byte, error) {
	return borsh.Serialize(*s)
}

// DeserializeState decodes a state record from account data.
func DeserializeState(data []byte) (*State, error) {
	if len(data) < StateLen {
		return nil, ErrNotInitialized
	}
	var s State
	if err := borsh.Deserialize(&s, data[:StateLen]); err != nil {
		return nil, ErrNotInitialized
	}
	return &s, nil
}

// Initialized reports whether the record has been written.
func (s *State) Initialized() bool {
	return !s.Admin.IsZero()
}

// StateAddress derives the sale state PDA for a mint.
func StateAddress(mint types.Pubkey) (types.Pubkey, uint8, error) {
	return pda.FindProgramAddress([][]byte{StateSeed, mint[:]}, types.SaleProgramAddr)
}

// CustodyAddress derives the custody token account PDA for a mint.
func CustodyAddress(mint types.Pubkey) (types.Pubkey, uint8, error) {
	return pda.FindProgramAddress([][]byte{CustodySeed, mint[:]}, types.SaleProgramAddr)
}
