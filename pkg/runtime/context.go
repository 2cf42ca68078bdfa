package runtime

import (
	"fmt"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/accounts"
	"github.com/fortiblox/x1-tokensale/pkg/pda"
)

// Account is the live working copy of an account during execution.
// All instructions of a transaction share one copy per address, so
// mutations made by an inner invocation are visible to the caller.
type Account struct {
	Key        types.Pubkey
	Lamports   uint64
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
}

// newWorkingAccount builds the working copy for key from its stored state.
// A nil stored account materializes as a fresh system-owned account.
func newWorkingAccount(key types.Pubkey, stored *accounts.Account) *Account {
	if stored == nil {
		return &Account{
			Key:   key,
			Owner: types.SystemProgramAddr,
		}
	}
	data := make([]byte, len(stored.Data))
	copy(data, stored.Data)
	return &Account{
		Key:        key,
		Lamports:   stored.Lamports,
		Data:       data,
		Owner:      stored.Owner,
		Executable: stored.Executable,
		RentEpoch:  stored.RentEpoch,
	}
}

// toStored converts the working copy back to its storage form.
// Zero accounts return nil, which deletes the entry on commit.
func (a *Account) toStored() *accounts.Account {
	if a.Lamports == 0 && len(a.Data) == 0 {
		return nil
	}
	return &accounts.Account{
		Lamports:   a.Lamports,
		Data:       a.Data,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
}

// View pairs a working account with the privileges the current instruction
// holds over it.
type View struct {
	*Account
	IsSigner   bool
	IsWritable bool
}

// Context is the program-facing execution context for one instruction.
type Context struct {
	engine    *Engine
	programID types.Pubkey
	views     []*View
	byKey     map[types.Pubkey]*View
	working   map[types.Pubkey]*Account
	logs      *[]string
	depth     int
}

func newContext(e *Engine, programID types.Pubkey, metas []AccountMeta,
	working map[types.Pubkey]*Account, logs *[]string, depth int) (*Context, error) {

	views := make([]*View, len(metas))
	byKey := make(map[types.Pubkey]*View, len(metas))
	for i, meta := range metas {
		acct, ok := working[meta.Pubkey]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotInContext, meta.Pubkey)
		}
		v := &View{
			Account:    acct,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		}
		views[i] = v
		// First occurrence wins; duplicate metas share the account anyway.
		if _, dup := byKey[meta.Pubkey]; !dup {
			byKey[meta.Pubkey] = v
		}
	}

	return &Context{
		engine:    e,
		programID: programID,
		views:     views,
		byKey:     byKey,
		working:   working,
		logs:      logs,
		depth:     depth,
	}, nil
}

// ProgramID returns the address of the executing program.
func (c *Context) ProgramID() types.Pubkey {
	return c.programID
}

// NumAccounts returns the number of accounts passed to the instruction.
func (c *Context) NumAccounts() int {
	return len(c.views)
}

// Account returns the account at the given instruction index.
func (c *Context) Account(index int) (*View, error) {
	if index < 0 || index >= len(c.views) {
		return nil, ErrAccountIndexOutOfRange
	}
	return c.views[index], nil
}

// Log records a program log message.
func (c *Context) Log(msg string) {
	*c.logs = append(*c.logs, msg)
}

// Logf records a formatted program log message.
func (c *Context) Logf(format string, args ...interface{}) {
	c.Log(fmt.Sprintf(format, args...))
}

// RentMinimum returns the rent-exempt minimum balance for an account of the
// given data size.
// Formula: (data_size + 128 bytes overhead) * 3480 lamports/byte/year * 2 years.
func (c *Context) RentMinimum(dataLen uint64) uint64 {
	const (
		lamportsPerByteYear = 3480
		exemptionThreshold  = 2
		accountOverhead     = 128
	)
	return (dataLen + accountOverhead) * lamportsPerByteYear * exemptionThreshold
}

// Invoke executes another program from within the current instruction
// (cross-program invocation).
//
// Privileges never escalate: an account may be passed to the callee as a
// signer or writable only if the caller holds that privilege, with one
// exception. A seed group in signerSeeds that derives (under the calling
// program's ID) to an account's address marks that account as a signer:
// this is how a program signs on behalf of its derived addresses without a
// private key ever existing.
func (c *Context) Invoke(programID types.Pubkey, metas []AccountMeta, data []byte, signerSeeds [][][]byte) error {
	if c.depth+1 >= MaxInvokeDepth {
		return ErrInvokeDepthExceeded
	}

	program, ok := c.engine.programs[programID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProgramNotFound, programID)
	}

	// Resolve the derived-address signers granted by the calling program.
	derivedSigners := make(map[types.Pubkey]struct{}, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := pda.CreateProgramAddress(seeds, c.programID)
		if err != nil {
			return fmt.Errorf("derive signer: %w", err)
		}
		derivedSigners[addr] = struct{}{}
	}

	for _, meta := range metas {
		caller, ok := c.byKey[meta.Pubkey]
		if !ok {
			return fmt.Errorf("%w: %s", ErrAccountNotInContext, meta.Pubkey)
		}
		if meta.IsSigner && !caller.IsSigner {
			if _, derived := derivedSigners[meta.Pubkey]; !derived {
				return fmt.Errorf("%w: %s is not a signer", ErrPrivilegeEscalation, meta.Pubkey)
			}
		}
		if meta.IsWritable && !caller.IsWritable {
			return fmt.Errorf("%w: %s is not writable", ErrPrivilegeEscalation, meta.Pubkey)
		}
	}

	child, err := newContext(c.engine, programID, metas, c.working, c.logs, c.depth+1)
	if err != nil {
		return err
	}

	child.Logf("Program %s invoke [%d]", programID, c.depth+2)
	if err := program.Execute(child, data); err != nil {
		return err
	}
	child.Logf("Program %s success", programID)
	return nil
}
