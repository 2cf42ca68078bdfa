// Package runtime implements the transaction execution engine hosting the
// native programs (system, token, sale).
//
// Each transaction runs synchronously to a single commit-or-abort decision:
// the engine loads working copies of every account the transaction names,
// executes its instructions against those copies, and either applies the
// whole working set to the accounts database in one atomic batch or discards
// it. There is no observable intermediate state and no retry-from-midpoint.
//
// Conflicting transactions against the same accounts serialize on stripe
// locks; transactions over disjoint stripes execute in parallel.
package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fortiblox/x1-tokensale/internal/types"
	"github.com/fortiblox/x1-tokensale/pkg/accounts"
)

// Execution limits.
const (
	// MaxInvokeDepth is the maximum cross-program invocation nesting depth.
	MaxInvokeDepth = 4

	// MaxTransactionAccounts bounds the accounts a transaction may name.
	MaxTransactionAccounts = 64
)

// Engine errors.
var (
	ErrEmptyTransaction       = errors.New("empty transaction")
	ErrTooManyAccounts        = errors.New("too many accounts in transaction")
	ErrProgramNotFound        = errors.New("program not found")
	ErrInvokeDepthExceeded    = errors.New("invoke depth exceeded")
	ErrAccountNotInContext    = errors.New("account not passed to invoking program")
	ErrPrivilegeEscalation    = errors.New("invoke privilege escalation")
	ErrAccountIndexOutOfRange = errors.New("account index out of range")
)

// Program is a native program hosted by the engine.
type Program interface {
	// Execute runs one instruction against the given context.
	// Any returned error aborts the enclosing transaction.
	Execute(ctx *Context, data []byte) error
}

// AccountMeta names an account an instruction touches, with the privileges
// the transaction envelope grants it.
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction is an ordered list of instructions committed atomically.
type Transaction struct {
	Instructions []Instruction
}

// Result reports a committed transaction.
type Result struct {
	// Sequence is the database sequence after the commit.
	Sequence uint64

	// Logs are the program log messages emitted during execution.
	Logs []string
}

// CommitHook observes successfully committed transactions.
// Hooks run after the database batch is applied, in registration order.
type CommitHook func(tx *Transaction, res *Result)

// Engine executes transactions against the accounts database.
type Engine struct {
	db       accounts.DB
	programs map[types.Pubkey]Program
	hooks    []CommitHook

	// stripes serialize conflicting transactions. Keyed by the first byte
	// of the account address: deterministic acquisition order, no deadlock.
	stripes [256]sync.Mutex
}

// NewEngine creates an engine over the given accounts database.
func NewEngine(db accounts.DB) *Engine {
	return &Engine{
		db:       db,
		programs: make(map[types.Pubkey]Program),
	}
}

// Register installs a native program at the given address.
func (e *Engine) Register(programID types.Pubkey, p Program) {
	e.programs[programID] = p
}

// OnCommit registers a hook called after every successful commit.
func (e *Engine) OnCommit(h CommitHook) {
	e.hooks = append(e.hooks, h)
}

// DB returns the underlying accounts database.
func (e *Engine) DB() accounts.DB {
	return e.db
}

// Execute runs a transaction to completion.
//
// On success every account mutation is committed in a single batch and the
// result carries the program logs. On failure nothing is committed; the
// partial logs are returned alongside the error for diagnostics.
func (e *Engine) Execute(tx *Transaction) (*Result, error) {
	if tx == nil || len(tx.Instructions) == 0 {
		return nil, ErrEmptyTransaction
	}

	keys := collectAccountKeys(tx)
	if len(keys) > MaxTransactionAccounts {
		return nil, ErrTooManyAccounts
	}

	unlock := e.lockStripes(keys)
	defer unlock()

	// Load working copies. Missing accounts materialize as fresh
	// system-owned accounts with zero balance; if they stay zero they are
	// never persisted.
	working := make(map[types.Pubkey]*Account, len(keys))
	for _, key := range keys {
		stored, err := e.db.GetAccount(key)
		if err != nil && !errors.Is(err, accounts.ErrAccountNotFound) {
			return nil, fmt.Errorf("load account %s: %w", key, err)
		}
		working[key] = newWorkingAccount(key, stored)
	}

	var logs []string
	for _, ix := range tx.Instructions {
		program, ok := e.programs[ix.ProgramID]
		if !ok {
			return &Result{Logs: logs}, fmt.Errorf("%w: %s", ErrProgramNotFound, ix.ProgramID)
		}

		ctx, err := newContext(e, ix.ProgramID, ix.Accounts, working, &logs, 0)
		if err != nil {
			return &Result{Logs: logs}, err
		}

		ctx.Logf("Program %s invoke [1]", ix.ProgramID)
		if err := program.Execute(ctx, ix.Data); err != nil {
			ctx.Logf("Program %s failed: %v", ix.ProgramID, err)
			return &Result{Logs: logs}, err
		}
		ctx.Logf("Program %s success", ix.ProgramID)
	}

	updates := make([]accounts.Update, 0, len(working))
	for _, key := range keys {
		updates = append(updates, accounts.Update{
			Pubkey:  key,
			Account: working[key].toStored(),
		})
	}
	if err := e.db.ApplyBatch(updates); err != nil {
		return &Result{Logs: logs}, fmt.Errorf("commit: %w", err)
	}

	res := &Result{
		Sequence: e.db.Sequence(),
		Logs:     logs,
	}
	for _, h := range e.hooks {
		h(tx, res)
	}
	return res, nil
}

// collectAccountKeys returns the distinct account keys of a transaction in
// first-reference order.
func collectAccountKeys(tx *Transaction) []types.Pubkey {
	seen := make(map[types.Pubkey]struct{})
	var keys []types.Pubkey
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if _, ok := seen[meta.Pubkey]; ok {
				continue
			}
			seen[meta.Pubkey] = struct{}{}
			keys = append(keys, meta.Pubkey)
		}
	}
	return keys
}

// lockStripes acquires the stripe locks covering keys in ascending order
// and returns the matching unlock function.
func (e *Engine) lockStripes(keys []types.Pubkey) func() {
	seen := make(map[byte]struct{})
	var stripes []int
	for _, key := range keys {
		if _, ok := seen[key[0]]; ok {
			continue
		}
		seen[key[0]] = struct{}{}
		stripes = append(stripes, int(key[0]))
	}
	sort.Ints(stripes)

	for _, s := range stripes {
		e.stripes[s].Lock()
	}
	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			e.stripes[stripes[i]].Unlock()
		}
	}
}
