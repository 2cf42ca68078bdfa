// Package node provides the main orchestrator for a token sale settlement node.
//
// The Node ties together all components:
// - AccountsDB for durable ledger state
// - Execution engine hosting the system, token and sale programs
// - Receipt log recording every settled sale operation
// - gRPC feed streaming receipts to subscribers
// - JSON-RPC server answering ledger and sale queries
//
// The node manages component lifecycle and offers Submit as the single entry
// point for settlement: every submitted transaction either commits in full
// or leaves no trace.
package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fortiblox/x1-tokensale/pkg/accounts"
	"github.com/fortiblox/x1-tokensale/pkg/feed"
	"github.com/fortiblox/x1-tokensale/pkg/programs/system"
	"github.com/fortiblox/x1-tokensale/pkg/programs/token"
	"github.com/fortiblox/x1-tokensale/pkg/receipts"
	"github.com/fortiblox/x1-tokensale/pkg/rpc"
	"github.com/fortiblox/x1-tokensale/pkg/runtime"
	"github.com/fortiblox/x1-tokensale/pkg/sale"
)

// Node errors.
var (
	ErrAlreadyRunning = errors.New("node is already running")
	ErrNotRunning     = errors.New("node is not running")
	ErrConfigInvalid  = errors.New("invalid node configuration")
)

// Config holds node configuration.
type Config struct {
	// DataDir is the root directory for all node data.
	// Subdirectories are created for accounts and receipts.
	DataDir string

	// PriceLamports overrides the lamports-per-token price (0 = default).
	PriceLamports uint64

	// BaseUnitsPerToken overrides the base units per token (0 = default).
	BaseUnitsPerToken uint64

	// SnapshotPath optionally loads initial ledger state from a snapshot.
	SnapshotPath string

	// RPCEnabled enables the JSON-RPC server.
	RPCEnabled bool

	// RPCAddr is the listen address for the RPC server (default ":8899").
	RPCAddr string

	// RPCLogRequests enables logging of RPC requests.
	RPCLogRequests bool

	// FeedEnabled enables the gRPC receipt feed.
	FeedEnabled bool

	// FeedAddr is the listen address for the feed server (default ":10100").
	FeedAddr string

	// OnError is called with background component failures.
	OnError func(err error)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:    "./data",
		RPCEnabled: true,
		RPCAddr:    ":8899",
		FeedAddr:   ":10100",
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data directory is required", ErrConfigInvalid)
	}
	if c.RPCEnabled && c.RPCAddr == "" {
		return fmt.Errorf("%w: RPC address is required", ErrConfigInvalid)
	}
	if c.FeedEnabled && c.FeedAddr == "" {
		return fmt.Errorf("%w: feed address is required", ErrConfigInvalid)
	}
	return nil
}

// Node is the settlement node.
type Node struct {
	config  Config
	saleCfg sale.Config

	db         *accounts.BadgerDB
	engine     *runtime.Engine
	receiptLog *receipts.Log
	feed       *feed.Feed
	feedServer *feed.Server
	rpcServer  *rpc.Server

	running atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a node, opening its databases and wiring every component.
func New(config Config) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	saleCfg := sale.Config{
		PriceLamports:     config.PriceLamports,
		BaseUnitsPerToken: config.BaseUnitsPerToken,
	}

	dbCfg := accounts.DefaultBadgerDBConfig(filepath.Join(config.DataDir, "accounts"))
	db, err := accounts.NewBadgerDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open accounts database: %w", err)
	}

	if config.SnapshotPath != "" {
		header, err := accounts.LoadSnapshot(db, config.SnapshotPath)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		log.Printf("[Node] Loaded snapshot: %d accounts at sequence %d",
			header.AccountsCount, header.Sequence)
	}

	receiptLog, err := receipts.Open(filepath.Join(config.DataDir, "receipts.db"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open receipt log: %w", err)
	}

	saleProcessor := sale.New(saleCfg)

	engine := runtime.NewEngine(db)
	engine.Register(system.ProgramID, system.New())
	engine.Register(token.ProgramID, token.New())
	engine.Register(sale.ProgramID, saleProcessor)

	f := feed.New()
	engine.OnCommit(receipts.Hook(receiptLog, saleProcessor.Config(), f.Publish))

	n := &Node{
		config:     config,
		saleCfg:    saleProcessor.Config(),
		db:         db,
		engine:     engine,
		receiptLog: receiptLog,
		feed:       f,
	}

	if config.FeedEnabled {
		n.feedServer = feed.NewServer(f, receiptLog)
	}
	if config.RPCEnabled {
		rpcCfg := rpc.DefaultConfig()
		rpcCfg.Addr = config.RPCAddr
		rpcCfg.LogRequests = config.RPCLogRequests
		n.rpcServer = rpc.New(rpcCfg, db, receiptLog, n.saleCfg)
	}

	return n, nil
}

// Start launches the node's servers. It returns once they are listening.
func (n *Node) Start(ctx context.Context) error {
	if n.running.Swap(true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	if n.rpcServer != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.rpcServer.Start(ctx); err != nil {
				n.reportError(fmt.Errorf("rpc server: %w", err))
			}
		}()
	}

	if n.feedServer != nil {
		lis, err := net.Listen("tcp", n.config.FeedAddr)
		if err != nil {
			cancel()
			n.running.Store(false)
			return fmt.Errorf("listen feed address: %w", err)
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.feedServer.Serve(lis); err != nil {
				n.reportError(fmt.Errorf("feed server: %w", err))
			}
		}()
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			<-ctx.Done()
			n.feedServer.Stop()
		}()
	}

	log.Printf("[Node] Started: data=%s price=%d lamports/token", n.config.DataDir, n.saleCfg.PriceLamports)
	return nil
}

// Stop shuts the node down and closes its databases.
func (n *Node) Stop() error {
	if !n.running.Swap(false) {
		return ErrNotRunning
	}

	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	return n.Close()
}

// Close releases the node's databases. Safe to call on a node that was
// never started; a second call is a no-op.
func (n *Node) Close() error {
	if n.closed.Swap(true) {
		return nil
	}

	n.feed.Close()

	var firstErr error
	if err := n.receiptLog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := n.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Submit executes a transaction against the ledger.
func (n *Node) Submit(tx *runtime.Transaction) (*runtime.Result, error) {
	return n.engine.Execute(tx)
}

// Engine returns the execution engine.
func (n *Node) Engine() *runtime.Engine {
	return n.engine
}

// DB returns the accounts database.
func (n *Node) DB() accounts.DB {
	return n.db
}

// Receipts returns the receipt log.
func (n *Node) Receipts() *receipts.Log {
	return n.receiptLog
}

// SaleConfig returns the effective pricing terms.
func (n *Node) SaleConfig() sale.Config {
	return n.saleCfg
}

// WriteSnapshot exports the current ledger state to path.
func (n *Node) WriteSnapshot(path string) (*accounts.SnapshotHeader, error) {
	return accounts.WriteSnapshot(n.db, path)
}

func (n *Node) reportError(err error) {
	if n.config.OnError != nil {
		n.config.OnError(err)
		return
	}
	log.Printf("[Node] %v", err)
}
