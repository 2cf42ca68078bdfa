// tokensale: settlement node for fixed-price token sales.
//
// This is the main entry point for the token sale node. It hosts the sale
// program on an embedded account ledger, answers JSON-RPC queries, and
// streams settlement receipts over gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fortiblox/x1-tokensale/pkg/node"
	"github.com/fortiblox/x1-tokensale/pkg/rpc"
)

// Version information
var (
	Version   = rpc.Version
	GitCommit = "dev"
)

// Configuration flags
var (
	dataDir       = flag.String("data-dir", "./data", "Data directory for accounts and receipts")
	rpcAddr       = flag.String("rpc-addr", ":8899", "RPC server listen address")
	enableRPC     = flag.Bool("enable-rpc", true, "Enable JSON-RPC server")
	logRequests   = flag.Bool("rpc-log-requests", false, "Log RPC requests")
	feedAddr      = flag.String("feed-addr", ":10100", "Receipt feed listen address")
	enableFeed    = flag.Bool("enable-feed", true, "Enable gRPC receipt feed")
	price         = flag.Uint64("price-lamports", 0, "Lamports per token (0 = default)")
	baseUnits     = flag.Uint64("base-units-per-token", 0, "Base units per token (0 = default)")
	snapshotPath  = flag.String("snapshot", "", "Load initial state from snapshot file")
	writeSnapshot = flag.String("write-snapshot", "", "Write a snapshot to this path and exit")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("tokensale %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting tokensale %s", Version)

	cfg := node.Config{
		DataDir:           *dataDir,
		PriceLamports:     *price,
		BaseUnitsPerToken: *baseUnits,
		SnapshotPath:      *snapshotPath,
		RPCEnabled:        *enableRPC,
		RPCAddr:           *rpcAddr,
		RPCLogRequests:    *logRequests,
		FeedEnabled:       *enableFeed,
		FeedAddr:          *feedAddr,
	}

	n, err := node.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create node: %v", err)
	}

	if *writeSnapshot != "" {
		header, err := n.WriteSnapshot(*writeSnapshot)
		if err != nil {
			log.Fatalf("Failed to write snapshot: %v", err)
		}
		log.Printf("Snapshot written: %d accounts at sequence %d",
			header.AccountsCount, header.Sequence)
		if err := n.Close(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := n.Start(ctx); err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}

	<-ctx.Done()

	if err := n.Stop(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
}
