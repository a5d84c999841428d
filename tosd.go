package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tos-network/tosd/consensus"
	"github.com/tos-network/tosd/dagparams"
	"github.com/tos-network/tosd/logger"
	"github.com/tos-network/tosd/node"
	"github.com/tos-network/tosd/statestore"
)

var log, _ = logger.Get(logger.SubsystemTags.NODE)

// config is the ambient, non-CLI configuration surface this repo carries
// in place of the teacher's github.com/jessevdk/go-flags-based config
// package (CLI/config parsing surfaces are out of scope, per spec.md §1;
// see DESIGN.md). A real deployment would source these from environment
// variables or a config file; this package only wires the values through.
type config struct {
	dataDir    string
	listenAddr string
	peerID     uint64
	workers    int
	connect    []string
}

func defaultConfig() *config {
	return &config{
		dataDir:    "tosd-data",
		listenAddr: ":28901",
		peerID:     uint64(os.Getpid()),
		workers:    0, // Execute defaults to GOMAXPROCS
	}
}

// genesisHeader returns this network's fixed genesis block header. A real
// deployment would embed this as a constant once the network launches; it
// is constructed here so the node has a deterministic starting point.
func genesisHeader() *consensus.BlockHeader {
	return &consensus.BlockHeader{
		Version:       1,
		Parents:       nil,
		TimestampMs:   0,
		Nonce:         0,
		ExtraNonce:    0,
		PowHashInputs: nil,
		TxsRoot:       consensus.ZeroBlockId,
	}
}

func run() error {
	cfg := defaultConfig()

	if err := os.MkdirAll(cfg.dataDir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	logger.InitLogRotators(cfg.dataDir+"/tosd.log", cfg.dataDir+"/tosd_err.log")

	state, err := statestore.Open(cfg.dataDir + "/state.db")
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer state.Close()

	params := dagparams.MainNetParams
	n, err := node.New(params, genesisHeader(), state)
	if err != nil {
		return fmt.Errorf("constructing node: %w", err)
	}
	log.Infow("node constructed", "genesis", n.Genesis())

	srv := node.NewServer(n, params.NetworkID, cfg.peerID, uint16(28901), cfg.listenAddr, cfg.workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warnw("received shutdown signal")
		cancel()
	}()

	for _, addr := range cfg.connect {
		addr := addr
		go func() {
			if err := srv.Connect(ctx, addr); err != nil {
				log.Warnw("outbound connection failed", "addr", addr, "err", err)
			}
		}()
	}

	return srv.Serve(ctx)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
