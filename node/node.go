package node

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/tos-network/tosd/consensus"
	"github.com/tos-network/tosd/consensus/daa"
	"github.com/tos-network/tosd/consensus/dag"
	"github.com/tos-network/tosd/consensus/ghostdag"
	"github.com/tos-network/tosd/consensus/reachability"
	"github.com/tos-network/tosd/dagparams"
	"github.com/tos-network/tosd/executor"
	"github.com/tos-network/tosd/logger"
	"github.com/tos-network/tosd/statestore"
)

var log, _ = logger.Get(logger.SubsystemTags.NODE)

// Node bundles every consensus/execution/storage subsystem (C1-C9) behind a
// single ProcessBlock pipeline, the way the teacher's kaspad struct bundles
// blockdag/mempool/netadapter/rpc behind its own start/stop lifecycle
// (kaspad.go). There is exactly one Node per running process; every field
// it owns is constructed once here and never exposed as a package-level
// global (SPEC_FULL.md §9).
type Node struct {
	params dagparams.Params

	mu      sync.Mutex // serializes ProcessBlock: GHOSTDAG coloring and tip tracking are not safe under concurrent admission
	blocks  *blockStore
	reach   *reachability.Index
	color   *ghostdag.Coloring
	tips    *dag.TipSet
	state   *statestore.Store
	genesis consensus.BlockId
}

// New constructs a Node parameterized by params, with genesis as its first
// admitted block. state must already be open (statestore.Open); Node does
// not own its lifecycle.
func New(params dagparams.Params, genesisHeader *consensus.BlockHeader, state *statestore.Store) (*Node, error) {
	if len(genesisHeader.Parents) != 0 {
		return nil, errors.New("node: genesis header must have no parents")
	}

	blocks := newBlockStore()
	reach := reachability.NewIndex()
	color := ghostdag.New(reach, blocks, blocks, params.K)
	tips := dag.NewTipSet(blocks)

	n := &Node{
		params: params,
		blocks: blocks,
		reach:  reach,
		color:  color,
		tips:   tips,
		state:  state,
	}

	genesisID := genesisHeader.Hash()
	blocks.PutHeader(genesisHeader)
	if _, err := color.Color(genesisID); err != nil {
		return nil, errors.Wrap(err, "node: coloring genesis")
	}
	tips.AddBlock(genesisID, nil)
	n.genesis = genesisID

	return n, nil
}

// Genesis returns the node's genesis block id.
func (n *Node) Genesis() consensus.BlockId { return n.genesis }

// BlockResult summarizes the admission of one block: its resolved
// GhostdagData, the new best tip, and the per-TX execution outcome.
type BlockResult struct {
	Data      *consensus.GhostdagData
	BestTip   consensus.BlockId
	Failures  []executor.Failure
	Order     []consensus.BlockId // topological order of header's mergeset, per C4
}

// ProcessBlock runs the full C1-C7 admission pipeline for one block: header
// validation, reachability/GHOSTDAG classification (C1/C2), tip and
// stability update (C3), mergeset ordering (C4), DAA scoring (C5),
// transaction execution (C6) and versioned commit (C7). It is the ingestion
// half of SPEC_FULL.md §2's data flow; the outbound half (propagating the
// accepted block to peers) is the caller's responsibility once ProcessBlock
// returns successfully, mirroring the teacher's processBlock/relayBlock
// split in blockdag/process.go + server/rpc callbacks.
func (n *Node) ProcessBlock(ctx context.Context, header *consensus.BlockHeader, txs []executor.Tx, workers int) (*BlockResult, error) {
	if err := header.Validate(n.params.TipsLimit); err != nil {
		return nil, err
	}

	id := header.Hash()

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, known := n.blocks.Header(id); known {
		return nil, errors.Errorf("node: block %s already known", id)
	}
	for _, p := range header.Parents {
		if _, ok := n.blocks.Header(p); !ok {
			return nil, consensus.ErrUnknownParent
		}
	}

	n.blocks.PutHeader(header)

	data, err := n.color.Color(id)
	if err != nil {
		return nil, errors.Wrap(err, "node: ghostdag coloring")
	}
	if n.params.MaxMergesetSize > 0 && len(data.Mergeset()) > n.params.MaxMergesetSize {
		return nil, consensus.ErrMergesetBounded
	}

	if err := daa.ComputeDaaScore(n.blocks, data, n.params.DAAWindowSize); err != nil {
		return nil, errors.Wrap(err, "node: daa score")
	}

	expectedTarget, err := daa.NextTarget(n.blocks, n.blocks, data, n.params.DAAWindowSize,
		n.params.TargetBlockTime.Milliseconds(), n.params.MinDifficultyRatio, n.params.MaxDifficultyRatio)
	if err != nil {
		return nil, errors.Wrap(err, "node: daa retarget")
	}
	if blockTarget(header).Cmp(expectedTarget) > 0 {
		return nil, consensus.ErrInvalidWork
	}

	n.tips.AddBlock(id, header.Parents)

	bestTip, err := n.tips.BestTip()
	if err != nil {
		return nil, errors.Wrap(err, "node: best tip")
	}
	if err := n.reach.UpdateReindexRoot(bestTip); err != nil {
		return nil, errors.Wrap(err, "node: reindex root")
	}

	order, err := dag.TopologicalOrder(n.blocks, data)
	if err != nil {
		return nil, errors.Wrap(err, "node: topological order")
	}

	failures, err := n.execute(ctx, header, txs, workers)
	if err != nil {
		return nil, err
	}

	log.Infow("admitted block",
		"id", id, "blueScore", data.BlueScore, "daaScore", data.DaaScore,
		"bestTip", bestTip, "txs", len(txs), "failures", len(failures))

	return &BlockResult{Data: data, BestTip: bestTip, Failures: failures, Order: order}, nil
}

// execute runs txs against the state as of header's topoheight_before
// (its DaaScore minus one, or 0 for a DaaScore of 0; this package uses
// DaaScore as the topoheight axis — see DESIGN.md) and commits the
// resulting writes at header's own DaaScore, per C6/C7's split between
// execution and persistence.
func (n *Node) execute(ctx context.Context, header *consensus.BlockHeader, txs []executor.Tx, workers int) ([]executor.Failure, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	data, _ := n.blocks.Get(header.Hash())
	before := data.DaaScore
	if before > 0 {
		before--
	}

	view, err := n.state.Snapshot(before)
	if err != nil {
		return nil, errors.Wrap(err, "node: state snapshot")
	}
	defer view.Close()

	snapshot := &readViewSnapshot{view: view}
	ws, failures, err := executor.Execute(ctx, snapshot, txs, workers)
	if err != nil {
		return nil, errors.Wrap(err, "node: execute")
	}

	writes := ws.Flush()
	if err := n.state.Commit(data.DaaScore, writes); err != nil {
		return nil, errors.Wrap(err, "node: commit")
	}
	return failures, nil
}

// Prune compacts state-store versions below StableHeight(StableLimit) -
// PruneSafetyLimit (Store.Prune keeps each key's newest version below that
// cutoff), per §4.3/§6's PRUNE_SAFETY_LIMIT rule. It does nothing while the
// stable height is at most PruneSafetyLimit.
func (n *Node) Prune(ctx context.Context) error {
	n.mu.Lock()
	stable, err := n.tips.StableHeight(n.params.StableLimit)
	n.mu.Unlock()
	if err != nil {
		return err
	}
	if stable <= n.params.PruneSafetyLimit {
		return nil
	}
	return n.state.Prune(stable - n.params.PruneSafetyLimit)
}

// readViewSnapshot adapts a *statestore.ReadView (three-return-value,
// topoheight-aware reads) to executor.Snapshot's simpler two-return-value
// interface, since the executor only ever needs the current value, not
// which topoheight wrote it.
type readViewSnapshot struct {
	view *statestore.ReadView
}

func (s *readViewSnapshot) Balance(account executor.AccountId, asset executor.AssetId) (uint64, bool) {
	balance, _, ok := s.view.Balance(account, asset)
	return balance, ok
}

func (s *readViewSnapshot) Nonce(account executor.AccountId) (uint64, bool) {
	return s.view.Nonce(account), true
}

func (s *readViewSnapshot) Multisig(account executor.AccountId) (*executor.MultiSigConfig, bool) {
	cfg, err := s.view.Multisig(account)
	if err != nil || cfg == nil {
		return nil, false
	}
	return cfg, true
}
