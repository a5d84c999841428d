// Package dag implements fork-choice and stability (C3) and deterministic
// mergeset topological ordering (C4) on top of previously computed
// GhostdagData.
//
// Grounded on the teacher's virtual-block tip tracking (blockdag/dag.go's
// selectedTip/virtual.selectedParent, itself populated by the same bluest()
// rule GHOSTDAG uses to pick a selected parent among multiple candidates),
// generalized here into an explicit TipSet type since this module has no
// persistent "virtual block" of its own.
package dag

import (
	"sync"

	"github.com/tos-network/tosd/consensus"
	"github.com/tos-network/tosd/consensus/ghostdag"
)

// TipSet tracks the current DAG tips (blocks with no known children) and
// answers fork-choice and stability queries over them.
type TipSet struct {
	mu sync.RWMutex

	tips  consensus.BlockIdSet
	store ghostdag.DataStore

	// heights is the graph-depth height of every block added so far:
	// max(parent.height) + 1, independent of blue_score (§3's "height" and
	// "blue_score" are two distinct quantities; a merge-heavy DAG makes
	// them diverge, so blue_score cannot stand in for height here).
	heights map[consensus.BlockId]uint64
}

// NewTipSet returns an empty TipSet backed by store for GhostdagData lookups.
func NewTipSet(store ghostdag.DataStore) *TipSet {
	return &TipSet{
		tips:    consensus.NewBlockIdSet(),
		store:   store,
		heights: make(map[consensus.BlockId]uint64),
	}
}

// AddBlock records id (whose GhostdagData must already be stored) as the
// newest tip, removing its parents from the tip set since they now have a
// known child, and records id's height as max(parent.height) + 1 (0 for
// genesis). Callers must add blocks in parents-before-children order, since
// a parent's height must already be recorded.
func (ts *TipSet) AddBlock(id consensus.BlockId, parents []consensus.BlockId) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var height uint64
	for _, p := range parents {
		ts.tips.Remove(p)
		if h := ts.heights[p] + 1; h > height {
			height = h
		}
	}
	ts.heights[id] = height
	ts.tips.Add(id)
}

// Tips returns the current tip set in sorted order.
func (ts *TipSet) Tips() []consensus.BlockId {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.tips.ToSlice()
}

// BestTip returns the current best tip: the tip with the greatest blue
// work, tying toward the greater BlockId (SPEC_FULL.md §9 Open Question 3
// resolution, the same rule GHOSTDAG uses to choose a selected parent).
// Returns ErrNoTips if the tip set is empty (only possible pre-genesis).
func (ts *TipSet) BestTip() (consensus.BlockId, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.bestTipLocked()
}

func (ts *TipSet) bestTipLocked() (consensus.BlockId, error) {
	ids := ts.tips.ToSlice()
	if len(ids) == 0 {
		return consensus.ZeroBlockId, consensus.ErrNoTips
	}

	best := ids[0]
	bestData, ok := ts.store.Get(best)
	if !ok {
		return consensus.ZeroBlockId, consensus.ErrParentNotClassified
	}
	for _, id := range ids[1:] {
		data, ok := ts.store.Get(id)
		if !ok {
			return consensus.ZeroBlockId, consensus.ErrParentNotClassified
		}
		cmp := data.BlueWork.Cmp(bestData.BlueWork)
		if cmp > 0 || (cmp == 0 && id.Greater(best)) {
			best, bestData = id, data
		}
	}
	return best, nil
}

// StableHeight returns max(0, bestTip.height - stableLimit): the height
// below which blocks are considered stable and safe to treat as final for
// pruning/snapshotting purposes (§4.3, §6 "current_height = max(parent.height)
// + 1 at tips"; this is graph depth, not blue_score).
func (ts *TipSet) StableHeight(stableLimit uint64) (uint64, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	best, err := ts.bestTipLocked()
	if err != nil {
		return 0, err
	}
	height := ts.heights[best]
	if height < stableLimit {
		return 0, nil
	}
	return height - stableLimit, nil
}
