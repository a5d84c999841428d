// Package daa implements the difficulty adjustment algorithm (C5): a
// ratio-clamped retarget computed in wide (256-bit) integer arithmetic from
// one t_start/t_end pair on the selected-parent chain (NextTarget), the
// daa_score bookkeeping (ComputeDaaScore), and blue-score-filtered
// sliding-window helpers.
//
// The window helpers are grounded on the teacher's blockWindow
// (blockdag/blockwindow.go): blueBlockWindow walks the selected-parent chain
// collecting each visited block's own blues (padding with genesis once the
// chain is exhausted), and averageTarget/medianTimestamp fold that window
// down to an average target and a median timestamp; NextTarget does not use
// them. The teacher used math/big for averageTarget; this
// package uses github.com/holiman/uint256 throughout, per SPEC_FULL.md's
// wide-integer-arithmetic requirement.
package daa

import (
	"sort"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/tos-network/tosd/consensus"
)

// Store is the minimal GhostdagData read access the window walk needs.
type Store interface {
	Get(id consensus.BlockId) (*consensus.GhostdagData, bool)
}

// HeaderReader supplies the per-block values the window needs beyond
// GhostdagData: each block's own declared target and timestamp.
type HeaderReader interface {
	Target(id consensus.BlockId) (*consensus.Target, bool)
	TimestampMs(id consensus.BlockId) (int64, bool)
}

// BlueWindow returns a window of exactly windowSize block ids, walking
// startingID's selected-parent chain and collecting each visited block's
// own blue set (selected parent plus mergeset blues), the way the
// teacher's blueBlockWindow does. If the chain reaches genesis before the
// window fills, the remainder is padded with genesis, matching the
// teacher's "window of a fixed size, even near the start of the DAG" rule.
func BlueWindow(store Store, startingID consensus.BlockId, windowSize uint64) ([]consensus.BlockId, error) {
	window := make([]consensus.BlockId, 0, windowSize)
	current := startingID

	for uint64(len(window)) < windowSize {
		data, ok := store.Get(current)
		if !ok {
			return nil, consensus.ErrParentNotClassified
		}

		if data.IsGenesis() {
			for uint64(len(window)) < windowSize {
				window = append(window, current)
			}
			break
		}

		blues := append([]consensus.BlockId{data.SelectedParent}, data.MergesetBlues...)
		for _, b := range blues {
			window = append(window, b)
			if uint64(len(window)) == windowSize {
				break
			}
		}
		current = data.SelectedParent
	}

	return window, nil
}

// AverageTarget returns the arithmetic mean of window's member targets, in
// 256-bit wide-integer arithmetic.
func AverageTarget(reader HeaderReader, window []consensus.BlockId) (*uint256.Int, error) {
	if len(window) == 0 {
		return nil, errors.New("daa: cannot average an empty window")
	}

	sum := new(uint256.Int)
	for _, id := range window {
		target, ok := reader.Target(id)
		if !ok {
			return nil, consensus.ErrParentNotClassified
		}
		var overflow bool
		sum, overflow = sum.AddOverflow(sum, target)
		if overflow {
			return nil, errors.New("daa: average target sum overflowed 256 bits")
		}
	}
	return new(uint256.Int).Div(sum, uint256.NewInt(uint64(len(window)))), nil
}

// MedianTimestamp returns the median of window's member timestamps.
func MedianTimestamp(reader HeaderReader, window []consensus.BlockId) (int64, error) {
	if len(window) == 0 {
		return 0, errors.New("daa: cannot take the median of an empty window")
	}
	timestamps := make([]int64, len(window))
	for i, id := range window {
		ts, ok := reader.TimestampMs(id)
		if !ok {
			return 0, consensus.ErrParentNotClassified
		}
		timestamps[i] = ts
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2], nil
}
