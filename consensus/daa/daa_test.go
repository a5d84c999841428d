package daa

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/tos-network/tosd/consensus"
	"github.com/tos-network/tosd/consensus/ghostdag"
)

func blockID(b byte) consensus.BlockId {
	var id consensus.BlockId
	id[0] = b
	return id
}

type fakeHeaderReader struct {
	targets    map[consensus.BlockId]*consensus.Target
	timestamps map[consensus.BlockId]int64
}

func newFakeHeaderReader() *fakeHeaderReader {
	return &fakeHeaderReader{
		targets:    make(map[consensus.BlockId]*consensus.Target),
		timestamps: make(map[consensus.BlockId]int64),
	}
}

func (f *fakeHeaderReader) Target(id consensus.BlockId) (*consensus.Target, bool) {
	t, ok := f.targets[id]
	return t, ok
}

func (f *fakeHeaderReader) TimestampMs(id consensus.BlockId) (int64, bool) {
	t, ok := f.timestamps[id]
	return t, ok
}

// TestBlueWindowPadsWithGenesis verifies a window requested larger than
// the available chain is padded with the genesis id.
func TestBlueWindowPadsWithGenesis(t *testing.T) {
	store := ghostdag.NewMapStore()
	genesis, a := blockID(1), blockID(2)
	store.Put(genesis, consensus.NewGenesisGhostdagData())
	store.Put(a, &consensus.GhostdagData{
		BlueScore:      1,
		BlueWork:       uint256.NewInt(0),
		SelectedParent: genesis,
	})

	window, err := BlueWindow(store, a, 5)
	if err != nil {
		t.Fatalf("BlueWindow: unexpected error: %s", err)
	}
	if len(window) != 5 {
		t.Fatalf("BlueWindow returned %d entries, want 5", len(window))
	}
	// a contributes its own blue (selected parent = genesis), then the
	// remainder pads with genesis.
	if window[0] != genesis {
		t.Errorf("window[0] = %s, want %s (a's selected parent)", window[0], genesis)
	}
	for i := 1; i < 5; i++ {
		if window[i] != genesis {
			t.Errorf("window[%d] = %s, want %s (padding)", i, window[i], genesis)
		}
	}
}

// TestAverageTargetMeanIsExact verifies AverageTarget computes a plain
// arithmetic mean.
func TestAverageTargetMeanIsExact(t *testing.T) {
	reader := newFakeHeaderReader()
	a, b, c := blockID(1), blockID(2), blockID(3)
	reader.targets[a] = uint256.NewInt(100)
	reader.targets[b] = uint256.NewInt(200)
	reader.targets[c] = uint256.NewInt(300)

	avg, err := AverageTarget(reader, []consensus.BlockId{a, b, c})
	if err != nil {
		t.Fatalf("AverageTarget: unexpected error: %s", err)
	}
	if avg.Uint64() != 200 {
		t.Errorf("AverageTarget = %s, want 200", avg)
	}
}

// TestMedianTimestampOddWindow verifies the median pick for an odd-sized
// window.
func TestMedianTimestampOddWindow(t *testing.T) {
	reader := newFakeHeaderReader()
	a, b, c := blockID(1), blockID(2), blockID(3)
	reader.timestamps[a] = 300
	reader.timestamps[b] = 100
	reader.timestamps[c] = 200

	median, err := MedianTimestamp(reader, []consensus.BlockId{a, b, c})
	if err != nil {
		t.Fatalf("MedianTimestamp: unexpected error: %s", err)
	}
	if median != 200 {
		t.Errorf("MedianTimestamp = %d, want 200", median)
	}
}

// TestNextTargetClampsRatio verifies the retarget ratio is clamped within
// [minRatio, maxRatio] rather than applied unbounded, using the literal
// t_start/t_end pair (§4.5) rather than an averaged window.
func TestNextTargetClampsRatio(t *testing.T) {
	store := ghostdag.NewMapStore()
	reader := newFakeHeaderReader()

	windowStart, selectedParent := blockID(1), blockID(2)
	store.Put(windowStart, &consensus.GhostdagData{DaaScore: 0})
	store.Put(selectedParent, &consensus.GhostdagData{DaaScore: 10, SelectedParent: windowStart})
	reader.targets[selectedParent] = uint256.NewInt(1000)

	const windowSize = 10
	const targetBlockTimeMs = int64(100) // expected timespan = 10 * 100 = 1000ms

	// t_end - t_start = 1ms: ratio would be 1000x, clamped to maxRatio (4.0),
	// so the target (inverse of difficulty) drops to 1000 / 4 = 250.
	reader.timestamps[windowStart] = 0
	reader.timestamps[selectedParent] = 1
	data := &consensus.GhostdagData{DaaScore: 10, SelectedParent: selectedParent}
	next, err := NextTarget(store, reader, data, windowSize, targetBlockTimeMs, 0.25, 4.0)
	if err != nil {
		t.Fatalf("NextTarget: unexpected error: %s", err)
	}
	if next.Uint64() != 250 {
		t.Errorf("NextTarget with tiny actual timespan = %s, want 250 (clamped to maxRatio)", next)
	}

	// t_end - t_start = 100_000ms: ratio would be 0.01x, clamped to minRatio
	// (0.25), so the target rises to 1000 * 4 = 4000.
	reader.timestamps[windowStart] = 0
	reader.timestamps[selectedParent] = 100_000
	next, err = NextTarget(store, reader, data, windowSize, targetBlockTimeMs, 0.25, 4.0)
	if err != nil {
		t.Fatalf("NextTarget: unexpected error: %s", err)
	}
	if next.Uint64() != 4000 {
		t.Errorf("NextTarget with huge actual timespan = %s, want 4000 (clamped to minRatio)", next)
	}
}

// TestNextTargetUnclamped verifies a timespan within bounds is applied
// directly.
func TestNextTargetUnclamped(t *testing.T) {
	store := ghostdag.NewMapStore()
	reader := newFakeHeaderReader()

	windowStart, selectedParent := blockID(1), blockID(2)
	store.Put(windowStart, &consensus.GhostdagData{DaaScore: 0})
	store.Put(selectedParent, &consensus.GhostdagData{DaaScore: 10, SelectedParent: windowStart})
	reader.targets[selectedParent] = uint256.NewInt(1000)

	// expected = 10 * 100 = 1000ms; actual = 2000ms, ratio = 0.5, within
	// [0.25, 4.0] so applied directly: 1000 * 2000 / 1000 = 2000.
	reader.timestamps[windowStart] = 0
	reader.timestamps[selectedParent] = 2000

	data := &consensus.GhostdagData{DaaScore: 10, SelectedParent: selectedParent}
	next, err := NextTarget(store, reader, data, 10, 100, 0.25, 4.0)
	if err != nil {
		t.Fatalf("NextTarget: unexpected error: %s", err)
	}
	if next.Uint64() != 2000 {
		t.Errorf("NextTarget(actual=2*expected) = %s, want 2000", next)
	}
}

// TestNextTargetInheritsBeforeWindowFills verifies a block whose daa_score
// has not yet reached the window size simply inherits its selected parent's
// target (§4.5: "if daa_score(B) < W, inherit parent's difficulty").
func TestNextTargetInheritsBeforeWindowFills(t *testing.T) {
	store := ghostdag.NewMapStore()
	reader := newFakeHeaderReader()

	selectedParent := blockID(1)
	store.Put(selectedParent, &consensus.GhostdagData{DaaScore: 5})
	reader.targets[selectedParent] = uint256.NewInt(4242)

	data := &consensus.GhostdagData{DaaScore: 6, SelectedParent: selectedParent}
	next, err := NextTarget(store, reader, data, 10, 100, 0.25, 4.0)
	if err != nil {
		t.Fatalf("NextTarget: unexpected error: %s", err)
	}
	if next.Uint64() != 4242 {
		t.Errorf("NextTarget before window fills = %s, want 4242 (inherited)", next)
	}
}

// TestComputeDaaScoreGenesis verifies genesis gets DaaScore 0.
func TestComputeDaaScoreGenesis(t *testing.T) {
	data := consensus.NewGenesisGhostdagData()
	if err := ComputeDaaScore(ghostdag.NewMapStore(), data, 10); err != nil {
		t.Fatalf("ComputeDaaScore: unexpected error: %s", err)
	}
	if data.DaaScore != 0 {
		t.Errorf("genesis DaaScore = %d, want 0", data.DaaScore)
	}
}

// TestComputeDaaScoreFiltersOldMembers verifies a mergeset-blue member
// whose blue score lags the selected parent by at least windowSize is
// excluded from DaaScore and recorded as non-DAA.
func TestComputeDaaScoreFiltersOldMembers(t *testing.T) {
	store := ghostdag.NewMapStore()
	parent := blockID(1)
	recent := blockID(2)
	stale := blockID(3)

	store.Put(parent, &consensus.GhostdagData{BlueScore: 100, DaaScore: 50})
	store.Put(recent, &consensus.GhostdagData{BlueScore: 95})
	store.Put(stale, &consensus.GhostdagData{BlueScore: 10})

	data := &consensus.GhostdagData{
		SelectedParent: parent,
		MergesetBlues:  []consensus.BlockId{recent, stale},
	}

	if err := ComputeDaaScore(store, data, 10); err != nil {
		t.Fatalf("ComputeDaaScore: unexpected error: %s", err)
	}

	if data.MergesetNonDaa.Contains(recent) {
		t.Errorf("recent block incorrectly marked non-DAA")
	}
	if !data.MergesetNonDaa.Contains(stale) {
		t.Errorf("stale block should be marked non-DAA")
	}
	// selected parent (1) + recent (1) = 2, plus parent's own DaaScore 50.
	if data.DaaScore != 52 {
		t.Errorf("DaaScore = %d, want 52", data.DaaScore)
	}
}
