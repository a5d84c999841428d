package consensus

import "github.com/holiman/uint256"

// GhostdagData is the per-block record produced by GHOSTDAG coloring (C2),
// per SPEC_FULL.md §3. It is immutable once computed (Lifecycle: "a block's
// GhostdagData is immutable once computed").
type GhostdagData struct {
	BlueScore      uint64
	BlueWork       *uint256.Int
	SelectedParent BlockId // ZeroBlockId for genesis (I1)
	MergesetBlues  []BlockId
	MergesetReds   BlockIdSet
	DaaScore       uint64

	// MergesetNonDaa records the mergeset members outside the DAA window of
	// the selected parent (§4.5); they are blue but do not contribute to
	// DaaScore.
	MergesetNonDaa BlockIdSet

	// BlueAnticoneSizes records, for this block's own id and for every
	// mergeset-blue member admitted while coloring it, that member's blue
	// anticone size as computed at the moment it was classified. Queries for
	// a blue's anticone size walk the selected-parent chain checking this
	// map at each ancestor until found; every block guarantees its own
	// zero-size entry under its own id, so the walk always terminates.
	// Mirrors the teacher's blockNode.bluesAnticoneSizes (blockdag/ghostdag.go).
	BlueAnticoneSizes map[BlockId]uint32
}

// IsGenesis reports whether this record describes the genesis block (I1:
// blue_score = 0, blue_work = 0, selected_parent = ⊥, empty mergesets).
func (g *GhostdagData) IsGenesis() bool {
	return g.SelectedParent.IsZero()
}

// NewGenesisGhostdagData returns the fixed GhostdagData for genesis, per I1.
func NewGenesisGhostdagData() *GhostdagData {
	return &GhostdagData{
		BlueScore:      0,
		BlueWork:       uint256.NewInt(0),
		SelectedParent: ZeroBlockId,
		MergesetBlues:  nil,
		MergesetReds:   NewBlockIdSet(),
		DaaScore:       0,
		MergesetNonDaa: NewBlockIdSet(),
		BlueAnticoneSizes: map[BlockId]uint32{},
	}
}

// IsBlue reports whether id is a blue mergeset member of this block (i.e.
// either the selected parent or an admitted mergeset-blue member).
func (g *GhostdagData) IsBlue(id BlockId) bool {
	if id == g.SelectedParent {
		return true
	}
	for _, b := range g.MergesetBlues {
		if b == id {
			return true
		}
	}
	return false
}

// Mergeset returns the full mergeset (blues ++ reds) of this block, with no
// particular order guaranteed across the two halves (callers that need the
// topological order defined by §4.4 should use consensus/dag.TopologicalOrder
// instead).
func (g *GhostdagData) Mergeset() []BlockId {
	out := make([]BlockId, 0, len(g.MergesetBlues)+len(g.MergesetReds))
	out = append(out, g.MergesetBlues...)
	out = append(out, g.MergesetReds.ToSlice()...)
	return out
}
