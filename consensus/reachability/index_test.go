package reachability

import (
	"testing"

	"github.com/tos-network/tosd/consensus"
)

func blockID(b byte) consensus.BlockId {
	var id consensus.BlockId
	id[0] = b
	return id
}

// TestAddGenesis verifies a fresh Index accepts exactly one zero-parent Add.
func TestAddGenesis(t *testing.T) {
	ix := NewIndex()
	genesis := blockID(1)
	if err := ix.Add(genesis, consensus.ZeroBlockId); err != nil {
		t.Fatalf("Add(genesis): unexpected error: %s", err)
	}
	if !ix.Contains(genesis) {
		t.Fatalf("Contains(genesis) = false, want true")
	}

	other := blockID(2)
	if err := ix.Add(other, consensus.ZeroBlockId); err != consensus.ErrUnknownParent {
		t.Fatalf("Add(second zero-parent block): got %v, want ErrUnknownParent", err)
	}
}

// TestAddUnknownParent verifies Add rejects a tree parent that was never
// indexed.
func TestAddUnknownParent(t *testing.T) {
	ix := NewIndex()
	genesis := blockID(1)
	if err := ix.Add(genesis, consensus.ZeroBlockId); err != nil {
		t.Fatalf("Add(genesis): unexpected error: %s", err)
	}

	unknown := blockID(0xFF)
	child := blockID(2)
	if err := ix.Add(child, unknown); err != consensus.ErrUnknownParent {
		t.Fatalf("Add(child, unknown parent): got %v, want ErrUnknownParent", err)
	}
}

// TestAddAlreadyIndexed verifies re-adding the same id is rejected.
func TestAddAlreadyIndexed(t *testing.T) {
	ix := NewIndex()
	genesis := blockID(1)
	if err := ix.Add(genesis, consensus.ZeroBlockId); err != nil {
		t.Fatalf("Add(genesis): unexpected error: %s", err)
	}

	child := blockID(2)
	if err := ix.Add(child, genesis); err != nil {
		t.Fatalf("Add(child): unexpected error: %s", err)
	}
	if err := ix.Add(child, genesis); err != consensus.ErrAlreadyIndexed {
		t.Fatalf("Add(child) again: got %v, want ErrAlreadyIndexed", err)
	}
}

// TestIsAncestorOfLinearChain builds a straight chain genesis->a->b->c and
// checks every pairwise ancestor relationship: strictly earlier blocks are
// ancestors, a block is never its own ancestor (reflexive-exclusive), and
// later blocks are never ancestors of earlier ones.
func TestIsAncestorOfLinearChain(t *testing.T) {
	ix := NewIndex()
	genesis, a, b, c := blockID(1), blockID(2), blockID(3), blockID(4)
	mustAdd(t, ix, genesis, consensus.ZeroBlockId)
	mustAdd(t, ix, a, genesis)
	mustAdd(t, ix, b, a)
	mustAdd(t, ix, c, b)

	chain := []consensus.BlockId{genesis, a, b, c}
	for i, ancestor := range chain {
		for j, descendant := range chain {
			want := i < j
			got, err := ix.IsAncestorOf(ancestor, descendant)
			if err != nil {
				t.Fatalf("IsAncestorOf(%d,%d): unexpected error: %s", i, j, err)
			}
			if got != want {
				t.Errorf("IsAncestorOf(chain[%d], chain[%d]) = %v, want %v", i, j, got, want)
			}
		}
	}
}

// TestIsAncestorOfNotReflexive verifies a block is never its own ancestor.
func TestIsAncestorOfNotReflexive(t *testing.T) {
	ix := NewIndex()
	genesis := blockID(1)
	mustAdd(t, ix, genesis, consensus.ZeroBlockId)

	if got, err := ix.IsAncestorOf(genesis, genesis); err != nil || got {
		t.Errorf("IsAncestorOf(genesis, genesis) = %v, %v; want false, nil", got, err)
	}
}

// TestIsAncestorOfSiblingsAreIncomparable verifies two children of the same
// parent are ancestors of neither each other.
func TestIsAncestorOfSiblingsAreIncomparable(t *testing.T) {
	ix := NewIndex()
	genesis, a, b := blockID(1), blockID(2), blockID(3)
	mustAdd(t, ix, genesis, consensus.ZeroBlockId)
	mustAdd(t, ix, a, genesis)
	mustAdd(t, ix, b, genesis)

	if got, _ := ix.IsAncestorOf(a, b); got {
		t.Errorf("IsAncestorOf(a, b) = true, want false for siblings")
	}
	if got, _ := ix.IsAncestorOf(b, a); got {
		t.Errorf("IsAncestorOf(b, a) = true, want false for siblings")
	}
}

// TestAddManyChildrenForcesRelayout adds enough children to a single parent
// to exhaust its initial trailing capacity and force at least one relayout,
// then verifies every ancestor relationship introduced by the relayout
// still holds.
func TestAddManyChildrenForcesRelayout(t *testing.T) {
	ix := NewIndex()
	genesis := blockID(0)
	mustAdd(t, ix, genesis, consensus.ZeroBlockId)

	const n = 2000
	ids := make([]consensus.BlockId, n)
	for i := 0; i < n; i++ {
		var id consensus.BlockId
		id[0] = byte(i >> 8)
		id[1] = byte(i)
		id[2] = 0xAB // disambiguate from blockID(b) single-byte ids used elsewhere
		ids[i] = id
		mustAdd(t, ix, id, genesis)
	}

	for i := 0; i < n; i++ {
		got, err := ix.IsAncestorOf(genesis, ids[i])
		if err != nil {
			t.Fatalf("IsAncestorOf(genesis, ids[%d]): unexpected error: %s", i, err)
		}
		if !got {
			t.Errorf("IsAncestorOf(genesis, ids[%d]) = false, want true after relayout", i)
		}
	}
	// Children of the same parent remain mutually incomparable across a
	// relayout.
	if got, _ := ix.IsAncestorOf(ids[0], ids[n-1]); got {
		t.Errorf("IsAncestorOf(ids[0], ids[n-1]) = true, want false: not an ancestor")
	}
}

// TestAddMergeEdgeEstablishesNonTreeAncestry verifies that a merge
// (non-selected-parent) DAG edge makes IsAncestorOf true for the merge
// parent over the child and everything built on top of the child,
// mirroring the teacher's IsDAGAncestorOf = tree-ancestor OR
// future-covering-set-has-ancestor rule.
func TestAddMergeEdgeEstablishesNonTreeAncestry(t *testing.T) {
	ix := NewIndex()
	genesis, left, right, merger, grandchild := blockID(1), blockID(2), blockID(3), blockID(4), blockID(5)
	mustAdd(t, ix, genesis, consensus.ZeroBlockId)
	mustAdd(t, ix, left, genesis)
	mustAdd(t, ix, right, genesis)
	// merger's selected (tree) parent is left; right is a merge parent.
	mustAdd(t, ix, merger, left)
	mustAdd(t, ix, grandchild, merger)

	if got, _ := ix.IsAncestorOf(right, merger); got {
		t.Fatalf("IsAncestorOf(right, merger) = true before AddMergeEdge, want false")
	}

	if err := ix.AddMergeEdge(right, merger); err != nil {
		t.Fatalf("AddMergeEdge: unexpected error: %s", err)
	}

	if got, err := ix.IsAncestorOf(right, merger); err != nil || !got {
		t.Errorf("IsAncestorOf(right, merger) = %v, %v; want true, nil", got, err)
	}
	if got, err := ix.IsAncestorOf(right, grandchild); err != nil || !got {
		t.Errorf("IsAncestorOf(right, grandchild) = %v, %v; want true, nil", got, err)
	}
	if got, _ := ix.IsAncestorOf(left, right); got {
		t.Errorf("IsAncestorOf(left, right) = true, want false: merge edge is one-directional")
	}
}

func mustAdd(t *testing.T, ix *Index, id, parent consensus.BlockId) {
	t.Helper()
	if err := ix.Add(id, parent); err != nil {
		t.Fatalf("Add(%s, %s): unexpected error: %s", id, parent, err)
	}
}
