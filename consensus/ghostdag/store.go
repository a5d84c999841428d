package ghostdag

import (
	"github.com/holiman/uint256"

	"github.com/tos-network/tosd/consensus"
)

// DataStore is the minimal read/write access the coloring algorithm needs
// into previously computed GhostdagData. Kept abstract so callers can back
// it with an in-memory map (as in tests) or the persistent state store.
type DataStore interface {
	Get(id consensus.BlockId) (*consensus.GhostdagData, bool)
	Put(id consensus.BlockId, data *consensus.GhostdagData)
}

// BlockDAGReader is the minimal read access the coloring algorithm needs
// into block adjacency and proof-of-work, independent of GhostdagData.
type BlockDAGReader interface {
	// Parents returns the tip/parent set declared in id's header.
	Parents(id consensus.BlockId) ([]consensus.BlockId, bool)
	// Work returns the individual (non-cumulative) proof-of-work value of
	// id's own header, i.e. consensus.Work(target(id)).
	Work(id consensus.BlockId) (*uint256.Int, bool)
}

// MapStore is an in-memory DataStore, used by tests and by callers that
// keep the full GhostdagData set resident.
type MapStore map[consensus.BlockId]*consensus.GhostdagData

// NewMapStore returns an empty MapStore.
func NewMapStore() MapStore { return make(MapStore) }

// Get implements DataStore.
func (s MapStore) Get(id consensus.BlockId) (*consensus.GhostdagData, bool) {
	d, ok := s[id]
	return d, ok
}

// Put implements DataStore.
func (s MapStore) Put(id consensus.BlockId, data *consensus.GhostdagData) {
	s[id] = data
}
