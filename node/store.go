// Package node wires C1-C9 into one pipeline per SPEC_FULL.md §2's data
// flow: incoming framed bytes -> AEAD decrypt (C8) -> packet dispatch (C9)
// -> block/tx ingestion -> reachability update (C1) -> GHOSTDAG
// classification (C2) -> fork-choice/stable-height (C3) -> topological
// order (C4) -> DAA retarget (C5) -> parallel execute (C6) over the state
// store (C7) -> persist versioned writes -> propagate outbound via C9/C8.
// Node.ProcessBlock runs DAA scoring and the retarget check (C5) right
// after GHOSTDAG classification, before the tip update (C3) and the
// topological order (C4); nothing in this package propagates blocks
// outbound.
//
// Grounded on the shape of the teacher's kaspad struct (kaspad.go): one
// top-level type owning every subsystem, constructed once at startup, with
// no global mutable state (SPEC_FULL.md §9).
package node

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/tos-network/tosd/consensus"
	"github.com/tos-network/tosd/consensus/ghostdag"
)

// blockStore is the in-memory backing for every DAG-indexed record a node
// keeps outside the versioned account state (which lives in statestore):
// headers, GhostdagData, and declared target/timestamp pairs. Mirrors the
// teacher's blockIndex (blockdag/blockindex.go) shape, trimmed to exactly
// the fields C1-C5 read.
type blockStore struct {
	mu sync.RWMutex

	headers   map[consensus.BlockId]*consensus.BlockHeader
	ghostdags ghostdag.MapStore
}

func newBlockStore() *blockStore {
	return &blockStore{
		headers:   make(map[consensus.BlockId]*consensus.BlockHeader),
		ghostdags: ghostdag.NewMapStore(),
	}
}

// PutHeader records a validated header by its own Hash().
func (s *blockStore) PutHeader(h *consensus.BlockHeader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers[h.Hash()] = h
}

func (s *blockStore) Header(id consensus.BlockId) (*consensus.BlockHeader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.headers[id]
	return h, ok
}

// Parents implements ghostdag.BlockDAGReader and daa lookups that need a
// block's declared parents.
func (s *blockStore) Parents(id consensus.BlockId) ([]consensus.BlockId, bool) {
	h, ok := s.Header(id)
	if !ok {
		return nil, false
	}
	return h.Parents, true
}

// Work implements ghostdag.BlockDAGReader: a block's own declared proof-
// of-work value, independent of its accumulated blue work.
func (s *blockStore) Work(id consensus.BlockId) (*uint256.Int, bool) {
	h, ok := s.Header(id)
	if !ok {
		return nil, false
	}
	return consensus.Work(blockTarget(h)), true
}

// Target implements daa.HeaderReader.
func (s *blockStore) Target(id consensus.BlockId) (*consensus.Target, bool) {
	h, ok := s.Header(id)
	if !ok {
		return nil, false
	}
	return blockTarget(h), true
}

// TimestampMs implements daa.HeaderReader.
func (s *blockStore) TimestampMs(id consensus.BlockId) (int64, bool) {
	h, ok := s.Header(id)
	if !ok {
		return 0, false
	}
	return h.TimestampMs, true
}

// blockTarget derives a header's declared PoW target from its opaque
// PowHashInputs preimage. §3 leaves the PoW scheme itself out of core
// scope ("only the abstract interface is specified"); this package treats
// the first 32 bytes of PowHashInputs as a big-endian target when present,
// and the maximum target (easiest difficulty) otherwise — good enough for
// wiring DAA/fork-choice without inventing a full PoW verifier.
func blockTarget(h *consensus.BlockHeader) *consensus.Target {
	if len(h.PowHashInputs) >= 32 {
		return new(uint256.Int).SetBytes(h.PowHashInputs[:32])
	}
	return new(uint256.Int).Not(uint256.NewInt(0)) // all-ones: max target, min work
}

// Get implements ghostdag.DataStore / daa.Store.
func (s *blockStore) Get(id consensus.BlockId) (*consensus.GhostdagData, bool) {
	return s.ghostdags.Get(id)
}

// Put implements ghostdag.DataStore.
func (s *blockStore) Put(id consensus.BlockId, data *consensus.GhostdagData) {
	s.ghostdags.Put(id, data)
}
