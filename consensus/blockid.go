// Package consensus holds the data types shared by every consensus
// subcomponent (reachability, ghostdag, dag, daa) plus the consensus-level
// error taxonomy. It deliberately owns no algorithms itself — those live in
// the subpackages — mirroring the teacher's split between wire-level types
// (daghash.Hash, wire.BlockHeader) and the blockdag package that operates on
// them, collapsed here into one root package since this module has no
// separate wire-message layer for block headers.
package consensus

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// BlockIdSize is the length in bytes of a BlockId.
const BlockIdSize = 32

// BlockId is a 32-byte content hash, totally ordered lexicographically (used
// as a deterministic tie-break throughout GHOSTDAG and fork-choice). This
// mirrors the teacher's daghash.Hash, which was not included in the
// retrieved tree (referenced by import only); we define our own here using
// the same "fixed-size array with lexicographic Compare" shape.
type BlockId [BlockIdSize]byte

// ZeroBlockId is the all-zero sentinel used to mean "no selected parent"
// (genesis) or "no parent hash" in wire encodings, mirroring daghash.ZeroHash.
var ZeroBlockId = BlockId{}

// IsZero reports whether id is the all-zero sentinel.
func (id BlockId) IsZero() bool {
	return id == ZeroBlockId
}

// Compare returns -1, 0 or +1 as id is lexicographically less than, equal to,
// or greater than other. Used for every deterministic tie-break in the spec:
// selected-parent choice, fork-choice best-tip, mergeset candidate ordering.
func (id BlockId) Compare(other BlockId) int {
	return bytes.Compare(id[:], other[:])
}

// Less reports whether id sorts strictly before other.
func (id BlockId) Less(other BlockId) bool {
	return id.Compare(other) < 0
}

// Greater reports whether id sorts strictly after other.
func (id BlockId) Greater(other BlockId) bool {
	return id.Compare(other) > 0
}

func (id BlockId) String() string {
	return hex.EncodeToString(id[:])
}

// BlockIdFromBytes copies b into a new BlockId. b must be exactly BlockIdSize
// bytes long.
func BlockIdFromBytes(b []byte) (BlockId, error) {
	var id BlockId
	if len(b) != BlockIdSize {
		return id, errInvalidBlockIdLength(len(b))
	}
	copy(id[:], b)
	return id, nil
}

// HashBlockId produces the BlockId (content hash) of an arbitrary byte
// encoding, e.g. a serialized BlockHeader. The spec only requires "a 32-byte
// content hash"; SHA-256 is the teacher's own choice of primitive elsewhere
// (ripemd160(sha256(.)) address hashing in util/address.go uses the same
// family) and needs no AEAD/HMAC properties, so a single SHA-256 pass
// suffices here.
func HashBlockId(data []byte) BlockId {
	return BlockId(sha256.Sum256(data))
}

// SortBlockIds sorts ids in place in ascending lexicographic order.
func SortBlockIds(ids []BlockId) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// BlockIdSet is a simple set of BlockId backed by a map, used pervasively by
// reachability and ghostdag for anticone/mergeset membership tests.
type BlockIdSet map[BlockId]struct{}

// NewBlockIdSet builds a BlockIdSet from the given ids.
func NewBlockIdSet(ids ...BlockId) BlockIdSet {
	s := make(BlockIdSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s BlockIdSet) Add(id BlockId) { s[id] = struct{}{} }

// Contains reports whether id is a member of the set.
func (s BlockIdSet) Contains(id BlockId) bool {
	_, ok := s[id]
	return ok
}

// Remove deletes id from the set, if present.
func (s BlockIdSet) Remove(id BlockId) { delete(s, id) }

// ToSlice returns the set's members as a slice in ascending lexicographic
// order (deterministic iteration, since Go map order is randomized).
func (s BlockIdSet) ToSlice() []BlockId {
	out := make([]BlockId, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	SortBlockIds(out)
	return out
}
