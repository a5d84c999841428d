package consensus

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// BlockHeader is the block header fields relevant to the core, per
// SPEC_FULL.md §3. Fields not needed by consensus/DAA/execution (miner
// payout scripts, witness commitments, etc.) are out of scope and omitted,
// matching spec.md §1's "only the abstract interface is specified" rule for
// out-of-scope collaborators.
type BlockHeader struct {
	Version        uint32
	Parents        []BlockId // ordered set, 1..TIPS_LIMIT entries, uniqueness enforced
	TimestampMs    int64
	Nonce          uint64
	ExtraNonce     uint64
	MinerKey       [32]byte
	PowHashInputs  []byte // opaque PoW preimage material, out of scope beyond hashing
	TxsRoot        BlockId
}

// Validate checks the structural invariants §3 places on a header that are
// independent of DAG state: parent count bounds and parent uniqueness. DAG
// state-dependent checks (parents must be known/classified, K-cluster
// admissibility) live in the reachability/ghostdag packages.
func (h *BlockHeader) Validate(tipsLimit int) error {
	if len(h.Parents) < 1 || len(h.Parents) > tipsLimit {
		return errors.Errorf("block header has %d parents, want 1..%d", len(h.Parents), tipsLimit)
	}
	seen := make(BlockIdSet, len(h.Parents))
	for _, p := range h.Parents {
		if seen.Contains(p) {
			return errors.Errorf("duplicate parent %s in block header", p)
		}
		seen.Add(p)
	}
	return nil
}

// Encode produces a canonical byte encoding of the header, used both as the
// PoW/content-hash preimage (Hash) and as the wire encoding for block
// propagation. Field order is fixed and exhaustive so the encoding is a
// deterministic function of the header's value, mirroring the teacher's
// wire.BlockHeader fixed-layout encode/decode pair (wire/blockheader.go).
func (h *BlockHeader) Encode() []byte {
	buf := make([]byte, 0, 4+1+len(h.Parents)*BlockIdSize+8+8+8+32+4+len(h.PowHashInputs)+BlockIdSize)
	var tmp4 [4]byte
	var tmp8 [8]byte

	binary.LittleEndian.PutUint32(tmp4[:], h.Version)
	buf = append(buf, tmp4[:]...)

	buf = append(buf, byte(len(h.Parents)))
	for _, p := range h.Parents {
		buf = append(buf, p[:]...)
	}

	binary.LittleEndian.PutUint64(tmp8[:], uint64(h.TimestampMs))
	buf = append(buf, tmp8[:]...)
	binary.LittleEndian.PutUint64(tmp8[:], h.Nonce)
	buf = append(buf, tmp8[:]...)
	binary.LittleEndian.PutUint64(tmp8[:], h.ExtraNonce)
	buf = append(buf, tmp8[:]...)

	buf = append(buf, h.MinerKey[:]...)

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(h.PowHashInputs)))
	buf = append(buf, tmp4[:]...)
	buf = append(buf, h.PowHashInputs...)

	buf = append(buf, h.TxsRoot[:]...)

	return buf
}

// Hash returns the header's BlockId: the content hash of its canonical
// encoding (§3 "BlockId. 32-byte content hash").
func (h *BlockHeader) Hash() BlockId {
	return HashBlockId(h.Encode())
}

// DecodeBlockHeader is the inverse of Encode, used by the wire layer when
// reconstructing a header received from a peer.
func DecodeBlockHeader(b []byte) (*BlockHeader, error) {
	r := bytes.NewReader(b)
	h := &BlockHeader{}

	var tmp4 [4]byte
	var tmp8 [8]byte

	if _, err := readFull(r, tmp4[:]); err != nil {
		return nil, errors.Wrap(err, "header: version")
	}
	h.Version = binary.LittleEndian.Uint32(tmp4[:])

	var parentCount [1]byte
	if _, err := readFull(r, parentCount[:]); err != nil {
		return nil, errors.Wrap(err, "header: parent count")
	}
	h.Parents = make([]BlockId, parentCount[0])
	for i := range h.Parents {
		var id BlockId
		if _, err := readFull(r, id[:]); err != nil {
			return nil, errors.Wrap(err, "header: parent")
		}
		h.Parents[i] = id
	}

	if _, err := readFull(r, tmp8[:]); err != nil {
		return nil, errors.Wrap(err, "header: timestamp")
	}
	h.TimestampMs = int64(binary.LittleEndian.Uint64(tmp8[:]))

	if _, err := readFull(r, tmp8[:]); err != nil {
		return nil, errors.Wrap(err, "header: nonce")
	}
	h.Nonce = binary.LittleEndian.Uint64(tmp8[:])

	if _, err := readFull(r, tmp8[:]); err != nil {
		return nil, errors.Wrap(err, "header: extra nonce")
	}
	h.ExtraNonce = binary.LittleEndian.Uint64(tmp8[:])

	if _, err := readFull(r, h.MinerKey[:]); err != nil {
		return nil, errors.Wrap(err, "header: miner key")
	}

	if _, err := readFull(r, tmp4[:]); err != nil {
		return nil, errors.Wrap(err, "header: pow inputs length")
	}
	powLen := binary.LittleEndian.Uint32(tmp4[:])
	h.PowHashInputs = make([]byte, powLen)
	if _, err := readFull(r, h.PowHashInputs); err != nil {
		return nil, errors.Wrap(err, "header: pow inputs")
	}

	if _, err := readFull(r, h.TxsRoot[:]); err != nil {
		return nil, errors.Wrap(err, "header: txs root")
	}

	return h, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err != nil {
		return n, err
	}
	if n != len(b) {
		return n, errors.Errorf("short read: got %d bytes, want %d", n, len(b))
	}
	return n, nil
}
