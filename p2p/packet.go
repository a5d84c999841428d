package p2p

import (
	"sync"

	"github.com/pkg/errors"
)

// PacketID is the wire-visible discriminant of a decrypted packet body
// (§6's fixed ID table). Using a closed, bounded tagged-variant set
// rather than virtual dispatch, per spec.md §9's dispatch guidance.
type PacketID uint8

const (
	PacketKeyExchange PacketID = iota
	PacketHandshake
	PacketTxPropagation
	PacketBlockPropagation
	PacketChainRequest
	PacketChainResponse
	PacketPing
	PacketObjectRequest
	PacketObjectResponse
	PacketNotifyInvRequest
	PacketNotifyInvResponse
	PacketBootstrapChainRequest
	PacketBootstrapChainResponse
	PacketPeerDisconnected

	packetIDCount
)

// OrderDependent reports whether packets of this ID must be processed in
// strict per-direction FIFO order (§4.8).
func (id PacketID) OrderDependent() bool {
	switch id {
	case PacketKeyExchange, PacketHandshake, PacketTxPropagation, PacketBlockPropagation,
		PacketNotifyInvResponse, PacketBootstrapChainRequest, PacketBootstrapChainResponse:
		return true
	default:
		return false
	}
}

// ParsePacketID validates a raw wire byte against the fixed 0..=13 ID
// range (§4.9); any other value is ErrUnknownPacket.
func ParsePacketID(raw uint8) (PacketID, error) {
	if raw >= uint8(packetIDCount) {
		return 0, errors.Wrapf(ErrUnknownPacket, "id=%d", raw)
	}
	return PacketID(raw), nil
}

// Packet is a decrypted, dispatch-ready wire packet: an ID byte followed
// by its body.
type Packet struct {
	ID   PacketID
	Body []byte
}

// DecodePacket splits a decrypted frame payload into its packet ID and
// body (§6: "[packet_id: u8][body]").
func DecodePacket(payload []byte) (Packet, error) {
	if len(payload) < 1 {
		return Packet{}, dropErr(errors.Wrap(ErrMalformedFrame, "empty packet payload"))
	}
	id, err := ParsePacketID(payload[0])
	if err != nil {
		return Packet{}, dropErr(err)
	}
	return Packet{ID: id, Body: payload[1:]}, nil
}

// EncodePacket reassembles an ID+body pair into a frame payload.
func EncodePacket(p Packet) []byte {
	out := make([]byte, 1+len(p.Body))
	out[0] = byte(p.ID)
	copy(out[1:], p.Body)
	return out
}

// ObjectRequestLimiter enforces §4.9's per-peer concurrent object-request
// slot count: PEER_OBJECTS_CONCURRENCY (64) requests may be in flight at
// once; the 65th fails with ErrConcurrencyExhausted, and a completed
// request's Release frees one slot for the next Acquire.
type ObjectRequestLimiter struct {
	mu    sync.Mutex
	inUse int
	limit int
}

// NewObjectRequestLimiter returns a limiter with the standard
// PeerObjectsConcurrency slot count.
func NewObjectRequestLimiter() *ObjectRequestLimiter {
	return &ObjectRequestLimiter{limit: PeerObjectsConcurrency}
}

// Acquire reserves one concurrency slot, or fails if all are in use.
func (l *ObjectRequestLimiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse >= l.limit {
		return ErrConcurrencyExhausted
	}
	l.inUse++
	return nil
}

// Release frees one concurrency slot, admitting one more pending request.
func (l *ObjectRequestLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse > 0 {
		l.inUse--
	}
}

// InUse reports the number of slots currently reserved.
func (l *ObjectRequestLimiter) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}
