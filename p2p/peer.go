package p2p

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// inboundQueueCapacity bounds the per-peer decoded-packet channel (§5's
// backpressure rule): a full channel throttles this peer only, never the
// whole node.
const inboundQueueCapacity = 1024

// Peer wraps one established, post-handshake connection: framing,
// per-direction AEAD, rekey bookkeeping, and the FIFO split between
// order-dependent and order-independent packets (§4.8, §5).
type Peer struct {
	conn net.Conn
	enc  *Encryption

	PeerID      uint64
	PeerVersion *Handshake

	sentBytes atomic.Uint64
	mu        sync.Mutex // guards writes, serializing flush-then-rotate

	Inbox        chan Packet // order-independent packets
	OrderedInbox chan Packet // order-dependent packets, delivered in FIFO

	objectSlots *ObjectRequestLimiter
}

// NewPeer wraps conn with a fresh (unkeyed) cipher; callers key it via
// enc.RotateKey after completing the handshake/key-exchange sequence.
func NewPeer(conn net.Conn) *Peer {
	return &Peer{
		conn:         conn,
		enc:          NewEncryption(),
		Inbox:        make(chan Packet, inboundQueueCapacity),
		OrderedInbox: make(chan Packet, inboundQueueCapacity),
		objectSlots:  NewObjectRequestLimiter(),
	}
}

// Encryption exposes the peer's cipher, e.g. for the handshake/key-
// exchange steps that install its keys.
func (p *Peer) Encryption() *Encryption { return p.enc }

// ObjectSlots exposes the peer's per-connection object-request limiter.
func (p *Peer) ObjectSlots() *ObjectRequestLimiter { return p.objectSlots }

// SendPacket encrypts and frames one packet body, then writes it to the
// wire. Rekey triggers after ROTATE_EVERY_N_BYTES sent in this direction:
// the caller observes RotateKey being needed via BytesSinceRekey and is
// responsible for flushing (this call returning) before sending the
// KeyExchange packet that carries the new key, then rotating — §4.8's
// "flush and then rotate before sending further data" ordering rule.
func (p *Peer) SendPacket(pkt Packet) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	payload := EncodePacket(pkt)
	ciphertext, err := p.enc.Encrypt(payload)
	if err != nil {
		return err
	}
	if err := WriteFrame(p.conn, ciphertext); err != nil {
		return err
	}
	p.sentBytes.Add(uint64(len(ciphertext)))
	return nil
}

// BytesSinceRekey reports ciphertext bytes sent in this direction since the
// peer was created or ResetRekeyCounter was last called (RotateKey does not
// reset it); the caller compares this against RotateEveryNBytes to decide
// when to trigger a rekey.
func (p *Peer) BytesSinceRekey() uint64 { return p.sentBytes.Load() }

// ResetRekeyCounter zeroes the sent-bytes counter; call after completing
// a rekey.
func (p *Peer) ResetRekeyCounter() { p.sentBytes.Store(0) }

// ReceiveOne reads, decrypts, and dispatches exactly one frame from the
// wire into the peer's Inbox or OrderedInbox depending on its packet ID's
// order-dependence (§4.8). It blocks if the destination channel is full,
// which is the backpressure mechanism from §5 — callers run this in a
// dedicated per-peer goroutine so one slow peer never blocks others.
func (p *Peer) ReceiveOne() error {
	ciphertext, err := ReadFrame(p.conn)
	if err != nil {
		return err
	}
	plaintext, err := p.enc.Decrypt(ciphertext)
	if err != nil {
		return disconnectErr(err)
	}
	pkt, err := DecodePacket(plaintext)
	if err != nil {
		return err
	}
	if pkt.ID.OrderDependent() {
		p.OrderedInbox <- pkt
	} else {
		p.Inbox <- pkt
	}
	return nil
}

// RunReceiveLoop reads frames until the connection closes or a
// disconnect-level error occurs, at which point it closes both inbound
// channels and returns the terminal error.
func (p *Peer) RunReceiveLoop() error {
	defer close(p.Inbox)
	defer close(p.OrderedInbox)
	for {
		if err := p.ReceiveOne(); err != nil {
			var de *DisconnectError
			if errors.As(err, &de) && !de.Disconnect {
				continue
			}
			return err
		}
	}
}

// Close closes the underlying connection.
func (p *Peer) Close() error { return p.conn.Close() }
