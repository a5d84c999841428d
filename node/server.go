package node

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/tos-network/tosd/p2p"
)

// Server accepts and drives peer connections, translating §4.8/§4.9's wire
// protocol into Node.ProcessBlock calls. Grounded on the shape of the
// teacher's netadapter.NetAdapter (listen + per-connection goroutine +
// router), replacing its gRPC streams with this repo's own framed-AEAD
// p2p.Peer.
type Server struct {
	node *Node

	networkID  [16]byte
	localPeer  uint64
	localPort  uint16
	listenAddr string

	workers int
}

// NewServer returns a Server that drives node, listening on listenAddr.
func NewServer(n *Node, networkID [16]byte, localPeerID uint64, localPort uint16, listenAddr string, workers int) *Server {
	return &Server{
		node:       n,
		networkID:  networkID,
		localPeer:  localPeerID,
		localPort:  localPort,
		listenAddr: listenAddr,
		workers:    workers,
	}
}

// Serve listens on s.listenAddr and handles inbound connections until ctx
// is canceled or the listener fails. Mirrors the teacher's netadapter
// accept-loop (one goroutine per accepted connection).
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return errors.Wrap(err, "node: listen")
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Infow("listening", "addr", s.listenAddr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errors.Wrap(err, "node: accept")
			}
		}
		go s.handleInbound(ctx, conn)
	}
}

// Connect dials addr and drives the resulting connection as an outbound
// peer (the initiator side of the key exchange).
func (s *Server) Connect(ctx context.Context, addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "node: dial")
	}
	return s.run(ctx, conn, true)
}

func (s *Server) handleInbound(ctx context.Context, conn net.Conn) {
	if err := s.run(ctx, conn, false); err != nil {
		log.Warnw("peer session ended", "remote", conn.RemoteAddr(), "err", err)
	}
}

// run performs the unencrypted key exchange, derives session keys, swaps
// handshakes, then services the peer's Inbox/OrderedInbox until it
// disconnects. The key-exchange frame is the one frame ever written or
// read in the clear (§4.8: encryption only becomes possible once both
// ephemeral public keys are known), using WriteFrame/ReadFrame directly
// rather than Peer.SendPacket/ReceiveOne, which always encrypt.
func (s *Server) run(ctx context.Context, conn net.Conn, isInitiator bool) error {
	defer conn.Close()

	peer := p2p.NewPeer(conn)

	ourPriv, ourPub, err := p2p.GenerateEphemeralKeyPair()
	if err != nil {
		return errors.Wrap(err, "node: ephemeral keypair")
	}
	ourExchange := p2p.KeyExchange{EphemeralPubKey: ourPub}
	if err := p2p.WriteFrame(conn, p2p.EncodePacket(p2p.Packet{ID: p2p.PacketKeyExchange, Body: ourExchange.EphemeralPubKey[:]})); err != nil {
		return errors.Wrap(err, "node: send key exchange")
	}

	raw, err := p2p.ReadFrame(conn)
	if err != nil {
		return errors.Wrap(err, "node: read key exchange")
	}
	peerExchangePkt, err := p2p.DecodePacket(raw)
	if err != nil {
		return errors.Wrap(err, "node: decode key exchange")
	}
	if peerExchangePkt.ID != p2p.PacketKeyExchange || len(peerExchangePkt.Body) != 32 {
		return errors.New("node: expected key exchange packet")
	}
	var peerPub [32]byte
	copy(peerPub[:], peerExchangePkt.Body)

	sendKey, recvKey, err := p2p.DeriveSessionKeys(ourPriv, peerPub, isInitiator)
	if err != nil {
		return errors.Wrap(err, "node: derive session keys")
	}
	peer.Encryption().RotateKey(sendKey, p2p.CipherSideOur)
	peer.Encryption().RotateKey(recvKey, p2p.CipherSidePeer)

	ourHandshake := s.handshake()
	encoded, err := p2p.EncodeHandshake(ourHandshake)
	if err != nil {
		return errors.Wrap(err, "node: encode handshake")
	}
	if err := peer.SendPacket(p2p.Packet{ID: p2p.PacketHandshake, Body: encoded}); err != nil {
		return errors.Wrap(err, "node: send handshake")
	}
	if err := peer.ReceiveOne(); err != nil {
		return errors.Wrap(err, "node: receive handshake")
	}
	handshakePkt := <-peer.OrderedInbox
	if handshakePkt.ID != p2p.PacketHandshake {
		return errors.New("node: expected handshake packet")
	}
	peerHandshake, err := p2p.DecodeHandshake(handshakePkt.Body)
	if err != nil {
		return errors.Wrap(err, "node: decode handshake")
	}
	genesis := s.node.Genesis()
	if err := peerHandshake.ValidateAgainst(s.networkID, genesis, s.localPeer); err != nil {
		return errors.Wrap(err, "node: handshake validation")
	}
	peer.PeerID = peerHandshake.PeerID
	peer.PeerVersion = peerHandshake

	errCh := make(chan error, 1)
	go func() { errCh <- peer.RunReceiveLoop() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case pkt, ok := <-peer.Inbox:
			if !ok {
				return <-errCh
			}
			s.dispatch(ctx, peer, pkt)
		case pkt, ok := <-peer.OrderedInbox:
			if !ok {
				return <-errCh
			}
			s.dispatch(ctx, peer, pkt)
		}
	}
}

func (s *Server) handshake() *p2p.Handshake {
	genesis := s.node.Genesis()
	return &p2p.Handshake{
		Version:              "tosd/0.1",
		NetworkID:            s.networkID,
		PeerID:               s.localPeer,
		LocalPort:            s.localPort,
		GenesisHash:          genesis,
		CumulativeDifficulty: nil,
		SupportsFastSync:     false,
		AdvertisesAgents:     false,
	}
}

// dispatch handles one decoded packet per §6's ID table: a block
// propagation is passed to Node.ProcessBlock, a Ping is echoed back with
// the same body, and every other packet ID (transaction propagation, chain
// and object exchange, inventory, bootstrap, disconnect notice) is only
// logged at debug level; see DESIGN.md.
func (s *Server) dispatch(ctx context.Context, peer *p2p.Peer, pkt p2p.Packet) {
	switch pkt.ID {
	case p2p.PacketBlockPropagation:
		s.handleBlockPropagation(ctx, pkt)
	case p2p.PacketPing:
		_ = peer.SendPacket(p2p.Packet{ID: p2p.PacketPing, Body: pkt.Body})
	default:
		log.Debugw("unhandled packet", "id", pkt.ID, "peer", peer.PeerID)
	}
}

func (s *Server) handleBlockPropagation(ctx context.Context, pkt p2p.Packet) {
	blk, err := DecodeBlock(pkt.Body)
	if err != nil {
		log.Warnw("malformed block propagation", "err", err)
		return
	}
	if _, err := s.node.ProcessBlock(ctx, blk.Header, blk.Txs, s.workers); err != nil {
		log.Warnw("block rejected", "err", err)
	}
}
