package p2p

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	sendInfo = "tosd/send"
	recvInfo = "tosd/recv"
)

// KeyExchange is the first handshake packet: an ephemeral Curve25519
// public key (§4.8 step 1).
type KeyExchange struct {
	EphemeralPubKey [32]byte
}

// GenerateEphemeralKeyPair returns a fresh Curve25519 keypair for one
// KeyExchange round.
func GenerateEphemeralKeyPair() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, errors.Wrap(err, "p2p: generate ephemeral key")
	}
	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, errors.Wrap(err, "p2p: derive ephemeral pubkey")
	}
	copy(pub[:], pubSlice)
	return priv, pub, nil
}

// DeriveSessionKeys computes the shared Curve25519 secret from our
// ephemeral private key and the peer's ephemeral public key, then derives
// direction-separated 32-byte send/receive keys from it via HKDF-SHA256
// with two distinct domain-separation info strings. isInitiator decides
// which info string maps to which direction, so both ends agree on which
// key is "send" and which is "receive".
func DeriveSessionKeys(ourPriv, peerPub [32]byte, isInitiator bool) (sendKey, recvKey [32]byte, err error) {
	shared, err := curve25519.X25519(ourPriv[:], peerPub[:])
	if err != nil {
		return sendKey, recvKey, errors.Wrap(err, "p2p: compute shared secret")
	}
	// The initiator's "send" info string is the responder's "recv" info
	// string and vice versa, so both ends land on the same two keys with
	// directions correctly swapped.
	ourSendInfo, ourRecvInfo := sendInfo, recvInfo
	if !isInitiator {
		ourSendInfo, ourRecvInfo = recvInfo, sendInfo
	}
	if err := hkdfExpand(shared, ourSendInfo, sendKey[:]); err != nil {
		return sendKey, recvKey, err
	}
	if err := hkdfExpand(shared, ourRecvInfo, recvKey[:]); err != nil {
		return sendKey, recvKey, err
	}
	return sendKey, recvKey, nil
}

func hkdfExpand(secret []byte, info string, out []byte) error {
	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	_, err := reader.Read(out)
	if err != nil {
		return errors.Wrap(err, "p2p: hkdf expand")
	}
	return nil
}

// Handshake is the second handshake packet (§4.8 step 2 / §6's on-wire
// field order).
type Handshake struct {
	Version              string
	NetworkID            [16]byte
	NodeTag              string // empty means absent
	PeerID               uint64
	LocalPort            uint16
	UTCTimeMs            uint64
	Topoheight           uint64
	Height               uint64
	PrunedTopoheight     *uint64 // nil means absent
	TopHash              [32]byte
	GenesisHash          [32]byte
	CumulativeDifficulty *uint256.Int
	SupportsFastSync     bool
	AdvertisesAgents     bool
}

// ValidateAgainst checks h against our own network_id, genesis_hash, and
// peer_id, returning the specific mismatched field per §4.8/§7's
// HandshakeMismatch{field} and SelfConnection errors.
func (h *Handshake) ValidateAgainst(ourNetworkID [16]byte, ourGenesisHash [32]byte, ourPeerID uint64) error {
	if len(h.Version) < 1 || len(h.Version) > HandshakeFieldMaxLen {
		return disconnectErr(&HandshakeMismatchError{Field: "version"})
	}
	if h.NodeTag != "" && len(h.NodeTag) > HandshakeFieldMaxLen {
		return disconnectErr(&HandshakeMismatchError{Field: "node_tag"})
	}
	if h.NetworkID != ourNetworkID {
		return disconnectErr(&HandshakeMismatchError{Field: "network_id"})
	}
	if h.GenesisHash != ourGenesisHash {
		return disconnectErr(&HandshakeMismatchError{Field: "genesis_hash"})
	}
	if h.PrunedTopoheight != nil && *h.PrunedTopoheight == 0 {
		return disconnectErr(&HandshakeMismatchError{Field: "pruned_topoheight"})
	}
	if h.PeerID == ourPeerID {
		return disconnectErr(ErrSelfConnection)
	}
	return nil
}

// EncodeHandshake serializes h in the exact field order from §6. Wire
// size is never hand-maintained as a separate constant (§9 Open Question
// resolution): callers that need it compute len(EncodeHandshake(h)).
func EncodeHandshake(h *Handshake) ([]byte, error) {
	if len(h.Version) < 1 || len(h.Version) > HandshakeFieldMaxLen {
		return nil, errors.New("p2p: version length out of range")
	}
	buf := make([]byte, 0, 256)
	buf = appendLenPrefixedString(buf, h.Version)
	buf = append(buf, byte(len(h.NetworkID))) // network: u8, length of the id that follows
	buf = appendLenPrefixedString(buf, h.NodeTag)
	buf = append(buf, h.NetworkID[:]...)

	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], h.PeerID)
	buf = append(buf, u64[:]...)

	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], h.LocalPort)
	buf = append(buf, u16[:]...)

	binary.LittleEndian.PutUint64(u64[:], h.UTCTimeMs)
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint64(u64[:], h.Topoheight)
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint64(u64[:], h.Height)
	buf = append(buf, u64[:]...)

	if h.PrunedTopoheight != nil {
		buf = append(buf, 1)
		binary.LittleEndian.PutUint64(u64[:], *h.PrunedTopoheight)
		buf = append(buf, u64[:]...)
	} else {
		buf = append(buf, 0)
	}

	buf = append(buf, h.TopHash[:]...)
	buf = append(buf, h.GenesisHash[:]...)

	diff := h.CumulativeDifficulty
	if diff == nil {
		diff = uint256.NewInt(0)
	}
	diffBytes := diff.Bytes32()
	buf = append(buf, diffBytes[:]...)

	buf = append(buf, boolByte(h.SupportsFastSync))
	buf = append(buf, boolByte(h.AdvertisesAgents))
	return buf, nil
}

// DecodeHandshake parses the wire form produced by EncodeHandshake.
func DecodeHandshake(data []byte) (*Handshake, error) {
	r := &byteReader{buf: data}
	version, err := r.readLenPrefixedString()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake version"))
	}
	networkLen, err := r.readByte()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake network"))
	}
	nodeTag, err := r.readLenPrefixedString()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake node_tag"))
	}
	var networkID [16]byte
	if err := r.readFixed(networkID[:]); err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake network_id"))
	}
	if int(networkLen) != len(networkID) {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake network_id length"))
	}
	peerID, err := r.readU64LE()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake peer_id"))
	}
	localPort, err := r.readU16LE()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake local_port"))
	}
	utcTimeMs, err := r.readU64LE()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake utc_time_ms"))
	}
	topoheight, err := r.readU64LE()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake topoheight"))
	}
	height, err := r.readU64LE()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake height"))
	}
	presentFlag, err := r.readByte()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake pruned_topoheight flag"))
	}
	var prunedTopoheight *uint64
	if presentFlag != 0 {
		v, err := r.readU64LE()
		if err != nil {
			return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake pruned_topoheight"))
		}
		if v == 0 {
			return nil, disconnectErr(&HandshakeMismatchError{Field: "pruned_topoheight"})
		}
		prunedTopoheight = &v
	}
	var topHash, genesisHash [32]byte
	if err := r.readFixed(topHash[:]); err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake top_hash"))
	}
	if err := r.readFixed(genesisHash[:]); err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake genesis_hash"))
	}
	var diffBytes [32]byte
	if err := r.readFixed(diffBytes[:]); err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake cumulative_difficulty"))
	}
	supportsFastSync, err := r.readByte()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake supports_fast_sync"))
	}
	advertisesAgents, err := r.readByte()
	if err != nil {
		return nil, dropErr(errors.Wrap(ErrMalformedFrame, "handshake advertises_agents"))
	}
	if len(version) < 1 || len(version) > HandshakeFieldMaxLen {
		return nil, disconnectErr(&HandshakeMismatchError{Field: "version"})
	}
	if nodeTag != "" && len(nodeTag) > HandshakeFieldMaxLen {
		return nil, disconnectErr(&HandshakeMismatchError{Field: "node_tag"})
	}
	return &Handshake{
		Version:              version,
		NetworkID:            networkID,
		NodeTag:              nodeTag,
		PeerID:               peerID,
		LocalPort:            localPort,
		UTCTimeMs:            utcTimeMs,
		Topoheight:           topoheight,
		Height:               height,
		PrunedTopoheight:     prunedTopoheight,
		TopHash:              topHash,
		GenesisHash:          genesisHash,
		CumulativeDifficulty: new(uint256.Int).SetBytes32(diffBytes[:]),
		SupportsFastSync:     supportsFastSync != 0,
		AdvertisesAgents:     advertisesAgents != 0,
	}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendLenPrefixedString(buf []byte, s string) []byte {
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

// byteReader is a minimal sequential decoder for the handshake's fixed
// field layout; it never allocates more than the declared length.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errors.New("p2p: truncated handshake")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) readFixed(out []byte) error {
	if r.pos+len(out) > len(r.buf) {
		return errors.New("p2p: truncated handshake")
	}
	copy(out, r.buf[r.pos:r.pos+len(out)])
	r.pos += len(out)
	return nil
}

func (r *byteReader) readLenPrefixedString() (string, error) {
	n, err := r.readByte()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.buf) {
		return "", errors.New("p2p: truncated handshake string")
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *byteReader) readU64LE() (uint64, error) {
	var b [8]byte
	if err := r.readFixed(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (r *byteReader) readU16LE() (uint16, error) {
	var b [2]byte
	if err := r.readFixed(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}
