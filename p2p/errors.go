package p2p

import "github.com/pkg/errors"

// Wire-level sentinel errors (§7). Each is returned bare or wrapped with
// github.com/pkg/errors call-site context, mirroring the teacher's
// errors.Errorf/errors.Wrap idiom throughout blockdag/*.go.
var (
	ErrFrameTooLarge    = errors.New("p2p: frame too large")
	ErrMalformedFrame   = errors.New("p2p: malformed frame")
	ErrUnknownPacket    = errors.New("p2p: unknown packet id")
	ErrOutOfOrderPacket = errors.New("p2p: out-of-order packet")
	ErrSelfConnection   = errors.New("p2p: self connection")
	ErrDecryptFailed    = errors.New("p2p: decrypt failed")
	ErrWriteNotReady    = errors.New("p2p: write not ready")
	ErrReadNotReady     = errors.New("p2p: read not ready")

	ErrConcurrencyExhausted = errors.New("p2p: concurrency exhausted")
)

// HandshakeMismatchError reports a specific handshake field that failed
// validation (§4.8's HandshakeMismatch{field}).
type HandshakeMismatchError struct {
	Field string
}

func (e *HandshakeMismatchError) Error() string {
	return "p2p: handshake mismatch: " + e.Field
}

// DisconnectError wraps an underlying cause with the disconnect policy §7
// assigns it: Disconnect true means the peer connection must be torn down;
// false means the offending frame/packet is dropped but the connection
// survives. Grounded on the teacher-adjacent repo's *ReadError{Err,
// BanScoreDelta, Disconnect} pattern, minus the ban-score field — see
// SPEC_FULL.md §4.9's ban-score-free-by-design note.
type DisconnectError struct {
	Err        error
	Disconnect bool
}

func (e *DisconnectError) Error() string { return e.Err.Error() }

func (e *DisconnectError) Unwrap() error { return e.Err }

func disconnectErr(err error) *DisconnectError {
	return &DisconnectError{Err: err, Disconnect: true}
}

func dropErr(err error) *DisconnectError {
	return &DisconnectError{Err: err, Disconnect: false}
}
