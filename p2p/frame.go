package p2p

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const frameLenSize = 4

// WriteFrame writes ciphertext as a length-prefixed frame:
// [len: u32 big-endian][ciphertext]. Grounded on the teacher-adjacent
// repo's envelope.go WriteMessage for the write-then-check-n shape; the
// frame itself carries no magic/command/checksum fields (those belong one
// layer up, inside the decrypted packet body).
func WriteFrame(w io.Writer, ciphertext []byte) error {
	if len(ciphertext) > PeerMaxPacketSize {
		return disconnectErr(errors.Wrapf(ErrFrameTooLarge, "%d bytes", len(ciphertext)))
	}
	var header [frameLenSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(ciphertext)))
	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "p2p: write frame header")
	}
	if _, err := w.Write(ciphertext); err != nil {
		return errors.Wrap(err, "p2p: write frame body")
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. The declared length
// is checked against PeerMaxPacketSize before any allocation, so a
// malicious or corrupt length header cannot be used to force a large
// allocation (grounded on envelope.go's ReadMessage oversize-before-
// allocate check).
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameLenSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, err
		}
		return nil, errors.Wrap(err, "p2p: read frame header")
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > PeerMaxPacketSize {
		return nil, disconnectErr(errors.Wrapf(ErrFrameTooLarge, "%d bytes", length))
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, disconnectErr(errors.Wrap(ErrMalformedFrame, "truncated frame body"))
	}
	return body, nil
}
