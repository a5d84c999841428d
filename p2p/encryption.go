package p2p

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// CipherSide tracks which directions of a per-peer cipher are keyed and
// usable, per §4.8's state machine. Grounded behaviorally on
// original_source/tck/src/p2p/encryption.rs's CipherSide enum.
type CipherSide int

const (
	CipherSideNone CipherSide = iota
	CipherSideOur             // may encrypt outgoing; decrypt returns ErrReadNotReady
	CipherSidePeer            // may decrypt incoming; encrypt returns ErrWriteNotReady
	CipherSideBoth            // fully operational
)

// Encryption is a per-peer, per-direction AEAD cipher pair: one key+nonce
// counter for what we send, one for what we receive. Each direction's
// nonce counter starts at 0 and increments by 1 after each successful
// encrypt/decrypt (§4.8), so packets must be decrypted in strict
// send-order — decrypting out of order desyncs the nonce and fails
// authentication (S6, P7).
//
// The 12-byte AEAD nonce is built by zero-extending the 64-bit counter
// little-endian into the low 8 bytes, per SPEC_FULL.md §4.8.
type Encryption struct {
	mu sync.Mutex

	sendKey   [chacha20poly1305.KeySize]byte
	sendNonce uint64
	sendSet   bool

	recvKey   [chacha20poly1305.KeySize]byte
	recvNonce uint64
	recvSet   bool
}

// NewEncryption returns an Encryption with neither direction keyed.
func NewEncryption() *Encryption {
	return &Encryption{}
}

// GenerateKey returns 32 bytes of cryptographically random key material,
// suitable for either direction's key.
func GenerateKey() ([chacha20poly1305.KeySize]byte, error) {
	var key [chacha20poly1305.KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, errors.Wrap(err, "p2p: generate key")
	}
	return key, nil
}

// RotateKey installs a new key for side and resets that direction's nonce
// counter to 0, invalidating any ciphertext produced under the old key
// (§4.8's rekey rule).
func (e *Encryption) RotateKey(key [chacha20poly1305.KeySize]byte, side CipherSide) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch side {
	case CipherSideOur:
		e.sendKey = key
		e.sendNonce = 0
		e.sendSet = true
	case CipherSidePeer:
		e.recvKey = key
		e.recvNonce = 0
		e.recvSet = true
	case CipherSideBoth:
		e.sendKey = key
		e.sendNonce = 0
		e.sendSet = true
		e.recvKey = key
		e.recvNonce = 0
		e.recvSet = true
	}
}

// Side reports the cipher's current readiness, derived from which
// directions are keyed.
func (e *Encryption) Side() CipherSide {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sideLocked()
}

func (e *Encryption) sideLocked() CipherSide {
	switch {
	case e.sendSet && e.recvSet:
		return CipherSideBoth
	case e.sendSet:
		return CipherSideOur
	case e.recvSet:
		return CipherSidePeer
	default:
		return CipherSideNone
	}
}

// IsReady reports whether both directions are keyed.
func (e *Encryption) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendSet && e.recvSet
}

func nonceBytes(counter uint64) [chacha20poly1305.NonceSize]byte {
	var n [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(n[:8], counter)
	return n
}

// Encrypt seals plaintext under the send key and current send nonce, then
// advances the send nonce. Empty and large (up to 64 KiB tested, no
// upper bound enforced here) payloads both round-trip.
func (e *Encryption) Encrypt(plaintext []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.sendSet {
		return nil, ErrWriteNotReady
	}
	aead, err := chacha20poly1305.New(e.sendKey[:])
	if err != nil {
		return nil, errors.Wrap(err, "p2p: new aead")
	}
	nonce := nonceBytes(e.sendNonce)
	out := aead.Seal(nil, nonce[:], plaintext, nil)
	e.sendNonce++
	return out, nil
}

// Decrypt opens ciphertext under the receive key and current receive
// nonce, then advances the receive nonce. Every failure mode (wrong key,
// tampered ciphertext, truncation, nonce desync) collapses to
// ErrDecryptFailed, matching encryption.rs's single DecryptError variant.
func (e *Encryption) Decrypt(ciphertext []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.recvSet {
		return nil, ErrReadNotReady
	}
	aead, err := chacha20poly1305.New(e.recvKey[:])
	if err != nil {
		return nil, errors.Wrap(err, "p2p: new aead")
	}
	nonce := nonceBytes(e.recvNonce)
	out, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	e.recvNonce++
	return out, nil
}
