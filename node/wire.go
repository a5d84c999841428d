package node

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/tos-network/tosd/consensus"
	"github.com/tos-network/tosd/executor"
)

// Block is the wire-level unit propagated by PacketBlockPropagation: a
// header plus the ordered TX list it carries. Kept here rather than in
// consensus since consensus.BlockHeader intentionally knows nothing about
// the executor's TX model (§1's module boundary).
type Block struct {
	Header *consensus.BlockHeader
	Txs    []executor.Tx
}

// EncodeTx is a fixed-field-order encoding of one Tx, in the same style as
// consensus.BlockHeader.Encode (consensus/header.go).
func EncodeTx(tx *executor.Tx) []byte {
	var buf bytes.Buffer
	var tmp4 [4]byte
	var tmp8 [8]byte

	binary.LittleEndian.PutUint32(tmp4[:], tx.Version)
	buf.Write(tmp4[:])
	buf.WriteByte(byte(tx.Kind))
	buf.Write(tx.Sender[:])
	binary.LittleEndian.PutUint64(tmp8[:], tx.Nonce)
	buf.Write(tmp8[:])

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(tx.Transfers)))
	buf.Write(tmp4[:])
	for _, t := range tx.Transfers {
		buf.Write(t.Recipient[:])
		buf.Write(t.Asset[:])
		binary.LittleEndian.PutUint64(tmp8[:], t.Amount)
		buf.Write(tmp8[:])
	}

	binary.LittleEndian.PutUint64(tmp8[:], tx.Fee)
	buf.Write(tmp8[:])

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(tx.ExtraData)))
	buf.Write(tmp4[:])
	buf.Write(tx.ExtraData)

	if tx.Multisig == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		binary.LittleEndian.PutUint32(tmp4[:], tx.Multisig.Threshold)
		buf.Write(tmp4[:])
		binary.LittleEndian.PutUint32(tmp4[:], uint32(len(tx.Multisig.Signers)))
		buf.Write(tmp4[:])
		for _, s := range tx.Multisig.Signers {
			buf.Write(s[:])
		}
	}

	return buf.Bytes()
}

// DecodeTx is the inverse of EncodeTx.
func DecodeTx(b []byte) (*executor.Tx, int, error) {
	r := bytes.NewReader(b)
	tx := &executor.Tx{}

	var tmp4 [4]byte
	var tmp8 [8]byte

	if _, err := io.ReadFull(r, tmp4[:]); err != nil {
		return nil, 0, errors.Wrap(err, "tx: version")
	}
	tx.Version = binary.LittleEndian.Uint32(tmp4[:])

	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, 0, errors.Wrap(err, "tx: kind")
	}
	tx.Kind = executor.TxKind(kindByte)

	if _, err := io.ReadFull(r, tx.Sender[:]); err != nil {
		return nil, 0, errors.Wrap(err, "tx: sender")
	}

	if _, err := io.ReadFull(r, tmp8[:]); err != nil {
		return nil, 0, errors.Wrap(err, "tx: nonce")
	}
	tx.Nonce = binary.LittleEndian.Uint64(tmp8[:])

	if _, err := io.ReadFull(r, tmp4[:]); err != nil {
		return nil, 0, errors.Wrap(err, "tx: transfer count")
	}
	transferCount := binary.LittleEndian.Uint32(tmp4[:])
	tx.Transfers = make([]executor.Transfer, transferCount)
	for i := range tx.Transfers {
		if _, err := io.ReadFull(r, tx.Transfers[i].Recipient[:]); err != nil {
			return nil, 0, errors.Wrap(err, "tx: transfer recipient")
		}
		if _, err := io.ReadFull(r, tx.Transfers[i].Asset[:]); err != nil {
			return nil, 0, errors.Wrap(err, "tx: transfer asset")
		}
		if _, err := io.ReadFull(r, tmp8[:]); err != nil {
			return nil, 0, errors.Wrap(err, "tx: transfer amount")
		}
		tx.Transfers[i].Amount = binary.LittleEndian.Uint64(tmp8[:])
	}

	if _, err := io.ReadFull(r, tmp8[:]); err != nil {
		return nil, 0, errors.Wrap(err, "tx: fee")
	}
	tx.Fee = binary.LittleEndian.Uint64(tmp8[:])

	if _, err := io.ReadFull(r, tmp4[:]); err != nil {
		return nil, 0, errors.Wrap(err, "tx: extra data length")
	}
	extraLen := binary.LittleEndian.Uint32(tmp4[:])
	tx.ExtraData = make([]byte, extraLen)
	if _, err := io.ReadFull(r, tx.ExtraData); err != nil {
		return nil, 0, errors.Wrap(err, "tx: extra data")
	}

	hasMultisig, err := r.ReadByte()
	if err != nil {
		return nil, 0, errors.Wrap(err, "tx: multisig flag")
	}
	if hasMultisig == 1 {
		cfg := &executor.MultiSigConfig{}
		if _, err := io.ReadFull(r, tmp4[:]); err != nil {
			return nil, 0, errors.Wrap(err, "tx: multisig threshold")
		}
		cfg.Threshold = binary.LittleEndian.Uint32(tmp4[:])
		if _, err := io.ReadFull(r, tmp4[:]); err != nil {
			return nil, 0, errors.Wrap(err, "tx: multisig signer count")
		}
		signerCount := binary.LittleEndian.Uint32(tmp4[:])
		cfg.Signers = make([]executor.AccountId, signerCount)
		for i := range cfg.Signers {
			if _, err := io.ReadFull(r, cfg.Signers[i][:]); err != nil {
				return nil, 0, errors.Wrap(err, "tx: multisig signer")
			}
		}
		tx.Multisig = cfg
	}

	return tx, len(b) - r.Len(), nil
}

// EncodeBlock encodes a Block as header-length-prefixed header bytes,
// followed by a TX count and each TX length-prefixed (so DecodeBlock can
// resync past any single malformed TX region reliably).
func EncodeBlock(blk *Block) []byte {
	var buf bytes.Buffer
	var tmp4 [4]byte

	headerBytes := blk.Header.Encode()
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(headerBytes)))
	buf.Write(tmp4[:])
	buf.Write(headerBytes)

	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(blk.Txs)))
	buf.Write(tmp4[:])
	for i := range blk.Txs {
		txBytes := EncodeTx(&blk.Txs[i])
		binary.LittleEndian.PutUint32(tmp4[:], uint32(len(txBytes)))
		buf.Write(tmp4[:])
		buf.Write(txBytes)
	}

	return buf.Bytes()
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(b []byte) (*Block, error) {
	r := bytes.NewReader(b)
	var tmp4 [4]byte

	if _, err := io.ReadFull(r, tmp4[:]); err != nil {
		return nil, errors.Wrap(err, "block: header length")
	}
	headerLen := binary.LittleEndian.Uint32(tmp4[:])
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, errors.Wrap(err, "block: header")
	}
	header, err := consensus.DecodeBlockHeader(headerBytes)
	if err != nil {
		return nil, errors.Wrap(err, "block: decode header")
	}

	if _, err := io.ReadFull(r, tmp4[:]); err != nil {
		return nil, errors.Wrap(err, "block: tx count")
	}
	txCount := binary.LittleEndian.Uint32(tmp4[:])
	txs := make([]executor.Tx, txCount)
	for i := range txs {
		if _, err := io.ReadFull(r, tmp4[:]); err != nil {
			return nil, errors.Wrap(err, "block: tx length")
		}
		txLen := binary.LittleEndian.Uint32(tmp4[:])
		txBytes := make([]byte, txLen)
		if _, err := io.ReadFull(r, txBytes); err != nil {
			return nil, errors.Wrap(err, "block: tx body")
		}
		tx, _, err := DecodeTx(txBytes)
		if err != nil {
			return nil, errors.Wrap(err, "block: decode tx")
		}
		txs[i] = *tx
	}

	return &Block{Header: header, Txs: txs}, nil
}

