package statestore

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/tos-network/tosd/executor"
)

const (
	accountLen    = 32
	assetLen      = 32
	topoheightLen = 8
)

// encodeBalanceKey lays out {account(32) || asset(32) || topoheight(8 BE)},
// so keys naturally sort first by account, then by asset, then by
// ascending topoheight — a cursor can therefore seek to the newest version
// at-or-before a given topoheight with a single Seek+Prev.
func encodeBalanceKey(account executor.AccountId, asset executor.AssetId, topoheight uint64) []byte {
	key := make([]byte, accountLen+assetLen+topoheightLen)
	copy(key[:accountLen], account[:])
	copy(key[accountLen:accountLen+assetLen], asset[:])
	binary.BigEndian.PutUint64(key[accountLen+assetLen:], topoheight)
	return key
}

func balanceKeyPrefix(account executor.AccountId, asset executor.AssetId) []byte {
	prefix := make([]byte, accountLen+assetLen)
	copy(prefix[:accountLen], account[:])
	copy(prefix[accountLen:], asset[:])
	return prefix
}

// encodeAccountKey lays out {account(32) || topoheight(8 BE)}, used for both
// the nonces and multisig buckets.
func encodeAccountKey(account executor.AccountId, topoheight uint64) []byte {
	key := make([]byte, accountLen+topoheightLen)
	copy(key[:accountLen], account[:])
	binary.BigEndian.PutUint64(key[accountLen:], topoheight)
	return key
}

func accountKeyPrefix(account executor.AccountId) []byte {
	prefix := make([]byte, accountLen)
	copy(prefix, account[:])
	return prefix
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// topoheightOf returns the trailing 8-byte big-endian topoheight suffix of
// a key produced by encodeBalanceKey or encodeAccountKey.
func topoheightOf(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-topoheightLen:])
}

func encodeMultisig(cfg *executor.MultiSigConfig) []byte {
	if cfg == nil {
		return []byte{}
	}
	buf := make([]byte, 8+accountLen*len(cfg.Signers))
	binary.BigEndian.PutUint32(buf[0:4], cfg.Threshold)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(cfg.Signers)))
	for i, signer := range cfg.Signers {
		copy(buf[8+i*accountLen:8+(i+1)*accountLen], signer[:])
	}
	return buf
}

func decodeMultisig(buf []byte) (*executor.MultiSigConfig, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf) < 8 {
		return nil, errors.New("statestore: truncated multisig record")
	}
	threshold := binary.BigEndian.Uint32(buf[0:4])
	count := binary.BigEndian.Uint32(buf[4:8])
	want := 8 + int(count)*accountLen
	if len(buf) != want {
		return nil, errors.Errorf("statestore: multisig record length %d, want %d", len(buf), want)
	}
	signers := make([]executor.AccountId, count)
	for i := range signers {
		copy(signers[i][:], buf[8+i*accountLen:8+(i+1)*accountLen])
	}
	return &executor.MultiSigConfig{Threshold: threshold, Signers: signers}, nil
}

// hasPrefix reports whether key starts with prefix.
func hasPrefix(key, prefix []byte) bool {
	return bytes.HasPrefix(key, prefix)
}
