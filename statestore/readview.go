package statestore

import (
	bolt "go.etcd.io/bbolt"

	"github.com/tos-network/tosd/executor"
)

// ReadView is a consistent read handle pinned to one topoheight, backed by
// a single bbolt read-only transaction (so every read through it observes
// exactly the writes committed before the view was opened, regardless of
// what commits happen afterward — bbolt's MVCC guarantee).
type ReadView struct {
	tx         *bolt.Tx
	topoheight uint64
}

// Snapshot opens a ReadView pinned to topoheight. It fails with ErrPruned
// if topoheight has already been pruned away.
func (s *Store) Snapshot(topoheight uint64) (*ReadView, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, err
	}
	if pruned, ok := prunedBelowLocked(tx); ok && topoheight < pruned {
		tx.Rollback()
		return nil, ErrPruned
	}
	return &ReadView{tx: tx, topoheight: topoheight}, nil
}

// Close releases the view's underlying read transaction. Callers must call
// this once done, the way a bbolt read-only transaction must always be
// closed.
func (v *ReadView) Close() error { return v.tx.Rollback() }

// Balance returns account's balance of asset as of v's topoheight, and the
// topoheight that balance was last written at. ok is false if no write to
// this (account, asset) pair exists at or before v.topoheight.
func (v *ReadView) Balance(account executor.AccountId, asset executor.AssetId) (balance uint64, writtenAt uint64, ok bool) {
	bucket := v.tx.Bucket(bucketBalances)
	prefix := balanceKeyPrefix(account, asset)
	k, val := seekLatestAtOrBefore(bucket, prefix, v.topoheight)
	if k == nil {
		return 0, 0, false
	}
	return decodeUint64(val), topoheightOf(k), true
}

// Nonce returns account's nonce as of v's topoheight; absent means 0, per
// SPEC_FULL.md §4.7.
func (v *ReadView) Nonce(account executor.AccountId) uint64 {
	bucket := v.tx.Bucket(bucketNonces)
	prefix := accountKeyPrefix(account)
	_, val := seekLatestAtOrBefore(bucket, prefix, v.topoheight)
	if val == nil {
		return 0
	}
	return decodeUint64(val)
}

// Multisig returns account's multisig config as of v's topoheight, or nil
// if none is set (either never written, or explicitly cleared).
func (v *ReadView) Multisig(account executor.AccountId) (*executor.MultiSigConfig, error) {
	bucket := v.tx.Bucket(bucketMultisig)
	prefix := accountKeyPrefix(account)
	_, val := seekLatestAtOrBefore(bucket, prefix, v.topoheight)
	if val == nil {
		return nil, nil
	}
	return decodeMultisig(val)
}

// BurnedSupply returns the cumulative burned-supply counter as of v's
// topoheight.
func (v *ReadView) BurnedSupply() uint64 { return v.counter(counterBurnedSupply) }

// GasFees returns the cumulative gas-fees counter as of v's topoheight.
func (v *ReadView) GasFees() uint64 { return v.counter(counterGasFees) }

func (v *ReadView) counter(kind byte) uint64 {
	bucket := v.tx.Bucket(bucketCounters)
	value, _ := latestCounterBefore(bucket, kind, v.topoheight+1)
	return value
}

// seekLatestAtOrBefore returns the newest key/value pair under prefix whose
// trailing topoheight is <= at, or (nil, nil) if none exists.
func seekLatestAtOrBefore(bucket *bolt.Bucket, prefix []byte, at uint64) ([]byte, []byte) {
	c := bucket.Cursor()
	seek := append(append([]byte{}, prefix...), encodeUint64(at+1)...)
	k, _ := c.Seek(seek)
	if k != nil && hasPrefix(k, prefix) {
		// k's topoheight is > at (Seek found the first key >= seek); the
		// entry we want, if any, is the one just before it.
		k, v := c.Prev()
		if k != nil && hasPrefix(k, prefix) {
			return k, v
		}
		return nil, nil
	}
	// Seek ran past every key with this prefix (or past the whole
	// bucket): the preceding key, if it carries our prefix, is the newest
	// version at or before `at`.
	k, v := c.Prev()
	if k != nil && hasPrefix(k, prefix) {
		return k, v
	}
	return nil, nil
}
