// Package statestore implements the versioned key-value state store
// abstraction (C7): a topoheight-indexed mapping from (account, asset) to
// balance, account nonces, multisig configs, and two global cumulative
// counters, backed by go.etcd.io/bbolt.
//
// Grounded on 2tbmz9y2xt-lang-rubin-protocol's go.mod (the one teacher-
// adjacent repo in the retrieved pack that already depends on bbolt): each
// commit is one bbolt read-write transaction, and snapshot(h) opens a bbolt
// read-only transaction, relying on bbolt's own single-writer/multi-reader
// MVCC for the "committed batch is invisible to already-open snapshots"
// half of SPEC_FULL.md §4.7's ordering invariant. The other half — a
// snapshot at an arbitrary historical topoheight, not just "whatever is
// newest right now" — is handled explicitly by this package: every value
// is stored with its writing topoheight as a key suffix, and a read seeks
// to the newest version at-or-before the requested topoheight.
package statestore

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/tos-network/tosd/executor"
)

var (
	bucketBalances = []byte("balances")
	bucketNonces   = []byte("nonces")
	bucketMultisig = []byte("multisig")
	bucketCounters = []byte("counters")
	bucketMeta     = []byte("meta")

	keyPrunedBelow = []byte("pruned_below")
)

const (
	counterBurnedSupply byte = 0
	counterGasFees      byte = 1
)

// Store is the bbolt-backed implementation of the C7 contract.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a bbolt database file at path and ensures every
// bucket this package uses exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "statestore: open")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBalances, bucketNonces, bucketMultisig, bucketCounters, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "statestore: init buckets")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt database file.
func (s *Store) Close() error { return s.db.Close() }

// Commit atomically applies batch — the output of executor.WorkingSet.Flush
// — as the state transition at topoheight, in one bbolt read-write
// transaction (crash-consistent by bbolt's own fsync-on-commit guarantee).
// Any topoheight, 0 included, is a valid target: a batch committed at 0 is
// the state the first block after genesis executes against.
func (s *Store) Commit(topoheight uint64, batch []executor.Write) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if pruned, ok := prunedBelowLocked(tx); ok && topoheight < pruned {
			return ErrPruned
		}

		balances := tx.Bucket(bucketBalances)
		nonces := tx.Bucket(bucketNonces)
		multisig := tx.Bucket(bucketMultisig)
		counters := tx.Bucket(bucketCounters)

		for _, w := range batch {
			switch w.Kind {
			case executor.WriteBalance:
				if err := balances.Put(encodeBalanceKey(w.Account, w.Asset, topoheight), encodeUint64(w.Value)); err != nil {
					return err
				}
			case executor.WriteNonce:
				if err := nonces.Put(encodeAccountKey(w.Account, topoheight), encodeUint64(w.Value)); err != nil {
					return err
				}
			case executor.WriteMultisig:
				if err := multisig.Put(encodeAccountKey(w.Account, topoheight), encodeMultisig(w.Multisig)); err != nil {
					return err
				}
			case executor.WriteBurnedSupply:
				if err := accumulateCounter(counters, counterBurnedSupply, topoheight, w.Value); err != nil {
					return err
				}
			case executor.WriteGasFees:
				if err := accumulateCounter(counters, counterGasFees, topoheight, w.Value); err != nil {
					return err
				}
			default:
				return errors.Errorf("statestore: unknown write kind %d", w.Kind)
			}
		}
		return nil
	})
}

// accumulateCounter adds delta to the running total of kind as of just
// before topoheight, and stores the new cumulative total at topoheight.
func accumulateCounter(bucket *bolt.Bucket, kind byte, topoheight, delta uint64) error {
	prev, _ := latestCounterBefore(bucket, kind, topoheight)
	key := append([]byte{kind}, encodeUint64(topoheight)...)
	return bucket.Put(key, encodeUint64(prev+delta))
}

func latestCounterBefore(bucket *bolt.Bucket, kind byte, topoheight uint64) (uint64, bool) {
	prefix := []byte{kind}
	seek := append(append([]byte{}, prefix...), encodeUint64(topoheight)...)
	c := bucket.Cursor()
	k, _ := c.Seek(seek)
	if k != nil && hasPrefix(k, prefix) {
		// k >= seek (i.e. topoheight(k) >= topoheight): step back one.
		k, v := c.Prev()
		if k != nil && hasPrefix(k, prefix) {
			return decodeUint64(v), true
		}
		return 0, false
	}
	// Seek ran past every key with this prefix (or the bucket itself):
	// the preceding key, if it has our prefix, is the newest entry below
	// topoheight.
	k, v := c.Prev()
	if k != nil && hasPrefix(k, prefix) {
		return decodeUint64(v), true
	}
	return 0, false
}

// Prune deletes versioned entries that can never again be the answer to a
// valid snapshot query once every topoheight below `below` is unreachable:
// for each distinct (account[, asset]) key, every version strictly older
// than the newest version below `below` is deleted; that newest version
// itself is kept; versions at-or-after `below` are always kept untouched.
func (s *Store) Prune(below uint64) error {
	if below == 0 {
		return errors.New("statestore: cannot prune below topoheight 0")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBalances, bucketNonces, bucketMultisig} {
			if err := pruneBucket(tx.Bucket(name), below); err != nil {
				return err
			}
		}
		if err := pruneCounters(tx.Bucket(bucketCounters), below); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyPrunedBelow, encodeUint64(below))
	})
}

// pruneBucket compacts a balances/nonces/multisig bucket, whose keys are
// {prefix || topoheight(8)}. Entries are visited in key order, so every
// run of same-prefix keys is contiguous; within a run, every entry with
// topoheight < below is deleted except the last one seen before the cutoff.
func pruneBucket(bucket *bolt.Bucket, below uint64) error {
	c := bucket.Cursor()
	var toDelete [][]byte
	var currentPrefix []byte
	var lastBelowCutoff []byte

	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		prefix := k[:len(k)-topoheightLen]
		if currentPrefix == nil || !bytesEqual(prefix, currentPrefix) {
			// New key group: the previous group's lastBelowCutoff (if any)
			// is retained as-is, nothing to enqueue for it.
			currentPrefix = append([]byte{}, prefix...)
			lastBelowCutoff = nil
		}
		if topoheightOf(k) < below {
			if lastBelowCutoff != nil {
				toDelete = append(toDelete, lastBelowCutoff)
			}
			lastBelowCutoff = append([]byte{}, k...)
		}
	}

	for _, k := range toDelete {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// pruneCounters compacts the counters bucket the same way, per counter
// kind byte instead of per-account prefix.
func pruneCounters(bucket *bolt.Bucket, below uint64) error {
	for _, kind := range []byte{counterBurnedSupply, counterGasFees} {
		c := bucket.Cursor()
		prefix := []byte{kind}
		var toDelete [][]byte
		var lastBelowCutoff []byte
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
			if topoheightOf(k) < below {
				if lastBelowCutoff != nil {
					toDelete = append(toDelete, lastBelowCutoff)
				}
				lastBelowCutoff = append([]byte{}, k...)
			}
		}
		for _, k := range toDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func prunedBelowLocked(tx *bolt.Tx) (uint64, bool) {
	v := tx.Bucket(bucketMeta).Get(keyPrunedBelow)
	if v == nil {
		return 0, false
	}
	return decodeUint64(v), true
}
