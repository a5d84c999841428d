package executor

import (
	"context"
	"testing"
)

type fakeSnapshot struct {
	balances map[balanceKey]uint64
	nonces   map[AccountId]uint64
	multisig map[AccountId]*MultiSigConfig
}

func newFakeSnapshot() *fakeSnapshot {
	return &fakeSnapshot{
		balances: make(map[balanceKey]uint64),
		nonces:   make(map[AccountId]uint64),
		multisig: make(map[AccountId]*MultiSigConfig),
	}
}

func (f *fakeSnapshot) Balance(account AccountId, asset AssetId) (uint64, bool) {
	v, ok := f.balances[balanceKey{account, asset}]
	return v, ok
}

func (f *fakeSnapshot) Nonce(account AccountId) (uint64, bool) {
	v, ok := f.nonces[account]
	return v, ok
}

func (f *fakeSnapshot) Multisig(account AccountId) (*MultiSigConfig, bool) {
	v, ok := f.multisig[account]
	return v, ok
}

func account(b byte) AccountId {
	var a AccountId
	a[0] = b
	return a
}

// TestParallelMatchesSequential implements scenario S4: the same three
// transfers produce byte-identical final balances and counters regardless
// of worker count (property P5).
func TestParallelMatchesSequential(t *testing.T) {
	alice, bob, charlie := account(1), account(2), account(3)

	for _, workers := range []int{1, 2, 4, 8} {
		snap := newFakeSnapshot()
		snap.balances[balanceKey{alice, FeeAssetID}] = 1_000_000_000_000

		txs := []Tx{
			{Sender: alice, Nonce: 0, Transfers: []Transfer{{Recipient: bob, Asset: FeeAssetID, Amount: 100}}, Fee: 50},
			{Sender: alice, Nonce: 1, Transfers: []Transfer{{Recipient: charlie, Asset: FeeAssetID, Amount: 200}}, Fee: 50},
			{Sender: bob, Nonce: 0, Transfers: []Transfer{{Recipient: charlie, Asset: FeeAssetID, Amount: 50}}, Fee: 10},
		}

		ws, failures, err := Execute(context.Background(), snap, txs, workers)
		if err != nil {
			t.Fatalf("workers=%d: Execute: unexpected error: %s", workers, err)
		}
		if len(failures) != 0 {
			t.Fatalf("workers=%d: unexpected failures: %v", workers, failures)
		}

		// alice pays 100 + 200 in transfers and 50 + 50 in fees.
		if got := ws.Balance(alice, FeeAssetID); got != 999_999_999_600 {
			t.Errorf("workers=%d: alice balance = %d, want 999999999600", workers, got)
		}
		if got := ws.Balance(bob, FeeAssetID); got != 40 {
			t.Errorf("workers=%d: bob balance = %d, want 40", workers, got)
		}
		if got := ws.Balance(charlie, FeeAssetID); got != 250 {
			t.Errorf("workers=%d: charlie balance = %d, want 250", workers, got)
		}
		if got := ws.GasFees(); got != 110 {
			t.Errorf("workers=%d: gas fees = %d, want 110", workers, got)
		}
	}
}

// TestNonceGapRejected implements scenario S5: a nonce gap is rejected and
// leaves the working set untouched for that account.
func TestNonceGapRejected(t *testing.T) {
	alice, bob := account(1), account(2)
	snap := newFakeSnapshot()
	snap.balances[balanceKey{alice, FeeAssetID}] = 1000
	snap.nonces[alice] = 0

	txs := []Tx{
		{Sender: alice, Nonce: 2, Transfers: []Transfer{{Recipient: bob, Asset: FeeAssetID, Amount: 10}}, Fee: 1},
	}

	ws, failures, err := Execute(context.Background(), snap, txs, 1)
	if err != nil {
		t.Fatalf("Execute: unexpected error: %s", err)
	}
	if len(failures) != 1 || failures[0].Err != ErrNonceMismatch {
		t.Fatalf("failures = %v, want one ErrNonceMismatch", failures)
	}
	if got := ws.Balance(alice, FeeAssetID); got != 1000 {
		t.Errorf("alice balance after rejected tx = %d, want unchanged 1000", got)
	}
	if got := ws.Nonce(alice); got != 0 {
		t.Errorf("alice nonce after rejected tx = %d, want unchanged 0", got)
	}
}

// TestFailureIsolation verifies D4: a failing TX's balance/multisig state is
// identical to before the TX, while a later independent TX still succeeds.
// The nonce is the one documented exception (§7): it is consumed as soon as
// it matches, regardless of what fails afterward.
func TestFailureIsolation(t *testing.T) {
	alice, bob, charlie := account(1), account(2), account(3)
	snap := newFakeSnapshot()
	snap.balances[balanceKey{alice, FeeAssetID}] = 100

	txs := []Tx{
		// alice cannot afford this: insufficient balance.
		{Sender: alice, Nonce: 0, Transfers: []Transfer{{Recipient: bob, Asset: FeeAssetID, Amount: 1000}}, Fee: 1},
		// independent of alice; must still succeed.
		{Sender: charlie, Nonce: 0, Transfers: []Transfer{{Recipient: bob, Asset: FeeAssetID, Amount: 5}}, Fee: 0},
	}
	snap.balances[balanceKey{charlie, FeeAssetID}] = 10

	ws, failures, err := Execute(context.Background(), snap, txs, 2)
	if err != nil {
		t.Fatalf("Execute: unexpected error: %s", err)
	}
	if len(failures) != 1 || failures[0].Index != 0 || failures[0].Err != ErrInsufficientBalance {
		t.Fatalf("failures = %v, want index 0 ErrInsufficientBalance", failures)
	}
	if got := ws.Balance(alice, FeeAssetID); got != 100 {
		t.Errorf("alice balance after failed tx = %d, want unchanged 100", got)
	}
	if got := ws.Nonce(alice); got != 1 {
		t.Errorf("alice nonce after failed tx = %d, want 1 (consumed: nonce check passed before the balance check failed)", got)
	}
	if got := ws.Balance(charlie, FeeAssetID); got != 5 {
		t.Errorf("charlie balance = %d, want 5", got)
	}
	if got := ws.Balance(bob, FeeAssetID); got != 5 {
		t.Errorf("bob balance = %d, want 5", got)
	}
}

// TestNonceConsumedEvenOnMultisigFailure verifies the same consume-on-match
// rule when a later check (multisig, not balance) is what fails.
func TestNonceConsumedEvenOnMultisigFailure(t *testing.T) {
	alice, bob := account(1), account(2)
	snap := newFakeSnapshot()
	snap.balances[balanceKey{alice, FeeAssetID}] = 1000
	snap.multisig[alice] = &MultiSigConfig{Threshold: 2, Signers: []AccountId{alice, bob}}

	txs := []Tx{
		// no Multisig attached: checkMultisig rejects it, but the nonce
		// already matched.
		{Sender: alice, Nonce: 0, Transfers: []Transfer{{Recipient: bob, Asset: FeeAssetID, Amount: 10}}, Fee: 1},
	}

	ws, failures, err := Execute(context.Background(), snap, txs, 1)
	if err != nil {
		t.Fatalf("Execute: unexpected error: %s", err)
	}
	if len(failures) != 1 || failures[0].Err != ErrMultisigViolation {
		t.Fatalf("failures = %v, want one ErrMultisigViolation", failures)
	}
	if got := ws.Balance(alice, FeeAssetID); got != 1000 {
		t.Errorf("alice balance after failed tx = %d, want unchanged 1000", got)
	}
	if got := ws.Nonce(alice); got != 1 {
		t.Errorf("alice nonce after failed tx = %d, want 1 (consumed)", got)
	}
}

// TestSelfTransferRejected verifies self-transfer format validation.
func TestSelfTransferRejected(t *testing.T) {
	alice := account(1)
	snap := newFakeSnapshot()
	snap.balances[balanceKey{alice, FeeAssetID}] = 100

	txs := []Tx{
		{Sender: alice, Nonce: 0, Transfers: []Transfer{{Recipient: alice, Asset: FeeAssetID, Amount: 10}}, Fee: 1},
	}

	_, failures, err := Execute(context.Background(), snap, txs, 1)
	if err != nil {
		t.Fatalf("Execute: unexpected error: %s", err)
	}
	if len(failures) != 1 || failures[0].Err != ErrSelfTransfer {
		t.Fatalf("failures = %v, want one ErrSelfTransfer", failures)
	}
}

// TestUnsupportedTxKindRejected verifies the Phase 2+ extension hook.
func TestUnsupportedTxKindRejected(t *testing.T) {
	alice := account(1)
	snap := newFakeSnapshot()

	txs := []Tx{{Sender: alice, Kind: TxKindContract}}

	_, failures, err := Execute(context.Background(), snap, txs, 1)
	if err != nil {
		t.Fatalf("Execute: unexpected error: %s", err)
	}
	if len(failures) != 1 || failures[0].Err != ErrUnsupportedTxKind {
		t.Fatalf("failures = %v, want one ErrUnsupportedTxKind", failures)
	}
}

// TestFlushDeterministicOrder verifies D1: Flush orders accounts and
// per-account assets by byte order, with counters last.
func TestFlushDeterministicOrder(t *testing.T) {
	low, high := account(1), account(9)
	assetLow, assetHigh := AssetId{0x01}, AssetId{0x09}

	ws := NewWorkingSet(newFakeSnapshot())
	ws.setBalance(high, assetHigh, 1)
	ws.setBalance(high, assetLow, 2)
	ws.setBalance(low, assetHigh, 3)
	ws.addGasFees(5)
	ws.addBurnedSupply(7)

	writes := ws.Flush()
	if len(writes) != 5 {
		t.Fatalf("Flush() returned %d writes, want 5", len(writes))
	}
	if writes[0].Account != low || writes[0].Asset != assetHigh {
		t.Errorf("writes[0] = %+v, want low/assetHigh first", writes[0])
	}
	if writes[1].Account != high || writes[1].Asset != assetLow {
		t.Errorf("writes[1] = %+v, want high/assetLow (asset order within account)", writes[1])
	}
	if writes[2].Account != high || writes[2].Asset != assetHigh {
		t.Errorf("writes[2] = %+v, want high/assetHigh", writes[2])
	}
	last := writes[len(writes)-1]
	if last.Kind != WriteGasFees {
		t.Errorf("last write kind = %v, want WriteGasFees", last.Kind)
	}
	if writes[len(writes)-2].Kind != WriteBurnedSupply {
		t.Errorf("second-to-last write kind = %v, want WriteBurnedSupply", writes[len(writes)-2].Kind)
	}
}

// TestPartitionIntoBatchesGroupsSharedRecipient verifies D2: TXs from
// different senders that credit the same recipient balance share a batch.
func TestPartitionIntoBatchesGroupsSharedRecipient(t *testing.T) {
	alice, bob, charlie := account(1), account(2), account(3)
	txs := []Tx{
		{Sender: alice, Transfers: []Transfer{{Recipient: charlie, Asset: FeeAssetID, Amount: 1}}},
		{Sender: bob, Transfers: []Transfer{{Recipient: charlie, Asset: FeeAssetID, Amount: 1}}},
	}

	batches := partitionIntoBatches(txs)
	// Both TXs credit charlie in FeeAssetID, so they conflict and must
	// share a batch despite having different senders.
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("partitionIntoBatches() = %v, want a single batch of both TXs (shared recipient)", batches)
	}
}

// TestPartitionIntoBatchesNoSharedKeys verifies fully independent TXs split
// into separate batches.
func TestPartitionIntoBatchesNoSharedKeys(t *testing.T) {
	alice, bob, carol, dave := account(1), account(2), account(3), account(4)
	txs := []Tx{
		{Sender: alice, Transfers: []Transfer{{Recipient: bob, Asset: FeeAssetID, Amount: 1}}},
		{Sender: carol, Transfers: []Transfer{{Recipient: dave, Asset: FeeAssetID, Amount: 1}}},
	}

	batches := partitionIntoBatches(txs)
	if len(batches) != 2 {
		t.Fatalf("partitionIntoBatches() = %v, want 2 independent batches", batches)
	}
}
