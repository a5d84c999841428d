package executor

import (
	"context"
	"runtime"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Failure records one TX's execution error without aborting the block
// (§7 Propagation: "execution errors abort the current TX but not the
// block").
type Failure struct {
	Index int
	Err   error
}

// Execute runs txs against snapshot, returning the resulting WorkingSet and
// any per-TX failures.
//
// TXs are first partitioned by partitionIntoBatches into conflict groups:
// every TX in a group shares a read/write key with at least one other
// member of that group (directly or transitively), per D2, so a group's
// members MUST be replayed in their original §4.4 order to reproduce
// sequential semantics exactly. Distinct groups share no key by
// construction, so they carry no ordering dependency on each other and run
// concurrently on a pool of errgroup goroutines, each taking whole groups
// from a channel (workers <= 0 defaults to GOMAXPROCS, capped at the group
// count, per SPEC_FULL.md §5). The result
// is required to be identical for every workers value (property P5); since
// cross-group concurrency never touches a shared key, and within-group
// work stays strictly sequential, the worker count only changes how many
// groups run at once, never the outcome.
func Execute(ctx context.Context, snapshot Snapshot, txs []Tx, workers int) (*WorkingSet, []Failure, error) {
	groups := partitionIntoBatches(txs)
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(groups) {
		workers = len(groups)
	}
	if workers < 1 {
		workers = 1
	}

	ws := NewWorkingSet(snapshot)

	type outcome struct {
		index int
		err   error
	}
	results := make(chan outcome, len(txs))

	groupCh := make(chan []int)
	group, groupCtx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		group.Go(func() error {
			for indices := range groupCh {
				for _, idx := range indices {
					err := executeOne(ws, txs[idx])
					select {
					case results <- outcome{index: idx, err: err}:
					case <-groupCtx.Done():
						return groupCtx.Err()
					}
				}
			}
			return nil
		})
	}

	go func() {
		for _, g := range groups {
			select {
			case groupCh <- g:
			case <-groupCtx.Done():
			}
		}
		close(groupCh)
	}()

	if err := group.Wait(); err != nil {
		return nil, nil, errors.Wrap(err, "executor: execution")
	}
	close(results)

	var failures []Failure
	for out := range results {
		if out.err != nil {
			failures = append(failures, Failure{Index: out.index, Err: out.err})
		}
	}
	// Concurrent groups finish in scheduling order, not TX order; sort so
	// the report is deterministic regardless of worker count.
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	return ws, failures, nil
}

// executeOne runs the four-step execution contract for a single TX against
// the shared working set (§4.6): validate, nonce-CAS, debit/credit, commit.
// A failing TX leaves ws untouched (D4) except for its nonce, which is
// consumed once the nonce check has passed: every read this function
// performs is idempotent (re-reading the same lazily-cached value), and no
// other write happens before every check has passed.
func executeOne(ws *WorkingSet, tx Tx) error {
	if tx.Kind != TxKindTransfer {
		return ErrUnsupportedTxKind
	}
	if err := validateFormat(tx); err != nil {
		return err
	}

	currentNonce := ws.Nonce(tx.Sender)
	if currentNonce != tx.Nonce {
		return ErrNonceMismatch
	}

	// The nonce is consumed as soon as it matches, even if a later check in
	// this function fails: §7's explicit carve-out from D4 ("a failing TX
	// consumes its nonce iff the nonce check passed, else it does not").
	// Every other write below is still gated on every remaining check
	// passing, so D4 holds for balances/multisig as before.
	ws.setNonce(tx.Sender, tx.Nonce+1)

	if err := checkMultisig(ws, tx); err != nil {
		return err
	}

	debits := make(map[AssetId]uint64)
	debits[FeeAssetID] += tx.Fee
	for _, tr := range tx.Transfers {
		debits[tr.Asset] += tr.Amount
	}
	for asset, amount := range debits {
		if ws.Balance(tx.Sender, asset) < amount {
			return ErrInsufficientBalance
		}
	}

	for asset, amount := range debits {
		ws.setBalance(tx.Sender, asset, ws.Balance(tx.Sender, asset)-amount)
	}
	for _, tr := range tx.Transfers {
		ws.setBalance(tr.Recipient, tr.Asset, ws.Balance(tr.Recipient, tr.Asset)+tr.Amount)
	}
	ws.addGasFees(tx.Fee)

	return nil
}

func validateFormat(tx Tx) error {
	if len(tx.ExtraData) > maxExtraDataBytes {
		return ErrExtraDataTooLarge
	}
	if tx.Fee > maxBurnAmount {
		return ErrInvalidTxFormat
	}
	if len(tx.Transfers) == 0 {
		return ErrInvalidTxFormat
	}
	for _, tr := range tx.Transfers {
		if tr.Recipient == tx.Sender {
			return ErrSelfTransfer
		}
	}
	return nil
}

func checkMultisig(ws *WorkingSet, tx Tx) error {
	cfg := ws.multisigOf(tx.Sender)
	if cfg == nil {
		return nil
	}
	if tx.Multisig == nil {
		return ErrMultisigViolation
	}
	if tx.Multisig.Threshold == 0 || int(tx.Multisig.Threshold) > len(tx.Multisig.Signers) {
		return ErrMultisigViolation
	}
	return nil
}
