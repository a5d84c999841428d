// Package executor implements the parallel transaction executor (C6): a
// worker-pool scheduler that must produce the byte-exact same post-state as
// sequential execution regardless of how many workers it uses (SPEC_FULL.md
// §4.6, property P5).
//
// Grounded on original_source's ParallelApplyAdapter
// (daemon/src/core/state/parallel_apply_adapter.rs) for the per-TX
// balance-cache/commit shape, and on golang.org/x/sync/errgroup (attested in
// the pack's n42blockchain-N42 miner worker file) for the fan-out/fan-in
// worker pool itself.
package executor

// AccountId mirrors consensus.BlockId's 32-byte content-hash shape (a
// distinct type: accounts and blocks are never interchangeable).
type AccountId [32]byte

// AssetId identifies a fungible asset. FeeAssetID is the zero value, the
// single native fee asset Phase 1 scope requires (SPEC_FULL.md §3).
type AssetId [32]byte

// FeeAssetID is the reserved zero AssetId for the native fee asset.
var FeeAssetID AssetId

// Less gives AccountId and AssetId the byte-order comparator D1's
// deterministic merge needs (sorted accounts, then per-account assets).
func (a AccountId) Less(b AccountId) bool { return bytesLess(a[:], b[:]) }

// Less orders two AssetId values by byte order.
func (a AssetId) Less(b AssetId) bool { return bytesLess(a[:], b[:]) }

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// TxKind distinguishes Phase 1 plain transfers from every other kind the
// core must reject via UnsupportedTxKind (§4.6 Phase 2+ extension hook).
type TxKind uint8

const (
	// TxKindTransfer is the only kind Phase 1 scope implements.
	TxKindTransfer TxKind = iota
	// TxKindContract, TxKindEnergy and TxKindAIMining are Phase 2+ stubs:
	// recognized so UnsupportedTxKind can name them, never executed.
	TxKindContract
	TxKindEnergy
	TxKindAIMining
)

// MultiSigConfig is the basic multisig write-through Phase 1 scope requires:
// a threshold and an authorized signer set, no on-chain signature checking
// (that belongs to the block-validation layer upstream of the executor).
type MultiSigConfig struct {
	Threshold uint32
	Signers   []AccountId
}

// Transfer is one (recipient, asset, amount) leg of a Tx.
type Transfer struct {
	Recipient AccountId
	Asset     AssetId
	Amount    uint64
}

// Tx is a Phase 1 plain-transfer transaction, per SPEC_FULL.md §3.
type Tx struct {
	Version   uint32
	Kind      TxKind
	Sender    AccountId
	Nonce     uint64
	Transfers []Transfer
	Fee       uint64
	ExtraData []byte
	Multisig  *MultiSigConfig
}

const (
	// maxExtraDataBytes bounds Tx.ExtraData per §4.6 step 1's "extra-data
	// size bounds" validation. No teacher/example source pinned an exact
	// figure for this spec's domain, so this package picks a conservative
	// round number; see DESIGN.md.
	maxExtraDataBytes = 1024

	// maxBurnAmount bounds a single TX's fee against accidental or
	// malicious overflow-adjacent values. Phase 1 has no separate burn
	// instruction: executeOne adds fees to the gas-fees counter, and
	// nothing adds to the burned-supply counter.
	maxBurnAmount = uint64(1) << 60
)
