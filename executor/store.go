package executor

// Snapshot is the minimal read access the executor needs from the state
// store (C7) at topoheight_before: a point-in-time view the working set
// lazily populates itself from. The full statestore package implements
// this; tests use an in-memory fake.
type Snapshot interface {
	Balance(account AccountId, asset AssetId) (uint64, bool)
	Nonce(account AccountId) (uint64, bool)
	Multisig(account AccountId) (*MultiSigConfig, bool)
}
