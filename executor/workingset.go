package executor

import (
	"sort"
	"sync"
	"sync/atomic"
)

type balanceKey struct {
	Account AccountId
	Asset   AssetId
}

// WorkingSet is the shared, concurrency-safe mapping the executor reads and
// writes through, per SPEC_FULL.md §4.6's "Working set abstraction": lazily
// populated from the underlying Snapshot, mutex-guarded the way the
// teacher's virtualBlock/blockDAG protect their shared maps (sync.Mutex, not
// sync.Map — daglabs-btcd never reaches for sync.Map).
type WorkingSet struct {
	snapshot Snapshot

	mu       sync.Mutex
	balances map[balanceKey]uint64
	nonces   map[AccountId]uint64
	multisig map[AccountId]*MultiSigConfig

	burnedSupply atomic.Uint64
	gasFees      atomic.Uint64
}

// NewWorkingSet builds a working set backed by snapshot.
func NewWorkingSet(snapshot Snapshot) *WorkingSet {
	return &WorkingSet{
		snapshot: snapshot,
		balances: make(map[balanceKey]uint64),
		nonces:   make(map[AccountId]uint64),
		multisig: make(map[AccountId]*MultiSigConfig),
	}
}

func (ws *WorkingSet) balance(account AccountId, asset AssetId) uint64 {
	key := balanceKey{account, asset}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if v, ok := ws.balances[key]; ok {
		return v
	}
	v, _ := ws.snapshot.Balance(account, asset)
	ws.balances[key] = v
	return v
}

func (ws *WorkingSet) setBalance(account AccountId, asset AssetId, v uint64) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.balances[balanceKey{account, asset}] = v
}

func (ws *WorkingSet) nonce(account AccountId) uint64 {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if v, ok := ws.nonces[account]; ok {
		return v
	}
	v, _ := ws.snapshot.Nonce(account)
	ws.nonces[account] = v
	return v
}

func (ws *WorkingSet) setNonce(account AccountId, v uint64) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.nonces[account] = v
}

func (ws *WorkingSet) multisigOf(account AccountId) *MultiSigConfig {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if v, ok := ws.multisig[account]; ok {
		return v
	}
	v, _ := ws.snapshot.Multisig(account)
	ws.multisig[account] = v
	return v
}

func (ws *WorkingSet) setMultisig(account AccountId, cfg *MultiSigConfig) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.multisig[account] = cfg
}

func (ws *WorkingSet) addBurnedSupply(delta uint64) { ws.burnedSupply.Add(delta) }
func (ws *WorkingSet) addGasFees(delta uint64)      { ws.gasFees.Add(delta) }

// Balance returns account's balance of asset as currently recorded (either
// flushed by a prior TX or lazily loaded from the snapshot).
func (ws *WorkingSet) Balance(account AccountId, asset AssetId) uint64 {
	return ws.balance(account, asset)
}

// Nonce returns account's current nonce.
func (ws *WorkingSet) Nonce(account AccountId) uint64 { return ws.nonce(account) }

// BurnedSupply returns the aggregate burned-supply counter.
func (ws *WorkingSet) BurnedSupply() uint64 { return ws.burnedSupply.Load() }

// GasFees returns the aggregate gas-fees counter.
func (ws *WorkingSet) GasFees() uint64 { return ws.gasFees.Load() }

// WriteKind tags one entry of a Flush, so a consumer (statestore's commit)
// knows which field of the state model it addresses.
type WriteKind int

const (
	WriteBalance WriteKind = iota
	WriteNonce
	WriteMultisig
	WriteBurnedSupply
	WriteGasFees
)

// Write is one deterministic-order entry produced by Flush.
type Write struct {
	Kind     WriteKind
	Account  AccountId
	Asset    AssetId
	Value    uint64
	Multisig *MultiSigConfig
}

// Flush drains the working set into a total-ordered Write slice, per D1:
// accounts sorted by byte order, each account's assets sorted by byte
// order, nonce and multisig writes directly after that account's balance
// writes, global counters written last.
func (ws *WorkingSet) Flush() []Write {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	accounts := make(map[AccountId]struct{})
	for k := range ws.balances {
		accounts[k.Account] = struct{}{}
	}
	for a := range ws.nonces {
		accounts[a] = struct{}{}
	}
	for a := range ws.multisig {
		accounts[a] = struct{}{}
	}

	sortedAccounts := make([]AccountId, 0, len(accounts))
	for a := range accounts {
		sortedAccounts = append(sortedAccounts, a)
	}
	sortAccounts(sortedAccounts)

	var writes []Write
	for _, acct := range sortedAccounts {
		var assets []AssetId
		for k := range ws.balances {
			if k.Account == acct {
				assets = append(assets, k.Asset)
			}
		}
		sortAssets(assets)
		for _, asset := range assets {
			writes = append(writes, Write{Kind: WriteBalance, Account: acct, Asset: asset, Value: ws.balances[balanceKey{acct, asset}]})
		}
		if v, ok := ws.nonces[acct]; ok {
			writes = append(writes, Write{Kind: WriteNonce, Account: acct, Value: v})
		}
		if v, ok := ws.multisig[acct]; ok {
			writes = append(writes, Write{Kind: WriteMultisig, Account: acct, Multisig: v})
		}
	}

	writes = append(writes,
		Write{Kind: WriteBurnedSupply, Value: ws.burnedSupply.Load()},
		Write{Kind: WriteGasFees, Value: ws.gasFees.Load()},
	)
	return writes
}

func sortAccounts(a []AccountId) {
	sort.Slice(a, func(i, j int) bool { return a[i].Less(a[j]) })
}

func sortAssets(a []AssetId) {
	sort.Slice(a, func(i, j int) bool { return a[i].Less(a[j]) })
}
