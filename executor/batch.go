package executor

// conflictKey is one (account, asset) pair a TX reads or writes;
// two TXs sharing a key must serialize, per §4.6 D2.
type conflictKey struct {
	account AccountId
	asset   AssetId
}

// touchedKeys returns every key tx's execution reads or writes: its sender
// account (nonce + every debited asset) and every recipient's (account,
// asset) balance. Global counters (burned_supply, gas_fees) are
// deliberately excluded: both are accumulated with atomic.Uint64.Add, which
// is commutative, so concurrent increments from different batches still
// produce the same final total regardless of interleaving — D2's "any
// shared counter write" is satisfied by that commutativity rather than by
// forcing every TX into one batch (see DESIGN.md).
func touchedKeys(tx Tx) []conflictKey {
	// {account: tx.Sender, asset: FeeAssetID} (the zero AssetId) doubles as
	// the sender/nonce conflict key: every TX debits its sender in at least
	// the fee asset, so two TXs from the same sender always collide here
	// even before considering which assets they transfer.
	keys := []conflictKey{{account: tx.Sender, asset: FeeAssetID}}
	for _, tr := range tx.Transfers {
		keys = append(keys, conflictKey{account: tx.Sender, asset: tr.Asset})
		keys = append(keys, conflictKey{account: tr.Recipient, asset: tr.Asset})
	}
	return keys
}

// unionFind is a standard disjoint-set structure with path halving and
// union-by-nothing-fancy (N is small: one block's TX count).
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// partitionIntoBatches groups txs into conflict groups per D2: two TXs land
// in the same group iff they are connected by a chain of shared
// conflictKeys, directly or transitively. A group's members therefore carry
// a real ordering dependency on each other and must be replayed in their
// original §4.4 order (D3); distinct groups share no key by construction
// and so carry no dependency on each other at all, making them safe to run
// concurrently. Groups are returned in ascending order of their lowest
// member index, and each group's own indices stay in ascending (original)
// order.
func partitionIntoBatches(txs []Tx) [][]int {
	uf := newUnionFind(len(txs))
	lastSeenAt := make(map[conflictKey]int)
	for i, tx := range txs {
		for _, k := range touchedKeys(tx) {
			if prev, ok := lastSeenAt[k]; ok {
				uf.union(i, prev)
			}
			lastSeenAt[k] = i
		}
	}

	groups := make(map[int][]int)
	order := make([]int, 0)
	for i := range txs {
		root := uf.find(i)
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], i)
	}

	batches := make([][]int, 0, len(order))
	for _, root := range order {
		batches = append(batches, groups[root])
	}
	return batches
}
