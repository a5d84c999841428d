package dag

import (
	"sort"

	"github.com/tos-network/tosd/consensus"
	"github.com/tos-network/tosd/consensus/ghostdag"
)

// TopologicalOrder returns a deterministic total order over data's full
// mergeset (blues and reds alike), for use by the transaction executor
// (C6) when applying a block's merged blocks. Every DAG block, blue or
// red, carries its own independently-computed BlueScore from the moment it
// was colored; ordering the mergeset by (that BlueScore, BlockId) gives an
// order consistent with the selected-parent chain's own progression and
// requires no extra bookkeeping beyond GhostdagData already stores.
func TopologicalOrder(store ghostdag.DataStore, data *consensus.GhostdagData) ([]consensus.BlockId, error) {
	members := data.Mergeset()

	type keyed struct {
		id        consensus.BlockId
		blueScore uint64
	}
	entries := make([]keyed, 0, len(members))
	for _, m := range members {
		md, ok := store.Get(m)
		if !ok {
			return nil, consensus.ErrParentNotClassified
		}
		entries = append(entries, keyed{id: m, blueScore: md.BlueScore})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].blueScore != entries[j].blueScore {
			return entries[i].blueScore < entries[j].blueScore
		}
		return entries[i].id.Less(entries[j].id)
	})

	out := make([]consensus.BlockId, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out, nil
}
