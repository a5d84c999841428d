// Package dagparams holds the protocol-wide constants that parameterize
// consensus, DAA and wire behavior. Grounded on dagconfig/params.go's shape
// (a Params struct of named constants plus a canonical instance) but trimmed
// to the values this spec actually names; address/HD-wallet/RPC fields from
// the teacher's Bitcoin-network Params do not apply here and were dropped.
package dagparams

import "time"

// Params is the full set of protocol constants a tosd node is parameterized
// by. A node is always constructed with exactly one Params value; there is no
// mutable global configuration (see SPEC_FULL.md §9, "never expose as
// language-level globals").
type Params struct {
	// K is the GHOSTDAG K-cluster size bound (§4.2). Carried over from the
	// teacher's phantomK constant.
	K uint32

	// StableLimit is STABLE_LIMIT (§6): stable_height = current_height - StableLimit.
	StableLimit uint64

	// TipsLimit is TIPS_LIMIT (§6): maximum parents per block header.
	TipsLimit int

	// PruneSafetyLimit is PRUNE_SAFETY_LIMIT = StableLimit * 10 (§6).
	PruneSafetyLimit uint64

	// BlocksPropagationCapacity = StableLimit * TipsLimit (§6).
	BlocksPropagationCapacity int

	// DAAWindowSize is W (§4.5, §6): the DAA sliding-window size.
	DAAWindowSize uint64

	// TargetBlockTime is the desired inter-block time used in the DAA
	// retarget formula (§4.5).
	TargetBlockTime time.Duration

	// MinDifficultyRatio / MaxDifficultyRatio clamp the DAA retarget ratio (§4.5, §6).
	MinDifficultyRatio float64
	MaxDifficultyRatio float64

	// MaxMergesetSize bounds mergeset cardinality; MergesetBounded is
	// returned above this (§4.2 Failure). Must be >= K * TipsLimit * StableLimit.
	MaxMergesetSize int

	// PeerMaxPacketSize is PEER_MAX_PACKET_SIZE (§6): max decoded frame size.
	PeerMaxPacketSize uint32

	// PeerObjectsConcurrency is PEER_OBJECTS_CONCURRENCY (§6): per-peer
	// concurrent object-request slot count.
	PeerObjectsConcurrency int

	// RotateEveryNBytes is ROTATE_EVERY_N_BYTES (§6): AEAD rekey threshold.
	RotateEveryNBytes uint64

	// Timeouts (§6).
	ObjectRequestTimeout    time.Duration
	BootstrapStepTimeout    time.Duration
	InitConnectionTimeout   time.Duration
	OutgoingConnectTimeout  time.Duration
	SendBytesTimeout        time.Duration

	// HandshakeStringFieldMaxLen bounds version/node_tag string length (§6).
	HandshakeStringFieldMaxLen int

	// NetworkID identifies the network a node will only peer within (§4.8).
	NetworkID [16]byte
}

// phantomK mirrors the teacher's dagconfig.phantomK constant exactly: this is
// the one number spec.md leaves as "10-18" and the teacher pins to 10.
const phantomK = 10

// MainNetParams is the canonical protocol parameter set used by tests and by
// a node that is not otherwise configured.
var MainNetParams = Params{
	K:                          phantomK,
	StableLimit:                24,
	TipsLimit:                  3,
	PruneSafetyLimit:           24 * 10,
	BlocksPropagationCapacity:  24 * 3,
	DAAWindowSize:              2016,
	TargetBlockTime:            time.Second,
	MinDifficultyRatio:         0.25,
	MaxDifficultyRatio:         4.0,
	MaxMergesetSize:            phantomK * 3 * 24 * 4,
	PeerMaxPacketSize:          5 * 1024 * 1024,
	PeerObjectsConcurrency:     64,
	RotateEveryNBytes:          1 << 30,
	ObjectRequestTimeout:       15 * time.Second,
	BootstrapStepTimeout:       60 * time.Second,
	InitConnectionTimeout:      5 * time.Second,
	OutgoingConnectTimeout:     30 * time.Second,
	SendBytesTimeout:           3 * time.Second,
	HandshakeStringFieldMaxLen: 16,
}

// SimnetParams is a lower-K, shorter-window parameter set for fast
// deterministic tests, mirroring the teacher's practice of a dedicated
// low-cost Simnet/Regtest Params alongside MainNetParams.
var SimnetParams = Params{
	K:                          2,
	StableLimit:                24,
	TipsLimit:                  3,
	PruneSafetyLimit:           24 * 10,
	BlocksPropagationCapacity:  24 * 3,
	DAAWindowSize:              8,
	TargetBlockTime:            time.Second,
	MinDifficultyRatio:         0.25,
	MaxDifficultyRatio:         4.0,
	MaxMergesetSize:            2 * 3 * 24 * 4,
	PeerMaxPacketSize:          5 * 1024 * 1024,
	PeerObjectsConcurrency:     64,
	RotateEveryNBytes:          1 << 30,
	ObjectRequestTimeout:       15 * time.Second,
	BootstrapStepTimeout:       60 * time.Second,
	InitConnectionTimeout:      5 * time.Second,
	OutgoingConnectTimeout:     30 * time.Second,
	SendBytesTimeout:           3 * time.Second,
	HandshakeStringFieldMaxLen: 16,
}
