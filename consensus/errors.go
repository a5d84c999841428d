package consensus

import "github.com/pkg/errors"

// Sentinel errors for every consensus-level error kind named in SPEC_FULL.md
// §7. Each is a package-level error value so callers can use errors.Is after
// a call-site errors.Wrap/Wrapf, mirroring the teacher's own
// github.com/pkg/errors idiom throughout blockdag/*.go (errors.Errorf,
// errors.Wrap) combined with Go 1.13 sentinel-error wrapping.
var (
	// ErrUnknownParent is returned by the reachability index (C1) when a
	// block's parents are not all already indexed (§4.1 Failure).
	ErrUnknownParent = errors.New("unknown parent")

	// ErrAlreadyIndexed is returned by the reachability index on a re-add of
	// an already-indexed block hash (§8 "Reachability add then query is
	// idempotent under re-add").
	ErrAlreadyIndexed = errors.New("block already indexed")

	// ErrParentNotClassified is returned by GHOSTDAG coloring (C2) when a
	// parent lacks GhostdagData (§4.2 Failure).
	ErrParentNotClassified = errors.New("parent not classified")

	// ErrMergesetBounded is returned when a mergeset's cardinality exceeds
	// the implementation-defined safety bound (§4.2 Failure).
	ErrMergesetBounded = errors.New("mergeset exceeds safety bound")

	// ErrInvalidTimestamp is returned by header validation.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidWork is returned when a block's declared work/target is
	// inconsistent with its header.
	ErrInvalidWork = errors.New("invalid work")

	// ErrKClusterViolation is returned at validation time when a declared
	// mergeset coloring violates the K-cluster rule.
	ErrKClusterViolation = errors.New("k-cluster violation")

	// ErrNoTips is returned by fork-choice (C3) when the tip set is empty;
	// spec.md treats this as a fatal bug (only possible pre-genesis).
	ErrNoTips = errors.New("no tips")
)

// errInvalidBlockIdLength is a local helper, not a sentinel (the length is
// part of the message, not something callers branch on with errors.Is).
func errInvalidBlockIdLength(n int) error {
	return errors.Errorf("invalid block id length: got %d bytes, want %d", n, BlockIdSize)
}
