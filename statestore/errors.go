package statestore

import "github.com/pkg/errors"

// Sentinel errors for the Storage error kinds named in SPEC_FULL.md §7.
var (
	ErrSnapshotMissing = errors.New("snapshot missing")
	ErrCommitConflict  = errors.New("commit conflict")
	ErrPruned          = errors.New("topoheight pruned")
)
