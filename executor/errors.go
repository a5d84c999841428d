package executor

import "github.com/pkg/errors"

// Sentinel errors for the Execution error kinds named in SPEC_FULL.md §7.
var (
	ErrNonceMismatch       = errors.New("nonce mismatch")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidTxFormat     = errors.New("invalid tx format")
	ErrSelfTransfer        = errors.New("self-transfer not allowed")
	ErrExtraDataTooLarge   = errors.New("extra data too large")
	ErrUnsupportedTxKind   = errors.New("unsupported tx kind")
	ErrMultisigViolation   = errors.New("multisig violation")
)
