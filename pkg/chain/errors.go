package chain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the admission, proposal, and commit pipelines. Each is
// wrapped by one of the typed errors below so callers can use errors.Is
// against the sentinel or errors.As against the category.
var (
	ErrDuplicateTransaction = errors.New("chain: transaction already pending")
	ErrNonceTooLow          = errors.New("chain: nonce lower than account nonce")
	ErrUnknownValidator     = errors.New("chain: proposer is not an active validator")
	ErrHeightMismatch       = errors.New("chain: block height is not tip+1")
	ErrPreviousHashMismatch = errors.New("chain: previous hash does not match tip")
	ErrMerkleRootMismatch   = errors.New("chain: merkle root does not match transactions")
	ErrIncludedTxInvalid    = errors.New("chain: an included transaction fails admission re-check")
	ErrInsufficientBalance  = errors.New("chain: insufficient balance for transfer")
	ErrUnknownValidatorRef  = errors.New("chain: validator_update references an unknown validator")
	ErrPermissionMissing    = errors.New("chain: sender lacks required permission")
	ErrInvalidSecurityLevel = errors.New("chain: security_level is not a valid integer")
	ErrInsufficientClearance = errors.New("chain: sender's MLS clearance is insufficient")
)

// ValidationError wraps a malformed transaction or block: bad signature,
// bad merkle root, non-sequential height, nonce too low. It is rejected at
// the boundary without mutating state or writing to any audit log.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("chain: validation (%s): %v", e.Op, e.Err) }
func (e *ValidationError) Unwrap() error { return e.Err }

// PermissionDeniedError wraps a flat-ACL tag miss or an MLS clearance
// shortfall.
type PermissionDeniedError struct {
	Op  string
	Err error
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("chain: permission denied (%s): %v", e.Op, e.Err)
}
func (e *PermissionDeniedError) Unwrap() error { return e.Err }

// StateConflictError wraps a failure raised during transaction execution:
// insufficient balance, an unknown validator on removal. The chain engine
// catches this, rolls back the whole block via the pre-execution snapshot,
// and rejects the block.
type StateConflictError struct {
	Op  string
	Err error
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("chain: state conflict (%s): %v", e.Op, e.Err)
}
func (e *StateConflictError) Unwrap() error { return e.Err }

// ConsensusRejectError wraps a mechanism-specific violation: wrong
// proposer, insufficient votes, invalid term/view. The block is rejected
// with no state impact.
type ConsensusRejectError struct {
	Mechanism string
}

func (e *ConsensusRejectError) Error() string {
	return fmt.Sprintf("chain: consensus (%s) rejected block", e.Mechanism)
}

// IOError wraps a persistence read/write failure. On write, the in-memory
// state has already been updated; callers should surface this to the
// operator and halt further commits until resolved.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("chain: io (%s): %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }
