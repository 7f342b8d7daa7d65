package chain

import (
	"fmt"

	"github.com/certen/ledger-core/pkg/tx"
)

// AddTransaction runs the admission checks — signature, sender derivation,
// nonce, permissions, duplication — and, if they all pass, appends t to the
// pending pool. Genesis transactions bypass the signature checks
// exclusively.
func (e *Engine) AddTransaction(t *tx.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	digest, err := t.Hash()
	if err != nil {
		e.countRejected("malformed")
		return &ValidationError{Op: "admission", Err: err}
	}

	if err := t.Validate(); err != nil {
		e.countRejected("signature")
		return &ValidationError{Op: "admission", Err: err}
	}

	if t.Sender != tx.GenesisSender {
		account := e.state.GetAccount(t.Sender)
		if t.Nonce < account.Nonce {
			e.countRejected("nonce")
			return &ValidationError{Op: "admission", Err: ErrNonceTooLow}
		}

		if err := e.checkTransactionPermissionsLocked(t); err != nil {
			e.countRejected("permission")
			return err
		}
	}

	if e.pendingDigests[digest] {
		e.countRejected("duplicate")
		return &ValidationError{Op: "admission", Err: ErrDuplicateTransaction}
	}

	e.pending = append(e.pending, t)
	e.pendingDigests[digest] = true
	e.countAdmitted(string(t.Type))
	return nil
}

// checkTransactionPermissionsLocked gates admission on the sender's
// standing: the sender must hold the flat permission tag the transaction
// kind requires, and, when data.security_level is present, the sender's
// MLS clearance must dominate it.
func (e *Engine) checkTransactionPermissionsLocked(t *tx.Transaction) error {
	if required, ok := requiredPermission[t.Type]; ok {
		if !e.state.HasPermission(t.Sender, string(required)) {
			return &PermissionDeniedError{Op: "flat acl", Err: fmt.Errorf("%w: %s", ErrPermissionMissing, required)}
		}
	}

	if raw, ok := t.Data["security_level"]; ok {
		level, ok := asInt(raw)
		if !ok {
			return &ValidationError{Op: "admission", Err: ErrInvalidSecurityLevel}
		}
		if e.mls.GetUserLevel(t.Sender) < level {
			return &PermissionDeniedError{Op: "mls clearance", Err: ErrInsufficientClearance}
		}
	}

	return nil
}

func (e *Engine) countAdmitted(kind string) {
	if e.metrics != nil {
		e.metrics.TransactionsAdmitted.WithLabelValues(kind).Inc()
	}
}

func (e *Engine) countRejected(reason string) {
	if e.metrics != nil {
		e.metrics.TransactionsRejected.WithLabelValues(reason).Inc()
	}
}
