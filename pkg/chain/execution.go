package chain

import (
	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// executeBlockLocked runs every transaction in b against e.state in order,
// stopping at the first execution failure. The caller is responsible for
// snapshotting beforehand and restoring on error.
func (e *Engine) executeBlockLocked(b *block.Block) error {
	for _, t := range b.Transactions {
		if err := e.executeTransactionLocked(t); err != nil {
			return err
		}
	}
	return nil
}

// executeTransactionLocked dispatches a single transaction by kind. Unknown
// or no-op kinds (GENESIS, CUSTOM, DEPLOY_CONTRACT, CALL_CONTRACT) succeed
// without mutating state; there is no contract VM behind the contract
// kinds.
func (e *Engine) executeTransactionLocked(t *tx.Transaction) error {
	switch t.Type {
	case tx.Transfer:
		return e.executeTransferLocked(t)
	case tx.ValidatorUpdate:
		return e.executeValidatorUpdateLocked(t)
	case tx.PermissionGrant, tx.PermissionRevoke:
		return e.executePermissionChangeLocked(t)
	default:
		return nil
	}
}

func (e *Engine) executeTransferLocked(t *tx.Transaction) error {
	if len(t.Outputs) == 0 {
		return nil
	}
	for _, out := range t.Outputs {
		amount := 0.0
		if out.Amount != nil {
			amount = *out.Amount
		}
		if !e.state.Transfer(t.Sender, out.ToAddress, amount) {
			return &StateConflictError{Op: "transfer", Err: ErrInsufficientBalance}
		}
	}
	return nil
}

// executeValidatorUpdateLocked adds, removes, or re-powers a validator per
// data.action ("add" | "remove"); an unrecognized action is a no-op.
func (e *Engine) executeValidatorUpdateLocked(t *tx.Transaction) error {
	address, ok := asString(t.Data["validator_address"])
	if !ok {
		return nil
	}
	action, _ := asString(t.Data["action"])

	switch action {
	case "add":
		power, _ := asInt64(t.Data["power"])
		pubKey, _ := asString(t.Data["pub_key"])
		name, _ := asString(t.Data["name"])
		if existing := e.state.GetValidator(address); existing != nil {
			existing.Power = power
			existing.Active = true
			return nil
		}
		e.state.AddValidator(state.NewValidator(address, pubKey, power, name))
		return nil
	case "remove":
		if !e.state.RemoveValidator(address) {
			return &StateConflictError{Op: "validator_update remove", Err: ErrUnknownValidatorRef}
		}
		return nil
	default:
		return nil
	}
}

// executePermissionChangeLocked routes a PERMISSION_GRANT/PERMISSION_REVOKE
// transaction. When data.new_level is present it is compared to the
// target's current MLS level: a higher level is an MLS promotion, a lower
// one a demotion, and an equal one changes nothing. Only when new_level is
// absent is the transaction a flat-ACL tag grant/revoke on data.permission.
func (e *Engine) executePermissionChangeLocked(t *tx.Transaction) error {
	target, ok := asString(t.Data["target_address"])
	if !ok {
		return nil
	}

	if raw, ok := t.Data["new_level"]; ok {
		newLevel, ok := asInt(raw)
		if !ok {
			return nil
		}
		currentLevel := e.mls.GetUserLevel(target)
		if newLevel > currentLevel {
			e.mls.PromoteUser(t.Sender, target, newLevel)
		} else if newLevel < currentLevel {
			e.mls.DemoteUser(t.Sender, target, newLevel)
		}
		return nil
	}

	permission, ok := asString(t.Data["permission"])
	if !ok {
		return nil
	}
	if t.Type == tx.PermissionGrant {
		e.state.GrantPermission(target, permission)
	} else {
		e.state.RevokePermission(target, permission)
	}
	return nil
}
