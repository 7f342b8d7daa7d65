package tx

func amountPtr(v float64) *float64 { return &v }

// NewGenesisTransaction builds the sentinel, self-signed genesis transaction
// that seeds a chain. It is exempt from signature verification at admission.
func NewGenesisTransaction(chainID string, validators []map[string]any, genesisTime float64) *Transaction {
	t := New(Genesis, GenesisSender, nil, nil, map[string]any{
		"chain_id":     chainID,
		"validators":   validators,
		"genesis_time": genesisTime,
	}, 0, genesisTime)
	t.Signature = GenesisSignature
	return t
}

// NewTransferTransaction builds a TRANSFER transaction moving amount from
// sender to recipient. The caller must still call Sign before admission.
func NewTransferTransaction(sender, recipient string, amount float64, nonce uint64, timestamp float64) *Transaction {
	return New(
		Transfer,
		sender,
		[]Input{{FromAddress: sender, Amount: amountPtr(amount)}},
		[]Output{{ToAddress: recipient, Amount: amountPtr(amount)}},
		nil,
		nonce,
		timestamp,
	)
}

// ValidatorAction is the action a VALIDATOR_UPDATE transaction requests.
type ValidatorAction string

const (
	ValidatorAdd    ValidatorAction = "add"
	ValidatorRemove ValidatorAction = "remove"
)

// NewValidatorUpdateTransaction builds a transaction that adds or removes a
// validator from the active set.
func NewValidatorUpdateTransaction(sender, validatorAddress string, action ValidatorAction, power int64, pubKey string, nonce uint64, timestamp float64) *Transaction {
	data := map[string]any{
		"validator_address": validatorAddress,
		"action":            string(action),
		"power":             power,
	}
	if pubKey != "" {
		data["pub_key"] = pubKey
	}
	return New(ValidatorUpdate, sender, nil, nil, data, nonce, timestamp)
}

// PermissionAction is the action a permission transaction requests.
type PermissionAction string

const (
	PermissionActionGrant    PermissionAction = "grant"
	PermissionActionRevoke   PermissionAction = "revoke"
	PermissionActionSetLevel PermissionAction = "set_level"
)

// NewPermissionTransaction builds a PERMISSION_GRANT or PERMISSION_REVOKE
// transaction. Exactly one of permission (flat ACL tag) or newLevel (MLS
// level, non-nil) should be set. action=set_level carries a newLevel and
// is always tagged PERMISSION_GRANT at construction; the actual
// promote/demote decision is routed by comparing newLevel to the target's
// current level at execution time, not by this tag.
func NewPermissionTransaction(sender, targetAddress string, permission string, action PermissionAction, newLevel *int, nonce uint64, timestamp float64) *Transaction {
	typ := PermissionGrant
	if action == PermissionActionRevoke {
		typ = PermissionRevoke
	}

	data := map[string]any{
		"target_address": targetAddress,
		"action":         string(action),
	}
	if permission != "" {
		data["permission"] = permission
	}
	if newLevel != nil {
		data["new_level"] = *newLevel
	}

	return New(typ, sender, nil, nil, data, nonce, timestamp)
}
