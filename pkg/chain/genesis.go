package chain

// GenesisValidator describes one validator seeded into the chain at
// genesis, independent of how the caller obtained it (a YAML bootstrap
// document, a hardcoded test fixture, generated keys).
type GenesisValidator struct {
	Address string
	PubKey  string
	Power   int64
	Name    string
}

func (v GenesisValidator) toMap() map[string]any {
	return map[string]any{
		"address": v.Address,
		"pub_key": v.PubKey,
		"power":   v.Power,
		"name":    v.Name,
	}
}

func genesisValidatorMaps(validators []GenesisValidator) []map[string]any {
	out := make([]map[string]any, len(validators))
	for i, v := range validators {
		out[i] = v.toMap()
	}
	return out
}
