package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GenesisDocument is the declarative bootstrap file describing a chain's
// initial validator set and chosen consensus mechanism. The JSON
// persistence files (blocks.json/state.json/permissions.json) describe a
// running chain's state; this YAML document describes how to create one in
// the first place.
type GenesisDocument struct {
	ChainID            string                   `yaml:"chain_id"`
	ConsensusMechanism string                   `yaml:"consensus_mechanism"`
	MLSLevels          int                      `yaml:"mls_levels"`
	CreatorAddress     string                   `yaml:"creator_address"`
	InitialValidators  []GenesisValidatorConfig `yaml:"initial_validators"`
}

// GenesisValidatorConfig describes one validator seeded at genesis.
type GenesisValidatorConfig struct {
	Address string `yaml:"address"`
	PubKey  string `yaml:"pub_key"`
	Power   int64  `yaml:"power"`
	Name    string `yaml:"name"`
}

// LoadGenesisDocument reads and parses a genesis YAML file at path.
func LoadGenesisDocument(path string) (*GenesisDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis file: %w", err)
	}
	var doc GenesisDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse genesis file: %w", err)
	}
	if doc.MLSLevels == 0 {
		doc.MLSLevels = 5
	}
	return &doc, nil
}
