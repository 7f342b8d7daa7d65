package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "ledger-devnet", cfg.ChainID)
	require.Equal(t, "round_robin", cfg.ConsensusMechanism)
	require.Equal(t, 5, cfg.MLSLevels)
	require.False(t, cfg.AuditStoreEnabled)
}

func TestValidateRequiresCreatorOrGenesisFile(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	cfg.CreatorAddress = "0xabc"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownConsensusMechanism(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.CreatorAddress = "0xabc"
	cfg.ConsensusMechanism = "proof_of_vibes"
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresDatabaseURLWhenAuditStoreEnabled(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.CreatorAddress = "0xabc"
	cfg.AuditStoreEnabled = true
	require.Error(t, cfg.Validate())

	cfg.DatabaseURL = "postgres://localhost/ledger"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeMLSLevels(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	cfg.CreatorAddress = "0xabc"
	cfg.MLSLevels = 1
	require.Error(t, cfg.Validate())
	cfg.MLSLevels = 11
	require.Error(t, cfg.Validate())
}
