// Package config loads the ledger node's environment-driven runtime
// configuration: data directory, chain identity, consensus mechanism
// selection, and the optional audit-archival database.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all environment-driven configuration for a ledger node.
type Config struct {
	// Identity
	ChainID   string
	DataDir   string
	LogLevel  string

	// Consensus selection (one of the pkg/consensus/<name> families)
	ConsensusMechanism string
	BlockTime          time.Duration
	MaxBlockSize       int

	// Multi-level permission system
	MLSLevels      int
	CreatorAddress string

	// Genesis bootstrap document (YAML, see GenesisDocument)
	GenesisFile string

	// Optional Postgres-backed audit archival (pkg/auditstore)
	AuditStoreEnabled bool
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
}

// Load reads configuration from environment variables, applying safe
// development-friendly defaults for everything except CreatorAddress.
func Load() (*Config, error) {
	cfg := &Config{
		ChainID:  getEnv("LEDGER_CHAIN_ID", "ledger-devnet"),
		DataDir:  getEnv("LEDGER_DATA_DIR", "./data"),
		LogLevel: getEnv("LEDGER_LOG_LEVEL", "info"),

		ConsensusMechanism: getEnv("LEDGER_CONSENSUS", "round_robin"),
		BlockTime:          getEnvDuration("LEDGER_BLOCK_TIME", 2*time.Second),
		MaxBlockSize:       getEnvInt("LEDGER_MAX_BLOCK_SIZE", 1000),

		MLSLevels:      getEnvInt("LEDGER_MLS_LEVELS", 5),
		CreatorAddress: getEnv("LEDGER_CREATOR_ADDRESS", ""),

		GenesisFile: getEnv("LEDGER_GENESIS_FILE", ""),

		AuditStoreEnabled: getEnvBool("LEDGER_AUDITSTORE_ENABLED", false),
		DatabaseURL:       getEnv("LEDGER_DATABASE_URL", ""),
		DBMaxOpenConns:    getEnvInt("LEDGER_DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    getEnvInt("LEDGER_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime: getEnvDuration("LEDGER_DB_CONN_MAX_LIFETIME", time.Hour),
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent and
// sufficient to bootstrap a chain.
func (c *Config) Validate() error {
	var errs []string

	if c.ChainID == "" {
		errs = append(errs, "LEDGER_CHAIN_ID is required")
	}
	if c.DataDir == "" {
		errs = append(errs, "LEDGER_DATA_DIR is required")
	}
	if c.MLSLevels < 2 || c.MLSLevels > 10 {
		errs = append(errs, "LEDGER_MLS_LEVELS must be between 2 and 10")
	}
	if c.CreatorAddress == "" && c.GenesisFile == "" {
		errs = append(errs, "LEDGER_CREATOR_ADDRESS or LEDGER_GENESIS_FILE is required")
	}
	if c.AuditStoreEnabled && c.DatabaseURL == "" {
		errs = append(errs, "LEDGER_DATABASE_URL is required when LEDGER_AUDITSTORE_ENABLED is set")
	}
	switch c.ConsensusMechanism {
	case "round_robin", "poa", "tendermint", "pbft", "raft", "pos", "dpos", "lottery", "voting", "hybrid":
	default:
		errs = append(errs, fmt.Sprintf("unknown LEDGER_CONSENSUS mechanism %q", c.ConsensusMechanism))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
