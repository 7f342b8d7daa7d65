// Command ledgerd runs a single ledger node: it loads configuration and an
// optional genesis document, constructs the configured consensus mechanism,
// and either bootstraps a fresh chain or resumes a persisted one.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/certen/ledger-core/pkg/auditstore"
	"github.com/certen/ledger-core/pkg/chain"
	"github.com/certen/ledger-core/pkg/config"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/consensus/dpos"
	"github.com/certen/ledger-core/pkg/consensus/hybrid"
	"github.com/certen/ledger-core/pkg/consensus/lottery"
	"github.com/certen/ledger-core/pkg/consensus/pbft"
	"github.com/certen/ledger-core/pkg/consensus/poa"
	"github.com/certen/ledger-core/pkg/consensus/pos"
	"github.com/certen/ledger-core/pkg/consensus/raft"
	"github.com/certen/ledger-core/pkg/consensus/roundrobin"
	"github.com/certen/ledger-core/pkg/consensus/tendermint"
	"github.com/certen/ledger-core/pkg/consensus/voting"
	"github.com/certen/ledger-core/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ledgerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var genesisDoc *config.GenesisDocument
	if cfg.GenesisFile != "" {
		genesisDoc, err = config.LoadGenesisDocument(cfg.GenesisFile)
		if err != nil {
			return fmt.Errorf("load genesis document: %w", err)
		}
		cfg.ChainID = genesisDoc.ChainID
		cfg.ConsensusMechanism = genesisDoc.ConsensusMechanism
		cfg.MLSLevels = genesisDoc.MLSLevels
		cfg.CreatorAddress = genesisDoc.CreatorAddress
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := log.New(os.Stdout, "[ledgerd] ", log.LstdFlags)

	mech, err := newMechanism(cfg.ConsensusMechanism, cfg.MaxBlockSize)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()

	engine, err := chain.New(cfg.ChainID, cfg.DataDir, mech, cfg.MLSLevels, cfg.CreatorAddress,
		chain.WithLogger(logger), chain.WithMetrics(collector))
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	if err := engine.Load(); err != nil {
		validators, genesisErr := bootstrapValidators(genesisDoc, cfg.CreatorAddress)
		if genesisErr != nil {
			return genesisErr
		}
		if err := engine.Bootstrap(validators, 0); err != nil {
			return fmt.Errorf("bootstrap genesis chain: %w", err)
		}
		logger.Printf("bootstrapped new chain %s with %d validators", cfg.ChainID, len(validators))
	} else {
		logger.Printf("resumed chain %s at height %d", cfg.ChainID, engine.GetChainInfo().Height)
	}

	if cfg.AuditStoreEnabled {
		ctx := context.Background()
		store, err := auditstore.Open(ctx, cfg, auditstore.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		defer store.Close()
		logger.Printf("audit archival enabled against %s", cfg.DatabaseURL)
	}

	logger.Printf("ledgerd ready: chain_id=%s consensus=%s height=%d",
		cfg.ChainID, cfg.ConsensusMechanism, engine.GetChainInfo().Height)

	return nil
}

// bootstrapValidators resolves the genesis validator set either from a
// loaded genesis document or, absent one, a single self-validating creator
// node useful for local development.
func bootstrapValidators(doc *config.GenesisDocument, creatorAddress string) ([]chain.GenesisValidator, error) {
	if doc != nil {
		out := make([]chain.GenesisValidator, len(doc.InitialValidators))
		for i, v := range doc.InitialValidators {
			out[i] = chain.GenesisValidator{Address: v.Address, PubKey: v.PubKey, Power: v.Power, Name: v.Name}
		}
		return out, nil
	}
	if creatorAddress == "" {
		return nil, fmt.Errorf("no genesis document and no LEDGER_CREATOR_ADDRESS set")
	}
	return []chain.GenesisValidator{{Address: creatorAddress, Power: 1, Name: "genesis-validator"}}, nil
}

// newMechanism constructs the consensus mechanism named by the
// LEDGER_CONSENSUS configuration value, seeding its default tunables with
// the node's shared max-block-size setting.
func newMechanism(name string, maxBlockSize int) (consensus.Mechanism, error) {
	switch name {
	case "round_robin":
		cfg := roundrobin.DefaultConfig()
		cfg.MaxBlockSize = maxBlockSize
		return roundrobin.New(cfg), nil
	case "poa":
		cfg := poa.DefaultConfig()
		cfg.MaxBlockSize = maxBlockSize
		return poa.New(cfg), nil
	case "pos":
		cfg := pos.DefaultConfig()
		cfg.MaxBlockSize = maxBlockSize
		return pos.New(cfg), nil
	case "dpos":
		cfg := dpos.DefaultConfig()
		cfg.MaxBlockSize = maxBlockSize
		return dpos.New(cfg), nil
	case "pbft":
		cfg := pbft.DefaultConfig()
		cfg.MaxBlockSize = maxBlockSize
		return pbft.New(cfg), nil
	case "tendermint":
		cfg := tendermint.DefaultConfig()
		cfg.MaxBlockSize = maxBlockSize
		return tendermint.New(cfg), nil
	case "raft":
		cfg := raft.DefaultConfig()
		cfg.MaxBlockSize = maxBlockSize
		return raft.New(cfg), nil
	case "lottery":
		cfg := lottery.DefaultConfig()
		cfg.MaxBlockSize = maxBlockSize
		return lottery.New(cfg), nil
	case "hybrid":
		cfg := hybrid.DefaultConfig()
		cfg.MaxBlockSize = maxBlockSize
		return hybrid.New(cfg), nil
	case "voting":
		cfg := voting.DefaultConfig()
		cfg.MaxBlockSize = maxBlockSize
		return voting.New(cfg), nil
	default:
		return nil, fmt.Errorf("unknown consensus mechanism %q", name)
	}
}
