// Package tendermint implements a Tendermint-style BFT consensus family:
// weighted round-robin proposer selection by voting power, round-based
// prevote/precommit voting, and instant finality once a supermajority of
// active validators votes for a block.
package tendermint

import (
	"sort"
	"sync"
	"time"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// Config holds Tendermint's tunable parameters.
type Config struct {
	BlockTime         time.Duration
	TimeoutPropose    time.Duration
	TimeoutPrevote    time.Duration
	TimeoutPrecommit  time.Duration
	MaxBlockSize      int
	MaxValidators     int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		BlockTime:        5 * time.Second,
		TimeoutPropose:   3 * time.Second,
		TimeoutPrevote:   1 * time.Second,
		TimeoutPrecommit: 1 * time.Second,
		MaxBlockSize:     1000,
		MaxValidators:    100,
	}
}

// Tendermint tracks one consensus round at a time, finalizing once a
// supermajority of votes is collected.
type Tendermint struct {
	mu           sync.Mutex
	cfg          Config
	currentRound *consensus.Round
	rounds       []*consensus.Round
}

// New constructs a Tendermint mechanism with cfg.
func New(cfg Config) *Tendermint {
	return &Tendermint{cfg: cfg}
}

func (t *Tendermint) Initialize(chain consensus.ChainView) error {
	return nil
}

func (t *Tendermint) SelectTransactions(pending []*tx.Transaction, proposer string) []*tx.Transaction {
	sorted := append([]*tx.Transaction(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Nonce != sorted[j].Nonce {
			return sorted[i].Nonce < sorted[j].Nonce
		}
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	if len(sorted) > t.cfg.MaxBlockSize {
		sorted = sorted[:t.cfg.MaxBlockSize]
	}
	return sorted
}

func (t *Tendermint) PrepareConsensusData(proposer string, previous *block.Block) map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	height := uint64(0)
	if previous != nil {
		height = previous.Height + 1
	}

	if t.currentRound == nil || t.currentRound.Height != height {
		t.currentRound = consensus.NewRound(height, 0)
	}

	return map[string]any{
		"consensus": "tendermint",
		"height":    height,
		"round":     t.currentRound.RoundNumber,
		"proposer":  proposer,
	}
}

func (t *Tendermint) ValidateBlock(b *block.Block, st *state.State) bool {
	validator, ok := st.Validators[b.ValidatorAddress]
	if !ok || !validator.Active {
		return false
	}

	expected := t.SelectProposer(b.Height, st.ActiveValidators())
	if b.ValidatorAddress != expected {
		return false
	}

	if b.Timestamp < float64(time.Now().Unix())-t.cfg.BlockTime.Seconds()*2 {
		return false
	}

	return len(b.Transactions) <= t.cfg.MaxBlockSize
}

// SelectProposer performs weighted round-robin by voting power: validators
// are sorted by address, then the one whose cumulative power range
// contains height mod total_power proposes.
func (t *Tendermint) SelectProposer(height uint64, validators []*state.Validator) string {
	if len(validators) == 0 {
		return ""
	}

	var totalPower int64
	for _, v := range validators {
		totalPower += v.Power
	}
	if totalPower == 0 {
		return validators[0].Address
	}

	sorted := append([]*state.Validator(nil), validators...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	target := int64(height) % totalPower
	var cumulative int64
	for _, v := range sorted {
		cumulative += v.Power
		if cumulative > target {
			return v.Address
		}
	}
	return sorted[0].Address
}

// AddVote records a prevote/precommit for the round at height. Returns true
// once the round has collected a supermajority of activeValidatorCount.
func (t *Tendermint) AddVote(blockHash string, height uint64, validatorAddress, signature string, activeValidatorCount int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.currentRound == nil || t.currentRound.Height != height {
		return false
	}

	t.currentRound.AddVote(*consensus.NewVote(blockHash, height, validatorAddress, signature))
	return t.currentRound.HasSupermajority(activeValidatorCount)
}

func (t *Tendermint) OnBlockCommitted(b *block.Block, st *state.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.currentRound != nil && t.currentRound.Height == b.Height {
		t.currentRound.Complete()
		t.rounds = append(t.rounds, t.currentRound)
		t.currentRound = nil
	}
}

func (t *Tendermint) GetConsensusParams() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	var currentRound any
	if t.currentRound != nil {
		currentRound = t.currentRound.RoundNumber
	}

	return map[string]any{
		"block_time":         t.cfg.BlockTime.Seconds(),
		"timeout_propose":    t.cfg.TimeoutPropose.Seconds(),
		"timeout_prevote":    t.cfg.TimeoutPrevote.Seconds(),
		"timeout_precommit":  t.cfg.TimeoutPrecommit.Seconds(),
		"max_block_size":     t.cfg.MaxBlockSize,
		"max_validators":     t.cfg.MaxValidators,
		"current_round":      currentRound,
		"total_rounds":       len(t.rounds),
	}
}

func (t *Tendermint) UpdateConsensusParams(params map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := params["max_block_size"].(int); ok {
		t.cfg.MaxBlockSize = v
	}
}

var _ consensus.Mechanism = (*Tendermint)(nil)
