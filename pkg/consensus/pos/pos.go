// Package pos implements Proof-of-Stake: stake-weighted randomized proposer
// selection with epoch bookkeeping and slashing.
//
// The per-height draw seed is the first 8 bytes of SHA256 of the decimal
// height, so proposer selection is deterministic per height while keeping
// the stake-weighted distribution.
package pos

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// Config holds PoS's tunable parameters.
type Config struct {
	BlockTime        float64
	MinStake         float64
	MaxBlockSize     int
	EpochLength      uint64
	SlashingPenalty  float64
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{BlockTime: 6, MinStake: 100, MaxBlockSize: 1000, EpochLength: 100, SlashingPenalty: 0.1}
}

// PoS selects proposers by stake-weighted randomness, seeded
// deterministically from the target height.
type PoS struct {
	mu               sync.Mutex
	cfg              Config
	stakes           map[string]float64
	slashedValidators map[string]float64
	currentEpoch     uint64
}

// New constructs a PoS mechanism with cfg.
func New(cfg Config) *PoS {
	return &PoS{cfg: cfg, stakes: map[string]float64{}, slashedValidators: map[string]float64{}}
}

func (p *PoS) Initialize(chain consensus.ChainView) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range chain.ActiveValidators() {
		p.stakes[v.Address] = float64(v.Power * 10)
	}
	return nil
}

func (p *PoS) SelectTransactions(pending []*tx.Transaction, proposer string) []*tx.Transaction {
	sorted := append([]*tx.Transaction(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	if len(sorted) > p.cfg.MaxBlockSize {
		sorted = sorted[:p.cfg.MaxBlockSize]
	}
	return sorted
}

func (p *PoS) PrepareConsensusData(proposer string, previous *block.Block) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0.0
	for _, s := range p.stakes {
		total += s
	}
	return map[string]any{
		"consensus":       "pos",
		"validator_stake": p.stakes[proposer],
		"total_stake":     total,
		"epoch":           p.currentEpoch,
	}
}

func (p *PoS) ValidateBlock(b *block.Block, st *state.State) bool {
	p.mu.Lock()
	stake := p.stakes[b.ValidatorAddress]
	_, slashed := p.slashedValidators[b.ValidatorAddress]
	minStake := p.cfg.MinStake
	p.mu.Unlock()

	if stake < minStake || slashed {
		return false
	}

	expected := p.SelectProposer(b.Height, st.ActiveValidators())
	return b.ValidatorAddress == expected
}

// SelectProposer performs stake-weighted random sampling over eligible
// (unslashed, sufficiently-staked) validators, seeded by height.
func (p *PoS) SelectProposer(height uint64, validators []*state.Validator) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.stakes) == 0 {
		return ""
	}

	type entry struct {
		address string
		stake   float64
	}
	eligible := make([]entry, 0, len(p.stakes))
	addrs := make([]string, 0, len(p.stakes))
	for addr := range p.stakes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		stake := p.stakes[addr]
		if _, slashed := p.slashedValidators[addr]; slashed {
			continue
		}
		if stake < p.cfg.MinStake {
			continue
		}
		eligible = append(eligible, entry{addr, stake})
	}
	if len(eligible) == 0 {
		return ""
	}

	seed := heightSeed(height)
	rng := rand.New(rand.NewSource(seed))

	total := 0.0
	for _, e := range eligible {
		total += e.stake
	}
	target := rng.Float64() * total

	cumulative := 0.0
	for _, e := range eligible {
		cumulative += e.stake
		if cumulative >= target {
			return e.address
		}
	}
	return eligible[0].address
}

// heightSeed derives a deterministic int64 RNG seed from SHA256(str(height)).
func heightSeed(height uint64) int64 {
	digest := sha256.Sum256([]byte(fmt.Sprintf("%d", height)))
	return int64(binary.BigEndian.Uint64(digest[:8]))
}

// AddStake increases validatorAddress's stake.
func (p *PoS) AddStake(validatorAddress string, amount float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stakes[validatorAddress] += amount
}

// RemoveStake decreases validatorAddress's stake. Returns false if the
// validator's current stake is below amount.
func (p *PoS) RemoveStake(validatorAddress string, amount float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stakes[validatorAddress] < amount {
		return false
	}
	p.stakes[validatorAddress] -= amount
	return true
}

// SlashValidator removes slashing_penalty's fraction of stake and records
// the penalty, excluding the validator from future proposer selection.
func (p *PoS) SlashValidator(validatorAddress string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stake, ok := p.stakes[validatorAddress]
	if !ok {
		return
	}
	penalty := stake * p.cfg.SlashingPenalty
	p.stakes[validatorAddress] -= penalty
	p.slashedValidators[validatorAddress] = penalty
}

func (p *PoS) OnBlockCommitted(b *block.Block, st *state.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.EpochLength > 0 && b.Height%p.cfg.EpochLength == 0 {
		p.currentEpoch++
	}
}

func (p *PoS) GetConsensusParams() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{
		"block_time":       p.cfg.BlockTime,
		"min_stake":        p.cfg.MinStake,
		"max_block_size":   p.cfg.MaxBlockSize,
		"epoch_length":     p.cfg.EpochLength,
		"slashing_penalty": p.cfg.SlashingPenalty,
	}
}

func (p *PoS) UpdateConsensusParams(params map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := params["min_stake"].(float64); ok {
		p.cfg.MinStake = v
	}
	if v, ok := params["slashing_penalty"].(float64); ok {
		p.cfg.SlashingPenalty = v
	}
}

var _ consensus.Mechanism = (*PoS)(nil)
