// Package roundrobin implements the simplest consensus family: validators
// take turns proposing in address order, selected by height modulo the
// authority count.
package roundrobin

import (
	"sort"
	"sync"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// Config holds RoundRobin's tunable parameters.
type Config struct {
	BlockTime              float64
	MaxBlockSize           int
	SkipInactiveValidators bool
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		BlockTime:              2,
		MaxBlockSize:           1000,
		SkipInactiveValidators: true,
	}
}

// RoundRobin rotates proposers through a fixed, sorted validator list.
type RoundRobin struct {
	mu            sync.Mutex
	cfg           Config
	chain         consensus.ChainView
	validatorList []string
	currentIndex  int
}

// New constructs a RoundRobin mechanism with cfg.
func New(cfg Config) *RoundRobin {
	return &RoundRobin{cfg: cfg}
}

func (r *RoundRobin) Initialize(chain consensus.ChainView) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chain = chain
	validators := chain.ActiveValidators()
	addrs := make([]string, 0, len(validators))
	for _, v := range validators {
		addrs = append(addrs, v.Address)
	}
	sort.Strings(addrs)
	r.validatorList = addrs
	return nil
}

func (r *RoundRobin) SelectTransactions(pending []*tx.Transaction, proposer string) []*tx.Transaction {
	sorted := append([]*tx.Transaction(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Nonce != sorted[j].Nonce {
			return sorted[i].Nonce < sorted[j].Nonce
		}
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	if len(sorted) > r.cfg.MaxBlockSize {
		sorted = sorted[:r.cfg.MaxBlockSize]
	}
	return sorted
}

func (r *RoundRobin) PrepareConsensusData(proposer string, previous *block.Block) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{
		"consensus":         "round_robin",
		"proposer_index":    r.currentIndex,
		"total_validators":  len(r.validatorList),
		"rotation_position": r.currentIndex,
	}
}

func (r *RoundRobin) ValidateBlock(b *block.Block, st *state.State) bool {
	r.mu.Lock()
	inList := contains(r.validatorList, b.ValidatorAddress)
	r.mu.Unlock()
	if !inList {
		return false
	}
	expected := r.SelectProposer(b.Height, st.ActiveValidators())
	return b.ValidatorAddress == expected
}

// SelectProposer returns validatorList[height % len], skipping a proposer
// that the supplied validators report as inactive when configured to do so.
func (r *RoundRobin) SelectProposer(height uint64, validators []*state.Validator) string {
	r.mu.Lock()
	list := r.validatorList
	r.mu.Unlock()

	if len(list) == 0 {
		return ""
	}

	inactive := map[string]bool{}
	for _, v := range validators {
		if !v.Active {
			inactive[v.Address] = true
		}
	}

	// Walk forward from the height's slot until an active proposer is
	// found, wrapping at most once around the rotation.
	for attempt := 0; attempt < len(list); attempt++ {
		index := int((height + uint64(attempt)) % uint64(len(list)))
		proposer := list[index]
		if r.cfg.SkipInactiveValidators && inactive[proposer] {
			continue
		}
		r.mu.Lock()
		r.currentIndex = index
		r.mu.Unlock()
		return proposer
	}
	return ""
}

// AddValidator appends a validator to the rotation if absent.
func (r *RoundRobin) AddValidator(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !contains(r.validatorList, address) {
		r.validatorList = append(r.validatorList, address)
	}
}

// RemoveValidator removes a validator from the rotation.
func (r *RoundRobin) RemoveValidator(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.validatorList {
		if a == address {
			r.validatorList = append(r.validatorList[:i], r.validatorList[i+1:]...)
			return
		}
	}
}

func (r *RoundRobin) OnBlockCommitted(b *block.Block, st *state.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.validatorList) == 0 {
		return
	}
	r.currentIndex = (r.currentIndex + 1) % len(r.validatorList)
}

func (r *RoundRobin) GetConsensusParams() map[string]any {
	return map[string]any{
		"block_time":               r.cfg.BlockTime,
		"max_block_size":           r.cfg.MaxBlockSize,
		"skip_inactive_validators": r.cfg.SkipInactiveValidators,
	}
}

func (r *RoundRobin) UpdateConsensusParams(params map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := params["block_time"].(float64); ok {
		r.cfg.BlockTime = v
	}
	if v, ok := params["max_block_size"].(int); ok {
		r.cfg.MaxBlockSize = v
	}
	if v, ok := params["skip_inactive_validators"].(bool); ok {
		r.cfg.SkipInactiveValidators = v
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

var _ consensus.Mechanism = (*RoundRobin)(nil)
