// Package poa implements Proof-of-Authority: a pre-approved authority list
// rotates round-robin, with a minimum inter-block delay enforced on top of
// round-robin's plain turn-taking. The block-time check obtains the
// previous block from the chain view, not read back out of state.
package poa

import (
	"sort"
	"sync"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// Config holds PoA's tunable parameters.
type Config struct {
	BlockTime    float64
	MaxBlockSize int
	// Authorities, if non-empty, pins the authority list rather than
	// deriving it from the active validator set at Initialize.
	Authorities []string
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{BlockTime: 2, MaxBlockSize: 2000}
}

// PoA rotates a pre-approved authority list, gated by a minimum block
// interval of block_time/2.
type PoA struct {
	mu                  sync.Mutex
	cfg                 Config
	chain               consensus.ChainView
	authorities         []string
	currentProposerIdx  int
}

// New constructs a PoA mechanism with cfg.
func New(cfg Config) *PoA {
	return &PoA{cfg: cfg, authorities: append([]string(nil), cfg.Authorities...)}
}

func (p *PoA) Initialize(chain consensus.ChainView) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chain = chain
	if len(p.authorities) == 0 {
		validators := chain.ActiveValidators()
		addrs := make([]string, 0, len(validators))
		for _, v := range validators {
			addrs = append(addrs, v.Address)
		}
		sort.Strings(addrs)
		p.authorities = addrs
	}
	return nil
}

func (p *PoA) SelectTransactions(pending []*tx.Transaction, proposer string) []*tx.Transaction {
	sorted := append([]*tx.Transaction(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].Nonce < sorted[j].Nonce
	})
	if len(sorted) > p.cfg.MaxBlockSize {
		sorted = sorted[:p.cfg.MaxBlockSize]
	}
	return sorted
}

func (p *PoA) PrepareConsensusData(proposer string, previous *block.Block) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{
		"consensus":        "poa",
		"authority":        proposer,
		"authority_index":  p.currentProposerIdx,
		"total_authorities": len(p.authorities),
	}
}

func (p *PoA) ValidateBlock(b *block.Block, st *state.State) bool {
	p.mu.Lock()
	isAuthority := contains(p.authorities, b.ValidatorAddress)
	chain := p.chain
	blockTime := p.cfg.BlockTime
	p.mu.Unlock()

	if !isAuthority {
		return false
	}

	expected := p.SelectProposer(b.Height, st.ActiveValidators())
	if b.ValidatorAddress != expected {
		return false
	}

	if b.Height > 0 && chain != nil {
		if previous := chain.BlockAtHeight(b.Height - 1); previous != nil {
			if b.Timestamp-previous.Timestamp < blockTime*0.5 {
				return false
			}
		}
	}

	return true
}

// SelectProposer returns authorities[height % len(authorities)].
func (p *PoA) SelectProposer(height uint64, validators []*state.Validator) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.authorities) == 0 {
		return ""
	}
	index := int(height % uint64(len(p.authorities)))
	p.currentProposerIdx = index
	return p.authorities[index]
}

// AddAuthority admits a new authority. Returns false if already present.
func (p *PoA) AddAuthority(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if contains(p.authorities, address) {
		return false
	}
	p.authorities = append(p.authorities, address)
	return true
}

// RemoveAuthority revokes an authority. Returns false if not present.
func (p *PoA) RemoveAuthority(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, a := range p.authorities {
		if a == address {
			p.authorities = append(p.authorities[:i], p.authorities[i+1:]...)
			return true
		}
	}
	return false
}

// IsAuthority reports whether address is a current authority.
func (p *PoA) IsAuthority(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return contains(p.authorities, address)
}

func (p *PoA) OnBlockCommitted(b *block.Block, st *state.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.authorities) == 0 {
		return
	}
	p.currentProposerIdx = (p.currentProposerIdx + 1) % len(p.authorities)
}

func (p *PoA) GetConsensusParams() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{
		"block_time":     p.cfg.BlockTime,
		"max_block_size": p.cfg.MaxBlockSize,
		"authorities":    append([]string(nil), p.authorities...),
	}
}

func (p *PoA) UpdateConsensusParams(params map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := params["block_time"].(float64); ok {
		p.cfg.BlockTime = v
	}
	if v, ok := params["max_block_size"].(int); ok {
		p.cfg.MaxBlockSize = v
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

var _ consensus.Mechanism = (*PoA)(nil)
