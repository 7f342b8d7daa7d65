// Package pbft implements Practical Byzantine Fault Tolerance: a primary
// selected by view number drives a three-phase pre-prepare/prepare/commit
// protocol, tolerating up to f = (n-1)/3 Byzantine validators.
package pbft

import (
	"sort"
	"sync"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// Phase is one step of PBFT's three-phase protocol.
type Phase string

const (
	PhasePrePrepare Phase = "pre_prepare"
	PhasePrepare    Phase = "prepare"
	PhaseCommit     Phase = "commit"
	PhaseCommitted  Phase = "committed"
)

// Config holds PBFT's tunable parameters.
type Config struct {
	BlockTime          float64
	ViewChangeTimeout  float64
	MaxBlockSize       int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{BlockTime: 3, ViewChangeTimeout: 10, MaxBlockSize: 1000}
}

// PBFT tracks the current view/sequence and per-block prepare/commit
// certificates.
type PBFT struct {
	mu       sync.Mutex
	cfg      Config
	view     int
	sequence int

	preparedCertificates map[string]map[string]bool
	committedCertificates map[string]map[string]bool
}

// New constructs a PBFT mechanism with cfg.
func New(cfg Config) *PBFT {
	return &PBFT{
		cfg:                    cfg,
		preparedCertificates:   map[string]map[string]bool{},
		committedCertificates:  map[string]map[string]bool{},
	}
}

func (p *PBFT) Initialize(chain consensus.ChainView) error {
	return nil
}

func (p *PBFT) SelectTransactions(pending []*tx.Transaction, proposer string) []*tx.Transaction {
	sorted := append([]*tx.Transaction(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	if len(sorted) > p.cfg.MaxBlockSize {
		sorted = sorted[:p.cfg.MaxBlockSize]
	}
	return sorted
}

func (p *PBFT) PrepareConsensusData(proposer string, previous *block.Block) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequence++
	return map[string]any{
		"consensus": "pbft",
		"view":      p.view,
		"sequence":  p.sequence,
		"primary":   proposer,
		"phase":     string(PhasePrePrepare),
	}
}

func (p *PBFT) ValidateBlock(b *block.Block, st *state.State) bool {
	p.mu.Lock()
	view := p.view
	sequence := p.sequence
	p.mu.Unlock()

	primary := p.primary(st.ActiveValidators())
	if b.ValidatorAddress != primary {
		return false
	}

	seq := 0
	if v, ok := b.ConsensusData["sequence"]; ok {
		switch n := v.(type) {
		case int:
			seq = n
		case float64:
			seq = int(n)
		}
	}
	if seq != sequence {
		return false
	}

	viewVal := -1
	if v, ok := b.ConsensusData["view"]; ok {
		switch n := v.(type) {
		case int:
			viewVal = n
		case float64:
			viewVal = int(n)
		}
	}
	return viewVal == view
}

// SelectProposer returns the current primary.
func (p *PBFT) SelectProposer(height uint64, validators []*state.Validator) string {
	return p.primary(validators)
}

func (p *PBFT) primary(validators []*state.Validator) string {
	if len(validators) == 0 {
		return ""
	}
	sorted := append([]*state.Validator(nil), validators...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	p.mu.Lock()
	idx := p.view % len(sorted)
	p.mu.Unlock()
	return sorted[idx].Address
}

// AddPrepareMessage records a PREPARE vote from validator for blockHash.
// Returns true once 2f+1 PREPARE messages have been collected.
func (p *PBFT) AddPrepareMessage(blockHash, validator string, activeValidatorCount int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.preparedCertificates[blockHash] == nil {
		p.preparedCertificates[blockHash] = map[string]bool{}
	}
	p.preparedCertificates[blockHash][validator] = true

	required := 2*consensus.MaxFaults(activeValidatorCount) + 1
	return len(p.preparedCertificates[blockHash]) >= required
}

// AddCommitMessage records a COMMIT vote from validator for blockHash.
// Returns true once 2f+1 COMMIT messages have been collected.
func (p *PBFT) AddCommitMessage(blockHash, validator string, activeValidatorCount int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.committedCertificates[blockHash] == nil {
		p.committedCertificates[blockHash] = map[string]bool{}
	}
	p.committedCertificates[blockHash][validator] = true

	required := 2*consensus.MaxFaults(activeValidatorCount) + 1
	return len(p.committedCertificates[blockHash]) >= required
}

// TriggerViewChange advances the view, discarding in-flight certificates —
// called when the primary is suspected faulty.
func (p *PBFT) TriggerViewChange() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view++
	p.preparedCertificates = map[string]map[string]bool{}
	p.committedCertificates = map[string]map[string]bool{}
}

func (p *PBFT) OnBlockCommitted(b *block.Block, st *state.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.preparedCertificates, b.Hash)
	delete(p.committedCertificates, b.Hash)
}

func (p *PBFT) GetConsensusParams() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]any{
		"block_time":          p.cfg.BlockTime,
		"view_change_timeout": p.cfg.ViewChangeTimeout,
		"max_block_size":      p.cfg.MaxBlockSize,
		"view":                p.view,
		"sequence":            p.sequence,
	}
}

func (p *PBFT) UpdateConsensusParams(params map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := params["max_block_size"].(int); ok {
		p.cfg.MaxBlockSize = v
	}
}

var _ consensus.Mechanism = (*PBFT)(nil)
