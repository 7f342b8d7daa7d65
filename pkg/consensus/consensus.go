// Package consensus defines the ledger's pluggable consensus plugin
// interface, the read-only chain view a mechanism works against, and the
// shared vote/round aggregation types used by its BFT family members.
package consensus

import (
	"time"

	"github.com/google/uuid"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// Mechanism is the uniform contract every consensus family implements.
// Selection, validation, and metadata preparation are pure with respect to
// the supplied state — mechanisms hold their own local bookkeeping (vote
// sets, epochs, terms) but never mutate engine-owned state directly.
type Mechanism interface {
	// Initialize wires a read-only back-reference to chain state and seeds
	// mechanism-local bookkeeping from the current validator set.
	Initialize(chain ChainView) error

	// SelectTransactions orders and truncates the pending pool for the next
	// block. Must be deterministic and side-effect free.
	SelectTransactions(pending []*tx.Transaction, proposer string) []*tx.Transaction

	// PrepareConsensusData returns the opaque metadata to stamp into the
	// next block's header.
	PrepareConsensusData(proposer string, previous *block.Block) map[string]any

	// ValidateBlock applies mechanism-specific rules beyond the chain
	// engine's own structural checks.
	ValidateBlock(b *block.Block, st *state.State) bool

	// SelectProposer returns the address expected to propose at height, or
	// "" if the mechanism has no opinion (admits any active validator).
	SelectProposer(height uint64, validators []*state.Validator) string

	// OnBlockCommitted is the post-commit hook for mechanism-state updates:
	// rotation, epoch advance, vote garbage collection.
	OnBlockCommitted(b *block.Block, st *state.State)

	// GetConsensusParams returns the mechanism's tunable parameters.
	GetConsensusParams() map[string]any

	// UpdateConsensusParams merges new tunable parameter values.
	UpdateConsensusParams(params map[string]any)
}

// ChainView is the read-only surface a mechanism needs from the chain
// engine: the current validator set and the tip block. Mechanisms hold
// this as a weak, relation-only reference — they never mutate engine-owned
// structures directly; all mutation flows through executed transactions.
type ChainView interface {
	ActiveValidators() []*state.Validator
	TipBlock() *block.Block
	Height() uint64
	// BlockAtHeight returns the committed block at height, or nil if none
	// exists yet. Mechanisms use this (rather than reading through state)
	// to resolve the previous block during block validation.
	BlockAtHeight(height uint64) *block.Block
}

// Vote is a single validator's vote for a block at a height, used by the
// BFT-style consensus families (Tendermint-style, PBFT, voting-based).
type Vote struct {
	ID        string    `json:"id"`
	BlockHash string    `json:"block_hash"`
	Height    uint64    `json:"height"`
	Validator string    `json:"validator_address"`
	Signature string    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`
}

// NewVote stamps a fresh vote with a generated ID and the current time.
func NewVote(blockHash string, height uint64, validator, signature string) *Vote {
	return &Vote{
		ID:        uuid.NewString(),
		BlockHash: blockHash,
		Height:    height,
		Validator: validator,
		Signature: signature,
		Timestamp: time.Now(),
	}
}

// Round aggregates votes for a single height's consensus attempt.
type Round struct {
	Height        uint64          `json:"height"`
	RoundNumber   int             `json:"round_number"`
	Votes         map[string]Vote `json:"votes"` // keyed by validator address
	ProposedBlock *block.Block    `json:"proposed_block,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// NewRound starts a fresh, empty round for height.
func NewRound(height uint64, roundNumber int) *Round {
	return &Round{
		Height:      height,
		RoundNumber: roundNumber,
		Votes:       map[string]Vote{},
		StartedAt:   time.Now(),
	}
}

// AddVote records v, keyed by validator address (idempotent — a second vote
// from the same validator replaces the first rather than duplicating it).
func (r *Round) AddVote(v Vote) {
	r.Votes[v.Validator] = v
}

// HasSupermajority reports whether the round has collected votes from at
// least floor(2n/3)+1 of n active validators.
func (r *Round) HasSupermajority(activeValidatorCount int) bool {
	return len(r.Votes) >= RequiredSupermajority(activeValidatorCount)
}

// RequiredSupermajority returns floor(2n/3)+1 for n active validators.
func RequiredSupermajority(n int) int {
	return (2*n)/3 + 1
}

// Complete marks the round finished at the current time.
func (r *Round) Complete() {
	now := time.Now()
	r.CompletedAt = &now
}

// ValidateThreshold reports whether approveCount out of totalCount meets or
// exceeds the given fractional threshold.
func ValidateThreshold(approveCount, totalCount int, threshold float64) bool {
	if totalCount == 0 {
		return false
	}
	return float64(approveCount)/float64(totalCount) >= threshold
}

// CalculateRequiredCount returns total*threshold rounded down, with a floor
// of 1 whenever total > 0. Because it rounds down, the count can fall short
// of threshold (total 3 at 0.66 gives 1).
func CalculateRequiredCount(total int, threshold float64) int {
	required := int(float64(total) * threshold)
	if required == 0 && total > 0 {
		required = 1
	}
	return required
}

// IsByzantineFaultTolerant reports whether a validator set of the given
// size can tolerate maxFaults Byzantine validators: n >= 3f+1.
func IsByzantineFaultTolerant(totalValidators, maxFaults int) bool {
	return totalValidators >= 3*maxFaults+1
}

// MaxFaults returns the largest f such that n >= 3f+1, i.e. floor((n-1)/3).
func MaxFaults(n int) int {
	if n == 0 {
		return 0
	}
	return (n - 1) / 3
}
