// Package voting implements voting-based consensus: any active validator
// may propose, competing proposals are tracked concurrently, and a proposal
// commits once a supermajority of active validators has voted for it.
package voting

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// Config holds Voting's tunable parameters.
type Config struct {
	BlockTime               float64
	MaxBlockSize            int
	VotingThreshold         float64
	ProposalTimeout         time.Duration
	MaxConcurrentProposals  int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		BlockTime:              4,
		MaxBlockSize:           1000,
		VotingThreshold:        0.66,
		ProposalTimeout:        10 * time.Second,
		MaxConcurrentProposals: 3,
	}
}

// ProposalStatus reports a proposal's current vote tally.
type ProposalStatus struct {
	BlockHash      string
	Height         uint64
	Proposer       string
	VotesReceived  int
	VotesRequired  int
	Voters         []string
	ProposalTime   time.Time
	Expired        bool
}

type proposalState struct {
	block        *block.Block
	voters       map[string]bool
	proposalTime time.Time
}

// Voting tracks competing block proposals and their votes, committing once
// a proposal clears the configured supermajority of active validators.
type Voting struct {
	mu        sync.Mutex
	cfg       Config
	chain     consensus.ChainView
	proposals map[string]*proposalState // block hash -> state
	lastCommittedHeight uint64
}

// New constructs a Voting mechanism with cfg.
func New(cfg Config) *Voting {
	return &Voting{cfg: cfg, proposals: map[string]*proposalState{}}
}

func (v *Voting) Initialize(chain consensus.ChainView) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chain = chain
	return nil
}

func (v *Voting) SelectTransactions(pending []*tx.Transaction, proposer string) []*tx.Transaction {
	sorted := append([]*tx.Transaction(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].Nonce < sorted[j].Nonce
	})
	if len(sorted) > v.cfg.MaxBlockSize {
		sorted = sorted[:v.cfg.MaxBlockSize]
	}
	return sorted
}

func (v *Voting) PrepareConsensusData(proposer string, previous *block.Block) map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return map[string]any{
		"consensus":        "voting",
		"proposer":         proposer,
		"voting_threshold": v.cfg.VotingThreshold,
	}
}

func (v *Voting) ValidateBlock(b *block.Block, st *state.State) bool {
	validator, ok := st.Validators[b.ValidatorAddress]
	if !ok || !validator.Active {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	proposal, tracked := v.proposals[b.Hash]
	if !tracked {
		return true
	}

	required := requiredVotes(len(st.ActiveValidators()), v.cfg.VotingThreshold)
	return len(proposal.voters) >= required
}

// SelectProposer returns the active validator at height modulo the active
// set's size — any validator may propose under this family.
func (v *Voting) SelectProposer(height uint64, validators []*state.Validator) string {
	active := make([]*state.Validator, 0, len(validators))
	for _, val := range validators {
		if val.Active {
			active = append(active, val)
		}
	}
	if len(active) == 0 {
		return ""
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Address < active[j].Address })
	return active[int(height%uint64(len(active)))].Address
}

// ProposeBlockForVoting admits b as a new proposal competing for its
// height. Returns false if too many proposals are already active or b is
// already proposed.
func (v *Voting) ProposeBlockForVoting(b *block.Block, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.pruneExpiredLocked(now)
	if len(v.proposals) >= v.cfg.MaxConcurrentProposals {
		return false
	}
	if _, exists := v.proposals[b.Hash]; exists {
		return false
	}

	v.proposals[b.Hash] = &proposalState{
		block:        b,
		voters:       map[string]bool{},
		proposalTime: now,
	}
	return true
}

// CastVote records voterAddress's vote for blockHash. Returns true once the
// vote is accepted; the caller should separately query vote counts via
// GetProposalStatus to learn whether the threshold has now been reached.
func (v *Voting) CastVote(blockHash, voterAddress string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	proposal, ok := v.proposals[blockHash]
	if !ok {
		return false
	}
	if v.isExpiredLocked(blockHash, now) {
		delete(v.proposals, blockHash)
		return false
	}

	if proposal.voters[voterAddress] {
		return false
	}
	proposal.voters[voterAddress] = true
	return true
}

// GetWinningProposal returns the proposal at height that has cleared the
// voting threshold against activeValidatorCount, or nil.
func (v *Voting) GetWinningProposal(height uint64, activeValidatorCount int) *block.Block {
	v.mu.Lock()
	defer v.mu.Unlock()

	required := requiredVotes(activeValidatorCount, v.cfg.VotingThreshold)
	for _, proposal := range v.proposals {
		if proposal.block.Height == height && len(proposal.voters) >= required {
			return proposal.block
		}
	}
	return nil
}

// GetProposalStatus reports blockHash's current vote tally, or nil if
// unknown.
func (v *Voting) GetProposalStatus(blockHash string, activeValidatorCount int, now time.Time) *ProposalStatus {
	v.mu.Lock()
	defer v.mu.Unlock()

	proposal, ok := v.proposals[blockHash]
	if !ok {
		return nil
	}

	voters := make([]string, 0, len(proposal.voters))
	for addr := range proposal.voters {
		voters = append(voters, addr)
	}
	sort.Strings(voters)

	return &ProposalStatus{
		BlockHash:     blockHash,
		Height:        proposal.block.Height,
		Proposer:      proposal.block.ValidatorAddress,
		VotesReceived: len(proposal.voters),
		VotesRequired: requiredVotes(activeValidatorCount, v.cfg.VotingThreshold),
		Voters:        voters,
		ProposalTime:  proposal.proposalTime,
		Expired:       v.isExpiredLocked(blockHash, now),
	}
}

func (v *Voting) isExpiredLocked(blockHash string, now time.Time) bool {
	proposal, ok := v.proposals[blockHash]
	if !ok {
		return true
	}
	return now.Sub(proposal.proposalTime) > v.cfg.ProposalTimeout
}

func (v *Voting) pruneExpiredLocked(now time.Time) {
	for hash, proposal := range v.proposals {
		if now.Sub(proposal.proposalTime) > v.cfg.ProposalTimeout {
			delete(v.proposals, hash)
		}
	}
}

// requiredVotes is ceil(total * threshold): a fractional requirement always
// rounds up to the next whole validator.
func requiredVotes(totalValidators int, threshold float64) int {
	return int(math.Ceil(float64(totalValidators) * threshold))
}

func (v *Voting) OnBlockCommitted(b *block.Block, st *state.State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastCommittedHeight = b.Height
	delete(v.proposals, b.Hash)
	for hash, proposal := range v.proposals {
		if proposal.block.Height <= b.Height {
			delete(v.proposals, hash)
		}
	}
}

func (v *Voting) GetConsensusParams() map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return map[string]any{
		"block_time":                v.cfg.BlockTime,
		"max_block_size":            v.cfg.MaxBlockSize,
		"voting_threshold":          v.cfg.VotingThreshold,
		"proposal_timeout":          v.cfg.ProposalTimeout.Seconds(),
		"max_concurrent_proposals":  v.cfg.MaxConcurrentProposals,
	}
}

func (v *Voting) UpdateConsensusParams(params map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t, ok := params["voting_threshold"].(float64); ok {
		v.cfg.VotingThreshold = t
	}
	if n, ok := params["max_concurrent_proposals"].(int); ok {
		v.cfg.MaxConcurrentProposals = n
	}
}

var _ consensus.Mechanism = (*Voting)(nil)
