// Package hybrid implements a compound consensus family: a PoA-style
// authority rotation handles fast block production, while authority
// selection itself is driven by a stake-and-performance score and
// sensitive transaction types require a separate voting quorum.
package hybrid

import (
	"sort"
	"sync"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// Config holds Hybrid's tunable parameters across its three blended
// mechanisms.
type Config struct {
	BlockTime    float64
	MaxBlockSize int

	NumAuthorities             int
	AuthorityRotationInterval  uint64

	ImportantTxVoting bool
	VotingThreshold   float64

	MinStake    float64
	StakeWeight float64
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		BlockTime:                 3,
		MaxBlockSize:              1500,
		NumAuthorities:            5,
		AuthorityRotationInterval: 100,
		ImportantTxVoting:         true,
		VotingThreshold:           0.66,
		MinStake:                  100,
		StakeWeight:               0.5,
	}
}

// votingRequiredTypes are the transaction types gated behind a validator
// vote when ImportantTxVoting is enabled.
var votingRequiredTypes = map[tx.Type]bool{
	tx.ValidatorUpdate:  true,
	tx.PermissionGrant:  true,
	tx.PermissionRevoke: true,
}

// Hybrid blends PoA-style authority rotation, stake/performance scoring,
// and a voting gate for sensitive transactions.
type Hybrid struct {
	mu sync.Mutex
	cfg Config

	authorities        []string
	currentAuthorityIdx int

	pendingVotes map[string]map[string]bool // tx hash -> voter -> approve

	stakes          map[string]float64
	validatorScores map[string]float64

	lastRotationHeight uint64
}

// New constructs a Hybrid mechanism with cfg.
func New(cfg Config) *Hybrid {
	return &Hybrid{
		cfg:             cfg,
		pendingVotes:    map[string]map[string]bool{},
		stakes:          map[string]float64{},
		validatorScores: map[string]float64{},
	}
}

func (h *Hybrid) Initialize(chain consensus.ChainView) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	validators := chain.ActiveValidators()
	for _, v := range validators {
		h.stakes[v.Address] = float64(v.Power * 10)
		h.validatorScores[v.Address] = h.scoreLocked(v)
	}
	h.selectAuthoritiesLocked(validators)
	return nil
}

func (h *Hybrid) SelectTransactions(pending []*tx.Transaction, proposer string) []*tx.Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()

	sorted := append([]*tx.Transaction(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	if len(sorted) > h.cfg.MaxBlockSize {
		sorted = sorted[:h.cfg.MaxBlockSize]
	}

	approved := make([]*tx.Transaction, 0, len(sorted))
	for _, t := range sorted {
		if h.requiresVotingLocked(t) {
			if h.hasSufficientVotesLocked(t) {
				approved = append(approved, t)
			}
			continue
		}
		approved = append(approved, t)
	}
	return approved
}

func (h *Hybrid) requiresVotingLocked(t *tx.Transaction) bool {
	if !h.cfg.ImportantTxVoting {
		return false
	}
	return votingRequiredTypes[t.Type]
}

func (h *Hybrid) hasSufficientVotesLocked(t *tx.Transaction) bool {
	digest, err := t.Hash()
	if err != nil {
		return false
	}
	votes, ok := h.pendingVotes[digest]
	if !ok {
		return false
	}
	approveCount := 0
	for _, approve := range votes {
		if approve {
			approveCount++
		}
	}
	return approveCount >= h.requiredVotesLocked()
}

func (h *Hybrid) requiredVotesLocked() int {
	// The required count is the authority count times voting_threshold,
	// rounded down; no broader validator count is tracked locally.
	return int(float64(len(h.authorities)) * h.cfg.VotingThreshold)
}

func (h *Hybrid) PrepareConsensusData(proposer string, previous *block.Block) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	epoch := uint64(0)
	if previous != nil && h.cfg.AuthorityRotationInterval > 0 {
		epoch = previous.Height / h.cfg.AuthorityRotationInterval
	}

	return map[string]any{
		"consensus":          "hybrid",
		"authority":          proposer,
		"authority_index":    h.currentAuthorityIdx,
		"total_authorities":  len(h.authorities),
		"validator_stake":    h.stakes[proposer],
		"validator_score":    h.validatorScores[proposer],
		"epoch":              epoch,
	}
}

func (h *Hybrid) ValidateBlock(b *block.Block, st *state.State) bool {
	h.mu.Lock()
	isAuthority := contains(h.authorities, b.ValidatorAddress)
	stake := h.stakes[b.ValidatorAddress]
	minStake := h.cfg.MinStake
	h.mu.Unlock()

	if !isAuthority {
		return false
	}

	expected := h.SelectProposer(b.Height, st.ActiveValidators())
	if b.ValidatorAddress != expected {
		return false
	}

	return stake >= minStake
}

// SelectProposer round-robins through the authority set, rotating the set
// itself if AuthorityRotationInterval blocks have elapsed since the last
// rotation.
func (h *Hybrid) SelectProposer(height uint64, validators []*state.Validator) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if height-h.lastRotationHeight >= h.cfg.AuthorityRotationInterval {
		h.selectAuthoritiesLocked(validators)
		h.lastRotationHeight = height
	}

	if len(h.authorities) == 0 {
		return ""
	}
	index := int(height % uint64(len(h.authorities)))
	h.currentAuthorityIdx = index
	return h.authorities[index]
}

func (h *Hybrid) selectAuthoritiesLocked(validators []*state.Validator) {
	sorted := append([]*state.Validator(nil), validators...)
	sort.Slice(sorted, func(i, j int) bool {
		si, sj := h.validatorScores[sorted[i].Address], h.validatorScores[sorted[j].Address]
		if si != sj {
			return si > sj
		}
		return sorted[i].Address < sorted[j].Address
	})

	limit := h.cfg.NumAuthorities
	if limit > len(sorted) {
		limit = len(sorted)
	}
	authorities := make([]string, 0, limit)
	for _, v := range sorted[:limit] {
		authorities = append(authorities, v.Address)
	}
	h.authorities = authorities
}

func (h *Hybrid) scoreLocked(v *state.Validator) float64 {
	stake := h.stakes[v.Address]
	totalBlocks := v.TotalBlocksProposed + v.TotalBlocksSigned
	performance := 50.0
	if totalBlocks > 0 {
		performance = (float64(v.TotalBlocksSigned) / float64(totalBlocks)) * 100
	}
	return stake*h.cfg.StakeWeight + performance*(1-h.cfg.StakeWeight)
}

// CastVoteForTransaction records a validator's approval/rejection of a
// pending sensitive transaction, keyed by its canonical digest.
func (h *Hybrid) CastVoteForTransaction(txHash, voterAddress string, approve bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pendingVotes[txHash] == nil {
		h.pendingVotes[txHash] = map[string]bool{}
	}
	h.pendingVotes[txHash][voterAddress] = approve
}

// AddStake increases validatorAddress's stake and recalculates its score.
func (h *Hybrid) AddStake(validatorAddress string, amount float64, v *state.Validator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stakes[validatorAddress] += amount
	if v != nil {
		h.validatorScores[validatorAddress] = h.scoreLocked(v)
	}
}

// RemoveStake decreases validatorAddress's stake. Returns false if the
// current stake is below amount.
func (h *Hybrid) RemoveStake(validatorAddress string, amount float64, v *state.Validator) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stakes[validatorAddress] < amount {
		return false
	}
	h.stakes[validatorAddress] -= amount
	if v != nil {
		h.validatorScores[validatorAddress] = h.scoreLocked(v)
	}
	return true
}

func (h *Hybrid) OnBlockCommitted(b *block.Block, st *state.State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if v, ok := st.Validators[b.ValidatorAddress]; ok {
		h.validatorScores[b.ValidatorAddress] = h.scoreLocked(v)
	}

	for _, t := range b.Transactions {
		if digest, err := t.Hash(); err == nil {
			delete(h.pendingVotes, digest)
		}
	}

	if b.Height-h.lastRotationHeight >= h.cfg.AuthorityRotationInterval {
		h.selectAuthoritiesLocked(st.ActiveValidators())
		h.lastRotationHeight = b.Height
	}
}

// GetAuthorityInfo reports the current authority rotation state.
func (h *Hybrid) GetAuthorityInfo(currentHeight uint64) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]any{
		"authorities":           append([]string(nil), h.authorities...),
		"current_index":         h.currentAuthorityIdx,
		"rotation_interval":     h.cfg.AuthorityRotationInterval,
		"blocks_until_rotation": h.cfg.AuthorityRotationInterval - (currentHeight - h.lastRotationHeight),
	}
}

func (h *Hybrid) GetConsensusParams() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return map[string]any{
		"block_time":                  h.cfg.BlockTime,
		"max_block_size":              h.cfg.MaxBlockSize,
		"num_authorities":             h.cfg.NumAuthorities,
		"authority_rotation_interval": h.cfg.AuthorityRotationInterval,
		"important_tx_voting":         h.cfg.ImportantTxVoting,
		"voting_threshold":            h.cfg.VotingThreshold,
		"min_stake":                   h.cfg.MinStake,
		"stake_weight":                h.cfg.StakeWeight,
	}
}

func (h *Hybrid) UpdateConsensusParams(params map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := params["min_stake"].(float64); ok {
		h.cfg.MinStake = v
	}
	if v, ok := params["voting_threshold"].(float64); ok {
		h.cfg.VotingThreshold = v
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

var _ consensus.Mechanism = (*Hybrid)(nil)
