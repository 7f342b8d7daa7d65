// Package dpos implements Delegated Proof-of-Stake: stakeholders vote for
// delegates, the top-N by vote tally form the active set, and the active
// set rotates round-robin within fixed-length rounds.
package dpos

import (
	"sort"
	"sync"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// Config holds DPoS's tunable parameters.
type Config struct {
	BlockTime           float64
	NumDelegates        int
	RoundLength         int
	VoteUpdateInterval  uint64
	MaxBlockSize        int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{BlockTime: 3, NumDelegates: 21, RoundLength: 21, VoteUpdateInterval: 100, MaxBlockSize: 2000}
}

// DPoS rotates an elected delegate set through round-robin block production.
type DPoS struct {
	mu               sync.Mutex
	cfg              Config
	votes            map[string]map[string]float64 // voter -> delegate -> stake
	delegateVotes    map[string]float64
	activeDelegates  []string
	currentRound     int
	blocksInRound    int
	lastVoteUpdate   uint64
}

// New constructs a DPoS mechanism with cfg.
func New(cfg Config) *DPoS {
	return &DPoS{
		cfg:           cfg,
		votes:         map[string]map[string]float64{},
		delegateVotes: map[string]float64{},
	}
}

func (d *DPoS) Initialize(chain consensus.ChainView) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	validators := chain.ActiveValidators()
	sort.Slice(validators, func(i, j int) bool { return validators[i].Address < validators[j].Address })

	limit := d.cfg.NumDelegates
	if limit > len(validators) {
		limit = len(validators)
	}
	for _, v := range validators[:limit] {
		d.activeDelegates = append(d.activeDelegates, v.Address)
		d.delegateVotes[v.Address] = float64(v.Power)
	}
	return nil
}

func (d *DPoS) SelectTransactions(pending []*tx.Transaction, proposer string) []*tx.Transaction {
	sorted := append([]*tx.Transaction(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	if len(sorted) > d.cfg.MaxBlockSize {
		sorted = sorted[:d.cfg.MaxBlockSize]
	}
	return sorted
}

func (d *DPoS) PrepareConsensusData(proposer string, previous *block.Block) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]any{
		"consensus":       "dpos",
		"delegate":        proposer,
		"round":           d.currentRound,
		"block_in_round":  d.blocksInRound,
		"total_delegates": len(d.activeDelegates),
		"delegate_votes":  d.delegateVotes[proposer],
	}
}

func (d *DPoS) ValidateBlock(b *block.Block, st *state.State) bool {
	d.mu.Lock()
	isDelegate := contains(d.activeDelegates, b.ValidatorAddress)
	d.mu.Unlock()
	if !isDelegate {
		return false
	}
	expected := d.SelectProposer(b.Height, st.ActiveValidators())
	return b.ValidatorAddress == expected
}

// SelectProposer rotates round-robin through the active delegate set.
func (d *DPoS) SelectProposer(height uint64, validators []*state.Validator) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.activeDelegates) == 0 {
		return ""
	}
	return d.activeDelegates[height%uint64(len(d.activeDelegates))]
}

// CastVote records voterAddress's stake-weighted vote for delegateAddress,
// replacing any prior vote from the same voter for the same delegate, and
// recalculates delegate tallies.
func (d *DPoS) CastVote(voterAddress, delegateAddress string, stake float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.votes[voterAddress] == nil {
		d.votes[voterAddress] = map[string]float64{}
	}
	d.votes[voterAddress][delegateAddress] = stake
	d.recalculateVotesLocked()
}

// RemoveVote withdraws voterAddress's vote for delegateAddress. Returns
// false if no such vote existed.
func (d *DPoS) RemoveVote(voterAddress, delegateAddress string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if votes, ok := d.votes[voterAddress]; ok {
		if _, voted := votes[delegateAddress]; voted {
			delete(votes, delegateAddress)
			d.recalculateVotesLocked()
			return true
		}
	}
	return false
}

func (d *DPoS) recalculateVotesLocked() {
	d.delegateVotes = map[string]float64{}
	for _, delegateVotes := range d.votes {
		for delegate, stake := range delegateVotes {
			d.delegateVotes[delegate] += stake
		}
	}
}

// UpdateActiveDelegates recomputes the active set as the top NumDelegates
// addresses by vote tally, ties broken by address for determinism.
func (d *DPoS) UpdateActiveDelegates() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updateActiveDelegatesLocked()
}

func (d *DPoS) updateActiveDelegatesLocked() {
	type entry struct {
		address string
		votes   float64
	}
	entries := make([]entry, 0, len(d.delegateVotes))
	for addr, v := range d.delegateVotes {
		entries = append(entries, entry{addr, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].votes != entries[j].votes {
			return entries[i].votes > entries[j].votes
		}
		return entries[i].address < entries[j].address
	})

	limit := d.cfg.NumDelegates
	if limit > len(entries) {
		limit = len(entries)
	}
	active := make([]string, 0, limit)
	for _, e := range entries[:limit] {
		active = append(active, e.address)
	}
	d.activeDelegates = active
}

func (d *DPoS) OnBlockCommitted(b *block.Block, st *state.State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.blocksInRound++
	if d.blocksInRound >= d.cfg.RoundLength {
		d.currentRound++
		d.blocksInRound = 0
	}

	if d.cfg.VoteUpdateInterval > 0 && b.Height-d.lastVoteUpdate >= d.cfg.VoteUpdateInterval {
		d.updateActiveDelegatesLocked()
		d.lastVoteUpdate = b.Height
	}
}

func (d *DPoS) GetConsensusParams() map[string]any {
	return map[string]any{
		"block_time":            d.cfg.BlockTime,
		"num_delegates":         d.cfg.NumDelegates,
		"round_length":          d.cfg.RoundLength,
		"vote_update_interval":  d.cfg.VoteUpdateInterval,
		"max_block_size":        d.cfg.MaxBlockSize,
	}
}

func (d *DPoS) UpdateConsensusParams(params map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := params["num_delegates"].(int); ok {
		d.cfg.NumDelegates = v
	}
	if v, ok := params["round_length"].(int); ok {
		d.cfg.RoundLength = v
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

var _ consensus.Mechanism = (*DPoS)(nil)
