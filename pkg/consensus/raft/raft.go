// Package raft implements Raft-style leader election and log replication as
// a consensus mechanism: a single elected leader proposes blocks for a
// term, followers fall back to candidacy after a randomized election
// timeout elapses without a heartbeat.
package raft

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// NodeState is one of Raft's three roles.
type NodeState string

const (
	Follower  NodeState = "follower"
	Candidate NodeState = "candidate"
	Leader    NodeState = "leader"
)

// Config holds Raft's tunable parameters.
type Config struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	MaxBlockSize       int
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		MaxBlockSize:       1000,
	}
}

// LogEntry records one block proposal under a given term.
type LogEntry struct {
	Term      int
	Index     int
	Block     *block.Block
	Committed bool
}

// Raft holds one node's view of leader election and log replication state.
type Raft struct {
	mu sync.Mutex
	cfg Config

	state         NodeState
	currentTerm   int
	votedFor      string
	currentLeader string

	log         []LogEntry
	commitIndex int
	lastApplied int

	nextIndex  map[string]int
	matchIndex map[string]int

	lastHeartbeat   time.Time
	electionTimeout time.Duration
	rng             *rand.Rand
}

// New constructs a Raft mechanism with cfg, starting as a follower.
func New(cfg Config) *Raft {
	r := &Raft{
		cfg:        cfg,
		state:      Follower,
		nextIndex:  map[string]int{},
		matchIndex: map[string]int{},
		rng:        rand.New(rand.NewSource(1)),
	}
	r.lastHeartbeat = time.Now()
	r.electionTimeout = r.randomElectionTimeout()
	return r
}

func (r *Raft) randomElectionTimeout() time.Duration {
	span := r.cfg.ElectionTimeoutMax - r.cfg.ElectionTimeoutMin
	if span <= 0 {
		return r.cfg.ElectionTimeoutMin
	}
	return r.cfg.ElectionTimeoutMin + time.Duration(r.rng.Int63n(int64(span)))
}

func (r *Raft) Initialize(chain consensus.ChainView) error {
	return nil
}

func (r *Raft) SelectTransactions(pending []*tx.Transaction, proposer string) []*tx.Transaction {
	sorted := append([]*tx.Transaction(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })
	if len(sorted) > r.cfg.MaxBlockSize {
		sorted = sorted[:r.cfg.MaxBlockSize]
	}
	return sorted
}

func (r *Raft) PrepareConsensusData(proposer string, previous *block.Block) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{
		"consensus": "raft",
		"term":      r.currentTerm,
		"leader":    r.currentLeader,
		"log_index": len(r.log),
	}
}

func (r *Raft) ValidateBlock(b *block.Block, st *state.State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != Leader {
		return false
	}
	if b.ValidatorAddress != r.currentLeader {
		return false
	}

	term := -1
	if t, ok := b.ConsensusData["term"]; ok {
		switch v := t.(type) {
		case int:
			term = v
		case float64:
			term = int(v)
		}
	}
	return term >= r.currentTerm
}

// SelectProposer returns the current leader, or "" if none is elected.
func (r *Raft) SelectProposer(height uint64, validators []*state.Validator) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLeader
}

// StartElection transitions this node to candidate for a new term.
func (r *Raft) StartElection(nodeAddress string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Candidate
	r.currentTerm++
	r.votedFor = nodeAddress
	r.electionTimeout = r.randomElectionTimeout()
}

// ReceiveVote processes a vote response from another node, stepping down to
// follower if the responder reports a higher term.
func (r *Raft) ReceiveVote(voter string, term int, granted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if term > r.currentTerm {
		r.currentTerm = term
		r.state = Follower
		r.votedFor = ""
	}
}

// BecomeLeader transitions this node to leader after winning an election,
// seeding per-peer replication indices.
func (r *Raft) BecomeLeader(nodeAddress string, validators []*state.Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Leader
	r.currentLeader = nodeAddress
	r.nextIndex = map[string]int{}
	r.matchIndex = map[string]int{}
	for _, v := range validators {
		r.nextIndex[v.Address] = len(r.log)
		r.matchIndex[v.Address] = 0
	}
}

// StepDown reverts this node to follower with no known leader.
func (r *Raft) StepDown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Follower
	r.currentLeader = ""
}

// AppendEntry appends b to the log under the current term.
func (r *Raft) AppendEntry(b *block.Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, LogEntry{Term: r.currentTerm, Index: len(r.log), Block: b})
}

// CommitEntry marks the log entry at index committed.
func (r *Raft) CommitEntry(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < len(r.log) {
		r.log[index].Committed = true
		if index > r.commitIndex {
			r.commitIndex = index
		}
	}
}

// CheckHeartbeatTimeout reports whether no heartbeat has been seen within
// the election timeout, starting a new election as a side effect if so.
func (r *Raft) CheckHeartbeatTimeout(nodeAddress string, now time.Time) bool {
	r.mu.Lock()
	if r.state == Leader {
		r.mu.Unlock()
		return false
	}
	elapsed := now.Sub(r.lastHeartbeat)
	timedOut := elapsed > r.electionTimeout
	r.mu.Unlock()

	if timedOut {
		r.StartElection(nodeAddress)
		return true
	}
	return false
}

// SendHeartbeat resets the heartbeat clock; called by the leader.
func (r *Raft) SendHeartbeat(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHeartbeat = now
}

func (r *Raft) OnBlockCommitted(b *block.Block, st *state.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, entry := range r.log {
		if entry.Block != nil && entry.Block.Hash == b.Hash {
			if i < len(r.log) {
				r.log[i].Committed = true
				if i > r.commitIndex {
					r.commitIndex = i
				}
			}
			break
		}
	}
}

func (r *Raft) GetConsensusParams() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]any{
		"election_timeout_min": r.cfg.ElectionTimeoutMin.Milliseconds(),
		"election_timeout_max": r.cfg.ElectionTimeoutMax.Milliseconds(),
		"heartbeat_interval":   r.cfg.HeartbeatInterval.Milliseconds(),
		"max_block_size":       r.cfg.MaxBlockSize,
	}
}

func (r *Raft) UpdateConsensusParams(params map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := params["max_block_size"].(int); ok {
		r.cfg.MaxBlockSize = v
	}
}

var _ consensus.Mechanism = (*Raft)(nil)
