package voting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/state"
)

func testBlock(t *testing.T, height uint64, proposer string) *block.Block {
	t.Helper()
	b, err := block.New(height, "prev", nil, proposer, nil, 1000, 1)
	require.NoError(t, err)
	require.NoError(t, b.Finalize("sig-"+proposer))
	return b
}

func TestRequiredVotesRoundsUp(t *testing.T) {
	require.Equal(t, 3, requiredVotes(4, 0.66))
	require.Equal(t, 2, requiredVotes(3, 0.66))
	require.Equal(t, 1, requiredVotes(1, 0.66))
	require.Equal(t, 0, requiredVotes(0, 0.66))
}

func TestProposalLifecycle(t *testing.T) {
	v := New(DefaultConfig())
	now := time.Unix(1000, 0)
	b := testBlock(t, 1, "0xa")

	require.True(t, v.ProposeBlockForVoting(b, now))
	require.False(t, v.ProposeBlockForVoting(b, now), "same block cannot be proposed twice")

	require.True(t, v.CastVote(b.Hash, "0xa", now))
	require.False(t, v.CastVote(b.Hash, "0xa", now), "votes are idempotent per validator")
	require.True(t, v.CastVote(b.Hash, "0xb", now))
	require.True(t, v.CastVote(b.Hash, "0xc", now))

	// 4 active validators at threshold 0.66 need ceil(2.64) = 3 votes.
	winner := v.GetWinningProposal(1, 4)
	require.NotNil(t, winner)
	require.Equal(t, b.Hash, winner.Hash)
}

func TestProposalExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProposalTimeout = 5 * time.Second
	v := New(cfg)

	start := time.Unix(1000, 0)
	b := testBlock(t, 1, "0xa")
	require.True(t, v.ProposeBlockForVoting(b, start))

	late := start.Add(6 * time.Second)
	require.False(t, v.CastVote(b.Hash, "0xa", late), "expired proposals reject votes")
	require.Nil(t, v.GetWinningProposal(1, 1))
}

func TestConcurrentProposalCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentProposals = 2
	v := New(cfg)
	now := time.Unix(1000, 0)

	require.True(t, v.ProposeBlockForVoting(testBlock(t, 1, "0xa"), now))
	require.True(t, v.ProposeBlockForVoting(testBlock(t, 1, "0xb"), now))
	require.False(t, v.ProposeBlockForVoting(testBlock(t, 1, "0xc"), now), "cap reached")
}

func TestCommitPrunesProposalsAtOrBelowHeight(t *testing.T) {
	v := New(DefaultConfig())
	now := time.Unix(1000, 0)

	committed := testBlock(t, 1, "0xa")
	rival := testBlock(t, 1, "0xb")
	require.True(t, v.ProposeBlockForVoting(committed, now))
	require.True(t, v.ProposeBlockForVoting(rival, now))

	st := state.New("test")
	v.OnBlockCommitted(committed, st)

	require.Nil(t, v.GetProposalStatus(rival.Hash, 4, now), "rival proposals at the committed height are dropped")
}

func TestAnyActiveValidatorMayPropose(t *testing.T) {
	v := New(DefaultConfig())
	validators := []*state.Validator{
		state.NewValidator("0xa", "", 1, "a"),
		state.NewValidator("0xb", "", 1, "b"),
	}
	validators[0].Active = false

	require.Equal(t, "0xb", v.SelectProposer(0, validators))
	require.Equal(t, "0xb", v.SelectProposer(1, validators))
}
