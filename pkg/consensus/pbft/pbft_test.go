package pbft

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/state"
)

func testValidators() []*state.Validator {
	return []*state.Validator{
		state.NewValidator("0xa", "", 1, "a"),
		state.NewValidator("0xb", "", 1, "b"),
		state.NewValidator("0xc", "", 1, "c"),
		state.NewValidator("0xd", "", 1, "d"),
	}
}

func testState(validators []*state.Validator) *state.State {
	st := state.New("test")
	for _, v := range validators {
		st.AddValidator(v)
	}
	return st
}

func TestPrimaryFollowsView(t *testing.T) {
	p := New(DefaultConfig())
	validators := testValidators()

	require.Equal(t, "0xa", p.SelectProposer(0, validators), "view 0 primary is the first sorted validator")

	p.TriggerViewChange()
	require.Equal(t, "0xb", p.SelectProposer(0, validators))
}

func TestValidateBlockRequiresMatchingViewAndSequence(t *testing.T) {
	p := New(DefaultConfig())
	validators := testValidators()
	st := testState(validators)

	data := p.PrepareConsensusData("0xa", nil)
	b, err := block.New(1, "prev", nil, "0xa", data, 1000, 1)
	require.NoError(t, err)
	require.True(t, p.ValidateBlock(b, st))

	stale, err := block.New(1, "prev", nil, "0xa", map[string]any{"view": 0, "sequence": 99}, 1000, 1)
	require.NoError(t, err)
	require.False(t, p.ValidateBlock(stale, st), "sequence mismatch")

	wrongPrimary, err := block.New(1, "prev", nil, "0xb", data, 1000, 1)
	require.NoError(t, err)
	require.False(t, p.ValidateBlock(wrongPrimary, st))
}

func TestPrepareAndCommitQuorums(t *testing.T) {
	p := New(DefaultConfig())

	// n=4 tolerates f=1; quorum is 2f+1 = 3.
	require.False(t, p.AddPrepareMessage("hash", "0xa", 4))
	require.False(t, p.AddPrepareMessage("hash", "0xb", 4))
	require.False(t, p.AddPrepareMessage("hash", "0xb", 4), "repeat message does not double-count")
	require.True(t, p.AddPrepareMessage("hash", "0xc", 4))

	require.False(t, p.AddCommitMessage("hash", "0xa", 4))
	require.False(t, p.AddCommitMessage("hash", "0xb", 4))
	require.True(t, p.AddCommitMessage("hash", "0xc", 4))
}

func TestViewChangeClearsCertificates(t *testing.T) {
	p := New(DefaultConfig())
	p.AddPrepareMessage("hash", "0xa", 4)
	p.AddPrepareMessage("hash", "0xb", 4)

	p.TriggerViewChange()

	require.False(t, p.AddPrepareMessage("hash", "0xc", 4), "certificates were discarded with the view")
	params := p.GetConsensusParams()
	require.Equal(t, 1, params["view"])
}
