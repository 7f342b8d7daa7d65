package tendermint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/state"
)

func equalPowerValidators() []*state.Validator {
	return []*state.Validator{
		state.NewValidator("0xa", "", 1, "a"),
		state.NewValidator("0xb", "", 1, "b"),
		state.NewValidator("0xc", "", 1, "c"),
		state.NewValidator("0xd", "", 1, "d"),
	}
}

func TestEqualPowerSelectionIsHeightModulo(t *testing.T) {
	tm := New(DefaultConfig())
	validators := equalPowerValidators()

	// With four equal-power validators sorted by address, height h selects
	// validators[h mod 4].
	require.Equal(t, "0xb", tm.SelectProposer(1, validators))
	require.Equal(t, "0xc", tm.SelectProposer(2, validators))
	require.Equal(t, "0xa", tm.SelectProposer(4, validators))
}

func TestWeightedSelectionFavorsPower(t *testing.T) {
	tm := New(DefaultConfig())
	validators := []*state.Validator{
		state.NewValidator("0xa", "", 9, "a"),
		state.NewValidator("0xb", "", 1, "b"),
	}

	// Heights 0..8 land in 0xa's cumulative interval, height 9 in 0xb's.
	for h := uint64(0); h < 9; h++ {
		require.Equal(t, "0xa", tm.SelectProposer(h, validators))
	}
	require.Equal(t, "0xb", tm.SelectProposer(9, validators))
}

func TestValidateBlockRejectsWrongProposer(t *testing.T) {
	tm := New(DefaultConfig())
	validators := equalPowerValidators()
	st := state.New("test")
	for _, v := range validators {
		st.AddValidator(v)
	}

	now := float64(time.Now().Unix())
	wrong, err := block.New(1, "prev", nil, "0xa", nil, now, 1)
	require.NoError(t, err)
	require.False(t, tm.ValidateBlock(wrong, st))

	right, err := block.New(1, "prev", nil, "0xb", nil, now, 1)
	require.NoError(t, err)
	require.True(t, tm.ValidateBlock(right, st))
}

func TestValidateBlockRejectsStaleTimestamp(t *testing.T) {
	tm := New(DefaultConfig())
	validators := equalPowerValidators()
	st := state.New("test")
	for _, v := range validators {
		st.AddValidator(v)
	}

	stale := float64(time.Now().Unix()) - 60
	b, err := block.New(1, "prev", nil, "0xb", nil, stale, 1)
	require.NoError(t, err)
	require.False(t, tm.ValidateBlock(b, st))
}

func TestVotingReachesSupermajority(t *testing.T) {
	tm := New(DefaultConfig())

	previous, err := block.New(0, "prev", nil, "0xa", nil, 1000, 1)
	require.NoError(t, err)
	require.NoError(t, previous.Finalize("sig"))
	tm.PrepareConsensusData("0xb", previous)

	require.False(t, tm.AddVote("hash", 1, "0xa", "sig", 4))
	require.False(t, tm.AddVote("hash", 1, "0xb", "sig", 4))
	require.True(t, tm.AddVote("hash", 1, "0xc", "sig", 4), "third distinct vote of four validators is the supermajority")

	require.False(t, tm.AddVote("hash", 2, "0xd", "sig", 4), "votes for another height are ignored")
}
