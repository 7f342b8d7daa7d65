package poa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/state"
)

type stubChain struct {
	validators []*state.Validator
	blocks     []*block.Block
}

func (s stubChain) ActiveValidators() []*state.Validator { return s.validators }
func (s stubChain) Height() uint64                       { return uint64(len(s.blocks) - 1) }

func (s stubChain) TipBlock() *block.Block {
	if len(s.blocks) == 0 {
		return nil
	}
	return s.blocks[len(s.blocks)-1]
}

func (s stubChain) BlockAtHeight(height uint64) *block.Block {
	if height >= uint64(len(s.blocks)) {
		return nil
	}
	return s.blocks[height]
}

func testValidators() []*state.Validator {
	return []*state.Validator{
		state.NewValidator("0xa", "", 1, "a"),
		state.NewValidator("0xb", "", 1, "b"),
	}
}

func testState(validators []*state.Validator) *state.State {
	st := state.New("test")
	for _, v := range validators {
		st.AddValidator(v)
	}
	return st
}

func TestAuthorityRotation(t *testing.T) {
	p := New(DefaultConfig())
	validators := testValidators()
	require.NoError(t, p.Initialize(stubChain{validators: validators}))

	require.Equal(t, "0xa", p.SelectProposer(0, validators))
	require.Equal(t, "0xb", p.SelectProposer(1, validators))
	require.Equal(t, "0xa", p.SelectProposer(2, validators))
}

func TestAddRemoveAuthority(t *testing.T) {
	p := New(Config{BlockTime: 2, MaxBlockSize: 100, Authorities: []string{"0xa"}})
	require.True(t, p.IsAuthority("0xa"))
	require.False(t, p.AddAuthority("0xa"), "already present")
	require.True(t, p.AddAuthority("0xb"))
	require.True(t, p.RemoveAuthority("0xb"))
	require.False(t, p.RemoveAuthority("0xb"), "already removed")
}

func TestValidateBlockEnforcesMinimumInterval(t *testing.T) {
	validators := testValidators()
	st := testState(validators)

	previous, err := block.New(0, "prev", nil, "0xa", nil, 1000, 1)
	require.NoError(t, err)
	require.NoError(t, previous.Finalize("sig"))

	p := New(Config{BlockTime: 2, MaxBlockSize: 100})
	require.NoError(t, p.Initialize(stubChain{validators: validators, blocks: []*block.Block{previous}}))

	// Height 1 belongs to 0xb. A block arriving less than block_time/2
	// after its predecessor is rejected.
	early, err := block.New(1, previous.Hash, nil, "0xb", nil, 1000.5, 1)
	require.NoError(t, err)
	require.False(t, p.ValidateBlock(early, st))

	onTime, err := block.New(1, previous.Hash, nil, "0xb", nil, 1001.5, 1)
	require.NoError(t, err)
	require.True(t, p.ValidateBlock(onTime, st))
}

func TestValidateBlockRejectsNonAuthority(t *testing.T) {
	validators := testValidators()
	st := testState(validators)

	p := New(Config{BlockTime: 2, MaxBlockSize: 100, Authorities: []string{"0xa"}})
	require.NoError(t, p.Initialize(stubChain{validators: validators}))

	b, err := block.New(0, "prev", nil, "0xb", nil, 1000, 1)
	require.NoError(t, err)
	require.False(t, p.ValidateBlock(b, st))
}
