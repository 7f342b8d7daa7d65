package roundrobin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

type stubChain struct {
	validators []*state.Validator
}

func (s stubChain) ActiveValidators() []*state.Validator { return s.validators }
func (s stubChain) TipBlock() *block.Block               { return nil }
func (s stubChain) Height() uint64                       { return 0 }
func (s stubChain) BlockAtHeight(uint64) *block.Block    { return nil }

func testValidators() []*state.Validator {
	return []*state.Validator{
		state.NewValidator("0xa", "", 1, "a"),
		state.NewValidator("0xb", "", 1, "b"),
		state.NewValidator("0xc", "", 1, "c"),
	}
}

func TestProposerRotationFollowsHeight(t *testing.T) {
	r := New(DefaultConfig())
	validators := testValidators()
	require.NoError(t, r.Initialize(stubChain{validators}))

	require.Equal(t, "0xa", r.SelectProposer(0, validators))
	require.Equal(t, "0xb", r.SelectProposer(1, validators))
	require.Equal(t, "0xc", r.SelectProposer(2, validators))
	require.Equal(t, "0xa", r.SelectProposer(3, validators))
}

func TestInactiveProposerIsSkipped(t *testing.T) {
	r := New(DefaultConfig())
	validators := testValidators()
	require.NoError(t, r.Initialize(stubChain{validators}))

	validators[1].Active = false
	require.Equal(t, "0xc", r.SelectProposer(1, validators), "0xb's slot falls through to the next active validator")
}

func TestValidateBlockRejectsWrongProposer(t *testing.T) {
	r := New(DefaultConfig())
	validators := testValidators()
	require.NoError(t, r.Initialize(stubChain{validators}))

	st := state.New("test")
	for _, v := range validators {
		st.AddValidator(v)
	}

	b, err := block.New(1, "prev", nil, "0xc", nil, 100, 1)
	require.NoError(t, err)
	require.False(t, r.ValidateBlock(b, st), "height 1 belongs to 0xb")

	good, err := block.New(1, "prev", nil, "0xb", nil, 100, 1)
	require.NoError(t, err)
	require.True(t, r.ValidateBlock(good, st))
}

func TestSelectTransactionsOrdersByNonce(t *testing.T) {
	r := New(DefaultConfig())

	t2 := tx.NewTransferTransaction("0xa", "0xb", 1, 2, 100)
	t0 := tx.NewTransferTransaction("0xa", "0xb", 1, 0, 300)
	t1 := tx.NewTransferTransaction("0xa", "0xb", 1, 1, 200)

	selected := r.SelectTransactions([]*tx.Transaction{t2, t0, t1}, "0xa")
	require.Equal(t, uint64(0), selected[0].Nonce)
	require.Equal(t, uint64(1), selected[1].Nonce)
	require.Equal(t, uint64(2), selected[2].Nonce)
}

func TestRemoveValidatorShrinksRotation(t *testing.T) {
	r := New(DefaultConfig())
	validators := testValidators()
	require.NoError(t, r.Initialize(stubChain{validators}))

	r.RemoveValidator("0xb")
	require.Equal(t, "0xc", r.SelectProposer(1, validators))
}
