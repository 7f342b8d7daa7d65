package hybrid

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
		state.NewValidator("0xa", "", 50, "a"),
		state.NewValidator("0xb", "", 30, "b"),
		state.NewValidator("0xc", "", 1, "c"),
	}
}

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.NumAuthorities = 2
	return cfg
}

func TestAuthoritiesAreTopScored(t *testing.T) {
	h := New(smallConfig())
	validators := testValidators()
	require.NoError(t, h.Initialize(stubChain{validators}))

	// Stakes seed at power*10 and all performance scores start at the
	// 50-point default, so the two highest-power validators lead.
	require.Equal(t, "0xa", h.SelectProposer(0, validators))
	require.Equal(t, "0xb", h.SelectProposer(1, validators))
	require.Equal(t, "0xa", h.SelectProposer(2, validators))
}

func TestSensitiveTransactionsNeedVotes(t *testing.T) {
	h := New(smallConfig())
	validators := testValidators()
	require.NoError(t, h.Initialize(stubChain{validators}))

	transfer := tx.NewTransferTransaction("0xa", "0xb", 10, 0, 100)
	update := tx.NewValidatorUpdateTransaction("0xa", "0xd", tx.ValidatorAdd, 1, "", 1, 200)

	selected := h.SelectTransactions([]*tx.Transaction{transfer, update}, "0xa")
	require.Len(t, selected, 1, "the unvoted validator update is held back")
	require.Equal(t, tx.Transfer, selected[0].Type)

	h.CastVoteForTransaction(update.MustHash(), "0xa", true)
	selected = h.SelectTransactions([]*tx.Transaction{transfer, update}, "0xa")
	require.Len(t, selected, 2, "one approval meets the two-authority threshold")
}

func TestValidateBlockRequiresAuthorityAndStake(t *testing.T) {
	h := New(smallConfig())
	validators := testValidators()
	require.NoError(t, h.Initialize(stubChain{validators}))

	st := state.New("test")
	for _, v := range validators {
		st.AddValidator(v)
	}

	outsider, err := block.New(0, "prev", nil, "0xc", nil, 1000, 1)
	require.NoError(t, err)
	require.False(t, h.ValidateBlock(outsider, st))

	good, err := block.New(0, "prev", nil, "0xa", nil, 1000, 1)
	require.NoError(t, err)
	require.True(t, h.ValidateBlock(good, st))
}

func TestStakeChangesReshapeScores(t *testing.T) {
	h := New(smallConfig())
	validators := testValidators()
	require.NoError(t, h.Initialize(stubChain{validators}))

	// Pushing 0xc's stake far past the others re-ranks it into the
	// authority set at the next rotation.
	h.AddStake("0xc", 10_000, validators[2])

	info := h.GetAuthorityInfo(0)
	require.NotContains(t, info["authorities"], "0xc", "rotation has not happened yet")

	rotated := h.SelectProposer(h.GetConsensusParams()["authority_rotation_interval"].(uint64), validators)
	require.Equal(t, "0xc", rotated)
}

func TestRemoveStakeGuardsUnderflow(t *testing.T) {
	h := New(smallConfig())
	h.AddStake("0xa", 100, nil)
	require.False(t, h.RemoveStake("0xa", 200, nil))
	require.True(t, h.RemoveStake("0xa", 100, nil))
}
