package lottery

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
		state.NewValidator("0xa", "", 5, "a"),
		state.NewValidator("0xb", "", 3, "b"),
		state.NewValidator("0xc", "", 0, "c"),
	}
}

func TestInitializeWeightsTicketsWithFloor(t *testing.T) {
	l := New(DefaultConfig())
	validators := testValidators()
	require.NoError(t, l.Initialize(stubChain{validators: validators}))

	data := l.PrepareConsensusData("0xa", nil)
	require.Equal(t, 5, data["tickets"])
	require.Equal(t, 9, data["total_tickets"], "zero-power validator is floored at one ticket")
}

func TestDrawIsDeterministicPerHeight(t *testing.T) {
	l := New(DefaultConfig())
	validators := testValidators()

	previous, err := block.New(0, "prev", nil, "0xa", nil, 1000, 1)
	require.NoError(t, err)
	require.NoError(t, previous.Finalize("sig"))
	require.NoError(t, l.Initialize(stubChain{validators: validators, blocks: []*block.Block{previous}}))

	for h := uint64(1); h < 10; h++ {
		first := l.SelectProposer(h, validators)
		require.NotEmpty(t, first)
		require.Equal(t, first, l.SelectProposer(h, validators))
	}
}

func TestInactiveValidatorsHoldNoTicketsInDraw(t *testing.T) {
	l := New(DefaultConfig())
	validators := testValidators()
	require.NoError(t, l.Initialize(stubChain{validators: validators}))

	validators[0].Active = false
	validators[1].Active = false

	for h := uint64(0); h < 10; h++ {
		require.Equal(t, "0xc", l.SelectProposer(h, validators), "only the remaining active validator can win")
	}
}

func TestTicketBookkeeping(t *testing.T) {
	cfg := DefaultConfig()
	l := New(cfg)
	l.AddTickets("0xa", 10)

	require.True(t, l.RemoveTickets("0xa", 5))
	require.True(t, l.RemoveTickets("0xa", 100), "removal floors at min_tickets rather than failing")
	require.False(t, l.RemoveTickets("0xnobody", 1))

	stats := l.GetWinStatistics("0xa")
	require.Equal(t, cfg.MinTickets, stats["current_tickets"])
}

func TestWinHistoryIsRecorded(t *testing.T) {
	l := New(DefaultConfig())
	validators := testValidators()
	require.NoError(t, l.Initialize(stubChain{validators: validators}))
	st := state.New("test")

	b, err := block.New(1, "prev", nil, "0xa", nil, 1000, 1)
	require.NoError(t, err)
	require.NoError(t, b.Finalize("sig"))
	l.OnBlockCommitted(b, st)

	stats := l.GetWinStatistics("0xa")
	require.Equal(t, 1, stats["total_wins"])
	require.Equal(t, 100.0, stats["win_percentage"])
}
