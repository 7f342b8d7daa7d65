package chain

import (
	"time"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/tx"
)

// ProposeBlock builds and signs the next block, without adding it to the
// chain. It returns nil, nil if validatorAddress is not an active
// validator — an ineligible proposer fails silently rather than with an
// error.
func (e *Engine) ProposeBlock(validatorAddress, privateKeyHex string, timestamp ...float64) (*block.Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	validator := e.state.GetValidator(validatorAddress)
	if validator == nil || !validator.Active {
		return nil, nil
	}

	ts := float64(time.Now().Unix())
	if len(timestamp) > 0 {
		ts = timestamp[0]
	}

	tip := e.tipLocked()
	selected := e.mech.SelectTransactions(append([]*tx.Transaction(nil), e.pending...), validatorAddress)
	consensusData := e.mech.PrepareConsensusData(validatorAddress, tip)

	b, err := block.New(e.nextHeightLocked(), e.state.LastBlockHash, selected, validatorAddress, consensusData, ts, BlockVersion)
	if err != nil {
		return nil, &ValidationError{Op: "propose", Err: err}
	}

	signature, err := signMerkleRoot(b.MerkleRoot, privateKeyHex)
	if err != nil {
		return nil, &ValidationError{Op: "propose sign", Err: err}
	}
	if err := b.Finalize(signature); err != nil {
		return nil, &ValidationError{Op: "propose finalize", Err: err}
	}

	if e.metrics != nil {
		e.metrics.ConsensusRounds.WithLabelValues(mechanismName(consensusData)).Inc()
	}

	return b, nil
}

func (e *Engine) tipLocked() *block.Block {
	if len(e.blocks) == 0 {
		return nil
	}
	return e.blocks[len(e.blocks)-1]
}

func (e *Engine) nextHeightLocked() uint64 {
	return uint64(len(e.blocks))
}

// mechanismName extracts the "consensus" label a mechanism stamps into its
// consensus_data map, for metrics labeling; falls back to "unknown".
func mechanismName(consensusData map[string]any) string {
	if v, ok := consensusData["consensus"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}
