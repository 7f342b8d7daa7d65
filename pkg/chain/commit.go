package chain

import (
	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/tx"
)

// AddBlock runs structural verification, consensus validation, and
// transaction execution under a rollback snapshot. On success the block is
// appended, state advances, the pending pool is pruned, the consensus
// mechanism is notified, and persistence is flushed.
func (e *Engine) AddBlock(b *block.Block) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.verifyStructureLocked(b); err != nil {
		e.countBlockRejected()
		return err
	}

	if !e.mech.ValidateBlock(b, e.state) {
		e.countBlockRejected()
		return &ConsensusRejectError{Mechanism: mechanismName(b.ConsensusData)}
	}

	snapshot := e.state.Snapshot()
	if err := e.executeBlockLocked(b); err != nil {
		e.state.Restore(snapshot)
		e.countBlockRejected()
		return err
	}

	e.blocks = append(e.blocks, b)
	e.blockIndexByHash[b.Hash] = len(e.blocks) - 1
	e.state.Height = b.Height
	e.state.LastBlockHash = b.Hash
	if _, err := e.state.CalculateAppHash(); err != nil {
		return &IOError{Op: "app-hash", Err: err}
	}

	e.prunePendingLocked(b)

	if proposer := e.state.GetValidator(b.ValidatorAddress); proposer != nil {
		proposer.TotalBlocksProposed++
	}

	e.mech.OnBlockCommitted(b, e.state)

	if e.metrics != nil {
		e.metrics.BlocksCommitted.Inc()
	}

	return e.saveLocked()
}

// verifyStructureLocked runs the commit-time structural checks: sequential
// height, linked previous hash, a re-derivable merkle root, and every
// included non-genesis transaction re-passing the admission checks for
// signature, sender derivation, nonce, and permissions. The pending-pool
// duplicate check does not apply at commit.
func (e *Engine) verifyStructureLocked(b *block.Block) error {
	expectedHeight := e.nextHeightLocked()
	if b.Height != expectedHeight {
		return &ValidationError{Op: "commit", Err: ErrHeightMismatch}
	}
	if b.PreviousHash != e.state.LastBlockHash {
		return &ValidationError{Op: "commit", Err: ErrPreviousHashMismatch}
	}
	if !b.VerifyMerkleRoot() {
		return &ValidationError{Op: "commit", Err: ErrMerkleRootMismatch}
	}
	for _, t := range b.Transactions {
		if t.Sender == tx.GenesisSender {
			continue
		}
		if err := t.Validate(); err != nil {
			return &ValidationError{Op: "commit", Err: ErrIncludedTxInvalid}
		}
		if t.Nonce < e.state.GetAccount(t.Sender).Nonce {
			return &ValidationError{Op: "commit", Err: ErrIncludedTxInvalid}
		}
		if err := e.checkTransactionPermissionsLocked(t); err != nil {
			return &ValidationError{Op: "commit", Err: ErrIncludedTxInvalid}
		}
	}
	return nil
}

// prunePendingLocked removes every transaction included in b from the
// pending pool, by digest.
func (e *Engine) prunePendingLocked(b *block.Block) {
	if len(b.Transactions) == 0 {
		return
	}
	included := make(map[string]bool, len(b.Transactions))
	for _, t := range b.Transactions {
		if h, err := t.Hash(); err == nil {
			included[h] = true
		}
	}

	kept := e.pending[:0]
	for _, t := range e.pending {
		h, err := t.Hash()
		if err == nil && included[h] {
			delete(e.pendingDigests, h)
			continue
		}
		kept = append(kept, t)
	}
	e.pending = kept
}

func (e *Engine) countBlockRejected() {
	if e.metrics != nil {
		e.metrics.BlocksRejected.Inc()
	}
}
