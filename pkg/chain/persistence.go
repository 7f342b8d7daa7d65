package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/mls"
	"github.com/certen/ledger-core/pkg/state"
)

const (
	blocksFileName      = "blocks.json"
	stateFileName       = "state.json"
	permissionsFileName = "permissions.json"
)

// saveLocked atomically persists blocks.json, state.json, and
// permissions.json under the engine's data directory. Each file is written
// to a temporary sibling and renamed into place so a crash mid-write never
// leaves a truncated file behind.
func (e *Engine) saveLocked() error {
	if e.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(e.dataDir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Err: err}
	}

	blocksRaw, err := json.Marshal(e.blocks)
	if err != nil {
		return &IOError{Op: "marshal blocks", Err: err}
	}
	if err := writeAtomic(filepath.Join(e.dataDir, blocksFileName), blocksRaw); err != nil {
		return &IOError{Op: "write blocks", Err: err}
	}

	stateRaw, err := e.state.ToJSON()
	if err != nil {
		return &IOError{Op: "marshal state", Err: err}
	}
	if err := writeAtomic(filepath.Join(e.dataDir, stateFileName), stateRaw); err != nil {
		return &IOError{Op: "write state", Err: err}
	}

	mlsRaw, err := e.mls.ToJSON()
	if err != nil {
		return &IOError{Op: "marshal permissions", Err: err}
	}
	if err := writeAtomic(filepath.Join(e.dataDir, permissionsFileName), mlsRaw); err != nil {
		return &IOError{Op: "write permissions", Err: err}
	}

	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load restores an engine's blocks, state, and MLS system from dataDir and
// re-initializes the consensus mechanism against the restored view. Callers
// construct the Engine with New, then call Load instead of Bootstrap.
func (e *Engine) Load() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	blocksRaw, err := os.ReadFile(filepath.Join(e.dataDir, blocksFileName))
	if err != nil {
		return &IOError{Op: "read blocks", Err: err}
	}
	var rawBlocks []json.RawMessage
	if err := json.Unmarshal(blocksRaw, &rawBlocks); err != nil {
		return &IOError{Op: "unmarshal blocks", Err: fmt.Errorf("%w", err)}
	}
	blocks := make([]*block.Block, len(rawBlocks))
	index := make(map[string]int, len(rawBlocks))
	for i, raw := range rawBlocks {
		b, err := block.FromJSON(raw)
		if err != nil {
			return &IOError{Op: "decode block", Err: err}
		}
		blocks[i] = b
		index[b.Hash] = i
	}

	stateRaw, err := os.ReadFile(filepath.Join(e.dataDir, stateFileName))
	if err != nil {
		return &IOError{Op: "read state", Err: err}
	}
	st, err := state.FromJSON(stateRaw)
	if err != nil {
		return &IOError{Op: "decode state", Err: err}
	}

	permissionsRaw, err := os.ReadFile(filepath.Join(e.dataDir, permissionsFileName))
	if err != nil {
		return &IOError{Op: "read permissions", Err: err}
	}
	system, err := mls.FromJSON(permissionsRaw)
	if err != nil {
		return &IOError{Op: "decode permissions", Err: err}
	}

	e.blocks = blocks
	e.blockIndexByHash = index
	e.state = st
	e.mls = system
	e.pending = nil
	e.pendingDigests = map[string]bool{}

	if err := e.mech.Initialize(mechView{e}); err != nil {
		return &ValidationError{Op: "load consensus init", Err: err}
	}
	return nil
}
