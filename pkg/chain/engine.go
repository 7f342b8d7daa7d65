// Package chain implements the ledger's chain engine: block proposal,
// structural and consensus verification, deterministic transaction
// execution with snapshot rollback, and persistence — the component that
// owns the block list, pending pool, state, consensus plugin, and
// multi-level permission system.
package chain

import (
	"log"
	"sync"
	"time"

	"github.com/certen/ledger-core/pkg/acl"
	"github.com/certen/ledger-core/pkg/block"
	"github.com/certen/ledger-core/pkg/consensus"
	"github.com/certen/ledger-core/pkg/crypto"
	"github.com/certen/ledger-core/pkg/metrics"
	"github.com/certen/ledger-core/pkg/mls"
	"github.com/certen/ledger-core/pkg/rbac"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// BlockVersion is the wire-format version stamped on every block this
// engine produces.
const BlockVersion = 1

// requiredPermission maps each transaction kind to the flat permission tag
// its sender must hold at admission.
var requiredPermission = map[tx.Type]acl.Permission{
	tx.Transfer:         acl.CanTransfer,
	tx.ValidatorUpdate:  acl.CanUpdateValidators,
	tx.PermissionGrant:  acl.CanGrantPermissions,
	tx.PermissionRevoke: acl.CanRevokePermissions,
}

// Engine is the single owner of a chain's blocks, pending pool, state,
// consensus plugin, and permission subsystems. A single mutex serializes
// external callers; mutating methods are not re-entrant with each other.
type Engine struct {
	mu sync.RWMutex

	chainID string
	dataDir string
	logger  *log.Logger

	blocks           []*block.Block
	blockIndexByHash map[string]int
	pending          []*tx.Transaction
	pendingDigests   map[string]bool

	state *state.State
	mech  consensus.Mechanism
	mls   *mls.System
	rbac  *rbac.RBAC

	metrics *metrics.Collector
}

// Option configures optional Engine fields at construction.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics attaches a metrics collector the engine increments on every
// admission, proposal, and commit.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// New constructs an engine over a fresh chain state. Callers must still
// call Bootstrap (for a new chain) or Load (to restore a persisted one)
// before submitting transactions.
func New(chainID, dataDir string, mech consensus.Mechanism, mlsLevels int, creatorAddress string, opts ...Option) (*Engine, error) {
	system, err := mls.New(mlsLevels, creatorAddress, nil)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		chainID:          chainID,
		dataDir:          dataDir,
		logger:           log.New(log.Writer(), "[Chain] ", log.LstdFlags),
		blockIndexByHash: map[string]int{},
		pendingDigests:   map[string]bool{},
		state:            state.New(chainID),
		mech:             mech,
		mls:              system,
		rbac:             rbac.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Bootstrap creates the genesis block and seeds the initial validator set.
// It must be called exactly once, on a freshly constructed Engine with no
// persisted data to Load.
func (e *Engine) Bootstrap(validators []GenesisValidator, genesisTime float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if genesisTime == 0 {
		genesisTime = float64(time.Now().Unix())
	}

	genesis, err := block.NewGenesis(e.chainID, genesisValidatorMaps(validators), genesisTime)
	if err != nil {
		return &ValidationError{Op: "bootstrap", Err: err}
	}

	for _, v := range validators {
		e.state.AddValidator(state.NewValidator(v.Address, v.PubKey, v.Power, v.Name))
		e.bootstrapValidatorPermissionsLocked(v.Address)
	}

	e.blocks = []*block.Block{genesis}
	e.blockIndexByHash = map[string]int{genesis.Hash: 0}
	e.state.Height = 0
	e.state.LastBlockHash = genesis.Hash
	if _, err := e.state.CalculateAppHash(); err != nil {
		return &IOError{Op: "bootstrap app-hash", Err: err}
	}

	if err := e.mech.Initialize(mechView{e}); err != nil {
		return &ValidationError{Op: "bootstrap consensus init", Err: err}
	}

	return e.saveLocked()
}

// bootstrapValidatorPermissionsLocked grants a genesis validator both the
// "validator" and "user" roles through the RBAC layer, then mirrors the
// resulting permission set into the account's flat tags — the set the
// admission-time permission gate actually consults.
func (e *Engine) bootstrapValidatorPermissionsLocked(address string) {
	e.rbac.AssignRole(address, "validator")
	e.rbac.AssignRole(address, "user")
	for _, p := range e.rbac.GetPermissions(address) {
		e.state.GrantPermission(address, string(p))
	}
}

// State returns the underlying chain state for read access and for wiring
// into a consensus mechanism's ValidateBlock calls.
func (e *Engine) State() *state.State { return e.state }

// MLS returns the multi-level permission system the engine owns.
func (e *Engine) MLS() *mls.System { return e.mls }

// RBAC returns the role-based access control layer the engine owns.
func (e *Engine) RBAC() *rbac.RBAC { return e.rbac }

// ChainID returns the chain's identifier.
func (e *Engine) ChainID() string { return e.chainID }

// --- consensus.ChainView ---

// ActiveValidators implements consensus.ChainView.
func (e *Engine) ActiveValidators() []*state.Validator {
	return e.state.ActiveValidators()
}

// TipBlock implements consensus.ChainView.
func (e *Engine) TipBlock() *block.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.blocks) == 0 {
		return nil
	}
	return e.blocks[len(e.blocks)-1]
}

// Height implements consensus.ChainView.
func (e *Engine) Height() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.blocks) == 0 {
		return 0
	}
	return uint64(len(e.blocks) - 1)
}

// BlockAtHeight implements consensus.ChainView.
func (e *Engine) BlockAtHeight(height uint64) *block.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if height >= uint64(len(e.blocks)) {
		return nil
	}
	return e.blocks[height]
}

var _ consensus.ChainView = (*Engine)(nil)

// mechView is the ChainView handed to the installed consensus mechanism.
// Mechanism callbacks (ValidateBlock, SelectProposer via the block-time and
// lottery-seed paths) run while the engine's write lock is already held, so
// these accessors read engine fields directly instead of re-acquiring the
// lock — the engine's own RWMutex is not re-entrant. External callers use
// the Engine's locked methods instead.
type mechView struct {
	e *Engine
}

func (v mechView) ActiveValidators() []*state.Validator {
	return v.e.state.ActiveValidators()
}

func (v mechView) TipBlock() *block.Block {
	return v.e.tipLocked()
}

func (v mechView) Height() uint64 {
	if len(v.e.blocks) == 0 {
		return 0
	}
	return uint64(len(v.e.blocks) - 1)
}

func (v mechView) BlockAtHeight(height uint64) *block.Block {
	if height >= uint64(len(v.e.blocks)) {
		return nil
	}
	return v.e.blocks[height]
}

var _ consensus.ChainView = mechView{}

// --- Queries ---

// ChainInfo summarizes the chain's current tip for external callers.
type ChainInfo struct {
	ChainID       string `json:"chain_id"`
	Height        uint64 `json:"height"`
	LastBlockHash string `json:"last_block_hash"`
	AppHash       string `json:"app_hash"`
	PendingCount  int    `json:"pending_count"`
	ValidatorCount int   `json:"validator_count"`
}

// GetChainInfo returns a snapshot summary of the chain.
func (e *Engine) GetChainInfo() ChainInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return ChainInfo{
		ChainID:        e.chainID,
		Height:         e.state.Height,
		LastBlockHash:  e.state.LastBlockHash,
		AppHash:        e.state.AppHash,
		PendingCount:   len(e.pending),
		ValidatorCount: len(e.state.ActiveValidators()),
	}
}

// GetBlockByHeight returns the committed block at height, or nil.
func (e *Engine) GetBlockByHeight(height uint64) *block.Block {
	return e.BlockAtHeight(height)
}

// GetBlockByHash returns the committed block with the given hash, or nil.
func (e *Engine) GetBlockByHash(hash string) *block.Block {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.blockIndexByHash[hash]
	if !ok {
		return nil
	}
	return e.blocks[idx]
}

// PendingTransactions returns a copy of the current pending pool.
func (e *Engine) PendingTransactions() []*tx.Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*tx.Transaction(nil), e.pending...)
}

// UserLevel returns address's MLS clearance level.
func (e *Engine) UserLevel(address string) int {
	return e.mls.GetUserLevel(address)
}

// StoreClassifiedData stores content at securityLevel, gated on owner
// clearance by the MLS system.
func (e *Engine) StoreClassifiedData(dataID string, content any, securityLevel int, ownerAddress string) bool {
	ok := e.mls.StoreData(dataID, content, securityLevel, ownerAddress, nil)
	if !ok && e.metrics != nil {
		e.metrics.PermissionDenials.WithLabelValues("mls").Inc()
	}
	return ok
}

// AccessClassifiedData reads classified content on behalf of userAddress,
// subject to the no-read-up rule; every attempt is audited by the MLS system.
func (e *Engine) AccessClassifiedData(userAddress, dataID string) (any, bool) {
	content, ok := e.mls.AccessData(userAddress, dataID)
	if !ok && e.metrics != nil {
		e.metrics.PermissionDenials.WithLabelValues("mls").Inc()
	}
	return content, ok
}

// PermissionAuditLog returns MLS audit entries matching filter.
func (e *Engine) PermissionAuditLog(filter mls.AuditFilter) []mls.AuditEntry {
	return e.mls.GetAuditLog(filter)
}

// signMerkleRoot signs a block's merkle root with a hex-encoded private key.
func signMerkleRoot(root, privateKeyHex string) (string, error) {
	return crypto.SignMessage([]byte(root), privateKeyHex)
}
