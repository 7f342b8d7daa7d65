// Package state holds the deterministic chain state: accounts, validators,
// and the application hash, with snapshot/restore for block-level rollback.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// ZeroHash is 64 zero hex digits, used as the genesis previous-hash and the
// initial app-hash before the first commit.
const ZeroHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Account is a single address's balance, nonce, storage, and flat
// permission tag set.
type Account struct {
	Address     string         `json:"address"`
	Balance     float64        `json:"balance"`
	Nonce       uint64         `json:"nonce"`
	Storage     map[string]any `json:"storage"`
	Permissions []string       `json:"permissions"`
}

func newAccount(address string) *Account {
	return &Account{
		Address:     address,
		Storage:     map[string]any{},
		Permissions: []string{},
	}
}

func (a *Account) clone() *Account {
	c := &Account{
		Address: a.Address,
		Balance: a.Balance,
		Nonce:   a.Nonce,
		Storage: make(map[string]any, len(a.Storage)),
	}
	for k, v := range a.Storage {
		c.Storage[k] = v
	}
	c.Permissions = append([]string(nil), a.Permissions...)
	return c
}

// Validator is a single validator's identity, power, and activity counters.
type Validator struct {
	Address             string `json:"address"`
	PubKey              string `json:"pub_key"`
	Power               int64  `json:"power"`
	Name                string `json:"name"`
	Active              bool   `json:"active"`
	TotalBlocksProposed uint64 `json:"total_blocks_proposed"`
	TotalBlocksSigned   uint64 `json:"total_blocks_signed"`
}

// NewValidator constructs an active validator with the given power.
func NewValidator(address, pubKey string, power int64, name string) *Validator {
	return &Validator{
		Address: address,
		PubKey:  pubKey,
		Power:   power,
		Name:    name,
		Active:  true,
	}
}

func (v *Validator) clone() *Validator {
	c := *v
	return &c
}

// State is the full chain state: accounts, validators, and the derived
// application hash. All mutating methods materialize accounts on first
// reference, at zero balance and zero nonce.
type State struct {
	mu sync.RWMutex

	ChainID       string                `json:"chain_id"`
	Height        uint64                `json:"height"`
	LastBlockHash string                `json:"last_block_hash"`
	AppHash       string                `json:"app_hash"`
	Accounts      map[string]*Account   `json:"accounts"`
	Validators    map[string]*Validator `json:"validators"`
	CustomState   map[string]any        `json:"custom_state"`
}

// New returns a fresh chain state at height 0 with zero hashes.
func New(chainID string) *State {
	return &State{
		ChainID:       chainID,
		LastBlockHash: ZeroHash,
		AppHash:       ZeroHash,
		Accounts:      map[string]*Account{},
		Validators:    map[string]*Validator{},
		CustomState:   map[string]any{},
	}
}

// GetAccount returns the account at address, materializing a zero-value
// account on first reference.
func (s *State) GetAccount(address string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAccountLocked(address)
}

func (s *State) getAccountLocked(address string) *Account {
	if acc, ok := s.Accounts[address]; ok {
		return acc
	}
	acc := newAccount(address)
	s.Accounts[address] = acc
	return acc
}

// GetValidator returns the validator at address, or nil if unknown.
func (s *State) GetValidator(address string) *Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Validators[address]
}

// AddValidator inserts or updates a validator (idempotent upsert).
func (s *State) AddValidator(v *Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Validators[v.Address] = v
}

// RemoveValidator marks a validator inactive without deleting its history.
// Returns false if the validator is unknown.
func (s *State) RemoveValidator(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Validators[address]
	if !ok {
		return false
	}
	v.Active = false
	return true
}

// ActiveValidators returns every validator with Active == true.
func (s *State) ActiveValidators() []*Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Validator, 0, len(s.Validators))
	for _, v := range s.Validators {
		if v.Active {
			out = append(out, v)
		}
	}
	return out
}

// Transfer debits fromAddress and credits toAddress by amount, incrementing
// the sender's nonce only on success. Returns false on insufficient balance
// without mutating either account.
func (s *State) Transfer(fromAddress, toAddress string, amount float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender := s.getAccountLocked(fromAddress)
	if sender.Balance < amount {
		return false
	}
	recipient := s.getAccountLocked(toAddress)

	sender.Balance -= amount
	recipient.Balance += amount
	sender.Nonce++
	return true
}

// GrantPermission adds permission to address's flat tag set, if absent.
func (s *State) GrantPermission(address, permission string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.getAccountLocked(address)
	for _, p := range acc.Permissions {
		if p == permission {
			return
		}
	}
	acc.Permissions = append(acc.Permissions, permission)
}

// RevokePermission removes permission from address's flat tag set, if present.
func (s *State) RevokePermission(address, permission string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.getAccountLocked(address)
	for i, p := range acc.Permissions {
		if p == permission {
			acc.Permissions = append(acc.Permissions[:i], acc.Permissions[i+1:]...)
			return
		}
	}
}

// HasPermission reports whether address's flat tag set contains permission.
func (s *State) HasPermission(address, permission string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.Accounts[address]
	if !ok {
		return false
	}
	for _, p := range acc.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// wireForm is the canonical sorted-key JSON projection used both for
// persistence (state.json) and app-hash calculation. Fields are declared in
// alphabetical key order since encoding/json emits struct fields in
// declaration order.
type wireForm struct {
	Accounts      map[string]*Account   `json:"accounts"`
	AppHash       string                `json:"app_hash"`
	ChainID       string                `json:"chain_id"`
	CustomState   map[string]any        `json:"custom_state"`
	Height        uint64                `json:"height"`
	LastBlockHash string                `json:"last_block_hash"`
	Validators    map[string]*Validator `json:"validators"`
}

func (s *State) toWireFormLocked() wireForm {
	return wireForm{
		Accounts:      s.Accounts,
		AppHash:       s.AppHash,
		ChainID:       s.ChainID,
		CustomState:   s.CustomState,
		Height:        s.Height,
		LastBlockHash: s.LastBlockHash,
		Validators:    s.Validators,
	}
}

// CalculateAppHash recomputes and stores AppHash as SHA-256 over the
// canonical (sorted-key) JSON serialization of the entire state.
func (s *State) CalculateAppHash() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(s.toWireFormLocked())
	if err != nil {
		return "", fmt.Errorf("state: marshal for app-hash: %w", err)
	}
	digest := sha256.Sum256(raw)
	s.AppHash = hex.EncodeToString(digest[:])
	return s.AppHash, nil
}

// Snapshot returns a pure-value deep copy of the state, suitable for
// restoring on block-execution rollback.
func (s *State) Snapshot() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &State{
		ChainID:       s.ChainID,
		Height:        s.Height,
		LastBlockHash: s.LastBlockHash,
		AppHash:       s.AppHash,
		Accounts:      make(map[string]*Account, len(s.Accounts)),
		Validators:    make(map[string]*Validator, len(s.Validators)),
		CustomState:   make(map[string]any, len(s.CustomState)),
	}
	for addr, acc := range s.Accounts {
		snap.Accounts[addr] = acc.clone()
	}
	for addr, v := range s.Validators {
		snap.Validators[addr] = v.clone()
	}
	for k, v := range s.CustomState {
		snap.CustomState[k] = v
	}
	return snap
}

// Restore replaces this state's contents with snap's, in place — used to
// roll back a failed block execution without losing the caller's reference
// to the original *State.
func (s *State) Restore(snap *State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	other := snap.Snapshot()
	s.ChainID = other.ChainID
	s.Height = other.Height
	s.LastBlockHash = other.LastBlockHash
	s.AppHash = other.AppHash
	s.Accounts = other.Accounts
	s.Validators = other.Validators
	s.CustomState = other.CustomState
}

// ToJSON serializes the state to its canonical persisted form.
func (s *State) ToJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.toWireFormLocked())
}

// FromJSON reconstructs a state from its persisted JSON form.
func FromJSON(data []byte) (*State, error) {
	var w wireForm
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("state: unmarshal: %w", err)
	}
	if w.Accounts == nil {
		w.Accounts = map[string]*Account{}
	}
	if w.Validators == nil {
		w.Validators = map[string]*Validator{}
	}
	if w.CustomState == nil {
		w.CustomState = map[string]any{}
	}
	for addr, acc := range w.Accounts {
		if acc.Storage == nil {
			acc.Storage = map[string]any{}
		}
		if acc.Permissions == nil {
			acc.Permissions = []string{}
		}
		acc.Address = addr
	}
	return &State{
		ChainID:       w.ChainID,
		Height:        w.Height,
		LastBlockHash: w.LastBlockHash,
		AppHash:       w.AppHash,
		Accounts:      w.Accounts,
		Validators:    w.Validators,
		CustomState:   w.CustomState,
	}, nil
}
