// Package block defines the ledger's block header/body shape, merkle-root
// computation, and finalization.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/certen/ledger-core/pkg/merkle"
	"github.com/certen/ledger-core/pkg/state"
	"github.com/certen/ledger-core/pkg/tx"
)

// GenesisPreviousHash is the previous-hash value required of the genesis block.
const GenesisPreviousHash = state.ZeroHash

// GenesisValidatorAddress is the validator address recorded on the genesis block.
const GenesisValidatorAddress = "genesis"

// header is the canonical sorted-key JSON record whose digest is the block
// hash. Transactions are intentionally absent — only merkle_root
// represents them. Fields are declared in alphabetical key order;
// encoding/json emits struct fields in declaration order, so this is what
// keeps the record canonical.
type header struct {
	ConsensusData      map[string]any `json:"consensus_data"`
	Height             uint64         `json:"height"`
	MerkleRoot         string         `json:"merkle_root"`
	PreviousHash       string         `json:"previous_hash"`
	Timestamp          float64        `json:"timestamp"`
	ValidatorAddress   string         `json:"validator_address"`
	ValidatorSignature string         `json:"validator_signature"`
	Version            int            `json:"version"`
}

// Block is the append-only unit of the chain: a header plus its ordered
// transaction list.
type Block struct {
	Version            int                `json:"version"`
	Height             uint64             `json:"height"`
	Timestamp          float64            `json:"timestamp"`
	PreviousHash       string             `json:"previous_hash"`
	Transactions       []*tx.Transaction  `json:"transactions"`
	ValidatorAddress   string             `json:"validator_address"`
	ValidatorSignature string             `json:"validator_signature"`
	MerkleRoot         string             `json:"merkle_root"`
	ConsensusData      map[string]any     `json:"consensus_data"`
	Hash               string             `json:"hash"`
}

// New constructs a block at height with previousHash, computing its merkle
// root immediately. finalize must still be called to attach the validator
// signature and derive the block hash.
func New(height uint64, previousHash string, transactions []*tx.Transaction, validatorAddress string, consensusData map[string]any, timestamp float64, version int) (*Block, error) {
	if consensusData == nil {
		consensusData = map[string]any{}
	}
	root, err := merkleRoot(transactions)
	if err != nil {
		return nil, err
	}
	return &Block{
		Version:          version,
		Height:           height,
		Timestamp:        timestamp,
		PreviousHash:     previousHash,
		Transactions:     transactions,
		ValidatorAddress: validatorAddress,
		MerkleRoot:       root,
		ConsensusData:    consensusData,
	}, nil
}

// merkleRoot builds the merkle tree over the transactions' canonical
// digests and returns its root. An empty transaction list yields
// merkle.BuildTree's empty-input root, SHA256("").
func merkleRoot(transactions []*tx.Transaction) (string, error) {
	digests := make([]string, len(transactions))
	for i, t := range transactions {
		h, err := t.Hash()
		if err != nil {
			return "", fmt.Errorf("block: hash transaction %d: %w", i, err)
		}
		digests[i] = h
	}
	tree, err := merkle.BuildTree(digests)
	if err != nil {
		return "", err
	}
	return tree.Root(), nil
}

// Finalize attaches the validator signature, builds the header record, and
// derives the block hash as the header's canonical SHA-256 digest.
func (b *Block) Finalize(signature string) error {
	b.ValidatorSignature = signature

	h := header{
		ConsensusData:      b.ConsensusData,
		Height:             b.Height,
		MerkleRoot:         b.MerkleRoot,
		PreviousHash:       b.PreviousHash,
		Timestamp:          b.Timestamp,
		ValidatorAddress:   b.ValidatorAddress,
		ValidatorSignature: b.ValidatorSignature,
		Version:            b.Version,
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("block: marshal header: %w", err)
	}
	digest := sha256.Sum256(raw)
	b.Hash = hex.EncodeToString(digest[:])
	return nil
}

// VerifyMerkleRoot recomputes the merkle root over the block's transactions
// and compares it to the stored MerkleRoot field.
func (b *Block) VerifyMerkleRoot() bool {
	root, err := merkleRoot(b.Transactions)
	if err != nil {
		return false
	}
	return root == b.MerkleRoot
}

// ToJSON serializes the block to its canonical wire form.
func (b *Block) ToJSON() ([]byte, error) {
	return json.Marshal(b)
}

// FromJSON reconstructs a block from its wire form and re-finalizes it so
// Hash is re-derived rather than trusted from the wire.
func FromJSON(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("block: unmarshal: %w", err)
	}
	if b.ConsensusData == nil {
		b.ConsensusData = map[string]any{}
	}
	sig := b.ValidatorSignature
	if err := b.Finalize(sig); err != nil {
		return nil, err
	}
	return &b, nil
}

// NewGenesis builds the self-signed genesis block: height 0, the all-zero
// previous-hash, a single GENESIS transaction, and the sentinel signature.
func NewGenesis(chainID string, initialValidators []map[string]any, genesisTime float64) (*Block, error) {
	genesisTx := tx.NewGenesisTransaction(chainID, initialValidators, genesisTime)

	b, err := New(0, GenesisPreviousHash, []*tx.Transaction{genesisTx}, GenesisValidatorAddress, map[string]any{
		"chain_id": chainID,
		"genesis":  true,
	}, genesisTime, 1)
	if err != nil {
		return nil, err
	}
	if err := b.Finalize(tx.GenesisSignature); err != nil {
		return nil, err
	}
	return b, nil
}
