package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/ledger-core/pkg/crypto"
	"github.com/certen/ledger-core/pkg/tx"
)

func TestSingleLeafMerkleRoot(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	txn := tx.NewTransferTransaction(kp.Address(), "0xbob", 100, 0, 1000)
	require.NoError(t, txn.Sign(kp))

	b, err := New(1, "0xprevhash", []*tx.Transaction{txn}, kp.Address(), nil, 1000, 1)
	require.NoError(t, err)

	digest := txn.MustHash()
	require.Equal(t, crypto.HashString(digest), b.MerkleRoot)
}

func TestVerifyMerkleRootDetectsTamper(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	txn := tx.NewTransferTransaction(kp.Address(), "0xbob", 100, 0, 1000)
	require.NoError(t, txn.Sign(kp))

	b, err := New(1, "0xprevhash", []*tx.Transaction{txn}, kp.Address(), nil, 1000, 1)
	require.NoError(t, err)
	require.True(t, b.VerifyMerkleRoot())

	b.MerkleRoot = "tampered"
	require.False(t, b.VerifyMerkleRoot())
}

func TestFinalizeProducesStableHash(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	txn := tx.NewTransferTransaction(kp.Address(), "0xbob", 100, 0, 1000)
	require.NoError(t, txn.Sign(kp))

	b, err := New(1, "0xprevhash", []*tx.Transaction{txn}, kp.Address(), nil, 1000, 1)
	require.NoError(t, err)

	require.NoError(t, b.Finalize("sig"))
	require.NotEmpty(t, b.Hash)

	first := b.Hash
	require.NoError(t, b.Finalize("sig"))
	require.Equal(t, first, b.Hash)
}

func TestJSONRoundTripPreservesHash(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	txn := tx.NewTransferTransaction(kp.Address(), "0xbob", 100, 0, 1000)
	require.NoError(t, txn.Sign(kp))

	b, err := New(1, "0xprevhash", []*tx.Transaction{txn}, kp.Address(), nil, 1000, 1)
	require.NoError(t, err)
	require.NoError(t, b.Finalize("sig"))

	data, err := b.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)
	require.Equal(t, b.Hash, decoded.Hash)
}

func TestGenesisBlockShape(t *testing.T) {
	g, err := NewGenesis("test-chain", []map[string]any{{"address": "0xv1"}}, 0)
	require.NoError(t, err)

	require.Equal(t, uint64(0), g.Height)
	require.Equal(t, GenesisPreviousHash, g.PreviousHash)
	require.Equal(t, GenesisValidatorAddress, g.ValidatorAddress)
	require.Equal(t, tx.GenesisSignature, g.ValidatorSignature)
	require.Len(t, g.Transactions, 1)
	require.Equal(t, tx.Genesis, g.Transactions[0].Type)
}
