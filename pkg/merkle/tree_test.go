package merkle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildTreeEmptyYieldsEmptyRoot(t *testing.T) {
	tree, err := BuildTree(nil)
	require.NoError(t, err)
	require.Equal(t, hashLeaf(""), tree.Root())
	require.Equal(t, 0, tree.LeafCount())
}

func TestBuildTreeSingleLeaf(t *testing.T) {
	tree, err := BuildTree([]string{"a"})
	require.NoError(t, err)
	require.Equal(t, hashLeaf("a"), tree.Root())
	require.Equal(t, 1, tree.LeafCount())
}

func TestBuildTreeOddLeafDuplication(t *testing.T) {
	leaves := []string{"a", "b", "c"}
	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	ha, hb, hc := hashLeaf("a"), hashLeaf("b"), hashLeaf("c")
	expectedPair := hashPair(ha, hb)
	expectedOdd := hashPair(hc, hc)
	expectedRoot := hashPair(expectedPair, expectedOdd)
	require.Equal(t, expectedRoot, tree.Root())
}

func TestGenerateAndVerifyProof(t *testing.T) {
	leaves := []string{"a", "b", "c", "d", "e"}
	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	for i, leaf := range leaves {
		proof, err := tree.GenerateProof(i)
		require.NoError(t, err)
		require.Equal(t, leaf, proof.Leaf)
		require.Equal(t, hashLeaf(leaf), proof.LeafHash)
		require.True(t, VerifyProof(leaf, proof, tree.Root()))
	}
}

func TestGenerateProofByHash(t *testing.T) {
	leaves := []string{"a", "b", "c"}
	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	proof, err := tree.GenerateProofByHash("b")
	require.NoError(t, err)
	require.Equal(t, 1, proof.LeafIndex)

	_, err = tree.GenerateProofByHash("not-a-leaf")
	require.ErrorIs(t, err, ErrLeafNotFound)
}

func TestVerifyProofRejectsWrongLeaf(t *testing.T) {
	leaves := []string{"a", "b", "c", "d"}
	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(2)
	require.NoError(t, err)
	require.False(t, VerifyProof("a", proof, tree.Root()))
}

func TestProofJSONRoundTrip(t *testing.T) {
	leaves := []string{"a", "b", "c"}
	tree, err := BuildTree(leaves)
	require.NoError(t, err)

	proof, err := tree.GenerateProof(0)
	require.NoError(t, err)

	data, err := proof.ToJSON()
	require.NoError(t, err)

	decoded, err := ProofFromJSON(data)
	require.NoError(t, err)
	require.Equal(t, proof.MerkleRoot, decoded.MerkleRoot)
	require.True(t, VerifyProof(decoded.Leaf, decoded, tree.Root()))
}

func TestGetLeafOutOfRange(t *testing.T) {
	tree, err := BuildTree([]string{"a"})
	require.NoError(t, err)

	_, err = tree.GetLeaf(5)
	require.Error(t, err)
}
