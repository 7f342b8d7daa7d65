package tx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/ledger-core/pkg/crypto"
)

func TestSignatureExcludedFromDigest(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	txn := NewTransferTransaction(kp.Address(), "0xbob", 10, 0, 100.0)
	before, err := txn.Hash()
	require.NoError(t, err)

	require.NoError(t, txn.Sign(kp))

	after, err := txn.Hash()
	require.NoError(t, err)
	require.Equal(t, before, after, "signing must not change the digest")
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	txn := NewTransferTransaction(kp.Address(), "0xbob", 10, 0, 100.0)
	require.NoError(t, txn.Sign(kp))
	require.NoError(t, txn.Validate())
}

func TestValidateRejectsSenderMismatch(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	txn := NewTransferTransaction("0xsomeoneelse", "0xbob", 10, 0, 100.0)
	require.NoError(t, txn.Sign(kp))
	require.ErrorIs(t, txn.Validate(), ErrSenderMismatch)
}

func TestValidateRejectsTamperedOutput(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	txn := NewTransferTransaction(kp.Address(), "0xbob", 10, 0, 100.0)
	require.NoError(t, txn.Sign(kp))

	tampered := amountPtr(999)
	txn.Outputs[0].Amount = tampered

	require.ErrorIs(t, txn.Validate(), ErrInvalidSignature)
}

func TestGenesisTransactionBypassesVerification(t *testing.T) {
	txn := NewGenesisTransaction("test-chain", []map[string]any{{"address": "0xv1"}}, 0)
	require.NoError(t, txn.Validate())
	require.Equal(t, GenesisSignature, txn.Signature)
}

func TestJSONRoundTripPreservesDigest(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	txn := NewTransferTransaction(kp.Address(), "0xbob", 10, 3, 100.5)
	require.NoError(t, txn.Sign(kp))

	data, err := txn.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)

	origHash, err := txn.Hash()
	require.NoError(t, err)
	decodedHash, err := decoded.Hash()
	require.NoError(t, err)
	require.Equal(t, origHash, decodedHash)
	require.NoError(t, decoded.Validate())
}

func TestPermissionTransactionRouting(t *testing.T) {
	level := 3
	grantTx := NewPermissionTransaction("0xadmin", "0xtarget", "", PermissionActionSetLevel, &level, 0, 0)
	require.Equal(t, PermissionGrant, grantTx.Type)
	require.Equal(t, 3, grantTx.Data["new_level"])
	require.Equal(t, "set_level", grantTx.Data["action"])
}
