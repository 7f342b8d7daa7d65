package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransferDebitsAndCredits(t *testing.T) {
	s := New("test-chain")
	alice := s.GetAccount("0xalice")
	alice.Balance = 1000

	ok := s.Transfer("0xalice", "0xbob", 100)
	require.True(t, ok)
	require.Equal(t, 900.0, s.GetAccount("0xalice").Balance)
	require.Equal(t, 100.0, s.GetAccount("0xbob").Balance)
	require.Equal(t, uint64(1), s.GetAccount("0xalice").Nonce)
}

func TestTransferRejectsInsufficientBalance(t *testing.T) {
	s := New("test-chain")
	s.GetAccount("0xalice").Balance = 10

	ok := s.Transfer("0xalice", "0xbob", 100)
	require.False(t, ok)
	require.Equal(t, 10.0, s.GetAccount("0xalice").Balance)
	require.Equal(t, 0.0, s.GetAccount("0xbob").Balance)
	require.Equal(t, uint64(0), s.GetAccount("0xalice").Nonce)
}

func TestGrantAndRevokePermission(t *testing.T) {
	s := New("test-chain")
	s.GrantPermission("0xalice", "can_transfer")
	require.True(t, s.HasPermission("0xalice", "can_transfer"))

	s.GrantPermission("0xalice", "can_transfer")
	require.Len(t, s.GetAccount("0xalice").Permissions, 1, "granting twice must not duplicate")

	s.RevokePermission("0xalice", "can_transfer")
	require.False(t, s.HasPermission("0xalice", "can_transfer"))
}

func TestValidatorLifecycle(t *testing.T) {
	s := New("test-chain")
	v := NewValidator("0xv1", "pubkey", 10, "validator-1")
	s.AddValidator(v)

	require.Len(t, s.ActiveValidators(), 1)

	require.True(t, s.RemoveValidator("0xv1"))
	require.Len(t, s.ActiveValidators(), 0)
	require.NotNil(t, s.GetValidator("0xv1"), "removal deactivates, does not delete")

	require.False(t, s.RemoveValidator("0xunknown"))
}

func TestSnapshotRestoreRollback(t *testing.T) {
	s := New("test-chain")
	s.GetAccount("0xalice").Balance = 1000
	s.Height = 1
	_, err := s.CalculateAppHash()
	require.NoError(t, err)

	preHash := s.AppHash
	snap := s.Snapshot()

	s.Transfer("0xalice", "0xbob", 500)
	s.Height = 2
	_, err = s.CalculateAppHash()
	require.NoError(t, err)
	require.NotEqual(t, preHash, s.AppHash)

	s.Restore(snap)
	require.Equal(t, 1000.0, s.GetAccount("0xalice").Balance)
	require.Equal(t, 0.0, s.GetAccount("0xbob").Balance)
	require.Equal(t, uint64(1), s.Height)
	require.Equal(t, preHash, s.AppHash)
}

func TestJSONRoundTrip(t *testing.T) {
	s := New("test-chain")
	s.GetAccount("0xalice").Balance = 42
	s.AddValidator(NewValidator("0xv1", "pubkey", 10, "validator-1"))
	_, err := s.CalculateAppHash()
	require.NoError(t, err)

	data, err := s.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)
	require.Equal(t, s.AppHash, decoded.AppHash)
	require.Equal(t, 42.0, decoded.GetAccount("0xalice").Balance)
	require.NotNil(t, decoded.GetValidator("0xv1"))
}
