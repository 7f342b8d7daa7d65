package mls

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPromoteRequiresStanding(t *testing.T) {
	s, err := New(5, "creator", nil)
	require.NoError(t, err)

	require.Equal(t, 5, s.GetUserLevel("creator"))
	require.Equal(t, 1, s.GetUserLevel("alice"))

	// alice (level 1) cannot promote bob (level 1) to anything, having no
	// standing above him.
	require.False(t, s.PromoteUser("alice", "bob", 2))

	require.True(t, s.PromoteUser("creator", "alice", 3))
	require.Equal(t, 3, s.GetUserLevel("alice"))

	// alice (now level 3) can promote bob up to, but not past, her own level.
	require.True(t, s.PromoteUser("alice", "bob", 3))
	require.False(t, s.PromoteUser("alice", "bob", 4))
}

func TestDeniedPromotionIsAudited(t *testing.T) {
	s, err := New(5, "creator", nil)
	require.NoError(t, err)

	require.False(t, s.PromoteUser("mallory", "victim", 5))

	entries := s.GetAuditLog(AuditFilter{Actor: "mallory", Action: "promote"})
	require.Len(t, entries, 1)
	require.Equal(t, false, entries[0].Details["granted"])
	require.Equal(t, "victim", entries[0].Details["target"])
}

func TestDeniedDemotionIsAudited(t *testing.T) {
	s, err := New(5, "creator", nil)
	require.NoError(t, err)

	require.False(t, s.DemoteUser("mallory", "creator", 1))

	entries := s.GetAuditLog(AuditFilter{Actor: "mallory", Action: "demote"})
	require.Len(t, entries, 1)
	require.Equal(t, false, entries[0].Details["granted"])
}

func TestCreatorCannotBeDemoted(t *testing.T) {
	s, err := New(3, "creator", nil)
	require.NoError(t, err)
	require.False(t, s.DemoteUser("creator", "creator", 1))
	require.Equal(t, 3, s.GetUserLevel("creator"))
}

func TestAccessDataRequiresDominatingClearance(t *testing.T) {
	s, err := New(4, "creator", nil)
	require.NoError(t, err)

	require.True(t, s.StoreData("secret-1", "payload", 3, "creator", nil))

	_, ok := s.AccessData("nobody", "secret-1")
	require.False(t, ok)

	require.True(t, s.PromoteUser("creator", "analyst", 3))
	content, ok := s.AccessData("analyst", "secret-1")
	require.True(t, ok)
	require.Equal(t, "payload", content)
}

func TestAccessibleDataRespectsLattice(t *testing.T) {
	s, err := New(5, "creator", nil)
	require.NoError(t, err)

	require.True(t, s.StoreData("d1", "public", 1, "creator", nil))
	require.True(t, s.StoreData("d2", "internal", 2, "creator", nil))
	require.True(t, s.StoreData("d3", "confidential", 3, "creator", nil))
	require.True(t, s.StoreData("d5", "top-secret", 5, "creator", nil))

	require.True(t, s.PromoteUser("creator", "clerk", 2))

	accessible := s.GetAccessibleData("clerk")
	require.Len(t, accessible, 2)
	require.Equal(t, "d1", accessible[0].ID)
	require.Equal(t, "d2", accessible[1].ID)

	for _, id := range []string{"d1", "d2"} {
		_, ok := s.AccessData("clerk", id)
		require.True(t, ok)
	}
	for _, id := range []string{"d3", "d5"} {
		_, ok := s.AccessData("clerk", id)
		require.False(t, ok)
	}

	denied := s.GetAuditLog(AuditFilter{Actor: "clerk", Action: "access_denied"})
	require.Len(t, denied, 2)
}

func TestJSONRoundTripPreservesBookkeepingNotDataStore(t *testing.T) {
	s, err := New(5, "creator", nil)
	require.NoError(t, err)
	require.True(t, s.PromoteUser("creator", "alice", 2))
	require.True(t, s.StoreData("doc-1", "payload", 2, "creator", nil))

	raw, err := s.ToJSON()
	require.NoError(t, err)

	restored, err := FromJSON(raw)
	require.NoError(t, err)

	require.Equal(t, s.NumLevels(), restored.NumLevels())
	require.Equal(t, s.CreatorAddress(), restored.CreatorAddress())
	require.Equal(t, 2, restored.GetUserLevel("alice"))

	// the classified data store itself is not part of the wire form.
	_, ok := restored.AccessData("creator", "doc-1")
	require.False(t, ok)
}
