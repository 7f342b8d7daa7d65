package acl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrantAndRevokeReportChanges(t *testing.T) {
	l := New()

	require.True(t, l.GrantPermission("0xalice", CanTransfer, "0xadmin"))
	require.False(t, l.GrantPermission("0xalice", CanTransfer, "0xadmin"), "second grant is a no-op")

	require.True(t, l.RevokePermission("0xalice", CanTransfer, "0xadmin"))
	require.False(t, l.RevokePermission("0xalice", CanTransfer, "0xadmin"), "second revoke is a no-op")
}

func TestAdminEscalation(t *testing.T) {
	l := New()
	l.GrantAdmin("0xalice", "")

	require.True(t, l.HasPermission("0xalice", CanTransfer))
	require.True(t, l.HasPermission("0xalice", CanUpdateValidators))
	require.False(t, l.HasPermission("0xalice", SuperAdmin), "admin does not imply super_admin")

	l.GrantSuperAdmin("0xbob", "")
	require.True(t, l.HasPermission("0xbob", SuperAdmin))
	require.True(t, l.HasPermission("0xbob", CanGrantPermissions))
}

func TestReverseIndex(t *testing.T) {
	l := New()
	l.GrantPermission("0xalice", CanValidate, "")
	l.GrantPermission("0xbob", CanValidate, "")

	addrs := l.GetAddressesWithPermission(CanValidate)
	require.Equal(t, []string{"0xalice", "0xbob"}, addrs)

	l.RevokePermission("0xalice", CanValidate, "")
	require.Equal(t, []string{"0xbob"}, l.GetAddressesWithPermission(CanValidate))
}

func TestRevokeAllReturnsCount(t *testing.T) {
	l := New()
	l.GrantPermission("0xalice", CanTransfer, "")
	l.GrantPermission("0xalice", CanValidate, "")
	l.GrantPermission("0xalice", CanSendTx, "")

	require.Equal(t, 3, l.RevokeAllPermissions("0xalice", "0xadmin"))
	require.Empty(t, l.GetPermissions("0xalice"))
}

func TestAuditLogRecordsMutations(t *testing.T) {
	l := New()
	l.GrantPermission("0xalice", CanTransfer, "0xadmin")
	l.RevokePermission("0xalice", CanTransfer, "0xadmin")

	grants := l.GetAuditLog(AuditFilter{Address: "0xalice", Action: ActionGrant})
	require.Len(t, grants, 1)
	require.Equal(t, "0xadmin", grants[0].ActorAddress)

	revokes := l.GetAuditLog(AuditFilter{Address: "0xalice", Action: ActionRevoke})
	require.Len(t, revokes, 1)
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := New()
	l.GrantPermission("0xalice", CanTransfer, "0xadmin")
	l.GrantPermission("0xbob", CanValidate, "0xadmin")

	snap := l.ToSnapshot().(snapshot)
	restored := FromSnapshot(snap.Permissions, snap.AuditLog)

	require.True(t, restored.HasPermission("0xalice", CanTransfer))
	require.True(t, restored.HasPermission("0xbob", CanValidate))
	require.Equal(t, []string{"0xbob"}, restored.GetAddressesWithPermission(CanValidate))
	require.Len(t, restored.GetAuditLog(AuditFilter{}), 2)
}
