package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/ledger-core/pkg/acl"
)

func TestDefaultRolesSeeded(t *testing.T) {
	r := New()
	roles := r.GetAllRoles()
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.Name
	}
	require.Equal(t, []string{"admin", "observer", "user", "validator"}, names)
}

func TestAssignRoleGrantsItsPermissions(t *testing.T) {
	r := New()
	require.True(t, r.AssignRole("0xalice", "user"))
	require.False(t, r.AssignRole("0xalice", "user"), "double assignment is a no-op")
	require.False(t, r.AssignRole("0xalice", "no-such-role"))

	require.True(t, r.HasPermission("0xalice", acl.CanTransfer))
	require.True(t, r.HasRole("0xalice", "user"))
}

func TestRevokeRoleKeepsSharedPermissions(t *testing.T) {
	r := New()
	require.True(t, r.AssignRole("0xalice", "user"))
	require.True(t, r.AssignRole("0xalice", "validator"))

	// can_send_tx is in both roles; can_transfer only in user.
	require.True(t, r.RevokeRole("0xalice", "user"))
	require.True(t, r.HasPermission("0xalice", acl.CanSendTx), "still covered by validator role")
	require.False(t, r.HasPermission("0xalice", acl.CanTransfer))
}

func TestRolePermissionMutationPropagates(t *testing.T) {
	r := New()
	require.True(t, r.AssignRole("0xalice", "observer"))

	require.True(t, r.AddPermissionToRole("observer", acl.CanCallContract))
	require.True(t, r.HasPermission("0xalice", acl.CanCallContract))

	require.True(t, r.RemovePermissionFromRole("observer", acl.CanCallContract))
	require.False(t, r.HasPermission("0xalice", acl.CanCallContract))
}

func TestRemovePermissionFromRoleRespectsOtherRoles(t *testing.T) {
	r := New()
	require.True(t, r.CreateRole(NewRole("auditor", "read-only audit role", acl.CanReadState)))
	require.True(t, r.AssignRole("0xalice", "auditor"))
	require.True(t, r.AssignRole("0xalice", "observer"))

	// can_read_state is also in observer; removing it from auditor must not
	// strip it from alice.
	require.True(t, r.RemovePermissionFromRole("auditor", acl.CanReadState))
	require.True(t, r.HasPermission("0xalice", acl.CanReadState))
}

func TestDeleteRoleRevokesFromHolders(t *testing.T) {
	r := New()
	require.True(t, r.CreateRole(NewRole("deployer", "contract deployment", acl.CanDeployContract)))
	require.True(t, r.AssignRole("0xalice", "deployer"))
	require.True(t, r.HasPermission("0xalice", acl.CanDeployContract))

	require.True(t, r.DeleteRole("deployer"))
	require.False(t, r.HasPermission("0xalice", acl.CanDeployContract))
	require.False(t, r.DeleteRole("deployer"), "already deleted")
}
