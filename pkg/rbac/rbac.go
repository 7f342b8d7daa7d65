// Package rbac layers named roles (each a fixed permission bundle) on top
// of the flat access-control list: assigning a role grants its permissions,
// and revoking one withdraws only the permissions no other assigned role
// still covers.
package rbac

import (
	"sort"
	"sync"

	"github.com/certen/ledger-core/pkg/acl"
)

// Role bundles a named set of permissions.
type Role struct {
	Name        string
	Permissions map[acl.Permission]bool
	Description string
}

// NewRole constructs a role from a permission list.
func NewRole(name, description string, permissions ...acl.Permission) *Role {
	set := make(map[acl.Permission]bool, len(permissions))
	for _, p := range permissions {
		set[p] = true
	}
	return &Role{Name: name, Permissions: set, Description: description}
}

// AddPermission adds permission to the role.
func (r *Role) AddPermission(permission acl.Permission) {
	r.Permissions[permission] = true
}

// RemovePermission removes permission from the role.
func (r *Role) RemovePermission(permission acl.Permission) {
	delete(r.Permissions, permission)
}

// HasPermission reports whether the role includes permission.
func (r *Role) HasPermission(permission acl.Permission) bool {
	return r.Permissions[permission]
}

// RBAC manages named roles, their assignment to addresses, and the
// backing ACL those assignments grant permissions through.
type RBAC struct {
	mu              sync.RWMutex
	roles           map[string]*Role
	roleAssignments map[string]map[string]bool // address -> role names
	acl             *acl.List
}

// New constructs an RBAC system seeded with the standard validator, user,
// admin, and observer roles.
func New() *RBAC {
	r := &RBAC{
		roles:           map[string]*Role{},
		roleAssignments: map[string]map[string]bool{},
		acl:             acl.New(),
	}
	r.initializeDefaultRoles()
	return r
}

func (r *RBAC) initializeDefaultRoles() {
	r.CreateRole(NewRole("validator", "Block validator with proposal rights",
		acl.CanValidate, acl.CanProposeBlock, acl.CanSendTx, acl.CanReceiveTx,
		acl.CanReadState, acl.CanReadBlocks))

	r.CreateRole(NewRole("user", "Regular user with transaction rights",
		acl.CanSendTx, acl.CanReceiveTx, acl.CanTransfer, acl.CanReadState, acl.CanReadBlocks))

	r.CreateRole(NewRole("admin", "Administrator with governance rights",
		acl.CanGrantPermissions, acl.CanRevokePermissions, acl.CanUpdateValidators,
		acl.CanDeployContract, acl.Admin))

	r.CreateRole(NewRole("observer", "Read-only observer",
		acl.CanReadState, acl.CanReadBlocks))
}

// CreateRole registers role. Returns false if a role with the same name
// already exists.
func (r *RBAC) CreateRole(role *Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.roles[role.Name]; exists {
		return false
	}
	r.roles[role.Name] = role
	return true
}

// DeleteRole removes roleName, first revoking it from every address that
// held it.
func (r *RBAC) DeleteRole(roleName string) bool {
	r.mu.Lock()
	if _, exists := r.roles[roleName]; !exists {
		r.mu.Unlock()
		return false
	}
	addresses := make([]string, 0, len(r.roleAssignments))
	for addr := range r.roleAssignments {
		addresses = append(addresses, addr)
	}
	r.mu.Unlock()

	for _, addr := range addresses {
		r.RevokeRole(addr, roleName)
	}

	r.mu.Lock()
	delete(r.roles, roleName)
	r.mu.Unlock()
	return true
}

// AssignRole assigns roleName to address, granting every permission the
// role carries via the backing ACL. Returns false if the role doesn't
// exist or address already holds it.
func (r *RBAC) AssignRole(address, roleName string) bool {
	r.mu.Lock()
	role, exists := r.roles[roleName]
	if !exists {
		r.mu.Unlock()
		return false
	}
	if r.roleAssignments[address] == nil {
		r.roleAssignments[address] = map[string]bool{}
	}
	if r.roleAssignments[address][roleName] {
		r.mu.Unlock()
		return false
	}
	r.roleAssignments[address][roleName] = true
	permissions := permissionList(role.Permissions)
	r.mu.Unlock()

	for _, p := range permissions {
		r.acl.GrantPermission(address, p, "")
	}
	return true
}

// RevokeRole revokes roleName from address, withdrawing via the ACL only
// the permissions no other role still assigned to address covers.
func (r *RBAC) RevokeRole(address, roleName string) bool {
	r.mu.Lock()
	assignments, ok := r.roleAssignments[address]
	if !ok || !assignments[roleName] {
		r.mu.Unlock()
		return false
	}
	delete(assignments, roleName)

	role := r.roles[roleName]
	var toRevoke []acl.Permission
	if role != nil {
		for p := range role.Permissions {
			coveredElsewhere := false
			for otherName := range assignments {
				if other, ok := r.roles[otherName]; ok && other.HasPermission(p) {
					coveredElsewhere = true
					break
				}
			}
			if !coveredElsewhere {
				toRevoke = append(toRevoke, p)
			}
		}
	}
	r.mu.Unlock()

	for _, p := range toRevoke {
		r.acl.RevokePermission(address, p, "")
	}
	return true
}

// HasRole reports whether address is assigned roleName.
func (r *RBAC) HasRole(address, roleName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roleAssignments[address][roleName]
}

// HasPermission reports whether address holds permission through any
// assigned role or direct grant.
func (r *RBAC) HasPermission(address string, permission acl.Permission) bool {
	return r.acl.HasPermission(address, permission)
}

// GetRoles returns the role names assigned to address.
func (r *RBAC) GetRoles(address string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.roleAssignments[address]))
	for name := range r.roleAssignments[address] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetPermissions returns address's directly-held permission set (as
// granted via roles or direct ACL grants).
func (r *RBAC) GetPermissions(address string) []acl.Permission {
	return r.acl.GetPermissions(address)
}

// GetRolePermissions returns roleName's permission set.
func (r *RBAC) GetRolePermissions(roleName string) []acl.Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.roles[roleName]
	if !ok {
		return nil
	}
	return permissionList(role.Permissions)
}

// AddPermissionToRole adds permission to roleName and grants it to every
// address currently assigned that role.
func (r *RBAC) AddPermissionToRole(roleName string, permission acl.Permission) bool {
	r.mu.Lock()
	role, ok := r.roles[roleName]
	if !ok {
		r.mu.Unlock()
		return false
	}
	role.AddPermission(permission)

	var holders []string
	for addr, roles := range r.roleAssignments {
		if roles[roleName] {
			holders = append(holders, addr)
		}
	}
	r.mu.Unlock()

	for _, addr := range holders {
		r.acl.GrantPermission(addr, permission, "")
	}
	return true
}

// RemovePermissionFromRole removes permission from roleName, revoking it
// from holders only where no other assigned role still covers it.
func (r *RBAC) RemovePermissionFromRole(roleName string, permission acl.Permission) bool {
	r.mu.Lock()
	role, ok := r.roles[roleName]
	if !ok {
		r.mu.Unlock()
		return false
	}
	role.RemovePermission(permission)

	type pending struct {
		address string
		revoke  bool
	}
	var work []pending
	for addr, roles := range r.roleAssignments {
		if !roles[roleName] {
			continue
		}
		coveredElsewhere := false
		for otherName := range roles {
			if otherName == roleName {
				continue
			}
			if other, ok := r.roles[otherName]; ok && other.HasPermission(permission) {
				coveredElsewhere = true
				break
			}
		}
		work = append(work, pending{address: addr, revoke: !coveredElsewhere})
	}
	r.mu.Unlock()

	for _, w := range work {
		if w.revoke {
			r.acl.RevokePermission(w.address, permission, "")
		}
	}
	return true
}

// GetAllRoles returns every defined role.
func (r *RBAC) GetAllRoles() []*Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ACL exposes the backing access-control list for persistence and direct
// permission queries.
func (r *RBAC) ACL() *acl.List {
	return r.acl
}

func permissionList(set map[acl.Permission]bool) []acl.Permission {
	out := make([]acl.Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
