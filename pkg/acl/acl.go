// Package acl implements a flat access-control list: permissions are
// granted directly to addresses, with admin and super_admin acting as
// escalating wildcards over the rest of the permission set.
package acl

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Permission is a named capability an address can hold.
type Permission string

const (
	CanSendTx             Permission = "can_send_tx"
	CanReceiveTx          Permission = "can_receive_tx"
	CanTransfer           Permission = "can_transfer"
	CanValidate           Permission = "can_validate"
	CanProposeBlock       Permission = "can_propose_block"
	CanUpdateValidators   Permission = "can_update_validators"
	CanGrantPermissions   Permission = "can_grant_permissions"
	CanRevokePermissions  Permission = "can_revoke_permissions"
	CanUpdateConsensus    Permission = "can_update_consensus"
	CanDeployContract     Permission = "can_deploy_contract"
	CanCallContract       Permission = "can_call_contract"
	Admin                 Permission = "admin"
	SuperAdmin            Permission = "super_admin"
	CanReadState          Permission = "can_read_state"
	CanReadBlocks         Permission = "can_read_blocks"
)

// AuditAction distinguishes grant from revoke entries in the audit log.
type AuditAction string

const (
	ActionGrant  AuditAction = "grant"
	ActionRevoke AuditAction = "revoke"
)

// AuditEntry records a single permission grant or revocation.
type AuditEntry struct {
	ID         string      `json:"id"`
	Action     AuditAction `json:"action"`
	Address    string      `json:"address"`
	Permission Permission  `json:"permission"`
	ActorAddress string    `json:"actor_address,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// List is a flat access-control list mapping addresses to permission sets.
type List struct {
	mu           sync.RWMutex
	permissions  map[string]map[Permission]bool
	reverseIndex map[Permission]map[string]bool
	auditLog     []AuditEntry
}

// New returns an empty access-control list.
func New() *List {
	return &List{
		permissions:  map[string]map[Permission]bool{},
		reverseIndex: map[Permission]map[string]bool{},
	}
}

// GrantPermission grants permission to address. Returns false if address
// already held it.
func (l *List) GrantPermission(address string, permission Permission, grantedBy string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.permissions[address] == nil {
		l.permissions[address] = map[Permission]bool{}
	}
	if l.permissions[address][permission] {
		return false
	}
	l.permissions[address][permission] = true

	if l.reverseIndex[permission] == nil {
		l.reverseIndex[permission] = map[string]bool{}
	}
	l.reverseIndex[permission][address] = true

	l.auditLog = append(l.auditLog, AuditEntry{
		ID:           uuid.NewString(),
		Action:       ActionGrant,
		Address:      address,
		Permission:   permission,
		ActorAddress: grantedBy,
		Timestamp:    time.Now(),
	})
	return true
}

// RevokePermission revokes permission from address. Returns false if
// address did not hold it.
func (l *List) RevokePermission(address string, permission Permission, revokedBy string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.permissions[address][permission] {
		return false
	}
	delete(l.permissions[address], permission)
	delete(l.reverseIndex[permission], address)

	l.auditLog = append(l.auditLog, AuditEntry{
		ID:           uuid.NewString(),
		Action:       ActionRevoke,
		Address:      address,
		Permission:   permission,
		ActorAddress: revokedBy,
		Timestamp:    time.Now(),
	})
	return true
}

// HasPermission reports whether address holds permission, directly or via
// the admin/super_admin escalation rules: super_admin implies everything,
// admin implies everything except super_admin itself.
func (l *List) HasPermission(address string, permission Permission) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	held := l.permissions[address]
	if held == nil {
		return false
	}
	if held[permission] {
		return true
	}
	if held[SuperAdmin] {
		return true
	}
	if held[Admin] && permission != SuperAdmin {
		return true
	}
	return false
}

// GetPermissions returns a copy of address's directly-held permissions.
func (l *List) GetPermissions(address string) []Permission {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Permission, 0, len(l.permissions[address]))
	for p := range l.permissions[address] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetAddressesWithPermission returns every address directly holding
// permission (does not expand admin/super_admin escalation).
func (l *List) GetAddressesWithPermission(permission Permission) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.reverseIndex[permission]))
	for addr := range l.reverseIndex[permission] {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// RevokeAllPermissions strips every permission from address, returning the
// number revoked.
func (l *List) RevokeAllPermissions(address, revokedBy string) int {
	l.mu.RLock()
	toRevoke := make([]Permission, 0, len(l.permissions[address]))
	for p := range l.permissions[address] {
		toRevoke = append(toRevoke, p)
	}
	l.mu.RUnlock()

	count := 0
	for _, p := range toRevoke {
		if l.RevokePermission(address, p, revokedBy) {
			count++
		}
	}
	return count
}

// GrantAdmin grants the admin permission to address.
func (l *List) GrantAdmin(address, grantedBy string) bool {
	return l.GrantPermission(address, Admin, grantedBy)
}

// GrantSuperAdmin grants the super_admin permission to address.
func (l *List) GrantSuperAdmin(address, grantedBy string) bool {
	return l.GrantPermission(address, SuperAdmin, grantedBy)
}

// IsAdmin reports whether address holds (or is escalated to) admin.
func (l *List) IsAdmin(address string) bool {
	return l.HasPermission(address, Admin)
}

// IsSuperAdmin reports whether address holds super_admin.
func (l *List) IsSuperAdmin(address string) bool {
	return l.HasPermission(address, SuperAdmin)
}

// AuditFilter narrows GetAuditLog results; zero-value fields are ignored.
type AuditFilter struct {
	Address    string
	Permission Permission
	Action     AuditAction
}

// GetAuditLog returns audit entries matching filter.
func (l *List) GetAuditLog(filter AuditFilter) []AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]AuditEntry, 0, len(l.auditLog))
	for _, entry := range l.auditLog {
		if filter.Address != "" && entry.Address != filter.Address {
			continue
		}
		if filter.Permission != "" && entry.Permission != filter.Permission {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// snapshot is the JSON wire form of a List.
type snapshot struct {
	Permissions map[string][]Permission `json:"permissions"`
	AuditLog    []AuditEntry            `json:"audit_log"`
}

// ToSnapshot exports the ACL's permission sets and audit log.
func (l *List) ToSnapshot() any {
	l.mu.RLock()
	defer l.mu.RUnlock()

	perms := make(map[string][]Permission, len(l.permissions))
	for addr, set := range l.permissions {
		list := make([]Permission, 0, len(set))
		for p := range set {
			list = append(list, p)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		perms[addr] = list
	}
	return snapshot{Permissions: perms, AuditLog: append([]AuditEntry(nil), l.auditLog...)}
}

// FromSnapshot rebuilds a List from data produced by ToSnapshot. Permission
// grants are replayed without re-auditing; the original audit log is
// restored verbatim.
func FromSnapshot(data map[string][]Permission, auditLog []AuditEntry) *List {
	l := New()
	for address, perms := range data {
		for _, p := range perms {
			l.permissions[address] = orInit(l.permissions[address])
			l.permissions[address][p] = true
			l.reverseIndex[p] = orInitAddr(l.reverseIndex[p])
			l.reverseIndex[p][address] = true
		}
	}
	l.auditLog = append([]AuditEntry(nil), auditLog...)
	return l
}

func orInit(m map[Permission]bool) map[Permission]bool {
	if m == nil {
		return map[Permission]bool{}
	}
	return m
}

func orInitAddr(m map[string]bool) map[string]bool {
	if m == nil {
		return map[string]bool{}
	}
	return m
}
