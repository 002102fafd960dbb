package auth

import (
	"fmt"
	"strings"
)

type Resource string

const (
	ResourceMember Resource = "member"
	ResourceUser   Resource = "user"
	ResourceRole   Resource = "role"
	ResourceAudit  Resource = "audit"
	ResourceJob    Resource = "job"
	ResourceSystem Resource = "system"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
	ActionAdmin  Action = "admin"
)

// Permission is a closed resource:action pair. The declared set below is the
// only source of valid permissions; tokens outside it never match anything.
type Permission struct {
	Resource Resource
	Action   Action
}

func (p Permission) String() string {
	return fmt.Sprintf("%s:%s", p.Resource, p.Action)
}

var (
	PermMemberCreate = Permission{ResourceMember, ActionCreate}
	PermMemberRead   = Permission{ResourceMember, ActionRead}
	PermMemberUpdate = Permission{ResourceMember, ActionUpdate}
	PermMemberDelete = Permission{ResourceMember, ActionDelete}
	PermUserManage   = Permission{ResourceUser, ActionManage}
	PermRoleManage   = Permission{ResourceRole, ActionManage}
	PermAuditRead    = Permission{ResourceAudit, ActionRead}
	PermJobRead      = Permission{ResourceJob, ActionRead}
	PermJobManage    = Permission{ResourceJob, ActionManage}

	// PermSystemAdmin implies every other permission, including ones
	// declared after a role was granted it. It is never listed per-resource.
	PermSystemAdmin = Permission{ResourceSystem, ActionAdmin}
)

// DeclaredPermissions returns the full closed set.
func DeclaredPermissions() []Permission {
	return []Permission{
		PermMemberCreate,
		PermMemberRead,
		PermMemberUpdate,
		PermMemberDelete,
		PermUserManage,
		PermRoleManage,
		PermAuditRead,
		PermJobRead,
		PermJobManage,
		PermSystemAdmin,
	}
}

// ParsePermission maps a string token back to its declared Permission.
// Unknown or unparseable tokens report ok=false; callers skip them rather
// than failing evaluation.
func ParsePermission(token string) (Permission, bool) {
	parts := strings.SplitN(strings.TrimSpace(token), ":", 2)
	if len(parts) != 2 {
		return Permission{}, false
	}
	candidate := Permission{Resource: Resource(parts[0]), Action: Action(parts[1])}
	for _, p := range DeclaredPermissions() {
		if p == candidate {
			return p, true
		}
	}
	return Permission{}, false
}

// Evaluator decides allow/deny for a principal's role set. It is stateless
// and safe for concurrent use.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Authorize allows when any role carries the required permission or the
// system admin wildcard. Unknown tokens stored on a role are skipped.
func (e *Evaluator) Authorize(roles []Role, required Permission) bool {
	for _, role := range roles {
		for _, token := range role.Permissions {
			perm, ok := ParsePermission(token)
			if !ok {
				continue
			}
			if perm == required || perm == PermSystemAdmin {
				return true
			}
		}
	}
	return false
}

// AuthorizeUser is a convenience wrapper over the principal's role set.
func (e *Evaluator) AuthorizeUser(u *User, required Permission) bool {
	if u == nil {
		return false
	}
	return e.Authorize(u.Roles, required)
}
