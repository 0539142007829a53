package domain

// Role is the caller role yielded by the identity provider.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleViewer    Role = "viewer"
)

// CanMutate reports whether the role may trigger, retry or cancel deployments.
func (r Role) CanMutate() bool {
	return r == RoleAdmin || r == RoleDeveloper
}
