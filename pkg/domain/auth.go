package domain

// Role names a coarse permission group carried by the caller's credentials.
// Actions may require a role on top of the record store's capability check.
type Role string

const (
	RoleAgent      Role = "agent"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// AuthContext is the explicit authorization context threaded through every
// service call. Nothing in this layer reads caller identity from globals;
// the transport middleware builds one per request and passes it down.
type AuthContext struct {
	ActorID string
	Roles   []Role
}

// HasRole reports whether the caller carries the given role.
// Admin implies every other role.
func (a AuthContext) HasRole(role Role) bool {
	for _, r := range a.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

// Anonymous reports whether the context carries no actor identity.
func (a AuthContext) Anonymous() bool {
	return a.ActorID == ""
}
