package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts and
// stored on user rows.
const (
	RoleAgent      = "AGENT"
	RoleSupervisor = "SUPERVISOR"
	RoleAdmin      = "ADMIN"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// IsValid reports whether role is one of the known role names.
func IsValid(role string) bool {
	switch role {
	case RoleAgent, RoleSupervisor, RoleAdmin:
		return true
	default:
		return false
	}
}
