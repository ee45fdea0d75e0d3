package rbac

type Role string
type Action string

const (
	RoleTrainee    Role = "trainee"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionSignOff Action = "signoff"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleSupervisor:
		return action == ActionRead || action == ActionSignOff
	case RoleTrainee:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleTrainee, RoleSupervisor, RoleAdmin:
		return Role(role)
	default:
		return RoleTrainee
	}
}
