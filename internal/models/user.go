package models

// Role represents user roles in the system
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
	RoleViewer   Role = "viewer"
)

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleEmployee, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if a role has permission for a specific action
func (r Role) HasPermission(action string) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != "manage_users"
	case RoleEmployee:
		return action == "view_cars" || action == "view_reservations" ||
			action == "create_reservation" || action == "update_reservation" ||
			action == "cancel_reservation"
	case RoleViewer:
		return action == "view_cars" || action == "view_reservations"
	default:
		return false
	}
}

// CanManageAllReservations reports whether the role may act on reservations owned by other users.
func (r Role) CanManageAllReservations() bool {
	return r.HasPermission("manage_reservations")
}
