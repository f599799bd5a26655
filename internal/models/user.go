package models

import "time"

// UserRole is the designation a user signs up with. It drives every authorization decision.
type UserRole string

const (
	RoleChairman   UserRole = "chairman"
	RoleDean       UserRole = "dean"
	RoleVC         UserRole = "vc"
	RoleController UserRole = "controller"
)

// Valid reports whether the role is one of the known designations.
func (r UserRole) Valid() bool {
	switch r {
	case RoleChairman, RoleDean, RoleVC, RoleController:
		return true
	default:
		return false
	}
}

// Label returns the human readable designation.
func (r UserRole) Label() string {
	switch r {
	case RoleChairman:
		return "Chairman"
	case RoleDean:
		return "Dean"
	case RoleVC:
		return "VC"
	case RoleController:
		return "Controller"
	default:
		return string(r)
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         UserRole  `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalCount int `json:"total_count"`
}
