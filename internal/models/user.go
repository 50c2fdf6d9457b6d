package models

import "time"

// Role is the closed set of user roles
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleJudge  Role = "judge"
	RoleViewer Role = "viewer"
)

// IsValid checks if the role is one of the known values
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleJudge, RoleViewer:
		return true
	default:
		return false
	}
}

// CanJudge reports whether users with this role may submit scores
func (r Role) CanJudge() bool {
	switch r {
	case RoleAdmin, RoleJudge:
		return true
	case RoleViewer:
		return false
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// User is an account that can log in
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}
