package auth

import "github.com/terra-clan/judgehub/internal/models"

// Permission is an action gated by role
type Permission string

const (
	PermManageCompetitions Permission = "competitions:manage"
	PermManageUsers        Permission = "users:manage"
	PermSubmitScores       Permission = "scores:submit"
	PermReadLedger         Permission = "scores:read"
	PermSubmitForOthers    Permission = "scores:submit-any"
)

// Allows reports whether role grants p
func Allows(role models.Role, p Permission) bool {
	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleJudge:
		return p == PermSubmitScores
	case models.RoleViewer:
		return false
	default:
		return false
	}
}
