package models

import "time"

type UserRole string

const (
	RoleLearner UserRole = "learner"
	RoleGrader  UserRole = "grader"
	RoleAdmin   UserRole = "admin"
)

// User mirrors the identity resolved from Casdoor. The engine never
// persists users; they live in the identity provider.
type User struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	Role          UserRole  `json:"role"`
	AvatarURL     *string   `json:"avatar_url"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CanGrade reports whether the role may assign manual grades.
func (r UserRole) CanGrade() bool {
	return r == RoleGrader || r == RoleAdmin
}
