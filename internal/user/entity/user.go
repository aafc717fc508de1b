package entity

import "time"

// Role is the privilege level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the two persisted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole maps anything unrecognised to RoleUser, never to RoleAdmin.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Account represents a row in the `accounts` table.
// ID, Handle and Email are set once at creation.
type Account struct {
	ID              string    `db:"id"`
	DisplayName     string    `db:"display_name"`
	Handle          string    `db:"handle"`
	Email           string    `db:"email"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	Role            Role      `db:"role"`
	ProfileComplete bool      `db:"profile_complete"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Profile is the public projection of an account; it never carries the hash.
type Profile struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Role            Role   `json:"role"`
	ProfileComplete bool   `json:"profileComplete"`
}

func (a *Account) Profile() Profile {
	return Profile{
		ID:              a.ID,
		Name:            a.DisplayName,
		Email:           a.Email,
		Role:            a.Role,
		ProfileComplete: a.ProfileComplete,
	}
}
