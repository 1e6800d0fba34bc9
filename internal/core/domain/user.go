package domain

import "time"

// Roles recognized by the authorization predicate. Backup management and
// downloads require RoleAdmin.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

type User struct {
	Username  string    `db:"username"`
	Password  string    `db:"password"` // bcrypt hashed
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func NewUser(username, hashedPassword, role string) *User {
	now := time.Now()
	return &User{
		Username:  username,
		Password:  hashedPassword,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
