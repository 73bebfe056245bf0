package users

import "time"

// User represents a user account.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsSuperuser  bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
