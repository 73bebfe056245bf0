package auth

import "time"

// Account represents an authenticatable user account.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	IsSuperuser  bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
