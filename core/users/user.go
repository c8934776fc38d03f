package users

import "time"

// User represents an account that can sign in to the dashboard
type User struct {
	ID           string
	Username     string
	PasswordHash string // Hashed password for authentication (base 64 encoded)
	PasswordSalt string // Salt used for hashing the password (base 64 encoded)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
