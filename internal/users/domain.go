package users

import "time"

// User represents a principal known to the platform. Identity resolution
// (login, tokens) happens upstream; the directory only answers who exists.
type User struct {
	ID        string
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}
