package domain

import (
	"strings"
	"time"
)

// User is a registered account.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity returns the public identity of the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
}

// Identity is the public profile of an authenticated user as carried in
// tokens and identity events. Any field may be empty in a partial event.
type Identity struct {
	ID        string
	FirstName string
	LastName  string
}

// Complete reports whether every field of the identity is set.
func (i Identity) Complete() bool {
	return i.ID != "" && i.FirstName != "" && i.LastName != ""
}

// DisplayName returns "First Last".
func (i Identity) DisplayName() string {
	return strings.TrimSpace(i.FirstName + " " + i.LastName)
}

// SignupRequest carries the fields needed to register a user.
type SignupRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}
