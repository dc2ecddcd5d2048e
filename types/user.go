package types

import "time"

// User represents an account in the system.
type User struct {
	// ID is the opaque identifier assigned by the store on creation.
	ID string `json:"id" db:"id"`

	// Username is the unique, case-sensitive login name chosen by the user.
	// It cannot be changed after registration.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// PublicUser is the subset of a User that may be returned to clients.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Public strips everything but the identity fields.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}
