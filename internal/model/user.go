// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// User represents a registered account.
//
// The email is the login identifier. PasswordHash holds a bcrypt hash and is
// never serialized; an empty hash marks an account that can only sign in
// through GitHub.
type User struct {
	ID           int64     `json:"id"           db:"id"`
	Email        string    `json:"email"        db:"email"`
	Name         string    `json:"name"         db:"name"`
	PasswordHash string    `json:"-"            db:"password"`
	IsActive     bool      `json:"is_active"    db:"is_active"`
	IsStaff      bool      `json:"is_staff"     db:"is_staff"`
	IsSuperuser  bool      `json:"is_superuser" db:"is_superuser"`
	CreatedAt    time.Time `json:"created_at"   db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"   db:"updated_at"`
}

// HasUsablePassword reports whether the account can authenticate with a password.
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != ""
}

// NormalizeEmail lower-cases the domain part of an address and leaves the
// local part untouched: "Test2@EXAMPLE.com" becomes "Test2@example.com".
// Surrounding whitespace is removed. Input without an "@" is only trimmed.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}
