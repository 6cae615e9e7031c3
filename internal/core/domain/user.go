package domain

import (
	"strings"
	"time"
)

// UserStatus is the lifecycle state of an account.
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusDisabled  UserStatus = "disabled"
	StatusSuspended UserStatus = "suspended"
)

// Valid reports whether s is one of the known statuses.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusActive, StatusDisabled, StatusSuspended:
		return true
	}
	return false
}

// CanLogin reports whether an account in this status may authenticate.
func (s UserStatus) CanLogin() bool {
	return s == StatusActive
}

// User is the persisted credential record. It carries the password hash and
// must never leave the service layer; use View for anything caller-facing.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	LoginCount   int        `json:"loginCount"`
}

// UserView is the sanitized user record returned by every read path.
type UserView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Status      UserStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	LoginCount  int        `json:"loginCount"`
}

// View returns the sanitized projection of u.
func (u *User) View() *UserView {
	if u == nil {
		return nil
	}
	v := &UserView{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Status:     u.Status,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
		LoginCount: u.LoginCount,
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		v.LastLoginAt = &t
	}
	return v
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// NormalizeEmail trims and lowercases an address; the result is the
// uniqueness key for users.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewUser carries the input for account creation.
type NewUser struct {
	Name     string
	Email    string
	Password string
}

// UserPatch is a partial profile update. Nil fields are left untouched.
type UserPatch struct {
	Name  *string
	Email *string
}
