package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account on the server.
type User struct {
	ID           string    `gorm:"primaryKey;type:text" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	return nil
}

// AuthResponse is returned by sign-up and sign-in.
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Credentials is the body of sign-up and sign-in calls.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NewID returns a random 128-bit identifier in canonical UUID form.
func NewID() string { return uuid.NewString() }

// ValidID reports whether s parses as a UUID.
func ValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
