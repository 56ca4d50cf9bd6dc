package models

import (
	"time"

	"github.com/gofrs/uuid"
)

const DefaultProfilePicture = "https://cdn-icons-png.flaticon.com/512/149/149071.png"

type User struct {
	ID             uuid.UUID
	Name           string
	Email          string
	PasswordHash   string // bcrypt hash, never serialized
	ProfilePicture string
	CreatedAt      time.Time
}

// Profile is the public projection of a User. It has no password field.
type Profile struct {
	ID             uuid.UUID `json:"_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	ProfilePicture string    `json:"profilePicture"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt,
	}
}

// Session anchors one login of one device.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
