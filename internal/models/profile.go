package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the public profile of a user, one-to-one with the user id.
// Optional fields are pointers and encode as null when unset, so a write clears them.
type Profile struct {
	ID        uuid.UUID `json:"id"` // same as the owning user's id
	Username  *string   `json:"username"`
	FullName  *string   `json:"full_name"`
	AvatarURL *string   `json:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// SetOwner sets the ownership key of the profile.
func (p *Profile) SetOwner(userID uuid.UUID) {
	p.ID = userID
}

// UsernameOrEmpty returns the username or an empty string when unset.
func (p *Profile) UsernameOrEmpty() string {
	return deref(p.Username)
}

// FullNameOrEmpty returns the full name or an empty string when unset.
func (p *Profile) FullNameOrEmpty() string {
	return deref(p.FullName)
}

// AvatarURLOrEmpty returns the avatar URL or an empty string when unset.
func (p *Profile) AvatarURLOrEmpty() string {
	return deref(p.AvatarURL)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
