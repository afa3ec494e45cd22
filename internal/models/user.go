package models

import "github.com/google/uuid"

// User is the identity returned by the identity provider.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}
