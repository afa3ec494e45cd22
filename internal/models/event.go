package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a calendar event created by a user.
// Events are insert-only: there is no update or delete path.
type Event struct {
	ID          uuid.UUID `json:"id"`         // UUIDv7
	CreatorID   uuid.UUID `json:"creator_id"` // owning user id
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// SetOwner sets the ownership key of the event.
func (e *Event) SetOwner(userID uuid.UUID) {
	e.CreatorID = userID
}

// Duration returns the length of the event.
func (e *Event) Duration() time.Duration {
	return e.EndDate.Sub(e.StartDate)
}
