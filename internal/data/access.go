package data

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/models"
	"github.com/wolfeidau/eventdesk/internal/store"
)

// Access is the typed record capability consumed by views.
type Access interface {
	FetchProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	SaveProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*models.Profile, error)
	FetchEvents(ctx context.Context, userID uuid.UUID) ([]models.Event, error)
	CreateEvent(ctx context.Context, userID uuid.UUID, in NewEvent) (*models.Event, error)
}

// ProfileUpdate carries the editable profile fields. Blank values clear the field.
type ProfileUpdate struct {
	Username  string
	FullName  string
	AvatarURL string
}

// NewEvent carries the fields of an event to create.
type NewEvent struct {
	Title       string
	Description string
	StartDate   time.Time
	EndDate     time.Time
}

var _ Access = (*Service)(nil)

// Service implements Access over a store.Backend.
type Service struct {
	backend store.Backend
	now     func() time.Time
}

// NewService creates a Service.
func NewService(backend store.Backend) *Service {
	return &Service{backend: backend, now: time.Now}
}

// FetchProfile returns the caller's profile or apperr.ErrNotFound.
func (s *Service) FetchProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return FetchOneOwn[models.Profile](ctx, s.backend, Profiles, userID)
}

// SaveProfile upserts the caller's profile and returns what was written.
func (s *Service) SaveProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*models.Profile, error) {
	p := &models.Profile{
		Username:  optional(update.Username),
		FullName:  optional(update.FullName),
		AvatarURL: optional(update.AvatarURL),
		UpdatedAt: s.now().UTC(),
	}

	if p.AvatarURL != nil {
		u, err := url.Parse(*p.AvatarURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, apperr.Validation("Avatar URL must be an http or https URL")
		}
	}

	if err := WriteOwn(ctx, s.backend, Profiles, userID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FetchEvents returns the caller's events ordered by start date. Rows are
// filtered and sorted again locally so the ordering holds for any backend.
func (s *Service) FetchEvents(ctx context.Context, userID uuid.UUID) ([]models.Event, error) {
	events, err := FetchOwn[models.Event](ctx, s.backend, Events, userID)
	if err != nil {
		return nil, err
	}

	events = slices.DeleteFunc(events, func(e models.Event) bool {
		return e.CreatorID != userID
	})
	slices.SortStableFunc(events, func(a, b models.Event) int {
		return a.StartDate.Compare(b.StartDate)
	})
	return events, nil
}

// CreateEvent validates and inserts a new event owned by the caller.
func (s *Service) CreateEvent(ctx context.Context, userID uuid.UUID, in NewEvent) (*models.Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Validation("Title is required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return nil, apperr.Validation("Start and end dates are required")
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, apperr.Validation("End date must not be before start date")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Remote("failed to generate event id", err)
	}

	e := &models.Event{
		ID:          id,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate.UTC(),
	}

	if err := WriteOwn(ctx, s.backend, Events, userID, e); err != nil {
		return nil, err
	}
	return e, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
