package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/data"
	"github.com/wolfeidau/eventdesk/internal/models"
)

type profileRecord struct {
	ID        string    `json:"id" yaml:"id"`
	Email     string    `json:"email" yaml:"email"`
	Username  string    `json:"username" yaml:"username"`
	FullName  string    `json:"full_name" yaml:"full_name"`
	AvatarURL string    `json:"avatar_url" yaml:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
}

func newProfileRecord(u *models.User, p *models.Profile) profileRecord {
	r := profileRecord{ID: u.ID.String(), Email: u.Email}
	if p != nil {
		r.Username = p.UsernameOrEmpty()
		r.FullName = p.FullNameOrEmpty()
		r.AvatarURL = p.AvatarURLOrEmpty()
		r.UpdatedAt = p.UpdatedAt
	}
	return r
}

type ProfileShowCmd struct {
	OutputFlags
}

func (p *ProfileShowCmd) Run(ctx context.Context, globals *Globals) error {
	return run(ctx, globals, p)
}

func (p *ProfileShowCmd) run(ctx context.Context, a *app) error {
	u, err := a.requireUser(ctx)
	if err != nil {
		return err
	}

	profile, err := a.access.FetchProfile(ctx, u.ID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	rec := newProfileRecord(u, profile)
	if done, err := p.encode(a.out, rec); done {
		return err
	}

	fmt.Fprintf(a.out, "%-12s %s\n", "Email:", rec.Email)
	fmt.Fprintf(a.out, "%-12s %s\n", "Username:", rec.Username)
	fmt.Fprintf(a.out, "%-12s %s\n", "Full name:", rec.FullName)
	fmt.Fprintf(a.out, "%-12s %s\n", "Avatar URL:", rec.AvatarURL)
	if !rec.UpdatedAt.IsZero() {
		fmt.Fprintf(a.out, "%-12s %s\n", "Updated:", rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

// ProfileUpdateCmd merges the given fields into the stored profile. Omitted
// flags keep their stored value; an empty value clears the field.
type ProfileUpdateCmd struct {
	Username  *string `help:"Username"`
	FullName  *string `help:"Full name"`
	AvatarURL *string `help:"Avatar URL" name:"avatar-url"`
}

func (p *ProfileUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	return run(ctx, globals, p)
}

func (p *ProfileUpdateCmd) run(ctx context.Context, a *app) error {
	u, err := a.requireUser(ctx)
	if err != nil {
		return err
	}

	current, err := a.access.FetchProfile(ctx, u.ID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	update := data.ProfileUpdate{}
	if current != nil {
		update.Username = current.UsernameOrEmpty()
		update.FullName = current.FullNameOrEmpty()
		update.AvatarURL = current.AvatarURLOrEmpty()
	}
	if p.Username != nil {
		update.Username = *p.Username
	}
	if p.FullName != nil {
		update.FullName = *p.FullName
	}
	if p.AvatarURL != nil {
		update.AvatarURL = *p.AvatarURL
	}

	if _, err := a.access.SaveProfile(ctx, u.ID, update); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "Profile updated")
	return nil
}
