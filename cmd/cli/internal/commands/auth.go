package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/eventdesk/internal/session"
)

type SignUpCmd struct {
	Email           string `help:"Email address" required:""`
	Password        string `help:"Password" required:"" env:"EVENTDESK_PASSWORD"`
	ConfirmPassword string `help:"Password again" required:"" env:"EVENTDESK_CONFIRM_PASSWORD"`
}

func (s *SignUpCmd) Run(ctx context.Context, globals *Globals) error {
	return run(ctx, globals, s)
}

func (s *SignUpCmd) run(ctx context.Context, a *app) error {
	sess, err := a.session.SignUp(ctx, s.Email, s.Password, s.ConfirmPassword)
	if errors.Is(err, session.ErrConfirmationPending) {
		fmt.Fprintln(a.out, "Account created. Check your email to confirm your account, then sign in.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Signed up and signed in as %s\n", sess.Email)
	return nil
}

type SignInCmd struct {
	Email    string `help:"Email address" required:""`
	Password string `help:"Password" required:"" env:"EVENTDESK_PASSWORD"`
}

func (s *SignInCmd) Run(ctx context.Context, globals *Globals) error {
	return run(ctx, globals, s)
}

func (s *SignInCmd) run(ctx context.Context, a *app) error {
	sess, err := a.session.SignIn(ctx, s.Email, s.Password)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Signed in as %s (token expires %s)\n", sess.Email, sess.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

type SignOutCmd struct{}

func (s *SignOutCmd) Run(ctx context.Context, globals *Globals) error {
	return run(ctx, globals, s)
}

// run always forgets the local session; a failed revocation is reported
// but the command still succeeds.
func (s *SignOutCmd) run(ctx context.Context, a *app) error {
	if err := a.session.SignOut(ctx); err != nil {
		fmt.Fprintf(a.out, "Signed out locally (provider revocation failed: %v)\n", err)
		return nil
	}

	fmt.Fprintln(a.out, "Signed out")
	return nil
}

type WhoAmICmd struct{}

func (w *WhoAmICmd) Run(ctx context.Context, globals *Globals) error {
	return run(ctx, globals, w)
}

func (w *WhoAmICmd) run(ctx context.Context, a *app) error {
	u, err := a.requireUser(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s (%s)\n", u.Email, u.ID)
	return nil
}
