package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/eventdesk/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		SignUp   commands.SignUpCmd   `cmd:"" name:"signup" help:"Create an account and sign in"`
		SignIn   commands.SignInCmd   `cmd:"" name:"signin" help:"Sign in with email and password"`
		SignOut  commands.SignOutCmd  `cmd:"" name:"signout" help:"Sign out and forget the stored session"`
		WhoAmI   commands.WhoAmICmd   `cmd:"" name:"whoami" help:"Show the signed-in user"`
		Profile  profileCmd           `cmd:"" help:"Show or update your profile"`
		Events   eventsCmd            `cmd:"" help:"List or create events"`
		Features commands.FeaturesCmd `cmd:"" help:"List feature flags"`

		ProviderURL string        `help:"Identity and record provider base URL" default:"http://localhost:54321" env:"EVENTDESK_PROVIDER_URL"`
		AnonKey     string        `help:"Provider anon key" env:"EVENTDESK_PROVIDER_ANON_KEY"`
		Timeout     time.Duration `help:"Provider request timeout" default:"30s" env:"EVENTDESK_PROVIDER_TIMEOUT"`
		SessionFile string        `help:"Session file (default ~/.eventdesk/session.json)" env:"EVENTDESK_SESSION_FILE" type:"path"`
		Store       string        `help:"Record store (rest or postgres)" default:"rest" enum:"rest,postgres" env:"EVENTDESK_STORE_TYPE"`
		PostgresURL string        `help:"PostgreSQL connection string for --store=postgres" env:"POSTGRES_CONNECTION_STRING"`
		Debug       bool          `help:"Enable debug mode." env:"EVENTDESK_DEBUG"`
		Version     kong.VersionFlag
	}
)

type profileCmd struct {
	Show   commands.ProfileShowCmd   `cmd:"" default:"withargs" help:"Show your profile"`
	Update commands.ProfileUpdateCmd `cmd:"" help:"Replace your profile"`
}

type eventsCmd struct {
	List   commands.EventsListCmd   `cmd:"" default:"withargs" help:"List your events"`
	Create commands.EventsCreateCmd `cmd:"" help:"Create an event"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = os.Stderr.WriteString("failed to load .env: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("eventdesk"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:       cli.Debug,
		Version:     version,
		ProviderURL: cli.ProviderURL,
		AnonKey:     cli.AnonKey,
		Timeout:     cli.Timeout,
		SessionFile: cli.SessionFile,
		Store:       cli.Store,
		PostgresURL: cli.PostgresURL,
	})
	cmd.FatalIfErrorf(err)
}
