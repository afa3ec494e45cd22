package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/identity"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestProvider(t *testing.T, mutate ...func(*Config)) *Provider {
	t.Helper()
	cfg := Config{SigningSecret: testSecret, BcryptCost: bcrypt.MinCost}
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func TestNew_rejectsShortSecret(t *testing.T) {
	_, err := New(Config{SigningSecret: []byte("short")})
	require.Error(t, err)
}

func TestProvider_SignUpThenSignIn(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	up, err := p.SignUp(ctx, identity.Credentials{Email: "Alice@Example.com", Password: "secret123"})
	require.NoError(t, err)
	require.NotNil(t, up.Session)
	require.Equal(t, "alice@example.com", up.User.Email)
	require.Equal(t, up.User.ID, up.Session.UserID)

	in, err := p.SignInWithPassword(ctx, identity.Credentials{Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)
	require.Equal(t, up.User.ID, in.User.ID)
	require.NotEqual(t, up.Session.AccessToken, in.Session.AccessToken)

	u, err := p.GetUser(ctx, in.Session.AccessToken)
	require.NoError(t, err)
	require.Equal(t, up.User.ID, u.ID)
}

func TestProvider_SignIn_invalidCredentials(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	_, err := p.SignUp(ctx, identity.Credentials{Email: "bob@example.com", Password: "secret123"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		creds identity.Credentials
	}{
		{"wrong password", identity.Credentials{Email: "bob@example.com", Password: "nope"}},
		{"unknown user", identity.Credentials{Email: "carol@example.com", Password: "secret123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.SignInWithPassword(ctx, tt.creds)
			require.ErrorIs(t, err, apperr.ErrAuth)
			require.Equal(t, "Invalid login credentials", apperr.Normalize(err).Message)
		})
	}
}

func TestProvider_SignUp_rejections(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	_, err := p.SignUp(ctx, identity.Credentials{Email: "dup@example.com", Password: "secret123"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		creds identity.Credentials
		msg   string
	}{
		{"duplicate", identity.Credentials{Email: "dup@example.com", Password: "secret123"}, "User already registered"},
		{"short password", identity.Credentials{Email: "new@example.com", Password: "abc"}, "Password should be at least 6 characters."},
		{"bad email", identity.Credentials{Email: "nope", Password: "secret123"}, "Unable to validate email address: invalid format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.SignUp(ctx, tt.creds)
			require.ErrorIs(t, err, apperr.ErrAuth)
			require.Equal(t, tt.msg, apperr.Normalize(err).Message)
		})
	}
}

func TestProvider_SignUp_disabled(t *testing.T) {
	p := newTestProvider(t, func(c *Config) { c.DisableSignup = true })

	_, err := p.SignUp(context.Background(), identity.Credentials{Email: "a@example.com", Password: "secret123"})
	require.ErrorIs(t, err, apperr.ErrAuth)

	s, err := p.Settings(context.Background())
	require.NoError(t, err)
	require.True(t, s.DisableSignup)
}

func TestProvider_SignUp_requiresConfirmation(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, func(c *Config) { c.RequireConfirmation = true })
	creds := identity.Credentials{Email: "pending@example.com", Password: "secret123"}

	g, err := p.SignUp(ctx, creds)
	require.NoError(t, err)
	require.Nil(t, g.Session)

	_, err = p.SignInWithPassword(ctx, creds)
	require.ErrorIs(t, err, apperr.ErrAuth)

	require.True(t, p.Confirm(creds.Email))

	g, err = p.SignInWithPassword(ctx, creds)
	require.NoError(t, err)
	require.NotNil(t, g.Session)
}

func TestProvider_Refresh_rotates(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	g, err := p.SignUp(ctx, identity.Credentials{Email: "r@example.com", Password: "secret123"})
	require.NoError(t, err)

	next, err := p.Refresh(ctx, g.Session.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, g.Session.RefreshToken, next.Session.RefreshToken)

	// a refresh token is single use
	_, err = p.Refresh(ctx, g.Session.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrAuth)

	_, err = p.Refresh(ctx, next.Session.RefreshToken)
	require.NoError(t, err)
}

func TestProvider_SignOut_revokes(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	g, err := p.SignUp(ctx, identity.Credentials{Email: "out@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx, g.Session.AccessToken))

	_, err = p.GetUser(ctx, g.Session.AccessToken)
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	_, err = p.Refresh(ctx, g.Session.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrAuth)

	// signing out twice is harmless
	require.NoError(t, p.SignOut(ctx, g.Session.AccessToken))
	require.NoError(t, p.SignOut(ctx, "garbage"))
}

func TestProvider_GetUser_expiredToken(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t, func(c *Config) { c.TokenTTL = time.Minute })

	g, err := p.SignUp(ctx, identity.Credentials{Email: "exp@example.com", Password: "secret123"})
	require.NoError(t, err)

	p.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = p.GetUser(ctx, g.Session.AccessToken)
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)
}

func TestProvider_GetUser_wrongSigningKey(t *testing.T) {
	ctx := context.Background()
	a := newTestProvider(t)
	b := newTestProvider(t, func(c *Config) { c.SigningSecret = []byte("fedcba9876543210fedcba9876543210") })

	g, err := a.SignUp(ctx, identity.Credentials{Email: "k@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = b.GetUser(ctx, g.Session.AccessToken)
	require.ErrorIs(t, err, apperr.ErrNotAuthenticated)
}

func TestProvider_Calls(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	require.EqualValues(t, 0, p.Calls())
	_, _ = p.SignInWithPassword(ctx, identity.Credentials{Email: "x@example.com", Password: "secret123"})
	require.EqualValues(t, 1, p.Calls())
}
