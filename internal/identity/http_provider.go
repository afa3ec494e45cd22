package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/client"
	"github.com/wolfeidau/eventdesk/internal/models"
)

const maxResponseBytes = 1 << 20 // 1MiB

var _ Provider = (*HTTPProvider)(nil)

// HTTPProvider implements Provider against a GoTrue compatible REST API
// mounted at {provider}/auth/v1.
type HTTPProvider struct {
	baseURL        string
	client         *http.Client
	settingsClient *http.Client
	now            func() time.Time
}

// NewHTTPProvider creates a provider client. settingsClient may be a caching
// client; when nil the regular client is used for settings too.
func NewHTTPProvider(cfg client.Config, httpClient, settingsClient *http.Client) *HTTPProvider {
	if settingsClient == nil {
		settingsClient = httpClient
	}
	return &HTTPProvider{
		baseURL:        cfg.BaseURL() + "/auth/v1",
		client:         httpClient,
		settingsClient: settingsClient,
		now:            time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`

	// Sign-up responses without a session carry the user at the top level.
	ID    string `json:"id"`
	Email string `json:"email"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// errorResponse covers both the OAuth style and the newer GoTrue error bodies.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e errorResponse) text() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.ErrorDescription != "":
		return e.ErrorDescription
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	}
	return ""
}

// SignInWithPassword exchanges an email and password for a session.
func (p *HTTPProvider) SignInWithPassword(ctx context.Context, creds Credentials) (*Grant, error) {
	var tok tokenResponse
	if err := p.do(ctx, p.client, http.MethodPost, "/token?grant_type=password", "", creds, &tok); err != nil {
		return nil, credentialError(err)
	}
	return p.grant(&tok)
}

// SignUp registers a new user.
func (p *HTTPProvider) SignUp(ctx context.Context, creds Credentials) (*Grant, error) {
	var tok tokenResponse
	if err := p.do(ctx, p.client, http.MethodPost, "/signup", "", creds, &tok); err != nil {
		return nil, credentialError(err)
	}
	return p.grant(&tok)
}

// Refresh exchanges a refresh token for a new session.
func (p *HTTPProvider) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var tok tokenResponse
	if err := p.do(ctx, p.client, http.MethodPost, "/token?grant_type=refresh_token", "", body, &tok); err != nil {
		return nil, credentialError(err)
	}
	return p.grant(&tok)
}

// GetUser returns the user the access token belongs to.
func (p *HTTPProvider) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	var u userResponse
	if err := p.do(ctx, p.client, http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.status == http.StatusUnauthorized || se.status == http.StatusForbidden) {
			return nil, apperr.NotAuthenticated(se.message)
		}
		return nil, toRemote(err)
	}
	return toUser(u)
}

// SignOut revokes the session behind the access token. A token the provider
// no longer recognises has nothing left to revoke.
func (p *HTTPProvider) SignOut(ctx context.Context, accessToken string) error {
	err := p.do(ctx, p.client, http.MethodPost, "/logout", accessToken, nil, nil)
	if err == nil {
		return nil
	}
	var se *statusError
	if errors.As(err, &se) && (se.status == http.StatusUnauthorized || se.status == http.StatusNotFound) {
		log.Debug().Int("status", se.status).Msg("sign out of unknown session")
		return nil
	}
	return toRemote(err)
}

// Settings returns the public provider settings.
func (p *HTTPProvider) Settings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := p.do(ctx, p.settingsClient, http.MethodGet, "/settings", "", nil, &s); err != nil {
		return nil, toRemote(err)
	}
	return &s, nil
}

// Health checks the provider is reachable and serving.
func (p *HTTPProvider) Health(ctx context.Context) error {
	if err := p.do(ctx, p.client, http.MethodGet, "/health", "", nil, nil); err != nil {
		return toRemote(err)
	}
	return nil
}

func (p *HTTPProvider) grant(tok *tokenResponse) (*Grant, error) {
	u := userResponse{ID: tok.ID, Email: tok.Email}
	if tok.User != nil {
		u = *tok.User
	}

	user, err := toUser(u)
	if err != nil {
		return nil, err
	}

	g := &Grant{User: *user}
	if tok.AccessToken == "" {
		return g, nil
	}

	var expiresAt time.Time
	switch {
	case tok.ExpiresAt > 0:
		expiresAt = time.Unix(tok.ExpiresAt, 0)
	case tok.ExpiresIn > 0:
		expiresAt = p.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}

	g.Session = &models.Session{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}
	return g, nil
}

func toUser(u userResponse) (*models.User, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return nil, apperr.Remote("provider returned an invalid user id", err)
	}
	return &models.User{ID: id, Email: u.Email}, nil
}

// statusError is a non-2xx provider response.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("identity provider returned HTTP %d: %s", e.status, e.message)
}

func credentialError(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		switch se.status {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
			return apperr.Auth(se.message, err)
		}
	}
	return toRemote(err)
}

func toRemote(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return apperr.Remote(se.message, err)
	}
	return apperr.From(err)
}

func (p *HTTPProvider) do(ctx context.Context, c *http.Client, method, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return apperr.Remote(uerr.Err.Error(), err)
		}
		return apperr.Remote(err.Error(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperr.Remote("failed to read identity provider response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		msg := er.text()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &statusError{status: resp.StatusCode, message: msg}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Remote("failed to decode identity provider response", err)
	}
	return nil
}
