// Package rest implements store.Backend over a PostgREST compatible API
// mounted at {provider}/rest/v1.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/client"
	"github.com/wolfeidau/eventdesk/internal/store"
	"golang.org/x/oauth2"
)

const maxResponseBytes = 4 << 20 // 4MiB

var _ store.Backend = (*Backend)(nil)

// Backend sends each call with the caller's access token.
type Backend struct {
	baseURL string
	client  *http.Client
}

// New creates a backend. Requests are authorized with tokens from ts on top of
// base, which should already carry the provider anon key (see client.NewTransport).
// A nil ts sends requests as the anonymous role.
func New(cfg client.Config, base http.RoundTripper, ts oauth2.TokenSource) *Backend {
	if base == nil {
		base = http.DefaultTransport
	}

	rt := base
	if ts != nil {
		rt = &oauth2.Transport{Source: ts, Base: base}
	}

	return &Backend{
		baseURL: cfg.BaseURL() + "/rest/v1",
		client:  &http.Client{Timeout: cfg.Timeout, Transport: rt},
	}
}

// postgrestError is the PostgREST error body.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (b *Backend) Select(ctx context.Context, table string, q store.Query, dest any) error {
	params := url.Values{}
	params.Set("select", "*")
	for _, f := range q.Filters {
		params.Add(f.Column, "eq."+f.Value)
	}
	if q.Order != nil {
		dir := "desc"
		if q.Order.Ascending {
			dir = "asc"
		}
		params.Set("order", q.Order.Column+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	data, err := b.do(ctx, http.MethodGet, table, params, nil, "")
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return apperr.Remote("failed to decode "+table+" rows", err)
	}
	return nil
}

func (b *Backend) Insert(ctx context.Context, table string, rows any) error {
	_, err := b.do(ctx, http.MethodPost, table, nil, rows, "return=minimal")
	return err
}

func (b *Backend) Upsert(ctx context.Context, table string, rows any, onConflict string) error {
	params := url.Values{}
	if onConflict != "" {
		params.Set("on_conflict", onConflict)
	}
	_, err := b.do(ctx, http.MethodPost, table, params, rows, "resolution=merge-duplicates,return=minimal")
	return err
}

func (b *Backend) do(ctx context.Context, method, table string, params url.Values, rows any, prefer string) ([]byte, error) {
	u := b.baseURL + "/" + url.PathEscape(table)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if rows != nil {
		data, err := json.Marshal(rows)
		if err != nil {
			return nil, apperr.Remote("failed to encode "+table+" rows", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, apperr.Remote("failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		// token source failures arrive here already classified
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, ae
		}
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, apperr.Remote(uerr.Err.Error(), err)
		}
		return nil, apperr.Remote(err.Error(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperr.Remote("failed to read record store response", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return data, nil
	}

	var pe postgrestError
	_ = json.Unmarshal(data, &pe)
	msg := pe.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	log.Debug().
		Str("table", table).
		Int("status", resp.StatusCode).
		Str("code", pe.Code).
		Str("details", pe.Details).
		Str("hint", pe.Hint).
		Msg("record store rejected request")

	cause := fmt.Errorf("record store returned HTTP %d (%s): %s", resp.StatusCode, pe.Code, msg)
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &apperr.Error{Kind: apperr.KindNotAuthenticated, Message: msg, Err: cause}
	}
	return nil, apperr.Remote(msg, cause)
}
