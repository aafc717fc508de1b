// Package client is a Go client for the civic auth HTTP API, used by the
// presentation layer in this module.
//
// Gate is advisory: it decides what to show, not what is allowed. The
// server's guard middleware stays authoritative.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/guard"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/session"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/entity"
)

const DefaultTimeout = 10 * time.Second

// Client calls the auth API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for baseURL. A nil httpClient gets DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) Signup(ctx context.Context, handle, email, password string) error {
	return c.do(ctx, http.MethodPost, "/auth/signup", "",
		user.SignupRequest{Username: handle, Email: email, Password: password}, nil)
}

// Login returns the session token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out user.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", user.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) Me(ctx context.Context, token string) (session.MeResponse, error) {
	var out session.MeResponse
	err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &out)
	return out, err
}

func (c *Client) Profile(ctx context.Context, id string) (entity.Profile, error) {
	var out entity.Profile
	err := c.do(ctx, http.MethodGet, "/profile/"+url.PathEscape(id), "", nil, &out)
	return out, err
}

func (c *Client) Profiles(ctx context.Context, token string) ([]entity.Profile, error) {
	var out []entity.Profile
	err := c.do(ctx, http.MethodGet, "/profile", token, nil, &out)
	return out, err
}

// Promote grants admin to id. token must belong to an admin.
func (c *Client) Promote(ctx context.Context, id, token string) (user.PromotedUser, error) {
	var out user.PromoteResponse
	err := c.do(ctx, http.MethodPatch, "/profile/"+url.PathEscape(id)+"/promote", token, nil, &out)
	return out.User, err
}

// Gate decides whether a view may be shown to the holder of token. A token
// the server does not accept means the caller is signed out. The role comes
// from the profile endpoint; any failure to fetch it resolves to user,
// never to admin.
func (c *Client) Gate(ctx context.Context, token string, allowed ...entity.Role) guard.Decision {
	if token == "" {
		return guard.DenyUnauthorized
	}
	me, err := c.Me(ctx, token)
	if err != nil || me.AccountID == "" {
		return guard.DenyUnauthorized
	}
	role := entity.RoleUser
	if p, err := c.Profile(ctx, me.AccountID); err == nil {
		role = entity.ParseRole(string(p.Role))
	}
	if !guard.RoleAllowed(role, allowed...) {
		return guard.DenyForbidden
	}
	return guard.Admit
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// do sends one JSON request. Non-2xx responses come back as *apperr.Error.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil || eb.Kind == "" {
			return &apperr.Error{Kind: kindForStatus(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
		}
		return &apperr.Error{Kind: apperr.Kind(eb.Kind), Message: eb.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusBadRequest:
		return apperr.KindValidation
	case http.StatusUnauthorized:
		return apperr.KindUnauthorized
	case http.StatusForbidden:
		return apperr.KindForbidden
	case http.StatusNotFound:
		return apperr.KindNotFound
	case http.StatusConflict:
		return apperr.KindConflict
	default:
		return apperr.KindInternal
	}
}
