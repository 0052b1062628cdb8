// Package gotrue implements identity.Provider and identity.Inviter against a
// GoTrue-compatible admin API, authenticated with the service role key.
package gotrue

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
	"strings"
	"time"

	"github.com/d9705996/protestpro/internal/identity"
	"golang.org/x/oauth2"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gotrue: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the GoTrue admin API.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
}

// New creates a Client. serviceKey is sent both as the bearer token and as
// the apikey header expected by API gateways in front of GoTrue.
func New(baseURL, serviceKey string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gotrue url: %w", err)
	}
	hc := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: serviceKey,
		TokenType:   "Bearer",
	}))
	hc.Timeout = timeout
	return &Client{base: u, apiKey: serviceKey, http: hc}, nil
}

type user struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (u *user) account() identity.Account {
	return identity.Account{
		ID:             u.ID,
		Email:          u.Email,
		EmailConfirmed: u.EmailConfirmedAt != nil,
		CreatedAt:      u.CreatedAt,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Code      any    `json:"code"`
		ErrorCode string `json:"error_code"`
		Msg       string `json:"msg"`
		Message   string `json:"message"`
		Error     string `json:"error"`
		ErrorDesc string `json:"error_description"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &body)

	e := &APIError{Status: resp.StatusCode, Code: body.ErrorCode}
	for _, m := range []string{body.Msg, body.Message, body.ErrorDesc, body.Error, strings.TrimSpace(string(raw))} {
		if m != "" {
			e.Message = m
			break
		}
	}
	return e
}

func isExists(err error) bool {
	var e *APIError
	if !errors.As(err, &e) {
		return false
	}
	if e.Code == "email_exists" || e.Code == "user_already_exists" {
		return true
	}
	return e.Status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(e.Message), "already")
}

func isNotFound(err error) bool {
	var e *APIError
	return errors.As(err, &e) && (e.Status == http.StatusNotFound || e.Code == "user_not_found")
}

func (c *Client) CreateAccount(ctx context.Context, email string, metadata map[string]any) (*identity.Account, error) {
	var u user
	err := c.do(ctx, http.MethodPost, "/admin/users", nil, map[string]any{
		"email":         email,
		"email_confirm": false,
		"user_metadata": metadata,
	}, &u)
	if err != nil {
		if isExists(err) {
			return nil, fmt.Errorf("%w: %v", identity.ErrAccountExists, err)
		}
		return nil, err
	}
	a := u.account()
	return &a, nil
}

func (c *Client) ListAccounts(ctx context.Context, page, perPage int) ([]identity.Account, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	var out struct {
		Users []user `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/users", q, nil, &out); err != nil {
		return nil, err
	}
	accounts := make([]identity.Account, 0, len(out.Users))
	for i := range out.Users {
		accounts = append(accounts, out.Users[i].account())
	}
	return accounts, nil
}

func (c *Client) GetAccount(ctx context.Context, id string) (*identity.Account, error) {
	var u user
	if err := c.do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(id), nil, nil, &u); err != nil {
		if isNotFound(err) {
			return nil, identity.ErrAccountNotFound
		}
		return nil, err
	}
	a := u.account()
	return &a, nil
}

func (c *Client) DeleteAccount(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id), nil, nil, nil)
	if isNotFound(err) {
		return identity.ErrAccountNotFound
	}
	return err
}

// Invite sends GoTrue's invite email.
func (c *Client) Invite(ctx context.Context, email, redirectTo string) error {
	return c.do(ctx, http.MethodPost, "/invite", redirect(redirectTo), map[string]string{"email": email}, nil)
}

// Recover sends GoTrue's password recovery email.
func (c *Client) Recover(ctx context.Context, email, redirectTo string) error {
	return c.do(ctx, http.MethodPost, "/recover", redirect(redirectTo), map[string]string{"email": email}, nil)
}

func redirect(to string) url.Values {
	q := url.Values{}
	if to != "" {
		q.Set("redirect_to", to)
	}
	return q
}
