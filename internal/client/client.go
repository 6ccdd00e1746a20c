// Package client talks to the gateway over HTTP on behalf of a signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flowstate/internal/entity"
	"flowstate/internal/model"
)

// ErrUnauthorized means there is no usable credential. The session has been cleared.
var ErrUnauthorized = errors.New("you are not signed in")

// APIError is a request the server refused.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// TransportError is a failure to reach the server or a server-side fault.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// User is the signed-in account.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
	TelegramLinked bool      `json:"telegram_linked"`
}

type Client struct {
	baseURL string
	session *Session
	http    *http.Client
}

func New(baseURL string, session *Session) *Client {
	return &Client{
		baseURL: baseURL,
		session: session,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) Session() *Session { return c.session }

func (c *Client) List(ctx context.Context, table model.Table) ([]entity.Row, error) {
	var resp struct {
		Data []entity.Row `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/data/"+string(table), nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) Create(ctx context.Context, table model.Table, row entity.Row) (entity.Row, error) {
	var resp struct {
		Data entity.Row `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/data/"+string(table), row, &resp, true); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Update applies patch and returns the stored row. found is false when the
// row does not exist for this user.
func (c *Client) Update(ctx context.Context, table model.Table, id string, patch entity.Row) (entity.Row, bool, error) {
	var resp struct {
		Data []entity.Row `json:"data"`
	}
	path := "/data/" + string(table) + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPut, path, patch, &resp, true); err != nil {
		return nil, false, err
	}
	if len(resp.Data) == 0 {
		return nil, false, nil
	}
	return resp.Data[0], true, nil
}

func (c *Client) Delete(ctx context.Context, table model.Table, id string) error {
	path := "/data/" + string(table) + "/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, nil, true)
}

type authResponse struct {
	Data struct {
		User    User `json:"user"`
		Session struct {
			AccessToken string `json:"access_token"`
			ExpiresAt   int64  `json:"expires_at"`
		} `json:"session"`
	} `json:"data"`
}

func (c *Client) SignIn(ctx context.Context, email, password string) (User, error) {
	return c.authenticate(ctx, "/auth/signin", email, password)
}

func (c *Client) SignUp(ctx context.Context, email, password string) (User, error) {
	return c.authenticate(ctx, "/auth/signup", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (User, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, path, body, &resp, false); err != nil {
		return User{}, err
	}
	s := resp.Data.Session
	if err := c.session.Set(s.AccessToken, resp.Data.User.Email, s.ExpiresAt); err != nil {
		return User{}, err
	}
	return resp.Data.User, nil
}

// SignOut revokes the token server-side and always clears the local session.
func (c *Client) SignOut(ctx context.Context) error {
	var err error
	if c.session.Token() != "" {
		err = c.do(ctx, http.MethodPost, "/auth/signout", nil, nil, true)
	}
	if clearErr := c.session.Clear(); clearErr != nil {
		return clearErr
	}
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	return err
}

func (c *Client) User(ctx context.Context) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/user", nil, &resp, true); err != nil {
		return User{}, err
	}
	return resp.User, nil
}

// TelegramCode requests a code to send to the bot as "/start <code>".
func (c *Client) TelegramCode(ctx context.Context) (string, error) {
	var resp struct {
		Code string `json:"code"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/telegram-code", nil, &resp, true); err != nil {
		return "", err
	}
	return resp.Code, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, authed bool) error {
	op := method + " " + path
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token := c.session.Token()
		if token == "" {
			return ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && authed:
		_ = c.session.Clear()
		return ErrUnauthorized
	case resp.StatusCode >= 500:
		return &TransportError{Op: op, Err: &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}}
	case resp.StatusCode >= 400:
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return "request failed"
}
