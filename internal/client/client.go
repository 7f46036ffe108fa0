package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/jobcard-dev/jobcard/internal/session"
)

const (
	loginPath  = "/login/"
	logoutPath = "/logout/"

	maxDetailRunes = 200

	// RequestIDHeader carries a per-request ULID for backend log correlation
	RequestIDHeader = "X-Request-ID"
)

// ErrInvalidCredentials is returned by Login before any request is sent
// when the username or password is empty.
var ErrInvalidCredentials = errors.New("username and password are required")

// Client talks to the backend's authentication endpoints
type Client struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
}

// New creates a new API client
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		validate: validator.New(),
	}
}

// SetHTTPClient sets a custom HTTP client
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// BaseURL returns the backend root the client was created with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Credentials represents the login request body
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Access  string              `json:"access"`
	Refresh string              `json:"refresh"`
	User    session.UserProfile `json:"user"`
}

// Session converts the response into a persistable session
func (r *LoginResponse) Session() *session.Session {
	return &session.Session{
		AccessToken:  r.Access,
		RefreshToken: r.Refresh,
		User:         r.User,
	}
}

// ResponseError is returned when the backend answered with a non-2xx status
type ResponseError struct {
	StatusCode int
	Detail     string
}

func (e *ResponseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

// TransportError is returned when no response was received
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to send request: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Login authenticates the user and returns the token pair and profile
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	if err := c.validate.Struct(creds); err != nil {
		return nil, ErrInvalidCredentials
	}

	var loginResp LoginResponse
	if err := c.post(ctx, loginPath, "", creds, &loginResp); err != nil {
		return nil, err
	}

	if loginResp.Access == "" || loginResp.Refresh == "" || loginResp.User == nil {
		return nil, &ResponseError{StatusCode: http.StatusOK, Detail: "login response is missing tokens or user"}
	}

	return &loginResp, nil
}

// LogoutRequest represents the logout request body
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout asks the backend to invalidate the refresh token
func (c *Client) Logout(ctx context.Context, refreshToken, accessToken string) error {
	return c.post(ctx, logoutPath, accessToken, LogoutRequest{RefreshToken: refreshToken}, nil)
}

func (c *Client) post(ctx context.Context, path, bearer string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, ulid.Make().String())
	if bearer != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", bearer))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &ResponseError{StatusCode: resp.StatusCode, Detail: ParseDetail(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ResponseError{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}

// ParseDetail extracts the human readable message from an error body. The
// backend uses {"detail": "..."}; {"error": "..."} and plain text bodies
// are accepted as well.
func ParseDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Error != "" {
			return payload.Error
		}
		return ""
	}
	text := strings.TrimSpace(string(body))
	if runes := []rune(text); len(runes) > maxDetailRunes {
		text = string(runes[:maxDetailRunes])
	}
	return text
}
