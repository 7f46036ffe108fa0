// Package session persists the client's login session: the access token,
// the refresh token and the user profile returned by the backend.
//
// The three values are stored as independent entries and a session only
// exists when all three are present. Backends differ in how they make a
// write atomic; see the individual store types.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Persisted entry keys
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

var (
	// ErrNotFound is returned by Read when no complete session is stored.
	ErrNotFound = errors.New("no stored session")
	// ErrIncomplete is returned by Write for a session missing a field.
	ErrIncomplete = errors.New("session is incomplete")
)

// UserProfile is the backend-defined user object. It is opaque to the
// session layer beyond the display accessors.
type UserProfile map[string]any

// Name returns the display name, falling back to the username.
func (u UserProfile) Name() string {
	for _, key := range []string{"name", "full_name", "username"} {
		if v, ok := u[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Email returns the user's email address if the backend sent one.
func (u UserProfile) Email() string {
	v, _ := u["email"].(string)
	return v
}

// Session is one authenticated login.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         UserProfile
}

// Valid reports whether all three fields are present.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != "" && s.User != nil
}

// Store is durable key-value persistence for a single session.
type Store interface {
	// Read returns the stored session, or ErrNotFound when any entry is
	// missing or unparsable.
	Read(ctx context.Context) (*Session, error)
	// Write persists all three entries.
	Write(ctx context.Context, s *Session) error
	// Clear removes all three entries. Clearing an empty store succeeds.
	Clear(ctx context.Context) error
}

func encodeUser(u UserProfile) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user profile: %w", err)
	}
	return string(data), nil
}

// decodeUser returns ErrNotFound for anything that is not a JSON object so
// a corrupted entry reads as logged-out.
func decodeUser(raw string) (UserProfile, error) {
	if raw == "" {
		return nil, ErrNotFound
	}
	var u UserProfile
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// entries flattens a session into its persisted key/value form.
func entries(s *Session) (map[string]string, error) {
	if !s.Valid() {
		return nil, ErrIncomplete
	}
	user, err := encodeUser(s.User)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		KeyAccessToken:  s.AccessToken,
		KeyRefreshToken: s.RefreshToken,
		KeyUser:         user,
	}, nil
}

// fromEntries rebuilds a session, treating any missing entry as absent.
func fromEntries(values map[string]string) (*Session, error) {
	access, refresh := values[KeyAccessToken], values[KeyRefreshToken]
	if access == "" || refresh == "" {
		return nil, ErrNotFound
	}
	user, err := decodeUser(values[KeyUser])
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

func cloneUser(u UserProfile) UserProfile {
	if u == nil {
		return nil
	}
	out := make(UserProfile, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}
