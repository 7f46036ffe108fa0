package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobcard-dev/jobcard/internal/session"
)

// mockAuthServer creates a mock backend serving /login/ and /logout/
func mockAuthServer(t *testing.T, username, password string) (*httptest.Server, *[]string) {
	t.Helper()

	var revoked []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))

		switch r.URL.Path {
		case "/login/":
			var creds Credentials
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			if creds.Username != username || creds.Password != password {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail": "No active account found with the given credentials"}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access":  "A",
				"refresh": "R",
				"user":    map[string]any{"name": "Bob", "email": "bob@example.com"},
			})
		case "/logout/":
			assert.Equal(t, "Bearer A", r.Header.Get("Authorization"))
			var req LogoutRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			revoked = append(revoked, req.RefreshToken)
			w.WriteHeader(http.StatusResetContent)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &revoked
}

func TestLogin_Success(t *testing.T) {
	srv, _ := mockAuthServer(t, "bob", "x")
	c := New(srv.URL+"/", 5*time.Second)

	resp, err := c.Login(context.Background(), Credentials{Username: "bob", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "A", resp.Access)
	assert.Equal(t, "R", resp.Refresh)
	assert.Equal(t, session.UserProfile{"name": "Bob", "email": "bob@example.com"}, resp.User)
	assert.True(t, resp.Session().Valid())
}

func TestLogin_RejectedCredentials(t *testing.T) {
	srv, _ := mockAuthServer(t, "bob", "x")
	c := New(srv.URL, 5*time.Second)

	_, err := c.Login(context.Background(), Credentials{Username: "bob", Password: "wrong"})
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusUnauthorized, respErr.StatusCode)
	assert.Equal(t, "No active account found with the given credentials", respErr.Detail)
}

func TestLogin_EmptyCredentialsNeverSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Login(context.Background(), Credentials{Username: "bob"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, time.Second).Login(context.Background(), Credentials{Username: "bob", Password: "x"})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestLogin_IncompleteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access": "A"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Login(context.Background(), Credentials{Username: "bob", Password: "x"})
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusOK, respErr.StatusCode)
}

func TestLogout_SendsRefreshToken(t *testing.T) {
	srv, revoked := mockAuthServer(t, "bob", "x")

	err := New(srv.URL, time.Second).Logout(context.Background(), "R", "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"R"}, *revoked)
}

func TestParseDetail(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"detail": "Token is invalid or expired"}`, "Token is invalid or expired"},
		{`{"error": "Invalid email or password"}`, "Invalid email or password"},
		{`{"other": 1}`, ""},
		{"Bad Gateway\n", "Bad Gateway"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseDetail([]byte(tt.body)), tt.body)
	}
}

func TestParseDetail_TruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("é", 150) + strings.Repeat("ü", 150)

	detail := ParseDetail([]byte(body))
	assert.True(t, utf8.ValidString(detail))
	assert.Equal(t, 200, utf8.RuneCountInString(detail))
	assert.Equal(t, strings.Repeat("é", 150)+strings.Repeat("ü", 50), detail)
}
