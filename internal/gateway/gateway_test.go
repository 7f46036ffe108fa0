package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobcard-dev/jobcard/internal/client"
	"github.com/jobcard-dev/jobcard/internal/errs"
)

type staticToken struct {
	mu    sync.Mutex
	token string
}

func (s *staticToken) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *staticToken) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

type backend struct {
	*httptest.Server
	unauthorized atomic.Int32
}

// mockBackend accepts only the bearer token "good"
func mockBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(client.RequestIDHeader))

		switch r.URL.Path {
		case "/job-cards/":
			if r.Header.Get("Authorization") != "Bearer good" {
				b.unauthorized.Add(1)
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail": "Given token not valid for any token type"}`))
				return
			}
			if r.Method == http.MethodPost {
				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				w.WriteHeader(http.StatusCreated)
				json.NewEncoder(w).Encode(body)
				return
			}
			w.Write([]byte(`[{"id": 1, "registration": "AB12 CDE"}]`))
		case "/forbidden/":
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"detail": "You do not have permission to perform this action."}`))
		case "/broken/":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("upstream exploded"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(b.Close)
	return b
}

func TestRequest_AttachesBearerToken(t *testing.T) {
	srv := mockBackend(t)
	g := New(srv.URL, time.Second, &staticToken{token: "good"})

	resp, err := g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var cards []map[string]any
	require.NoError(t, resp.Decode(&cards))
	require.Len(t, cards, 1)
	assert.Equal(t, "AB12 CDE", cards[0]["registration"])
}

func TestRequest_EncodesBody(t *testing.T) {
	srv := mockBackend(t)
	g := New(srv.URL+"/", time.Second, &staticToken{token: "good"})

	resp, err := g.Request(context.Background(), http.MethodPost, "job-cards/", map[string]any{"registration": "XY99 ZZZ"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]any
	require.NoError(t, resp.Decode(&created))
	assert.Equal(t, "XY99 ZZZ", created["registration"])
}

func TestRequest_UnauthorizedFiresHandlerOnce(t *testing.T) {
	srv := mockBackend(t)
	tokens := &staticToken{token: "stale"}
	g := New(srv.URL, time.Second, tokens)

	var fired atomic.Int32
	g.SetSessionExpiredHandler(func() { fired.Add(1) })

	_, err := g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
	var expired *errs.AuthExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, "/job-cards/", expired.Path)
	// the handler has already run by the time Request returns
	assert.Equal(t, int32(1), fired.Load())
	// and the rejected request was not retried
	assert.Equal(t, int32(1), srv.unauthorized.Load())

	_, err = g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, int32(1), fired.Load())

	// a new token re-arms the guard
	tokens.set("also-stale")
	_, err = g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, int32(2), fired.Load())
}

func TestRequest_ConcurrentUnauthorizedFiresOnce(t *testing.T) {
	srv := mockBackend(t)
	g := New(srv.URL, time.Second, &staticToken{token: "stale"})

	var fired atomic.Int32
	g.SetSessionExpiredHandler(func() { fired.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
			var expired *errs.AuthExpiredError
			assert.ErrorAs(t, err, &expired)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fired.Load())
}

func TestSetSessionExpiredHandler_LastRegistrationWins(t *testing.T) {
	srv := mockBackend(t)
	g := New(srv.URL, time.Second, &staticToken{token: "stale"})

	var first, second atomic.Int32
	g.SetSessionExpiredHandler(func() { first.Add(1) })
	g.SetSessionExpiredHandler(func() { second.Add(1) })

	_, err := g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
	require.Error(t, err)

	assert.Zero(t, first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestSetSessionExpiredHandler_NilUnregisters(t *testing.T) {
	srv := mockBackend(t)
	g := New(srv.URL, time.Second, &staticToken{token: "stale"})

	var fired atomic.Int32
	g.SetSessionExpiredHandler(func() { fired.Add(1) })
	g.SetSessionExpiredHandler(nil)

	_, err := g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
	var expired *errs.AuthExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Zero(t, fired.Load())

	// an expiry seen with no handler does not consume the guard
	g.SetSessionExpiredHandler(func() { fired.Add(1) })
	_, err = g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
	require.ErrorAs(t, err, &expired)
	assert.Equal(t, int32(1), fired.Load())
}

func TestRequest_OtherStatusesAreHTTPErrors(t *testing.T) {
	srv := mockBackend(t)
	g := New(srv.URL, time.Second, &staticToken{token: "good"})

	var fired atomic.Int32
	g.SetSessionExpiredHandler(func() { fired.Add(1) })

	tests := []struct {
		path   string
		status int
		detail string
	}{
		{"/forbidden/", http.StatusForbidden, "You do not have permission to perform this action."},
		{"/broken/", http.StatusInternalServerError, "upstream exploded"},
		{"/missing/", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := g.Request(context.Background(), http.MethodGet, tt.path, nil)
			var httpErr *errs.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.detail, httpErr.Detail)

			var expired *errs.AuthExpiredError
			assert.NotErrorAs(t, err, &expired)
		})
	}

	assert.Zero(t, fired.Load())
}

func TestRequest_NoResponseIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := New(url, time.Second, &staticToken{token: "good"})
	var fired atomic.Int32
	g.SetSessionExpiredHandler(func() { fired.Add(1) })

	_, err := g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
	var netErr *errs.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "Unable to reach the server. Check your connection and try again.", err.Error())
	assert.NotEmpty(t, netErr.Cause())
	assert.Zero(t, fired.Load())
}

func TestRequest_OmitsAuthorizationWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := New(srv.URL, time.Second, &staticToken{}).Request(context.Background(), http.MethodGet, "/health", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var out map[string]any
	require.NoError(t, resp.Decode(&out))
	assert.Nil(t, out)
}

func TestNotifyExpired_SharesGuardWithRequests(t *testing.T) {
	srv := mockBackend(t)
	g := New(srv.URL, time.Second, &staticToken{token: "stale"})

	var fired atomic.Int32
	g.SetSessionExpiredHandler(func() { fired.Add(1) })

	g.NotifyExpired("stale")
	assert.Equal(t, int32(1), fired.Load())

	_, err := g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), fired.Load())
}

func TestHandlerMayReenterGateway(t *testing.T) {
	srv := mockBackend(t)
	g := New(srv.URL, time.Second, &staticToken{token: "stale"})

	done := make(chan struct{})
	g.SetSessionExpiredHandler(func() {
		g.SetSessionExpiredHandler(nil)
		close(done)
	})

	_, err := g.Request(context.Background(), http.MethodGet, "/job-cards/", nil)
	require.Error(t, err)

	select {
	case <-done:
	default:
		t.Fatal("handler did not run")
	}
}

func TestRequest_RefusesForeignHost(t *testing.T) {
	srv := mockBackend(t)

	var hits atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer foreign.Close()

	g := New(srv.URL, time.Second, &staticToken{token: "good"})
	var fired atomic.Int32
	g.SetSessionExpiredHandler(func() { fired.Add(1) })

	for _, target := range []string{
		foreign.URL + "/job-cards/",
		"//" + foreign.Listener.Addr().String() + "/job-cards/",
		"https://" + srv.Listener.Addr().String() + "/job-cards/",
	} {
		_, err := g.Request(context.Background(), http.MethodGet, target, nil)
		require.ErrorIs(t, err, ErrForeignHost, target)
	}

	assert.Zero(t, hits.Load())
	assert.Zero(t, fired.Load())
}

func TestRequest_AcceptsAbsoluteBackendURL(t *testing.T) {
	srv := mockBackend(t)
	g := New(srv.URL, time.Second, &staticToken{token: "good"})

	resp, err := g.Request(context.Background(), http.MethodGet, srv.URL+"/job-cards/", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
