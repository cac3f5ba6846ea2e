package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a Client at an httptest server over TCP, which
// exercises the same request path as a Unix socket without needing a
// daemon.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	c, err := New(WithHost("tcp://" + u.Host))
	require.NoError(t, err)
	return c
}

// TestDo_DecodesJSONOn2xx verifies that any 2xx status yields a
// decodable response body.
func TestDo_DecodesJSONOn2xx(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v"+defaultAPIVersion+"/containers/create", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"Id":"abc123","Warnings":["w1"]}`))
	}))

	resp, err := c.Do(context.Background(), http.MethodPost, "/containers/create", nil, map[string]string{"Image": "postgres:16"})
	require.NoError(t, err)

	var out struct {
		ID       string `json:"Id"`
		Warnings []string
	}
	require.NoError(t, resp.DecodeJSON(&out))
	assert.Equal(t, "abc123", out.ID)
	assert.Equal(t, []string{"w1"}, out.Warnings)
}

// TestDo_Non2xxReturnsAPIError verifies the status code and raw body
// are preserved on failure, and that a 404 matches ErrNotFound.
func TestDo_Non2xxReturnsAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"no such container"}`))
	}))

	_, err := c.Do(context.Background(), http.MethodGet, "/containers/deadbeef/json", nil, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "no such container")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsNotFound(err))
}

// TestDo_Non404DoesNotMatchNotFound guards against over-broad sentinel
// matching: a 500 is not a NotFound.
func TestDo_Non404DoesNotMatchNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.Do(context.Background(), http.MethodPost, "/containers/x/start", nil, nil)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

// TestStream_ReturnsRawBody verifies streamed responses hand the body
// to the caller untouched, and that closing the reader ends the stream.
func TestStream_ReturnsRawBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("line one\nline two\n"))
	}))

	body, err := c.Stream(context.Background(), http.MethodGet, "/containers/abc/logs", Query(map[string]any{
		"stdout": true,
		"follow": false,
	}), nil)
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(raw))
}

// TestQuery_Stringification verifies boolean and integer parameters
// are encoded the way the engine expects ("true", "10"), and that
// empty strings and nils are dropped.
func TestQuery_Stringification(t *testing.T) {
	q := Query(map[string]any{
		"follow": true,
		"stderr": false,
		"t":      10,
		"tail":   "50",
		"signal": "",
		"name":   nil,
	})

	assert.Equal(t, "true", q.Get("follow"))
	assert.Equal(t, "false", q.Get("stderr"))
	assert.Equal(t, "10", q.Get("t"))
	assert.Equal(t, "50", q.Get("tail"))
	assert.False(t, q.Has("signal"))
	assert.False(t, q.Has("name"))
}

// TestQuery_ReachesServer verifies encoded parameters survive the full
// request path.
func TestQuery_ReachesServer(t *testing.T) {
	var seen url.Values
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.Query()
		w.WriteHeader(http.StatusNoContent)
	}))

	resp, err := c.Do(context.Background(), http.MethodDelete, "/containers/abc", Query(map[string]any{
		"force": true,
		"v":     true,
	}), nil)
	require.NoError(t, err)
	require.NoError(t, resp.Close())

	assert.Equal(t, "true", seen.Get("force"))
	assert.Equal(t, "true", seen.Get("v"))
}

// TestNew_RejectsUnknownScheme verifies host validation happens at
// construction time.
func TestNew_RejectsUnknownScheme(t *testing.T) {
	_, err := New(WithHost("ssh://example.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported engine host scheme")
}

// TestPing verifies the reachability check hits /_ping and succeeds on
// a 200.
func TestPing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v"+defaultAPIVersion+"/_ping", r.URL.Path)
		_, _ = w.Write([]byte("OK"))
	}))

	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.Close())
}

// TestDo_ContextCancellation verifies a cancelled context surfaces
// immediately rather than being retried.
func TestDo_ContextCancellation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, http.MethodGet, "/_ping", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
