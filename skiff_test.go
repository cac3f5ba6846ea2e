package skiff_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skiff "github.com/mmr-tortoise/skiff"
	"github.com/mmr-tortoise/skiff/dsn"
	"github.com/mmr-tortoise/skiff/engine"
)

const apiPrefix = "/v1.47"

// fakeDaemon implements the slice of the engine wire protocol one
// provisioning flow touches: pull, create, start, logs, inspect,
// remove. It records requests for assertions and can be told to fail
// the first n starts with a port-bind conflict.
type fakeDaemon struct {
	mu              sync.Mutex
	createBodies    []containertypes.CreateRequest
	startFailures   int
	removedIDs      []string
	pullRequests    int
	nextContainerID int
	readyLine       string
}

func stdoutFrame(payload string) []byte {
	b := make([]byte, 8+len(payload))
	b[0] = 1
	binary.BigEndian.PutUint32(b[4:8], uint32(len(payload)))
	copy(b[8:], payload)
	return b
}

func (f *fakeDaemon) mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+apiPrefix+"/images/create", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.pullRequests++
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"status":"Pulling"}` + "\n" + `{"status":"Downloaded"}` + "\n"))
	})

	mux.HandleFunc("POST "+apiPrefix+"/containers/create", func(w http.ResponseWriter, r *http.Request) {
		var body containertypes.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.createBodies = append(f.createBodies, body)
		f.nextContainerID++
		id := fmt.Sprintf("ctr%d", f.nextContainerID)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"Id":%q,"Warnings":[]}`, id)
	})

	mux.HandleFunc("POST "+apiPrefix+"/containers/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.startFailures > 0
		if fail {
			f.startFailures--
		}
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"driver failed programming external connectivity: Bind for 0.0.0.0: port is already allocated"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET "+apiPrefix+"/containers/{id}/logs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(stdoutFrame("initializing\n"))
		_, _ = w.Write(stdoutFrame(f.readyLine + "\n"))
	})

	mux.HandleFunc("GET "+apiPrefix+"/containers/{id}/json", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		removed := false
		for _, rid := range f.removedIDs {
			if rid == id {
				removed = true
			}
		}
		f.mu.Unlock()
		if removed {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"message":"No such container: %s"}`, id)
			return
		}
		fmt.Fprintf(w, `{"Id":%q,"State":{"Running":true,"Status":"running"}}`, id)
	})

	mux.HandleFunc("DELETE "+apiPrefix+"/containers/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.removedIDs = append(f.removedIDs, r.PathValue("id"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func newRunner(t *testing.T, daemon *fakeDaemon) *skiff.Runner {
	t.Helper()
	srv := httptest.NewServer(daemon.mux())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	eng, err := engine.New(engine.WithHost("tcp://" + u.Host))
	require.NoError(t, err)

	runner, err := skiff.NewRunner(skiff.WithEngine(eng))
	require.NoError(t, err)
	return runner
}

func pgSpec() skiff.ServiceSpec {
	return skiff.ServiceSpec{
		Name:          "pg",
		Image:         "postgres:16",
		Env:           []string{"POSTGRES_PASSWORD=secret"},
		ContainerPort: 5432,
		ReadyMarker:   "ready to accept connections",
		URL: dsn.URL{
			Scheme:   "postgres",
			User:     "postgres",
			Password: "secret",
			Database: "postgres",
			Options:  map[string]string{"sslmode": "disable"},
		},
		AllowedURLOptions: []string{"sslmode", "connect_timeout"},
	}
}

// TestUp_EndToEnd walks the full provisioning flow: allocate a port in
// range, create with that port bound, start, observe the readiness
// marker, inspect confirms running, force remove, and a later inspect
// is NotFound.
func TestUp_EndToEnd(t *testing.T) {
	daemon := &fakeDaemon{readyLine: "LOG: database system is ready to accept connections"}
	runner := newRunner(t, daemon)
	ctx := context.Background()

	svc, err := runner.Up(ctx, pgSpec())
	require.NoError(t, err)

	assert.Greater(t, svc.HostPort(), 1024)
	assert.Less(t, svc.HostPort(), 65535)
	assert.Equal(t, 1, daemon.pullRequests)

	// The create request bound the container port to the allocated
	// host port on all interfaces, and carried ownership labels.
	require.Len(t, daemon.createBodies, 1)
	created := daemon.createBodies[0]
	bindings := created.HostConfig.PortBindings["5432/tcp"]
	require.Len(t, bindings, 1)
	assert.Equal(t, strconv.Itoa(svc.HostPort()), bindings[0].HostPort)
	assert.Equal(t, "true", created.Labels["skiff.managed"])
	assert.Equal(t, "pg", created.Labels["skiff.service"])

	info, err := svc.Handle().Inspect(ctx)
	require.NoError(t, err)
	assert.True(t, info.State.Running)

	connURL, err := svc.URL(nil)
	require.NoError(t, err)
	parsed, err := dsn.Parse(connURL)
	require.NoError(t, err)
	assert.Equal(t, svc.HostPort(), parsed.Port)
	assert.Equal(t, "postgres", parsed.Scheme)

	require.NoError(t, svc.Down(ctx))
	_, err = svc.Handle().Inspect(ctx)
	assert.True(t, engine.IsNotFound(err))
}

// TestUp_RetriesLostPortRace verifies a start failing with the
// engine's port-conflict error triggers reallocation and a fresh
// container, with the loser removed.
func TestUp_RetriesLostPortRace(t *testing.T) {
	daemon := &fakeDaemon{readyLine: "ready to accept connections", startFailures: 1}
	runner := newRunner(t, daemon)

	svc, err := runner.Up(context.Background(), pgSpec())
	require.NoError(t, err)

	assert.Len(t, daemon.createBodies, 2, "losing the race creates a fresh container")
	assert.Len(t, daemon.removedIDs, 1, "the losing container is removed")
	require.NoError(t, svc.Down(context.Background()))
}

// TestUp_InvalidURLOptionRejectedBeforeNetwork verifies spec
// validation fails on an unsupported connection option with zero
// engine traffic.
func TestUp_InvalidURLOptionRejectedBeforeNetwork(t *testing.T) {
	daemon := &fakeDaemon{readyLine: "ready"}
	runner := newRunner(t, daemon)

	spec := pgSpec()
	spec.URL.Options["bogus_knob"] = "1"

	_, err := runner.Up(context.Background(), spec)
	require.Error(t, err)

	var optErr *dsn.OptionError
	require.ErrorAs(t, err, &optErr)
	assert.Equal(t, "bogus_knob", optErr.Key)
	assert.Zero(t, daemon.pullRequests, "validation failures must precede network calls")
	assert.Empty(t, daemon.createBodies)
}

// TestUp_SpecValidation covers the remaining required fields.
func TestUp_SpecValidation(t *testing.T) {
	runner := newRunner(t, &fakeDaemon{})

	tests := []struct {
		name   string
		mutate func(*skiff.ServiceSpec)
	}{
		{"missing name", func(s *skiff.ServiceSpec) { s.Name = "" }},
		{"missing image", func(s *skiff.ServiceSpec) { s.Image = "" }},
		{"missing ready marker", func(s *skiff.ServiceSpec) { s.ReadyMarker = "" }},
		{"zero container port", func(s *skiff.ServiceSpec) { s.ContainerPort = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := pgSpec()
			tt.mutate(&spec)
			_, err := runner.Up(context.Background(), spec)
			assert.Error(t, err)
		})
	}
}

// TestService_URLMergesExtraOptions verifies per-call options merge
// over the template and still pass validation.
func TestService_URLMergesExtraOptions(t *testing.T) {
	daemon := &fakeDaemon{readyLine: "ready to accept connections"}
	runner := newRunner(t, daemon)

	svc, err := runner.Up(context.Background(), pgSpec())
	require.NoError(t, err)
	defer func() { _ = svc.Down(context.Background()) }()

	connURL, err := svc.URL(map[string]string{"connect_timeout": "5"})
	require.NoError(t, err)
	parsed, err := dsn.Parse(connURL)
	require.NoError(t, err)
	assert.Equal(t, "5", parsed.Options["connect_timeout"])
	assert.Equal(t, "disable", parsed.Options["sslmode"])

	_, err = svc.URL(map[string]string{"nope": "1"})
	assert.Error(t, err, "extra options are validated too")
}
