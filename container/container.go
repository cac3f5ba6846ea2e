package container

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"github.com/mmr-tortoise/skiff/engine"
)

// State is a Handle's position in the container lifecycle.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateStopped
	StateRemoved
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// StateError reports a lifecycle operation attempted from a state that
// does not permit it. It is raised locally, before any request is sent.
type StateError struct {
	Op   string
	From State
}

// Error satisfies the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a %s container", e.Op, e.From)
}

// Config describes the container to create: image reference,
// environment, and the single service port binding. The host port is
// bound on all interfaces, matching how the engine publishes ports.
type Config struct {
	Image  string
	Name   string
	Env    []string
	Cmd    []string
	Labels map[string]string

	// ContainerPort is the service's port inside the container and
	// HostPort the allocator-chosen port it is published on. A zero
	// ContainerPort creates the container with no binding.
	ContainerPort int
	HostPort      int
	Protocol      string // defaults to "tcp"
}

// Handle wraps an opaque container identifier and the client used to
// drive it. The identifier is assigned once by the engine at creation
// and is immutable; creation warnings are informational and never
// mutated afterward.
type Handle struct {
	eng      *engine.Client
	id       string
	warnings []string

	mu    sync.Mutex
	state State
}

// Create creates a container from cfg and returns its Handle in state
// Created. An unknown image or malformed config surfaces as an
// *engine.APIError from the create call.
func Create(ctx context.Context, eng *engine.Client, cfg Config) (*Handle, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("container config: image reference is required")
	}

	body := containertypes.CreateRequest{
		Config: &containertypes.Config{
			Image:  cfg.Image,
			Env:    cfg.Env,
			Cmd:    cfg.Cmd,
			Labels: cfg.Labels,
		},
		HostConfig: &containertypes.HostConfig{},
	}

	if cfg.ContainerPort != 0 {
		proto := cfg.Protocol
		if proto == "" {
			proto = "tcp"
		}
		portKey, err := nat.NewPort(proto, strconv.Itoa(cfg.ContainerPort))
		if err != nil {
			return nil, fmt.Errorf("container config: %w", err)
		}
		body.Config.ExposedPorts = nat.PortSet{portKey: struct{}{}}
		body.HostConfig.PortBindings = nat.PortMap{
			portKey: []nat.PortBinding{{
				HostIP:   "0.0.0.0",
				HostPort: strconv.Itoa(cfg.HostPort),
			}},
		}
	}

	query := engine.Query(map[string]any{"name": cfg.Name})
	resp, err := eng.Do(ctx, http.MethodPost, "/containers/create", query, body)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}

	var created containertypes.CreateResponse
	if err := resp.DecodeJSON(&created); err != nil {
		return nil, err
	}

	return &Handle{
		eng:      eng,
		id:       created.ID,
		warnings: created.Warnings,
		state:    StateCreated,
	}, nil
}

// Attach builds a Handle for a container that already exists on the
// engine, in the given assumed state. Used to reattach to containers
// discovered via List.
func Attach(eng *engine.Client, id string, state State) *Handle {
	return &Handle{eng: eng, id: id, state: state}
}

// ID returns the engine-assigned container identifier.
func (h *Handle) ID() string {
	return h.id
}

// Warnings returns the creation warnings reported by the engine.
func (h *Handle) Warnings() []string {
	return h.warnings
}

// State returns the Handle's current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Start transitions Created (or Stopped) to Started. Starting an
// already-started container is rejected locally with a StateError.
func (h *Handle) Start(ctx context.Context) error {
	if err := h.require("start", StateCreated, StateStopped); err != nil {
		return err
	}

	resp, err := h.eng.Do(ctx, http.MethodPost, "/containers/"+h.id+"/start", nil, nil)
	if err != nil {
		return fmt.Errorf("starting container %s: %w", h.id, err)
	}
	if err := resp.Close(); err != nil {
		return err
	}

	h.setState(StateStarted)
	return nil
}

// StopOptions tunes graceful shutdown. The engine enforces the grace
// period before force-killing.
type StopOptions struct {
	Signal       string
	GraceSeconds int // 0 means the engine's default
}

// Stop requests graceful shutdown of a started container.
func (h *Handle) Stop(ctx context.Context, opts StopOptions) error {
	if err := h.require("stop", StateStarted); err != nil {
		return err
	}

	params := map[string]any{"signal": opts.Signal}
	if opts.GraceSeconds > 0 {
		params["t"] = opts.GraceSeconds
	}

	resp, err := h.eng.Do(ctx, http.MethodPost, "/containers/"+h.id+"/stop", engine.Query(params), nil)
	if err != nil {
		return fmt.Errorf("stopping container %s: %w", h.id, err)
	}
	if err := resp.Close(); err != nil {
		return err
	}

	h.setState(StateStopped)
	return nil
}

// RemoveOptions tunes container removal.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
	RemoveLinks   bool
}

// Remove deletes the container, transitioning the Handle to its
// terminal Removed state. Removing a started container requires Force,
// which kills it first; without Force that transition is rejected
// locally.
func (h *Handle) Remove(ctx context.Context, opts RemoveOptions) error {
	h.mu.Lock()
	switch {
	case h.state == StateRemoved:
		h.mu.Unlock()
		return &StateError{Op: "remove", From: StateRemoved}
	case h.state == StateStarted && !opts.Force:
		h.mu.Unlock()
		return &StateError{Op: "remove (without force)", From: StateStarted}
	}
	h.mu.Unlock()

	query := engine.Query(map[string]any{
		"force": opts.Force,
		"v":     opts.RemoveVolumes,
		"link":  opts.RemoveLinks,
	})
	resp, err := h.eng.Do(ctx, http.MethodDelete, "/containers/"+h.id, query, nil)
	if err != nil {
		return fmt.Errorf("removing container %s: %w", h.id, err)
	}
	if err := resp.Close(); err != nil {
		return err
	}

	h.setState(StateRemoved)
	return nil
}

// Inspect returns the engine's low-level view of the container. After
// removal it fails with engine.ErrNotFound without contacting the
// engine; an engine-side 404 satisfies the same sentinel.
func (h *Handle) Inspect(ctx context.Context) (containertypes.InspectResponse, error) {
	var out containertypes.InspectResponse

	if h.State() == StateRemoved {
		return out, fmt.Errorf("inspecting container %s: %w", h.id, engine.ErrNotFound)
	}

	resp, err := h.eng.Do(ctx, http.MethodGet, "/containers/"+h.id+"/json", nil, nil)
	if err != nil {
		return out, fmt.Errorf("inspecting container %s: %w", h.id, err)
	}
	if err := resp.DecodeJSON(&out); err != nil {
		return out, err
	}
	return out, nil
}

// require rejects the operation unless the current state is one of the
// allowed source states.
func (h *Handle) require(op string, allowed ...State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range allowed {
		if h.state == s {
			return nil
		}
	}
	return &StateError{Op: op, From: h.state}
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}
