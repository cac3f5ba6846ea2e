// Package skiff provisions short-lived service containers for test
// suites: allocate a host port, pull the image, create and start a
// container with the port bound, wait for the service's readiness
// marker in its logs, and hand back connection info. Teardown removes
// the container and its volumes.
//
// The heavy lifting lives in subpackages (engine, container, port,
// image, wait, dsn); this package wires them into the one flow a test
// suite calls.
package skiff

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mmr-tortoise/skiff/container"
	"github.com/mmr-tortoise/skiff/dsn"
	"github.com/mmr-tortoise/skiff/engine"
	"github.com/mmr-tortoise/skiff/image"
	"github.com/mmr-tortoise/skiff/port"
	"github.com/mmr-tortoise/skiff/wait"
)

// maxPortRetries bounds how often Up re-allocates after losing the
// probe-to-bind race to another process. The allocator's answer is
// best-effort only, so the race is expected, just rare.
const maxPortRetries = 3

// ServiceSpec describes one service container to provision.
type ServiceSpec struct {
	// Name identifies the service in labels, container names, and logs.
	Name string

	// Image is the image reference to pull and run.
	Image string

	// Env is passed to the container verbatim ("KEY=value").
	Env []string

	// ContainerPort is the port the service listens on inside the
	// container; it is published on an allocator-chosen host port.
	ContainerPort int

	// PreferredHostPort, when non-zero, is probed first. On conflict
	// the allocator falls through to the next free port above it.
	PreferredHostPort int

	// ReadyMarker is the log substring that signals the service accepts
	// connections.
	ReadyMarker string

	// URL is the connection URL template; Host and Port are filled in
	// from the allocation at provision time.
	URL dsn.URL

	// AllowedURLOptions is the set of connection option keys the
	// service supports. Unknown keys in URL.Options are rejected before
	// any engine call.
	AllowedURLOptions []string

	// SkipPull starts from the local image cache without contacting a
	// registry.
	SkipPull bool
}

// validate rejects malformed specs before any network activity.
func (s ServiceSpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("service spec: name is required")
	}
	if s.Image == "" {
		return fmt.Errorf("service spec %q: image is required", s.Name)
	}
	if s.ContainerPort <= 0 || s.ContainerPort > port.MaxPort {
		return fmt.Errorf("service spec %q: container port %d out of range", s.Name, s.ContainerPort)
	}
	if s.ReadyMarker == "" {
		return fmt.Errorf("service spec %q: ready marker is required", s.Name)
	}
	if err := s.URL.ValidateOptions(s.AllowedURLOptions); err != nil {
		return fmt.Errorf("service spec %q: %w", s.Name, err)
	}
	return nil
}

// Runner provisions services against one engine endpoint. Every
// component is injected, so independent Runners can target different
// engines and tests can swap any layer out.
type Runner struct {
	eng    *engine.Client
	ports  *port.Allocator
	logger *log.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEngine supplies a pre-built engine client instead of default
// socket detection.
func WithEngine(eng *engine.Client) RunnerOption {
	return func(r *Runner) { r.eng = eng }
}

// WithAllocator replaces the port allocator.
func WithAllocator(a *port.Allocator) RunnerOption {
	return func(r *Runner) { r.ports = a }
}

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner. Without options it connects to the local
// engine socket, uses a live bind-probe allocator, and logs through
// the charmbracelet default logger.
func NewRunner(opts ...RunnerOption) (*Runner, error) {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}

	if r.eng == nil {
		eng, err := engine.New()
		if err != nil {
			return nil, err
		}
		r.eng = eng
	}
	if r.ports == nil {
		r.ports = port.New()
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	return r, nil
}

// Engine returns the engine client the Runner drives.
func (r *Runner) Engine() *engine.Client {
	return r.eng
}

// Close releases the underlying engine client.
func (r *Runner) Close() error {
	return r.eng.Close()
}

// Up provisions one service: pull image → allocate port → create →
// start → wait for readiness. On failure after the container exists,
// the container is force-removed so nothing leaks.
//
// Losing the allocator's probe-to-bind race surfaces as a start
// failure; Up re-allocates and retries up to maxPortRetries times
// before giving up. No other failure is retried. Callers bound the
// total wait with ctx.
func (r *Runner) Up(ctx context.Context, spec ServiceSpec) (*Service, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	if !spec.SkipPull {
		r.logger.Info("pulling image", "service", spec.Name, "image", spec.Image)
		if err := image.Pull(ctx, r.eng, spec.Image); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxPortRetries; attempt++ {
		hostPort, err := r.allocate(spec)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("allocated host port", "service", spec.Name, "port", hostPort, "attempt", attempt+1)

		svc, err := r.bringUp(ctx, spec, hostPort)
		if err == nil {
			r.logger.Info("service ready", "service", spec.Name, "port", hostPort)
			return svc, nil
		}
		if !isPortBindFailure(err) {
			return nil, err
		}

		// Another process bound the port between probe and start.
		r.logger.Warn("lost port race, reallocating", "service", spec.Name, "port", hostPort)
		lastErr = err
	}
	return nil, fmt.Errorf("provisioning %s: gave up after %d port allocation races: %w", spec.Name, maxPortRetries, lastErr)
}

// allocate picks a host port, honoring the spec's preference.
func (r *Runner) allocate(spec ServiceSpec) (int, error) {
	if spec.PreferredHostPort != 0 {
		return r.ports.AllocatePreferred(spec.PreferredHostPort)
	}
	return r.ports.Allocate()
}

// bringUp runs create → start → readiness wait for one allocation,
// removing the container on any failure past creation.
func (r *Runner) bringUp(ctx context.Context, spec ServiceSpec, hostPort int) (*Service, error) {
	handle, err := container.Create(ctx, r.eng, container.Config{
		Image:         spec.Image,
		Name:          containerName(spec.Name, hostPort),
		Env:           spec.Env,
		Labels:        ownershipLabels(spec.Name, hostPort),
		ContainerPort: spec.ContainerPort,
		HostPort:      hostPort,
	})
	if err != nil {
		return nil, err
	}

	if err := handle.Start(ctx); err != nil {
		r.cleanup(handle)
		return nil, err
	}

	if err := wait.ForMessage(ctx, handle, spec.ReadyMarker); err != nil {
		r.cleanup(handle)
		return nil, fmt.Errorf("service %s did not become ready: %w", spec.Name, err)
	}

	return &Service{spec: spec, handle: handle, hostPort: hostPort}, nil
}

// cleanup force-removes a half-provisioned container. Best effort; a
// failure here only gets logged since the original error is what the
// caller needs.
func (r *Runner) cleanup(h *container.Handle) {
	ctx := context.Background()
	if err := h.Remove(ctx, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		r.logger.Error("failed to remove container after provisioning error", "container", h.ID(), "err", err)
	}
}

// containerName builds a unique, recognizable container name. The
// host port makes concurrent instances of the same service
// distinguishable.
func containerName(service string, hostPort int) string {
	return fmt.Sprintf("skiff-%s-%d", service, hostPort)
}

// isPortBindFailure recognizes the engine errors produced when the
// host port was taken between the allocator's probe and the
// container's actual bind.
func isPortBindFailure(err error) bool {
	var apiErr *engine.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	body := strings.ToLower(apiErr.Body)
	return strings.Contains(body, "port is already allocated") ||
		strings.Contains(body, "address already in use")
}
