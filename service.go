package skiff

import (
	"context"
	"fmt"

	"github.com/mmr-tortoise/skiff/container"
)

// Service is a provisioned, ready service container. It stays up until
// Down is called or the test process removes it out of band.
type Service struct {
	spec     ServiceSpec
	handle   *container.Handle
	hostPort int
}

// Name returns the spec name the service was provisioned from.
func (s *Service) Name() string {
	return s.spec.Name
}

// Handle exposes the underlying container handle for inspect, logs,
// and exec.
func (s *Service) Handle() *container.Handle {
	return s.handle
}

// HostPort returns the host port the service is published on.
func (s *Service) HostPort() int {
	return s.hostPort
}

// URL builds the connection URL from the spec's template and the
// allocated port. Extra options are merged over the template's and
// validated against the spec's allowed set before the URL is returned,
// so an unsupported key fails here rather than inside a driver.
func (s *Service) URL(extra map[string]string) (string, error) {
	u := s.spec.URL
	u.Host = "localhost"
	u.Port = s.hostPort

	if len(extra) > 0 {
		merged := make(map[string]string, len(u.Options)+len(extra))
		for k, v := range u.Options {
			merged[k] = v
		}
		for k, v := range extra {
			merged[k] = v
		}
		u.Options = merged
	}

	if err := u.ValidateOptions(s.spec.AllowedURLOptions); err != nil {
		return "", fmt.Errorf("service %s: %w", s.spec.Name, err)
	}
	return u.String(), nil
}

// Down tears the service container down: force removal including
// volumes, killing it first if still running.
func (s *Service) Down(ctx context.Context) error {
	if err := s.handle.Remove(ctx, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return fmt.Errorf("tearing down %s: %w", s.spec.Name, err)
	}
	return nil
}
