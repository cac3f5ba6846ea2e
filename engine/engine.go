package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"
)

// defaultAPIVersion is the engine API version baked into every request
// path. It is old enough to be accepted by any daemon released in the
// last several years; override it with WithAPIVersion when a newer
// endpoint is required.
const defaultAPIVersion = "1.47"

// defaultPingTimeout bounds the daemon-reachability check in Ping.
// 5 seconds is generous enough for Docker Desktop on macOS, which can
// be slower to answer than native Linux Docker.
const defaultPingTimeout = 5 * time.Second

// Client issues requests against a single container engine endpoint.
// It speaks the engine's HTTP API directly over a Unix socket or TCP
// connection rather than going through an SDK, which keeps the wire
// behavior (status handling, streaming, query encoding) under this
// package's control.
//
// A Client is safe for concurrent use. Conflicting operations on the
// same container are serialized by the engine itself, so the client
// holds no locks.
type Client struct {
	// host is the endpoint in URL form, e.g. "unix:///var/run/docker.sock"
	// or "tcp://127.0.0.1:2375".
	host string

	// baseURL is the HTTP origin requests are addressed to. For Unix
	// sockets this is a placeholder host; the transport dials the
	// socket regardless of it.
	baseURL string

	// version is the API version segment prefixed to every path.
	version string

	httpClient *http.Client
}

// Option configures a Client created by New.
type Option func(*Client)

// WithHost sets the engine endpoint explicitly, bypassing DOCKER_HOST
// and socket auto-detection. Supported schemes are unix:// and tcp://.
func WithHost(host string) Option {
	return func(c *Client) { c.host = host }
}

// WithAPIVersion overrides the API version used in request paths.
func WithAPIVersion(version string) Option {
	return func(c *Client) { c.version = version }
}

// WithHTTPClient replaces the underlying HTTP client. The caller is
// responsible for making it dial the configured host.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the local container engine.
//
// The endpoint is resolved in priority order:
//  1. The WithHost option
//  2. The DOCKER_HOST environment variable
//  3. Platform default socket paths (Linux: /var/run/docker.sock;
//     macOS additionally ~/.docker/run/docker.sock)
func New(opts ...Option) (*Client, error) {
	c := &Client{version: defaultAPIVersion}
	for _, opt := range opts {
		opt(c)
	}

	if c.host == "" {
		if env := os.Getenv("DOCKER_HOST"); env != "" {
			c.host = env
		} else {
			host, err := detectHost()
			if err != nil {
				return nil, fmt.Errorf("engine socket not found: %w", err)
			}
			c.host = host
		}
	}

	if err := c.configureTransport(); err != nil {
		return nil, err
	}
	return c, nil
}

// configureTransport builds the HTTP client and base URL for the
// configured host. A client supplied via WithHTTPClient is kept as-is.
func (c *Client) configureTransport() error {
	u, err := url.Parse(c.host)
	if err != nil {
		return fmt.Errorf("invalid engine host %q: %w", c.host, err)
	}

	switch u.Scheme {
	case "unix":
		socketPath := u.Path
		if c.httpClient == nil {
			c.httpClient = &http.Client{
				Transport: &http.Transport{
					DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
						var d net.Dialer
						return d.DialContext(ctx, "unix", socketPath)
					},
					DisableCompression: true,
				},
			}
		}
		// The host portion of the URL is ignored by the Unix dialer but
		// must be present for net/http to form a valid request.
		c.baseURL = "http://docker"
	case "tcp", "http":
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.baseURL = "http://" + u.Host
	default:
		return fmt.Errorf("unsupported engine host scheme %q (want unix:// or tcp://)", u.Scheme)
	}
	return nil
}

// detectHost probes the platform's default engine socket locations and
// returns the first one that exists. A successful stat only confirms
// the socket file is present; Ping verifies the daemon actually answers.
func detectHost() (string, error) {
	if runtime.GOOS == "windows" {
		return "", fmt.Errorf("no default endpoint on windows; set DOCKER_HOST")
	}

	paths := []string{"/var/run/docker.sock"}
	if runtime.GOOS == "darwin" {
		// Newer Docker Desktop versions place the socket under the user's
		// home directory and may not create the /var/run symlink.
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, home+"/.docker/run/docker.sock")
		}
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return "unix://" + p, nil
		}
	}
	return "", fmt.Errorf("no socket at any of: %s (is the engine running?)", strings.Join(paths, ", "))
}

// Host returns the resolved engine endpoint.
func (c *Client) Host() string {
	return c.host
}

// Ping verifies the daemon is reachable and responsive. The request is
// bounded by defaultPingTimeout independently of the caller's context.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	resp, err := c.Do(pingCtx, http.MethodGet, "/_ping", nil, nil)
	if err != nil {
		return fmt.Errorf("engine is not responding: %w", err)
	}
	return resp.Close()
}

// Close releases idle connections held by the client. In-flight
// streams are not interrupted.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	return nil
}
