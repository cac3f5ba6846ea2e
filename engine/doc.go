// Package engine implements the low-level client for the container
// engine's control-plane API (HTTP over a local socket).
//
// This package handles:
//   - Endpoint resolution with automatic socket detection
//     (DOCKER_HOST, then platform default paths)
//   - Request/response plumbing: JSON bodies, query parameter
//     encoding, versioned paths
//   - Single-shot calls (Do) and streamed responses (Stream) for
//     log tailing and image-pull progress
//   - The APIError type carrying the engine's HTTP status and raw
//     response body for every non-2xx reply
//
// Higher-level packages (container, image) build their operations on
// top of this client. The client performs no retries and enforces no
// deadlines of its own; cancellation is driven entirely by the
// caller's context.
package engine
