// Package container wraps an engine-assigned container identifier in
// a Handle exposing the lifecycle operations a test-suite provisioner
// needs: create, start, stop, remove, inspect, log streaming, exec.
//
// Each Handle tracks an explicit lifecycle state
// (Created → Started → Stopped → Removed, with Stopped → Started
// allowed on a fresh start) and rejects illegal transitions locally
// with a StateError before any network call, rather than relying on
// the engine's conflict responses. The identifier itself is assigned
// exactly once at creation and never changes.
//
// Request and response bodies reuse the engine's own wire types from
// github.com/docker/docker/api/types; only the transport is this
// module's (see the engine package).
package container
