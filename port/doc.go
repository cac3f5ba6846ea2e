// Package port finds TCP ports that are free for binding on the local
// machine, for handing to short-lived service containers.
//
// Availability is never cached: every candidate is checked by binding
// a listener on all interfaces and releasing it immediately. The
// engine publishes container ports on 0.0.0.0, so the probe must
// cover the same address space. Because nothing holds the port
// between the probe and the consumer's actual bind, concurrent
// allocations can race; callers are expected to tolerate a stale
// answer and retry. This is a documented best-effort guarantee, not a
// reservation.
package port
