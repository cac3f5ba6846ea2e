package port

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
)

const (
	// MinPort and MaxPort bound the registered range allocations are
	// drawn from. Both bounds are exclusive: the lowest port ever
	// returned is MinPort+1, the highest MaxPort-1.
	MinPort = 1024
	MaxPort = 65535

	// maxRandomAttempts bounds rejection sampling in AllocateRandom
	// before falling back to an ascending scan.
	maxRandomAttempts = 64
)

// ErrExhausted is returned when every candidate in range failed the
// bind probe.
var ErrExhausted = errors.New("no free port in range")

// RangeError reports an invalid port range, naming the offending bound.
type RangeError struct {
	Bound string // "from" or "to"
	Value int
	Cause string
}

// Error satisfies the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid port range: %s=%d %s", e.Bound, e.Value, e.Cause)
}

// Probe checks whether a single TCP port can be bound right now.
// Implementations must not hold the port after returning.
type Probe interface {
	Available(port int) bool
}

// bindProbe is the real probe: bind on all interfaces, release
// immediately. Asking the OS for the listener is more reliable than
// parsing /proc/net or shelling out to lsof, and needs no privileges.
type bindProbe struct{}

func (bindProbe) Available(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// Allocator picks free ephemeral ports. The zero value is not usable;
// create one with New or NewWithProbe.
//
// The allocator keeps no record of ports it has handed out. Two
// allocations, from one or several processes, can return the same
// port if nothing bound it in between.
type Allocator struct {
	probe Probe
}

// New creates an Allocator backed by a live bind-and-release probe.
func New() *Allocator {
	return &Allocator{probe: bindProbe{}}
}

// NewWithProbe creates an Allocator with a custom probe, used by tests
// to simulate busy ports deterministically.
func NewWithProbe(p Probe) *Allocator {
	return &Allocator{probe: p}
}

// Range builds the ascending candidate list [from, to]. Both bounds
// must lie strictly inside (MinPort, MaxPort) and to must exceed from;
// violations fail with a *RangeError naming the offending bound.
func Range(from, to int) ([]int, error) {
	if from <= MinPort || from >= MaxPort {
		return nil, &RangeError{Bound: "from", Value: from, Cause: fmt.Sprintf("must be inside (%d, %d)", MinPort, MaxPort)}
	}
	if to <= MinPort || to >= MaxPort {
		return nil, &RangeError{Bound: "to", Value: to, Cause: fmt.Sprintf("must be inside (%d, %d)", MinPort, MaxPort)}
	}
	if to <= from {
		return nil, &RangeError{Bound: "to", Value: to, Cause: fmt.Sprintf("must be greater than from=%d", from)}
	}

	candidates := make([]int, 0, to-from+1)
	for p := from; p <= to; p++ {
		candidates = append(candidates, p)
	}
	return candidates, nil
}

// Allocate returns the first bindable port scanning the full range
// ascending. Fails with ErrExhausted when every port is busy.
func (a *Allocator) Allocate() (int, error) {
	return a.scan(MinPort+1, MaxPort-1)
}

// AllocatePreferred probes the preferred port first. On conflict it
// continues ascending from preferred+1, so the caller gets the nearest
// free port above its preference.
func (a *Allocator) AllocatePreferred(preferred int) (int, error) {
	if preferred <= MinPort || preferred >= MaxPort {
		return 0, &RangeError{Bound: "from", Value: preferred, Cause: fmt.Sprintf("must be inside (%d, %d)", MinPort, MaxPort)}
	}
	if a.probe.Available(preferred) {
		return preferred, nil
	}
	return a.scan(preferred+1, MaxPort-1)
}

// AllocateFrom probes an explicit ordered candidate list and returns
// the first success. When every candidate is busy, the search widens
// iteratively from just above the last candidate to the top of the
// range; full exhaustion fails with ErrExhausted.
func (a *Allocator) AllocateFrom(candidates []int) (int, error) {
	if len(candidates) == 0 {
		return 0, ErrExhausted
	}

	// Iterative widening instead of recursion: each round either finds
	// a port or strictly raises the lower bound, so the loop terminates
	// at MaxPort-1 in the worst case.
	for {
		last := 0
		for _, p := range candidates {
			if p <= MinPort || p >= MaxPort {
				return 0, &RangeError{Bound: "from", Value: p, Cause: fmt.Sprintf("must be inside (%d, %d)", MinPort, MaxPort)}
			}
			if a.probe.Available(p) {
				return p, nil
			}
			last = p
		}
		if last >= MaxPort-1 {
			return 0, ErrExhausted
		}
		// Built inline rather than via Range, which rejects the
		// single-port tail (from == to) that remains when the last
		// candidate was MaxPort-2.
		next := make([]int, 0, MaxPort-1-last)
		for p := last + 1; p < MaxPort; p++ {
			next = append(next, p)
		}
		candidates = next
	}
}

// AllocateRandom draws uniformly random candidates from the range and
// returns the first bindable one (rejection sampling, not
// enumeration). After maxRandomAttempts collisions it falls back to
// the deterministic ascending scan so a busy host still gets an
// answer.
func (a *Allocator) AllocateRandom() (int, error) {
	span := MaxPort - MinPort - 1 // size of (MinPort, MaxPort) exclusive
	for i := 0; i < maxRandomAttempts; i++ {
		candidate := MinPort + 1 + rand.IntN(span)
		if a.probe.Available(candidate) {
			return candidate, nil
		}
	}
	return a.Allocate()
}

// scan probes [from, to] ascending and returns the first free port.
func (a *Allocator) scan(from, to int) (int, error) {
	for p := from; p <= to; p++ {
		if a.probe.Available(p) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w %d-%d", ErrExhausted, from, to)
}
