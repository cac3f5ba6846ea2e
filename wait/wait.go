// Package wait blocks until a container signals readiness through its
// log output.
//
// Database images and similar services print a known line once they
// accept connections ("database system is ready to accept
// connections", "Waiting for connections", ...). Waiting for that
// marker is how a test suite knows the difference between a started
// container and a usable service.
package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmr-tortoise/skiff/container"
)

// ErrStreamEnded is returned when the log stream terminates before the
// readiness marker was observed, typically because the container
// crashed during startup. The wait never hangs on a dead stream and
// never returns silently without a match.
var ErrStreamEnded = errors.New("log stream ended before readiness marker appeared")

// LogSource is the part of container.Handle the waiter needs.
// *container.Handle satisfies it.
type LogSource interface {
	StreamLogs(ctx context.Context, opts container.LogOptions, fn container.LineHandler) error
}

// ForMessage follows src's log stream until a line containing marker
// appears, then stops consuming and returns. Lines after the match are
// never read. No timeout is applied here: if the marker never appears
// and the container keeps producing output, the call blocks until ctx
// is cancelled, which is the caller's lever for bounding the wait.
func ForMessage(ctx context.Context, src LogSource, marker string) error {
	if marker == "" {
		return fmt.Errorf("readiness marker must not be empty")
	}

	found := false
	err := src.StreamLogs(ctx, container.LogOptions{Follow: true}, func(line string) bool {
		if strings.Contains(line, marker) {
			found = true
			return true
		}
		return false
	})
	if err != nil {
		return fmt.Errorf("waiting for %q: %w", marker, err)
	}
	if !found {
		return fmt.Errorf("waiting for %q: %w", marker, ErrStreamEnded)
	}
	return nil
}
