package container

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/mmr-tortoise/skiff/engine"
)

// LogOptions selects what part of the log stream to consume. With
// Follow the stream stays open until the container stops producing
// output or the handler requests a stop.
type LogOptions struct {
	Follow bool
	Tail   string // e.g. "100"; empty means everything
}

// LineHandler receives one log line at a time. Returning stop=true
// ends consumption; the remainder of the stream is never read. This is
// the only cancellation the stream itself offers; everything else
// goes through the caller's context.
type LineHandler func(line string) (stop bool)

// StreamLogs follows the container's log stream, demultiplexes the
// engine's framed stdout/stderr payload, and hands each line to fn.
// It returns nil both when fn stops the stream and when a non-follow
// stream ends; a cancelled context surfaces ctx.Err().
func (h *Handle) StreamLogs(ctx context.Context, opts LogOptions, fn LineHandler) error {
	if h.State() == StateRemoved {
		return fmt.Errorf("streaming logs for container %s: %w", h.id, engine.ErrNotFound)
	}

	query := engine.Query(map[string]any{
		"stdout": true,
		"stderr": true,
		"follow": opts.Follow,
		"tail":   opts.Tail,
	})
	body, err := h.eng.Stream(ctx, http.MethodGet, "/containers/"+h.id+"/logs", query, nil)
	if err != nil {
		return fmt.Errorf("streaming logs for container %s: %w", h.id, err)
	}
	defer body.Close()

	// The engine frames stdout and stderr into one stream; stdcopy
	// strips the framing. Both substreams feed the same pipe since the
	// handler sees plain lines either way.
	pr, pw := io.Pipe()
	go func() {
		_, copyErr := stdcopy.StdCopy(pw, pw, body)
		pw.CloseWithError(copyErr)
	}()
	defer pr.Close()

	scanner := bufio.NewScanner(pr)
	for scanner.Scan() {
		if fn(scanner.Text()) {
			// Cooperative stop: closing the response body unblocks the
			// demux goroutine; buffered lines are dropped unread.
			return nil
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("reading log stream for container %s: %w", h.id, err)
	}
	return nil
}
