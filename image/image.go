// Package image resolves image references by pulling them through the
// engine and draining the pull's progress stream to completion.
package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/distribution/reference"

	"github.com/mmr-tortoise/skiff/engine"
)

// progressEvent is one line of the pull progress stream. Only the
// error field matters here; status and layer progress are drained and
// discarded. The engine commits a 200 before it can know whether the
// registry will cooperate, so failures arrive as events.
type progressEvent struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Detail *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// Pull pulls ref through the engine and blocks until the pull
// completes. The reference is normalized the way the engine CLI does
// ("postgres" → "docker.io/library/postgres:latest"). A pull has no
// observable state besides in-progress and complete; completion is the
// progress stream reaching EOF without an error event.
//
// Failures before the stream starts (malformed reference rejected by
// the engine) surface as a regular *engine.APIError; failures reported
// inside the stream (unknown tag, unreachable registry) surface as an
// *engine.APIError with StatusCode 0 carrying the event's message.
func Pull(ctx context.Context, eng *engine.Client, ref string) error {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	named = reference.TagNameOnly(named)

	query := url.Values{}
	query.Set("fromImage", named.Name())
	if tagged, ok := named.(reference.Tagged); ok {
		query.Set("tag", tagged.Tag())
	}

	stream, err := eng.Stream(ctx, http.MethodPost, "/images/create", query, nil)
	if err != nil {
		return fmt.Errorf("pulling %s: %w", ref, err)
	}
	defer stream.Close()

	dec := json.NewDecoder(stream)
	for {
		var event progressEvent
		if err := dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("reading pull progress for %s: %w", ref, err)
		}
		if event.Error != "" {
			detail := event.Error
			if event.Detail != nil && event.Detail.Message != "" {
				detail = event.Detail.Message
			}
			return &engine.APIError{
				Op:   "pull " + ref,
				Body: detail,
			}
		}
	}
}
