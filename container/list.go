package container

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/mmr-tortoise/skiff/engine"
)

// ListOptions filters a container listing. Labels are matched
// engine-side as key=value filters, which avoids transferring and
// sifting unrelated containers on busy hosts.
type ListOptions struct {
	All    bool
	Labels map[string]string
}

// List queries the engine for containers, optionally filtered by
// labels. With All set, stopped and exited containers are included.
func List(ctx context.Context, eng *engine.Client, opts ListOptions) ([]containertypes.Summary, error) {
	query := url.Values{}
	if opts.All {
		query.Set("all", "true")
	}

	if len(opts.Labels) > 0 {
		args := filters.NewArgs()
		for k, v := range opts.Labels {
			args.Add("label", k+"="+v)
		}
		encoded, err := filters.ToJSON(args)
		if err != nil {
			return nil, fmt.Errorf("encoding list filters: %w", err)
		}
		query.Set("filters", encoded)
	}

	resp, err := eng.Do(ctx, http.MethodGet, "/containers/json", query, nil)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	var out []containertypes.Summary
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return out, nil
}
