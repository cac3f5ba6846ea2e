package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxErrorBody caps how much of a non-2xx response body is retained in
// an APIError. Engine error bodies are short JSON documents; the cap
// only matters when something other than the engine answers.
const maxErrorBody = 8 << 10

// Response wraps a successful (2xx) control-plane reply. The body must
// be consumed via DecodeJSON or Close to release the connection.
type Response struct {
	StatusCode int
	Body       io.ReadCloser
}

// DecodeJSON decodes the response body into v and closes it. A nil v
// discards the body.
func (r *Response) DecodeJSON(v any) error {
	defer r.Body.Close()
	if v == nil {
		_, err := io.Copy(io.Discard, r.Body)
		return err
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding engine response: %w", err)
	}
	return nil
}

// Close discards and closes the response body.
func (r *Response) Close() error {
	_, _ = io.Copy(io.Discard, r.Body)
	return r.Body.Close()
}

// Do issues a single-shot request and returns the response on any 2xx
// status. The body, when non-nil, is JSON-encoded. A non-2xx status is
// returned as an *APIError carrying the status code and raw body; no
// retry is attempted on any failure.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	resp, err := c.roundTrip(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

// Stream issues a request whose response body is a raw stream: either
// line-delimited JSON events (image pull progress) or a multiplexed
// log stream. The caller owns the returned reader and stops the stream
// by closing it. Follow-mode log streams are unbounded until the
// container stops producing output or the reader is closed.
func (c *Client) Stream(ctx context.Context, method, path string, query url.Values, body any) (io.ReadCloser, error) {
	resp, err := c.roundTrip(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// roundTrip builds, sends, and status-checks one request. On non-2xx
// the body is drained into an APIError and the connection released.
func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encoding request body for %s %s: %w", method, path, err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.requestURL(path, query), reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine request %s %s: %w", method, path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
			Op:         method + " " + path,
		}
	}
	return resp, nil
}

// requestURL joins the base URL, API version prefix, path, and encoded
// query into the final request target.
func (c *Client) requestURL(path string, query url.Values) string {
	u := c.baseURL + "/v" + c.version + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Query builds url.Values from mixed-type parameters, stringifying
// booleans as "true"/"false" and integers in base 10. Nil-valued keys
// are skipped so callers can pass optional parameters unconditionally.
func Query(params map[string]any) url.Values {
	q := url.Values{}
	for key, val := range params {
		switch v := val.(type) {
		case nil:
			continue
		case string:
			if v != "" {
				q.Set(key, v)
			}
		case bool:
			q.Set(key, strconv.FormatBool(v))
		case int:
			q.Set(key, strconv.Itoa(v))
		default:
			q.Set(key, fmt.Sprintf("%v", v))
		}
	}
	return q
}
