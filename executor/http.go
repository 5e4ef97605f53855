package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/loomworks/loom/recipe"
	"github.com/loomworks/loom/types"
)

// newHTTPExecutor builds the http executor: an interpolated request whose
// JSON (or plain text) response becomes the result data.
//
// Options: url (required, interpolated), method (default GET, POST when a
// body is declared), headers (map, values interpolated), body (string
// template or JSON-shaped map with interpolated string leaves).
func newHTTPExecutor(cfg recipe.ExecutorConfig, client *http.Client) (Executor, error) {
	rawURL := cfg.String("url")
	if rawURL == "" {
		return nil, types.NewError(types.ErrManifestInvalid, "http executor declares no url")
	}
	method := strings.ToUpper(cfg.String("method"))
	body := cfg["body"]
	if method == "" {
		if body != nil {
			method = http.MethodPost
		} else {
			method = http.MethodGet
		}
	}
	headers := cfg.Map("headers")

	return func(ctx context.Context, ec Context) Result {
		url := interpolate(rawURL, ec.Inputs)

		var reader io.Reader
		contentType := ""
		switch b := body.(type) {
		case nil:
		case string:
			reader = strings.NewReader(interpolate(b, ec.Inputs))
			contentType = "text/plain"
		default:
			data, err := json.Marshal(interpolateValue(b, ec.Inputs))
			if err != nil {
				return Fail(types.NewError(types.ErrExecutorFailed, "encode request body").WithCause(err))
			}
			reader = strings.NewReader(string(data))
			contentType = "application/json"
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return Fail(types.NewError(types.ErrExecutorFailed, "build request").WithCause(err))
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for key, val := range headers {
			req.Header.Set(key, interpolate(stringify(val), ec.Inputs))
		}

		resp, err := client.Do(req)
		if err != nil {
			return Fail(types.NewError(types.ErrExecutorFailed, "http request failed").WithCause(err))
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return Fail(types.NewError(types.ErrExecutorFailed, "read response").WithCause(err))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return Fail(types.Errorf(types.ErrExecutorFailed, "http %d from %s", resp.StatusCode, url))
		}

		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return Ok(string(raw))
		}
		return Ok(parsed)
	}, nil
}

// interpolateValue walks a JSON-shaped value and interpolates every string
// leaf against the inputs.
func interpolateValue(v any, inputs map[string]any) any {
	switch val := v.(type) {
	case string:
		// A bare placeholder keeps the input's native type instead of
		// stringifying it.
		if m := placeholderPattern.FindStringSubmatch(val); m != nil && m[0] == val {
			return resolvePath(m[1], inputs)
		}
		return interpolate(val, inputs)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = interpolateValue(item, inputs)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateValue(item, inputs)
		}
		return out
	default:
		return v
	}
}
