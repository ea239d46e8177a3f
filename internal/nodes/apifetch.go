package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/kylasweb/ivrflow/internal/expressions"
	"github.com/kylasweb/ivrflow/pkg/schema"
)

const (
	defaultFetchTimeout    = 5 * time.Second
	defaultMaxResponseBody = 1 << 20 // 1MB
	fetchRetryBaseDelay    = 250 * time.Millisecond
	fetchRetryMaxDelay     = 5 * time.Second
)

// APIFetchExecutor implements the api_fetch node: an HTTP call against
// config.endpoint with a per-node timeout. A 2xx response resolves to the
// success port with response fields merged into session variables; non-2xx
// and timeouts honor retry_on_fail (bounded attempts with exponential
// backoff) before resolving to the error port. Retry exhaustion is an
// outcome, not an error — routing stays in the workflow author's hands.
type APIFetchExecutor struct {
	client  *http.Client
	jq      *expressions.GoJQEngine
	maxBody int64
}

// NewAPIFetchExecutor creates an api_fetch executor. client may be nil to use
// a default with sane transport settings.
func NewAPIFetchExecutor(client *http.Client, jq *expressions.GoJQEngine) *APIFetchExecutor {
	if client == nil {
		client = &http.Client{}
	}
	if jq == nil {
		jq = expressions.NewGoJQEngine()
	}
	return &APIFetchExecutor{
		client:  client,
		jq:      jq,
		maxBody: defaultMaxResponseBody,
	}
}

func (e *APIFetchExecutor) Execute(ctx context.Context, cfg any, in Input) (*Outcome, error) {
	c, ok := cfg.(*schema.APIFetchConfig)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeConfigInvalid, "api_fetch: unexpected config type")
	}

	timeout := defaultFetchTimeout
	if c.Timeout != "" {
		if d, err := time.ParseDuration(c.Timeout); err == nil {
			timeout = d
		}
	}

	maxRetries := 0
	if c.RetryOnFail {
		maxRetries = c.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 2
		}
	}

	var lastStatus int
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		outcome, status, err := e.attempt(ctx, c, in, timeout)
		if err == nil && outcome != nil {
			outcome.Diagnostics = map[string]any{
				"attempts":    attempt + 1,
				"http_status": status,
			}
			return outcome, nil
		}
		if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// Session abandoned mid-call; do not consume retries.
			return nil, ctx.Err()
		}
		lastStatus = status
		lastErr = err
	}

	vars := map[string]any{}
	diags := map[string]any{"attempts": maxRetries + 1}
	if lastStatus != 0 {
		vars["http_status"] = lastStatus
		diags["http_status"] = lastStatus
	}
	if lastErr != nil {
		diags["error"] = lastErr.Error()
	}
	return &Outcome{Port: schema.PortError, Variables: vars, Diagnostics: diags}, nil
}

// attempt performs a single HTTP round trip. Returns a success outcome, or
// (nil, status, err) when the attempt should count against the retry budget.
func (e *APIFetchExecutor) attempt(ctx context.Context, c *schema.APIFetchConfig, in Input, timeout time.Duration) (*Outcome, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := c.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(c.Body) > 0 {
		body = bytes.NewReader(c.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.Endpoint, body)
	if err != nil {
		return nil, 0, schema.NewErrorf(schema.ErrCodeConfigInvalid, "api_fetch: build request: %s", err.Error()).WithCause(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, nil
	}

	vars, err := e.captureVariables(ctx, c, raw)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	vars["http_status"] = resp.StatusCode

	return &Outcome{Port: schema.PortSuccess, Variables: vars}, resp.StatusCode, nil
}

// captureVariables extracts session variables from the response body. With a
// capture expression, the jq result must reshape to an object; without one,
// top-level object fields merge directly. Non-object bodies land under
// "api_response".
func (e *APIFetchExecutor) captureVariables(ctx context.Context, c *schema.APIFetchConfig, raw []byte) (map[string]any, error) {
	vars := map[string]any{}
	if len(raw) == 0 {
		return vars, nil
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		vars["api_response"] = string(raw)
		return vars, nil
	}

	if c.Capture != "" {
		obj, ok := parsed.(map[string]any)
		if !ok {
			obj = map[string]any{"body": parsed}
		}
		captured, err := e.jq.Evaluate(ctx, c.Capture, obj)
		if err != nil {
			return nil, err
		}
		parsed = captured
	}

	if obj, ok := parsed.(map[string]any); ok {
		for k, v := range obj {
			vars[k] = v
		}
	} else if parsed != nil {
		vars["api_response"] = parsed
	}
	return vars, nil
}

// waitBackoff sleeps for the exponential backoff delay of the given attempt,
// returning early if the context is cancelled.
func waitBackoff(ctx context.Context, attempt int) error {
	delay := fetchRetryBaseDelay << (attempt - 1)
	if delay > fetchRetryMaxDelay {
		delay = fetchRetryMaxDelay
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Executor = (*APIFetchExecutor)(nil)
