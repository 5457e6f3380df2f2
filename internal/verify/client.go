package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"forgetest/internal/mockerr"
	"forgetest/pkg/logging"
)

// Client talks to the verification API exposed on the mock server's main
// HTTP port. The base URL is resolved per call because the port is
// discovered from server output.
type Client struct {
	baseURL func() string
	http    *http.Client
}

// NewClient creates a verification client over the given lazily resolved
// base URL, e.g. "http://127.0.0.1:3000".
func NewClient(baseURL func() string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Verify checks how often requests matching pattern were made against the
// expected count assertion.
func (c *Client) Verify(ctx context.Context, pattern Pattern, expected Count) Result {
	payload := map[string]interface{}{
		"pattern":  pattern,
		"expected": expected,
	}
	return c.post(ctx, "verify", payload, expected)
}

// VerifyNever checks that no request matching pattern was made. The
// endpoint takes the bare pattern, not a wrapper object.
func (c *Client) VerifyNever(ctx context.Context, pattern Pattern) Result {
	return c.post(ctx, "never", pattern, Never())
}

// VerifyAtLeast checks that at least min requests matching pattern were
// made.
func (c *Client) VerifyAtLeast(ctx context.Context, pattern Pattern, min int) Result {
	payload := map[string]interface{}{
		"pattern": pattern,
		"min":     min,
	}
	return c.post(ctx, "at-least", payload, AtLeast(min))
}

// VerifySequence checks that requests matching the patterns occurred in
// order, possibly with other requests interleaved.
func (c *Client) VerifySequence(ctx context.Context, patterns ...Pattern) Result {
	payload := map[string]interface{}{
		"patterns": patterns,
	}
	return c.post(ctx, "sequence", payload, Exactly(len(patterns)))
}

// Count returns how many logged requests match pattern. Failures are logged
// and reported as zero.
func (c *Client) Count(ctx context.Context, pattern Pattern) int {
	payload := map[string]interface{}{
		"pattern": pattern,
	}
	body, err := c.roundTrip(ctx, "count", payload)
	if err != nil {
		logging.Warn("Verify", "Count query failed: %v", err)
		return 0
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		logging.Warn("Verify", "Failed to decode count response: %v", err)
		return 0
	}
	return out.Count
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}, expected Count) Result {
	body, err := c.roundTrip(ctx, endpoint, payload)
	if err != nil {
		return failureResult(expected, err)
	}
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return failureResult(expected, mockerr.Wrap(mockerr.CodeNetworkError, err, "failed to decode verification response"))
	}
	return result
}

func (c *Client) roundTrip(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	base := c.baseURL()
	if base == "" {
		return nil, mockerr.New(mockerr.CodeNetworkError, "server port not discovered")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, mockerr.Wrap(mockerr.CodeNetworkError, err, "failed to encode verification request")
	}
	url := fmt.Sprintf("%s/api/verification/%s", base, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, mockerr.NetworkError(err, "failed to build verification request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mockerr.NetworkError(err, "verification request to %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, mockerr.New(mockerr.CodeNetworkError, "verification endpoint %s returned status %d", endpoint, resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, mockerr.NetworkError(err, "failed to read verification response")
	}
	return buf.Bytes(), nil
}
