package stub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"forgetest/internal/mockerr"
)

// mocksPath is the admin interface collection for dynamic mocks.
const mocksPath = "/__mockforge/api/mocks"

// adminMock is the wire form the admin interface accepts. Default values
// are omitted so the server applies its own.
type adminMock struct {
	ID         string        `json:"id,omitempty"`
	Name       string        `json:"name"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Response   adminResponse `json:"response"`
	Enabled    bool          `json:"enabled"`
	StatusCode int           `json:"status_code,omitempty"`
	LatencyMs  int           `json:"latency_ms,omitempty"`
}

type adminResponse struct {
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

func toAdminMock(s ResponseStub) adminMock {
	m := adminMock{
		ID:     s.ID,
		Name:   s.Name,
		Method: s.Method,
		Path:   s.Path,
		Response: adminResponse{
			Body:    s.Body,
			Headers: s.Headers,
		},
		Enabled:   true,
		LatencyMs: s.LatencyMs,
	}
	if s.Status != 0 && s.Status != http.StatusOK {
		m.StatusCode = s.Status
	}
	return m
}

func fromAdminMock(m adminMock) ResponseStub {
	status := m.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return ResponseStub{
		ID:        m.ID,
		Name:      m.Name,
		Method:    m.Method,
		Path:      m.Path,
		Body:      m.Response.Body,
		Status:    status,
		Headers:   m.Response.Headers,
		LatencyMs: m.LatencyMs,
	}
}

// AdminClient talks to the mockforge admin interface. The base URL is
// resolved per call because the admin port is discovered from server output
// and may not be known when the client is constructed.
type AdminClient struct {
	baseURL func() string
	http    *http.Client
}

// NewAdminClient creates a client over the given lazily resolved base URL,
// e.g. "http://127.0.0.1:9080". An empty base URL means the admin port has
// not been discovered yet.
func NewAdminClient(baseURL func() string, timeout time.Duration) *AdminClient {
	return &AdminClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *AdminClient) endpoint(suffix string) (string, error) {
	base := c.baseURL()
	if base == "" {
		return "", mockerr.New(mockerr.CodeNetworkError, "admin port not discovered")
	}
	return base + mocksPath + suffix, nil
}

// Create registers a stub with the admin interface.
func (c *AdminClient) Create(ctx context.Context, s ResponseStub) error {
	url, err := c.endpoint("")
	if err != nil {
		return err
	}
	payload, err := json.Marshal(toAdminMock(s))
	if err != nil {
		return mockerr.AdminAPIError(err, "failed to encode stub %q", s.ID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return mockerr.AdminAPIError(err, "failed to build create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return mockerr.NetworkError(err, "create stub %q", s.ID)
	}
	defer drain(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mockerr.AdminAPIError(fmt.Errorf("status %d", resp.StatusCode), "create stub %q rejected", s.ID)
	}
	return nil
}

// List fetches all stubs currently registered with the admin interface.
func (c *AdminClient) List(ctx context.Context) ([]ResponseStub, error) {
	url, err := c.endpoint("")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, mockerr.AdminAPIError(err, "failed to build list request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, mockerr.NetworkError(err, "list stubs")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, mockerr.AdminAPIError(fmt.Errorf("status %d", resp.StatusCode), "list stubs rejected")
	}

	var mocks []adminMock
	if err := json.NewDecoder(resp.Body).Decode(&mocks); err != nil {
		return nil, mockerr.AdminAPIError(err, "failed to decode stub list")
	}
	stubs := make([]ResponseStub, 0, len(mocks))
	for _, m := range mocks {
		stubs = append(stubs, fromAdminMock(m))
	}
	return stubs, nil
}

// Delete removes one stub from the admin interface by id.
func (c *AdminClient) Delete(ctx context.Context, id string) error {
	url, err := c.endpoint("/" + id)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return mockerr.AdminAPIError(err, "failed to build delete request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return mockerr.NetworkError(err, "delete stub %q", id)
	}
	defer drain(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return mockerr.StubNotFound(id)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mockerr.AdminAPIError(fmt.Errorf("status %d", resp.StatusCode), "delete stub %q rejected", id)
	}
	return nil
}

// drain consumes and closes a response body so the connection can be reused.
func drain(body io.ReadCloser) {
	io.Copy(io.Discard, body) //nolint:errcheck
	body.Close()
}
