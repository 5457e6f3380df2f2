// Package stub models mock response stubs and keeps a local registry in
// sync with the mockforge admin interface.
package stub

import (
	"encoding/json"
	"time"

	"forgetest/internal/mockerr"
)

// ResponseStub describes one canned HTTP response the mock server should
// return for matching requests. The zero Status means 200.
type ResponseStub struct {
	// ID identifies the stub. Assigned by the registry when empty.
	ID string

	// Name is a human-readable label shown in the admin interface.
	Name string

	// Method is the HTTP method to match, uppercase.
	Method string

	// Path is the request path to match.
	Path string

	// Body is the response body.
	Body string

	// Status is the response status code. 0 means 200.
	Status int

	// Headers are extra response headers.
	Headers map[string]string

	// LatencyMs delays the response by the given number of milliseconds.
	LatencyMs int
}

// Builder assembles a ResponseStub fluently. Marshal failures from JSON are
// deferred to Build so call chains stay unbroken.
type Builder struct {
	stub ResponseStub
	err  error
}

// NewBuilder starts a stub for the given method and path.
func NewBuilder(method, path string) *Builder {
	return &Builder{stub: ResponseStub{Method: method, Path: path}}
}

// Name sets the stub's display name.
func (b *Builder) Name(name string) *Builder {
	b.stub.Name = name
	return b
}

// Status sets the response status code.
func (b *Builder) Status(code int) *Builder {
	b.stub.Status = code
	return b
}

// Body sets the raw response body.
func (b *Builder) Body(body string) *Builder {
	b.stub.Body = body
	return b
}

// JSON marshals v as the response body and sets the content type.
func (b *Builder) JSON(v interface{}) *Builder {
	data, err := json.Marshal(v)
	if err != nil {
		b.err = mockerr.Wrap(mockerr.CodeInvalidConfig, err, "failed to marshal stub body")
		return b
	}
	b.stub.Body = string(data)
	return b.Header("Content-Type", "application/json")
}

// Header adds a response header.
func (b *Builder) Header(key, value string) *Builder {
	if b.stub.Headers == nil {
		b.stub.Headers = make(map[string]string)
	}
	b.stub.Headers[key] = value
	return b
}

// Latency delays the response by the given duration, rounded down to
// milliseconds.
func (b *Builder) Latency(d time.Duration) *Builder {
	b.stub.LatencyMs = int(d / time.Millisecond)
	return b
}

// Build returns the assembled stub, or the first error raised while
// assembling it.
func (b *Builder) Build() (ResponseStub, error) {
	if b.err != nil {
		return ResponseStub{}, b.err
	}
	return b.stub, nil
}
