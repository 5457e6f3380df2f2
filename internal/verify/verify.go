// Package verify queries the mock server's request log to assert which
// requests were actually made during a test.
package verify

// Pattern matches logged requests. Empty fields match anything; map entries
// must all be present on the request to match.
type Pattern struct {
	// Method is the HTTP method to match, case-insensitive.
	Method string `json:"method,omitempty"`

	// Path matches the request path. Exact, wildcard (*, **), or regex.
	Path string `json:"path,omitempty"`

	// QueryParams must all be present with matching values.
	QueryParams map[string]string `json:"query_params,omitempty"`

	// Headers must all be present with matching values, names
	// case-insensitive.
	Headers map[string]string `json:"headers,omitempty"`

	// BodyPattern matches the request body, exact or regex.
	BodyPattern string `json:"body_pattern,omitempty"`
}

// Count is a count assertion, tagged on the wire by type.
type Count struct {
	Type  string `json:"type"`
	Value int    `json:"value,omitempty"`
}

// Exactly asserts the request was made exactly n times.
func Exactly(n int) Count { return Count{Type: "exactly", Value: n} }

// AtLeast asserts the request was made at least n times.
func AtLeast(n int) Count { return Count{Type: "at_least", Value: n} }

// AtMost asserts the request was made at most n times.
func AtMost(n int) Count { return Count{Type: "at_most", Value: n} }

// Never asserts the request was never made.
func Never() Count { return Count{Type: "never"} }

// AtLeastOnce asserts the request was made one or more times.
func AtLeastOnce() Count { return Count{Type: "at_least_once"} }

// Result is the outcome of one verification query. A transport failure is
// reported as a non-matching result with ErrorMessage set, never as a Go
// error, so assertions read uniformly in test code.
type Result struct {
	// Matched reports whether the assertion held.
	Matched bool `json:"matched"`

	// Count is the actual number of matching requests.
	Count int `json:"count"`

	// Expected is the assertion that was evaluated.
	Expected Count `json:"expected"`

	// Matches holds the matching request log entries for inspection.
	Matches []map[string]interface{} `json:"matches"`

	// ErrorMessage describes the failure when Matched is false.
	ErrorMessage string `json:"error_message,omitempty"`
}

// failureResult reports a verification that could not be evaluated. Matches
// is an empty slice, not nil, so the result re-serializes as [].
func failureResult(expected Count, err error) Result {
	return Result{
		Matched:      false,
		Expected:     expected,
		Matches:      []map[string]interface{}{},
		ErrorMessage: err.Error(),
	}
}
