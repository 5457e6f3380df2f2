// Package scenario loads declarative test scenarios from YAML. A scenario
// names a server configuration, the stubs to register, and the
// verifications to run once traffic has been driven against the server.
package scenario

import (
	"time"

	"gopkg.in/yaml.v3"

	"forgetest/internal/mockerr"
	"forgetest/internal/stub"
	"forgetest/internal/verify"
)

// Duration decodes "10s" style values from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return mockerr.InvalidConfig("invalid duration %q: %v", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// AsDuration converts to the standard library type.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// Scenario is one YAML scenario document.
type Scenario struct {
	// Name identifies the scenario in output and logs.
	Name string `yaml:"name"`

	// Description is free-form documentation.
	Description string `yaml:"description,omitempty"`

	// Server configures the mock server launch.
	Server Server `yaml:"server,omitempty"`

	// Stubs are registered before verifications run.
	Stubs []Stub `yaml:"stubs,omitempty"`

	// Verifications are evaluated in order.
	Verifications []Verification `yaml:"verifications,omitempty"`
}

// Server mirrors the launch configuration in YAML form.
type Server struct {
	Binary         string   `yaml:"binary,omitempty"`
	ConfigFile     string   `yaml:"config,omitempty"`
	SpecFile       string   `yaml:"spec,omitempty"`
	HTTPPort       int      `yaml:"http_port,omitempty"`
	StartupTimeout Duration `yaml:"startup_timeout,omitempty"`
}

// Stub is the YAML form of a response stub.
type Stub struct {
	Name      string            `yaml:"name,omitempty"`
	Method    string            `yaml:"method"`
	Path      string            `yaml:"path"`
	Status    int               `yaml:"status,omitempty"`
	Body      string            `yaml:"body,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	LatencyMs int               `yaml:"latency_ms,omitempty"`
}

// ToResponseStub converts the YAML form to the registry model.
func (s Stub) ToResponseStub() stub.ResponseStub {
	return stub.ResponseStub{
		Name:      s.Name,
		Method:    s.Method,
		Path:      s.Path,
		Status:    s.Status,
		Body:      s.Body,
		Headers:   s.Headers,
		LatencyMs: s.LatencyMs,
	}
}

// Verification kinds accepted in YAML.
const (
	KindVerify   = "verify"
	KindNever    = "never"
	KindAtLeast  = "at_least"
	KindSequence = "sequence"
	KindCount    = "count"
)

// Verification is one verification step. Kind selects which fields apply:
// verify uses Pattern and Expected, never and count use Pattern, at_least
// uses Pattern and Min, sequence uses Patterns.
type Verification struct {
	Name     string         `yaml:"name,omitempty"`
	Kind     string         `yaml:"type"`
	Pattern  Pattern        `yaml:"pattern,omitempty"`
	Patterns []Pattern      `yaml:"patterns,omitempty"`
	Expected *ExpectedCount `yaml:"expected,omitempty"`
	Min      int            `yaml:"min,omitempty"`
}

// Pattern is the YAML form of a request pattern.
type Pattern struct {
	Method      string            `yaml:"method,omitempty"`
	Path        string            `yaml:"path,omitempty"`
	QueryParams map[string]string `yaml:"query_params,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	BodyPattern string            `yaml:"body_pattern,omitempty"`
}

// ToPattern converts the YAML form to the verification model.
func (p Pattern) ToPattern() verify.Pattern {
	return verify.Pattern{
		Method:      p.Method,
		Path:        p.Path,
		QueryParams: p.QueryParams,
		Headers:     p.Headers,
		BodyPattern: p.BodyPattern,
	}
}

// ExpectedCount is the YAML form of a count assertion.
type ExpectedCount struct {
	Type  string `yaml:"type"`
	Value int    `yaml:"value,omitempty"`
}

// ToCount converts the YAML form to the verification model.
func (e ExpectedCount) ToCount() verify.Count {
	return verify.Count{Type: e.Type, Value: e.Value}
}

// Validate checks the scenario for structural problems before any server is
// launched.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return mockerr.InvalidConfig("scenario has no name")
	}
	for i, st := range s.Stubs {
		if st.Method == "" || st.Path == "" {
			return mockerr.InvalidConfig("scenario %q: stub %d needs both method and path", s.Name, i)
		}
	}
	for i, v := range s.Verifications {
		switch v.Kind {
		case KindVerify:
			if v.Expected == nil {
				return mockerr.InvalidConfig("scenario %q: verification %d of type verify needs an expected count", s.Name, i)
			}
		case KindNever, KindCount:
		case KindAtLeast:
			if v.Min <= 0 {
				return mockerr.InvalidConfig("scenario %q: verification %d of type at_least needs min > 0", s.Name, i)
			}
		case KindSequence:
			if len(v.Patterns) == 0 {
				return mockerr.InvalidConfig("scenario %q: verification %d of type sequence needs patterns", s.Name, i)
			}
		default:
			return mockerr.InvalidConfig("scenario %q: verification %d has unknown type %q", s.Name, i, v.Kind)
		}
	}
	return nil
}
