package harness

import (
	"os"
	"strconv"
	"time"

	"forgetest/internal/mockerr"
)

// Default timeouts for server startup and individual HTTP calls.
const (
	// DefaultStartupTimeout bounds the whole start sequence: port discovery
	// plus health checking against a single wall-clock deadline.
	DefaultStartupTimeout = 30 * time.Second

	// DefaultRequestTimeout bounds each stub-sync and verification call.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultBinary is the mockforge executable looked up in PATH when the
	// configuration does not name one.
	DefaultBinary = "mockforge"

	// DefaultHost is the address clients dial. Announcements may carry
	// 0.0.0.0, which is a bind address, not a connection target.
	DefaultHost = "127.0.0.1"
)

// Config describes how to launch the external mockforge process.
// The zero value plus applyDefaults is a valid configuration that requests
// OS-assigned ports.
type Config struct {
	// Binary is the mockforge executable. Defaults to "mockforge" in PATH.
	Binary string

	// Host is the address used for health checks and API calls.
	Host string

	// HTTPPort is the requested mock traffic port. 0 requests an
	// OS-assigned port, discovered from the server's own output.
	HTTPPort int

	// ConfigFile is an optional mockforge config file passed via --config.
	ConfigFile string

	// SpecFile is an optional OpenAPI spec passed via --spec.
	SpecFile string

	// StartupTimeout bounds the wait for port discovery and readiness.
	StartupTimeout time.Duration

	// RequestTimeout bounds each stub-sync and verification HTTP call.
	RequestTimeout time.Duration
}

// applyDefaults fills unset fields in place.
func (c *Config) applyDefaults() {
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Validate checks the configuration for inconsistencies. It is called before
// any process is spawned, so failures never leave a child behind.
func (c *Config) Validate() error {
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return mockerr.InvalidConfig("http port %d out of range", c.HTTPPort)
	}
	if c.ConfigFile != "" {
		if _, err := os.Stat(c.ConfigFile); err != nil {
			return mockerr.InvalidConfig("config file %q not readable: %v", c.ConfigFile, err)
		}
	}
	if c.SpecFile != "" {
		if _, err := os.Stat(c.SpecFile); err != nil {
			return mockerr.InvalidConfig("spec file %q not readable: %v", c.SpecFile, err)
		}
	}
	return nil
}

// args builds the argv passed to the mockforge binary. The admin interface is
// always requested on an ephemeral port so stubs can be synced dynamically.
func (c *Config) args() []string {
	args := []string{"serve"}

	if c.ConfigFile != "" {
		args = append(args, "--config", c.ConfigFile)
	}
	if c.SpecFile != "" {
		args = append(args, "--spec", c.SpecFile)
	}

	args = append(args, "--http-port", strconv.Itoa(c.HTTPPort))
	args = append(args, "--admin", "--admin-port", "0")

	return args
}
