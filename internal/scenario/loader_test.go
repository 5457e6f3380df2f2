package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgetest/internal/mockerr"
)

const sampleScenario = `
name: user-service
description: stubs for the user service
server:
  http_port: 3000
  startup_timeout: 10s
stubs:
  - name: list users
    method: GET
    path: /api/users
    status: 200
    body: '{"users":[]}'
    headers:
      Content-Type: application/json
  - method: POST
    path: /api/users
    status: 201
    latency_ms: 50
verifications:
  - name: users listed once
    type: verify
    pattern:
      method: GET
      path: /api/users
    expected:
      type: exactly
      value: 1
  - name: no deletes
    type: never
    pattern:
      method: DELETE
      path: /api/users/*
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSingleFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "users.yaml", sampleScenario)

	scenarios, err := Load(path)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)

	sc := scenarios[0]
	assert.Equal(t, "user-service", sc.Name)
	assert.Equal(t, 3000, sc.Server.HTTPPort)
	assert.Equal(t, 10*time.Second, sc.Server.StartupTimeout.AsDuration())
	require.Len(t, sc.Stubs, 2)
	assert.Equal(t, "GET", sc.Stubs[0].Method)
	assert.Equal(t, 50, sc.Stubs[1].LatencyMs)
	require.Len(t, sc.Verifications, 2)
	assert.Equal(t, KindVerify, sc.Verifications[0].Kind)
	require.NotNil(t, sc.Verifications[0].Expected)
	assert.Equal(t, "exactly", sc.Verifications[0].Expected.Type)
	assert.Equal(t, KindNever, sc.Verifications[1].Kind)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a.yaml", "name: alpha\n")
	writeScenario(t, dir, "b.yml", "name: beta\n")
	writeScenario(t, dir, "notes.txt", "not a scenario")

	scenarios, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "alpha", scenarios[0].Name)
	assert.Equal(t, "beta", scenarios[1].Name)
}

func TestLoadMissingPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "broken.yaml", "name: [unclosed\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadNameDefaultsToFilename(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "checkout-flow.yaml", "stubs: []\n")

	scenarios, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "checkout-flow", scenarios[0].Name)
}

func TestValidateRejectsBadScenarios(t *testing.T) {
	tests := []struct {
		name string
		sc   Scenario
	}{
		{
			name: "stub without method",
			sc:   Scenario{Name: "x", Stubs: []Stub{{Path: "/a"}}},
		},
		{
			name: "verify without expected",
			sc:   Scenario{Name: "x", Verifications: []Verification{{Kind: KindVerify}}},
		},
		{
			name: "at_least without min",
			sc:   Scenario{Name: "x", Verifications: []Verification{{Kind: KindAtLeast}}},
		},
		{
			name: "sequence without patterns",
			sc:   Scenario{Name: "x", Verifications: []Verification{{Kind: KindSequence}}},
		},
		{
			name: "unknown kind",
			sc:   Scenario{Name: "x", Verifications: []Verification{{Kind: "whenever"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sc.Validate()
			require.Error(t, err)
			assert.True(t, mockerr.HasCode(err, mockerr.CodeInvalidConfig))
		})
	}
}

func TestStubConversion(t *testing.T) {
	st := Stub{
		Name:      "n",
		Method:    "GET",
		Path:      "/p",
		Status:    404,
		Body:      "missing",
		Headers:   map[string]string{"X-A": "1"},
		LatencyMs: 10,
	}
	rs := st.ToResponseStub()
	assert.Equal(t, "", rs.ID)
	assert.Equal(t, 404, rs.Status)
	assert.Equal(t, "missing", rs.Body)
}

func TestPatternAndCountConversion(t *testing.T) {
	p := Pattern{Method: "GET", Path: "/x", QueryParams: map[string]string{"q": "1"}}
	vp := p.ToPattern()
	assert.Equal(t, "GET", vp.Method)
	assert.Equal(t, "1", vp.QueryParams["q"])

	c := ExpectedCount{Type: "at_least", Value: 2}.ToCount()
	assert.Equal(t, "at_least", c.Type)
	assert.Equal(t, 2, c.Value)
}
