package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validYAML = `
data_dir: /tmp/agentbus-data
log_dir: /tmp/agentbus-logs
bus:
  transport:
    type: http
    url: http://localhost:9000/mcp
agents:
  alpha:
    handler_kind: echo
  beta:
    handler_kind: local-llm
    model: small
deployment_groups:
  everyone:
    members:
      - agent: alpha
      - agent: beta
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agentbus.yaml"), []byte(contents), 0o644))
	return dir
}

func TestInitializeLoadsValidConfig(t *testing.T) {
	dir := writeConfig(t, validYAML)
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.AgentRegistry.Len())
	require.Equal(t, 1, len(cfg.DeploymentRegistry.GetAll()))

	alpha, err := cfg.AgentRegistry.Get("alpha")
	require.NoError(t, err)
	require.Equal(t, HandlerKindEcho, alpha.HandlerKind)
}

func TestInitializeRejectsMissingModel(t *testing.T) {
	dir := writeConfig(t, `
bus:
  transport:
    type: http
    url: http://localhost:9000/mcp
agents:
  beta:
    handler_kind: local-llm
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestInitializeRejectsUnknownDeploymentMember(t *testing.T) {
	dir := writeConfig(t, `
bus:
  transport:
    type: http
    url: http://localhost:9000/mcp
deployment_groups:
  everyone:
    members:
      - agent: ghost
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestExpandEnvSubstitutesShellStyleVars(t *testing.T) {
	t.Setenv("AGENTBUS_TEST_TOKEN", "secret-value")
	out := ExpandEnv([]byte(`token: ${AGENTBUS_TEST_TOKEN}`))
	require.Contains(t, string(out), "secret-value")
}

func TestValidateAgentFrameworkRejectsBadModel(t *testing.T) {
	err := ValidateAgentFramework(&AgentIdentity{
		Name:        "r",
		HandlerKind: HandlerKindRemoteLLMA,
		Model:       "not-a-real-model",
	})
	require.Error(t, err)
}

func TestValidateAgentFrameworkAcceptsEcho(t *testing.T) {
	err := ValidateAgentFramework(&AgentIdentity{Name: "e", HandlerKind: HandlerKindEcho})
	require.NoError(t, err)
}
