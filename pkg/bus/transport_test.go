package bus

import (
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbus/pkg/config"
)

func TestCreateTransportStdio(t *testing.T) {
	cfg := config.TransportConfig{
		Type:    config.TransportTypeStdio,
		Command: "agentbus-bridge",
		Args:    []string{"--channel", "alpha"},
		Env:     map[string]string{"BUS_TOKEN": "secret"},
	}

	transport, err := createTransport(cfg)
	require.NoError(t, err)

	cmdTransport, ok := transport.(*mcpsdk.CommandTransport)
	require.True(t, ok)
	assert.Contains(t, cmdTransport.Command.Path, "agentbus-bridge")
	assert.Contains(t, cmdTransport.Command.Args, "--channel")

	found := false
	for _, e := range cmdTransport.Command.Env {
		if e == "BUS_TOKEN=secret" {
			found = true
		}
	}
	assert.True(t, found, "expected BUS_TOKEN env override")
}

func TestCreateTransportStdioMissingCommand(t *testing.T) {
	_, err := createTransport(config.TransportConfig{Type: config.TransportTypeStdio})
	assert.ErrorContains(t, err, "requires command")
}

func TestCreateTransportHTTP(t *testing.T) {
	cfg := config.TransportConfig{Type: config.TransportTypeHTTP, URL: "https://bus.example.com/mcp"}
	transport, err := createTransport(cfg)
	require.NoError(t, err)

	httpTransport, ok := transport.(*mcpsdk.StreamableClientTransport)
	require.True(t, ok)
	assert.Equal(t, "https://bus.example.com/mcp", httpTransport.Endpoint)
	assert.Nil(t, httpTransport.HTTPClient)
}

func TestCreateTransportHTTPWithBearerToken(t *testing.T) {
	cfg := config.TransportConfig{
		Type:        config.TransportTypeHTTP,
		URL:         "https://bus.example.com/mcp",
		BearerToken: "tok-123",
		Timeout:     15,
	}
	transport, err := createTransport(cfg)
	require.NoError(t, err)

	httpTransport, ok := transport.(*mcpsdk.StreamableClientTransport)
	require.True(t, ok)
	require.NotNil(t, httpTransport.HTTPClient)
}

func TestCreateTransportHTTPMissingURL(t *testing.T) {
	_, err := createTransport(config.TransportConfig{Type: config.TransportTypeHTTP})
	assert.ErrorContains(t, err, "requires url")
}

func TestCreateTransportSSE(t *testing.T) {
	cfg := config.TransportConfig{Type: config.TransportTypeSSE, URL: "https://bus.example.com/sse"}
	transport, err := createTransport(cfg)
	require.NoError(t, err)

	sseTransport, ok := transport.(*mcpsdk.SSEClientTransport)
	require.True(t, ok)
	assert.Equal(t, "https://bus.example.com/sse", sseTransport.Endpoint)
}

func TestCreateTransportUnknownType(t *testing.T) {
	_, err := createTransport(config.TransportConfig{Type: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported transport type")
}
