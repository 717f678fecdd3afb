// Package config loads and validates agentbus's YAML configuration: the
// agent registry, deployment groups, bus/runtime tunables, and the
// declarative framework registry used to validate handler wiring.
package config

// TransportType selects how BusClient and MCP tool subservers are reached.
type TransportType string

const (
	// TransportTypeStdio launches a subprocess and speaks MCP over its
	// stdin/stdout.
	TransportTypeStdio TransportType = "stdio"
	// TransportTypeHTTP speaks the MCP streamable-HTTP transport.
	TransportTypeHTTP TransportType = "http"
	// TransportTypeSSE speaks the MCP Server-Sent-Events transport.
	TransportTypeSSE TransportType = "sse"
)

// IsValid reports whether t is one of the supported transport types.
func (t TransportType) IsValid() bool {
	return t == TransportTypeStdio || t == TransportTypeHTTP || t == TransportTypeSSE
}

// HandlerKind enumerates the closed set of handler variants the kernel
// knows about. New handlers require a framework registry entry and an
// implementation registered with pkg/handler; never runtime reflection.
type HandlerKind string

const (
	HandlerKindEcho       HandlerKind = "echo"
	HandlerKindLocalLLM   HandlerKind = "local-llm"
	HandlerKindRemoteLLMA HandlerKind = "remote-llm-a"
	HandlerKindRemoteLLMB HandlerKind = "remote-llm-b"
	HandlerKindGraphLLM   HandlerKind = "graph-llm"
)

// IsValid reports whether k is a known handler kind.
func (k HandlerKind) IsValid() bool {
	switch k {
	case HandlerKindEcho, HandlerKindLocalLLM, HandlerKindRemoteLLMA, HandlerKindRemoteLLMB, HandlerKindGraphLLM:
		return true
	default:
		return false
	}
}
