package config

import (
	"fmt"
	"sync"
)

// AgentIdentity is the static configuration for one agent: its bus
// identity, the MCP tool subservers its handler may use, and its chosen
// handler kind. Loaded once at agent start; reload requires a restart.
type AgentIdentity struct {
	Name string `yaml:"name" validate:"required"`

	// MCPServers is the list of tool-provider subserver names (looked up in
	// the agent's own handler config) the handler is allowed to invoke.
	MCPServers []string `yaml:"mcp_servers,omitempty"`

	HandlerKind  HandlerKind `yaml:"handler_kind" validate:"required"`
	Provider     string      `yaml:"provider,omitempty"`
	Model        string      `yaml:"model,omitempty"`
	SystemPrompt string      `yaml:"system_prompt,omitempty"`

	// Environment tags this agent for Supervisor's environment-scoped bulk
	// operations (e.g. POST /agents/reset?environment=).
	Environment string `yaml:"environment,omitempty"`

	// Permissions is handler-specific and opaque to the kernel.
	Permissions map[string]any `yaml:"permissions,omitempty"`
}

// AgentRegistry stores agent identities in memory with thread-safe access.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*AgentIdentity
}

// NewAgentRegistry builds a registry from a name->identity map, taking a
// defensive copy so later mutation of the input doesn't leak through.
func NewAgentRegistry(agents map[string]*AgentIdentity) *AgentRegistry {
	copied := make(map[string]*AgentIdentity, len(agents))
	for k, v := range agents {
		copied[k] = v
	}
	return &AgentRegistry{agents: copied}
}

// Get retrieves an agent identity by name.
func (r *AgentRegistry) Get(name string) (*AgentIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return a, nil
}

// GetAll returns a defensive copy of every registered agent identity.
func (r *AgentRegistry) GetAll() map[string]*AgentIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*AgentIdentity, len(r.agents))
	for k, v := range r.agents {
		out[k] = v
	}
	return out
}

// ByEnvironment returns every agent identity tagged with the given
// environment. An empty environment matches every agent.
func (r *AgentRegistry) ByEnvironment(env string) []*AgentIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*AgentIdentity
	for _, a := range r.agents {
		if env == "" || a.Environment == env {
			out = append(out, a)
		}
	}
	return out
}

// Has reports whether name is registered.
func (r *AgentRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[name]
	return ok
}

// Len returns the number of registered agents.
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
