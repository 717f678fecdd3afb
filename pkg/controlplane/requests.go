package controlplane

import "github.com/codeready-toolchain/agentbus/pkg/config"

// StartMonitorRequest is the body of POST /monitors/start.
type StartMonitorRequest struct {
	Agent        string             `json:"agent"`
	HandlerKind  config.HandlerKind `json:"handler_kind"`
	Provider     string             `json:"provider,omitempty"`
	Model        string             `json:"model,omitempty"`
	SystemPrompt string             `json:"system_prompt,omitempty"`
}

// RuntimeIDRequest is the body of POST /monitors/stop and /monitors/kill.
type RuntimeIDRequest struct {
	RuntimeID string `json:"runtime_id"`
}
