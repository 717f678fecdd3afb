package controlplane

import (
	"time"

	"github.com/codeready-toolchain/agentbus/pkg/config"
	"github.com/codeready-toolchain/agentbus/pkg/supervisor"
)

// StartMonitorResponse is returned by POST /monitors/start.
type StartMonitorResponse struct {
	RuntimeID string `json:"runtime_id"`
}

// OKResponse is returned by operations with no payload beyond success.
type OKResponse struct {
	OK bool `json:"ok"`
}

// KillSwitchStatusResponse is returned by GET /kill-switch/status.
type KillSwitchStatusResponse struct {
	Active bool `json:"active"`
}

// MonitorSnapshot is one entry in the GET /monitors fleet snapshot.
type MonitorSnapshot struct {
	Agent             string             `json:"agent"`
	RuntimeID         string             `json:"runtime_id"`
	HandlerKind       config.HandlerKind `json:"handler_kind"`
	Provider          string             `json:"provider,omitempty"`
	Model             string             `json:"model,omitempty"`
	Status            string             `json:"status"`
	StartedAt         time.Time          `json:"started_at"`
	DeploymentGroupID string             `json:"deployment_group_id,omitempty"`
	// ExitCode is nil until the runtime has stopped once; see
	// supervisor.Exit{Normal,Cancelled,Crashed}.
	ExitCode *int `json:"exit_code,omitempty"`
}

func snapshotFrom(r *supervisor.AgentLifecycleRecord) MonitorSnapshot {
	return MonitorSnapshot{
		Agent:             r.Agent,
		RuntimeID:         r.RuntimeID,
		HandlerKind:       r.HandlerKind,
		Provider:          r.Provider,
		Model:             r.Model,
		Status:            string(r.Status),
		StartedAt:         r.StartedAt,
		DeploymentGroupID: r.DeploymentGroupID,
		ExitCode:          r.ExitCode,
	}
}

// GroupOpResponse is returned by deployment group start/stop, one entry per
// member with its error message (empty on success).
type GroupOpResponse struct {
	Results map[string]string `json:"results"`
}

func groupOpResponse(results map[string]error) GroupOpResponse {
	out := make(map[string]string, len(results))
	for agent, err := range results {
		if err != nil {
			out[agent] = err.Error()
		} else {
			out[agent] = ""
		}
	}
	return GroupOpResponse{Results: out}
}
