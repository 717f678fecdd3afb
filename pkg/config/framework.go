package config

import "fmt"

// FrameworkRequirement describes one handler kind's configuration
// requirements: whether a provider/model must be supplied, and (for kinds
// with a fixed provider) what that provider and its valid models are. It is
// the single source of truth shared by the Supervisor (validation) and the
// ControlPlane (UI hints), matching the declarative table the kernel
// enumerates.
type FrameworkRequirement struct {
	Kind             HandlerKind
	NeedsProvider    bool
	NeedsModel       bool
	ImplicitProvider string   // set when the provider is fixed rather than operator-chosen
	ValidModels      []string // empty means "not statically enumerable" (e.g. depends on provider)
}

// frameworkRegistry is the static table from spec.md §4.4. Local-LLM's
// valid models are enumerated at agent-start time from the local inference
// endpoint, so ValidModels is intentionally empty here.
var frameworkRegistry = map[HandlerKind]FrameworkRequirement{
	HandlerKindEcho: {
		Kind: HandlerKindEcho,
	},
	HandlerKindLocalLLM: {
		Kind:             HandlerKindLocalLLM,
		NeedsModel:       true,
		ImplicitProvider: "local",
	},
	HandlerKindRemoteLLMA: {
		Kind:             HandlerKindRemoteLLMA,
		NeedsModel:       true,
		ImplicitProvider: "fixed-a",
		ValidModels:      []string{"remote-a-standard", "remote-a-fast"},
	},
	HandlerKindRemoteLLMB: {
		Kind:             HandlerKindRemoteLLMB,
		NeedsModel:       true,
		ImplicitProvider: "fixed-b",
		ValidModels:      []string{"remote-b-standard", "remote-b-fast"},
	},
	HandlerKindGraphLLM: {
		Kind:          HandlerKindGraphLLM,
		NeedsProvider: true,
		NeedsModel:    true,
	},
}

// FrameworkRequirementFor looks up the declarative requirement for a
// handler kind.
func FrameworkRequirementFor(kind HandlerKind) (FrameworkRequirement, error) {
	req, ok := frameworkRegistry[kind]
	if !ok {
		return FrameworkRequirement{}, fmt.Errorf("%w: %s", ErrUnknownHandlerKind, kind)
	}
	return req, nil
}

// AllFrameworkRequirements returns every registry entry, for ControlPlane
// UI hints.
func AllFrameworkRequirements() []FrameworkRequirement {
	out := make([]FrameworkRequirement, 0, len(frameworkRegistry))
	for _, req := range frameworkRegistry {
		out = append(out, req)
	}
	return out
}

// ValidateAgentFramework checks identity's handler_kind/provider/model
// against the framework registry.
func ValidateAgentFramework(identity *AgentIdentity) error {
	req, err := FrameworkRequirementFor(identity.HandlerKind)
	if err != nil {
		return NewValidationError("agent", identity.Name, "handler_kind", err)
	}
	if req.NeedsProvider && identity.Provider == "" {
		return NewValidationError("agent", identity.Name, "provider", ErrMissingRequiredField)
	}
	if req.NeedsModel && identity.Model == "" {
		return NewValidationError("agent", identity.Name, "model", ErrMissingRequiredField)
	}
	if len(req.ValidModels) > 0 && identity.Model != "" {
		valid := false
		for _, m := range req.ValidModels {
			if m == identity.Model {
				valid = true
				break
			}
		}
		if !valid {
			return NewValidationError("agent", identity.Name, "model",
				fmt.Errorf("%q is not a valid model for %s", identity.Model, identity.HandlerKind))
		}
	}
	return nil
}
