package handler

import (
	"fmt"

	"github.com/codeready-toolchain/agentbus/pkg/config"
	"github.com/codeready-toolchain/agentbus/pkg/runtime"
)

// Build constructs the concrete Handler for identity, validating it against
// the declarative framework requirement table first. Endpoint/API-key
// configuration for LLM-backed kinds is handler-specific and opaque to the
// kernel, so it is read out of identity.Permissions rather than the
// validated config schema.
func Build(identity *config.AgentIdentity) (runtime.Handler, error) {
	if err := config.ValidateAgentFramework(identity); err != nil {
		return nil, err
	}

	switch identity.HandlerKind {
	case config.HandlerKindEcho:
		return Echo{}, nil

	case config.HandlerKindLocalLLM:
		endpoint, err := stringPermission(identity, "endpoint")
		if err != nil {
			return nil, err
		}
		return NewLocalLLM(endpoint, identity.Model, identity.SystemPrompt), nil

	case config.HandlerKindRemoteLLMA, config.HandlerKindRemoteLLMB:
		endpoint, err := stringPermission(identity, "endpoint")
		if err != nil {
			return nil, err
		}
		apiKey, _ := stringPermission(identity, "api_key")
		req, err := config.FrameworkRequirementFor(identity.HandlerKind)
		if err != nil {
			return nil, err
		}
		return NewRemoteLLM(endpoint, apiKey, req.ImplicitProvider, identity.Model, identity.SystemPrompt, identity.MCPServers), nil

	case config.HandlerKindGraphLLM:
		endpoint, err := stringPermission(identity, "endpoint")
		if err != nil {
			return nil, err
		}
		return NewGraphLLM(endpoint, identity.Provider, identity.Model, identity.SystemPrompt), nil

	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownHandlerKind, identity.HandlerKind)
	}
}

func stringPermission(identity *config.AgentIdentity, key string) (string, error) {
	raw, ok := identity.Permissions[key]
	if !ok {
		return "", fmt.Errorf("handler: agent %q: missing permissions.%s for handler kind %s",
			identity.Name, key, identity.HandlerKind)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("handler: agent %q: permissions.%s must be a string", identity.Name, key)
	}
	return s, nil
}
