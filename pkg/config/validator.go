package config

import (
	"errors"
	"fmt"
)

// Validator checks a loaded Config for internal consistency: every agent
// identity against the framework registry, and every deployment group
// member against the agent registry.
type Validator struct {
	cfg *Config
}

// NewValidator builds a Validator bound to cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every check, collecting and joining all errors found
// rather than stopping at the first one — an operator fixing a config file
// wants the whole list in one pass.
func (v *Validator) ValidateAll() error {
	var errs []error
	errs = append(errs, v.validateAgents()...)
	errs = append(errs, v.validateDeploymentGroups()...)
	errs = append(errs, v.validateTransport(v.cfg.Bus.Transport, "bus", "bus")...)
	return errors.Join(errs...)
}

func (v *Validator) validateAgents() []error {
	var errs []error
	for name, identity := range v.cfg.AgentRegistry.GetAll() {
		if identity.Name != name {
			errs = append(errs, NewValidationError("agent", name, "name",
				fmt.Errorf("registry key %q does not match identity name %q", name, identity.Name)))
		}
		if err := ValidateAgentFramework(identity); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (v *Validator) validateDeploymentGroups() []error {
	var errs []error
	for id, group := range v.cfg.DeploymentRegistry.GetAll() {
		if len(group.Members) == 0 {
			errs = append(errs, NewValidationError("deployment_group", id, "members",
				errors.New("deployment group has no members")))
			continue
		}
		for _, member := range group.Members {
			if !v.cfg.AgentRegistry.Has(member.Agent) {
				errs = append(errs, NewValidationError("deployment_group", id, "members",
					fmt.Errorf("%w: %s", ErrAgentNotFound, member.Agent)))
			}
		}
	}
	return errs
}

func (v *Validator) validateTransport(t TransportConfig, component, id string) []error {
	var errs []error
	if !t.Type.IsValid() {
		errs = append(errs, NewValidationError(component, id, "transport.type",
			fmt.Errorf("invalid transport type %q", t.Type)))
		return errs
	}
	switch t.Type {
	case TransportTypeStdio:
		if t.Command == "" {
			errs = append(errs, NewValidationError(component, id, "transport.command", ErrMissingRequiredField))
		}
	case TransportTypeHTTP, TransportTypeSSE:
		if t.URL == "" {
			errs = append(errs, NewValidationError(component, id, "transport.url", ErrMissingRequiredField))
		}
	}
	return errs
}
