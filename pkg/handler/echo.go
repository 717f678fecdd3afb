package handler

import "github.com/codeready-toolchain/agentbus/pkg/store"

// Echo returns trigger.content verbatim. Used for wiring tests and as the
// default for agents with no real inference backend configured.
type Echo struct{}

func (Echo) Handle(trigger store.Message, _ []store.Message, _ []store.Message) (string, bool) {
	return trigger.Content, true
}
