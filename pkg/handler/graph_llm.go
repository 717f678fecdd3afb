package handler

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/agentbus/pkg/store"
)

// GraphLLM calls an orchestration-graph inference backend (e.g. a
// multi-step agent graph) where both provider and model are operator
// choices, unlike the pinned Remote-LLM frameworks.
type GraphLLM struct {
	client       *httpClient
	provider     string
	model        string
	systemPrompt string
	logger       *slog.Logger
}

// NewGraphLLM builds a Graph-LLM handler.
func NewGraphLLM(endpoint, provider, model, systemPrompt string) *GraphLLM {
	return &GraphLLM{
		client:       newHTTPClient(endpoint, nil),
		provider:     provider,
		model:        model,
		systemPrompt: systemPrompt,
		logger:       slog.With("handler", "graph-llm", "provider", provider, "model", model),
	}
}

type graphLLMRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	System   string `json:"system,omitempty"`
	Turns    []turn `json:"turns"`
}

type graphLLMResponse struct {
	Output string `json:"output"`
}

func (h *GraphLLM) Handle(trigger store.Message, batch []store.Message, history []store.Message) (string, bool) {
	req := graphLLMRequest{
		Provider: h.provider,
		Model:    h.model,
		System:   h.systemPrompt,
		Turns:    buildTranscript(trigger, batch, history),
	}

	var resp graphLLMResponse
	if err := h.client.postJSON(context.Background(), req, &resp); err != nil {
		h.logger.Error("graph-llm call failed", "error", err)
		return "", false
	}
	if resp.Output == "" {
		return "", false
	}
	return resp.Output, true
}
