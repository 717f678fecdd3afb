package handler

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/agentbus/pkg/store"
)

// RemoteLLM calls one of the two fixed external inference frameworks
// (Remote-LLM-A / Remote-LLM-B). Provider and valid models for each variant
// are pinned by config.FrameworkRequirement; this type only needs the
// endpoint, the chosen model, and whatever MCP tool subservers the agent
// configured for the SDK to reach for during its own tool-use loop.
type RemoteLLM struct {
	client       *httpClient
	provider     string
	model        string
	systemPrompt string
	mcpServers   []string
	logger       *slog.Logger
}

// NewRemoteLLM builds a Remote-LLM-A or Remote-LLM-B handler. endpoint and
// apiKey are read from the framework's own SDK configuration (outside the
// kernel's config schema, since it's framework-specific); provider is the
// framework's implicit provider name.
func NewRemoteLLM(endpoint, apiKey, provider, model, systemPrompt string, mcpServers []string) *RemoteLLM {
	headers := map[string]string{}
	if apiKey != "" {
		headers["Authorization"] = "Bearer " + apiKey
	}
	return &RemoteLLM{
		client:       newHTTPClient(endpoint, headers),
		provider:     provider,
		model:        model,
		systemPrompt: systemPrompt,
		mcpServers:   mcpServers,
		logger:       slog.With("handler", "remote-llm", "provider", provider),
	}
}

type remoteLLMRequest struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	System   string   `json:"system,omitempty"`
	Turns    []turn   `json:"turns"`
	Tools    []string `json:"tools,omitempty"`
}

type remoteLLMResponse struct {
	Text string `json:"text"`
}

func (h *RemoteLLM) Handle(trigger store.Message, batch []store.Message, history []store.Message) (string, bool) {
	req := remoteLLMRequest{
		Provider: h.provider,
		Model:    h.model,
		System:   h.systemPrompt,
		Turns:    buildTranscript(trigger, batch, history),
		Tools:    h.mcpServers,
	}

	var resp remoteLLMResponse
	if err := h.client.postJSON(context.Background(), req, &resp); err != nil {
		h.logger.Error("remote-llm call failed", "error", err)
		return "", false
	}
	if resp.Text == "" {
		return "", false
	}
	return resp.Text, true
}
