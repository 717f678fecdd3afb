package handler

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/agentbus/pkg/store"
)

// LocalLLM calls a local inference endpoint (e.g. an Ollama-style server)
// with the agent's system prompt and rendered transcript.
type LocalLLM struct {
	client       *httpClient
	model        string
	systemPrompt string
	logger       *slog.Logger
}

// NewLocalLLM builds a Local-LLM handler pointed at endpoint.
func NewLocalLLM(endpoint, model, systemPrompt string) *LocalLLM {
	return &LocalLLM{
		client:       newHTTPClient(endpoint, nil),
		model:        model,
		systemPrompt: systemPrompt,
		logger:       slog.With("handler", "local-llm"),
	}
}

type localLLMRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localLLMResponse struct {
	Response string `json:"response"`
}

func (h *LocalLLM) Handle(trigger store.Message, batch []store.Message, history []store.Message) (string, bool) {
	turns := buildTranscript(trigger, batch, history)
	req := localLLMRequest{Model: h.model, Prompt: renderPrompt(h.systemPrompt, turns)}

	var resp localLLMResponse
	if err := h.client.postJSON(context.Background(), req, &resp); err != nil {
		h.logger.Error("local-llm call failed", "error", err)
		return "", false
	}
	if resp.Response == "" {
		return "", false
	}
	return resp.Response, true
}
