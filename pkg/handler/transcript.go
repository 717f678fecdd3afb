package handler

import (
	"strings"

	"github.com/codeready-toolchain/agentbus/pkg/store"
)

// turn is the wire shape every inference backend here receives: sender plus
// text, no kernel internals (spec.md §4.3.5 "pure data").
type turn struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// buildTranscript renders history oldest-first followed by the batch and
// the trigger, the conversational context every LLM-backed handler sends
// upstream.
func buildTranscript(trigger store.Message, batch, history []store.Message) []turn {
	turns := make([]turn, 0, len(history)+len(batch)+1)
	for i := len(history) - 1; i >= 0; i-- {
		turns = append(turns, turn{Sender: history[i].Sender, Content: history[i].Content})
	}
	for _, m := range batch {
		turns = append(turns, turn{Sender: m.Sender, Content: m.Content})
	}
	turns = append(turns, turn{Sender: trigger.Sender, Content: trigger.Content})
	return turns
}

// renderPrompt flattens a transcript into a single text prompt for
// backends that don't accept structured turns.
func renderPrompt(systemPrompt string, turns []turn) string {
	var b strings.Builder
	if systemPrompt != "" {
		b.WriteString(systemPrompt)
		b.WriteString("\n\n")
	}
	for _, t := range turns {
		b.WriteString(t.Sender)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}
