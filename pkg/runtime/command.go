package runtime

import (
	"regexp"
	"strings"
)

// commands recognised inside a message body. Unknown #tokens pass through
// unchanged — only these three carry kernel meaning.
type commands struct {
	pause bool
	stop  bool
	done  bool
}

var (
	tokenPause = regexp.MustCompile(`(?:^|\s)#pause(?:\s|$)`)
	tokenStop  = regexp.MustCompile(`(?:^|\s)#stop(?:\s|$)`)
	tokenDone  = regexp.MustCompile(`(?:^|\s)#done(?:\s|$)`)
	fence      = regexp.MustCompile("(?s)```.*?```")
	mention    = regexp.MustCompile(`@\S+`)
)

// parseCommands scans body for #pause/#stop/#done tokens, ignoring anything
// inside fenced code blocks (literal text never triggers a command).
func parseCommands(body string) commands {
	literal := fence.ReplaceAllStringFunc(body, func(s string) string {
		return strings.Repeat(" ", len(s))
	})

	return commands{
		pause: tokenPause.MatchString(literal),
		stop:  tokenStop.MatchString(literal),
		done:  tokenDone.MatchString(literal),
	}
}

// stripMentions removes every @mention token from text. Used only for the
// #done case, so the outgoing response doesn't provoke further traffic.
func stripMentions(text string) string {
	return strings.TrimSpace(mention.ReplaceAllString(text, ""))
}

// stripSelfMention removes a single leading "@agent" token from text when
// the message that triggered the response was sent by the agent itself —
// otherwise the agent would perpetually re-mention itself in a loop.
func stripSelfMention(text, agent string) string {
	prefix := "@" + agent
	trimmed := strings.TrimSpace(text)
	if trimmed == prefix {
		return ""
	}
	if after, ok := strings.CutPrefix(trimmed, prefix+" "); ok {
		return strings.TrimSpace(after)
	}
	return text
}
