package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/time/rate"

	"github.com/codeready-toolchain/agentbus/pkg/config"
	"github.com/codeready-toolchain/agentbus/pkg/version"
)

const (
	toolSend    = "bus_send"
	toolReceive = "bus_receive"
	toolPing    = "bus_ping"
)

// Client is the one logical MCP connection an AgentRuntime holds to the
// shared bus. It is a thin wrapper around the MCP SDK's Client/ClientSession
// pair, calling the three bus-exposed tools via CallTool. A single session
// multiplexes concurrent calls by JSON-RPC request id, so Ping never has to
// wait behind an in-flight, long-polling Receive.
type Client struct {
	agent string
	cfg   config.TransportConfig

	mu      sync.RWMutex
	session *mcpsdk.ClientSession

	// reinitMu serializes reconnect attempts so a burst of failures doesn't
	// stampede into a burst of reconnects.
	reinitMu sync.Mutex

	limiter *rate.Limiter

	logger *slog.Logger
}

// New creates a BusClient for agent, eagerly establishing the initial
// session. limiterPerMinute is the bus-wide rate-limit floor (spec.md
// default ~85 req/min).
func New(agent string, cfg config.TransportConfig, limiterPerMinute int) (*Client, error) {
	c := &Client{
		agent:   agent,
		cfg:     cfg,
		logger:  slog.With("agent", agent, "component", "bus"),
		limiter: newChannelLimiter(limiterPerMinute),
	}
	if err := c.connect(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	transport, err := createTransport(c.cfg)
	if err != nil {
		return err
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	initCtx, cancel := context.WithTimeout(ctx, ReinitTimeout)
	defer cancel()

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return fmt.Errorf("bus: connect agent %q: %w", c.agent, err)
	}

	c.mu.Lock()
	if c.session != nil {
		_ = c.session.Close()
	}
	c.session = session
	c.mu.Unlock()

	c.logger.Info("bus connected")
	return nil
}

func (c *Client) reconnect(ctx context.Context) error {
	c.reinitMu.Lock()
	defer c.reinitMu.Unlock()
	return c.connect(ctx)
}

// Reconnect forces a fresh session, tearing down any existing one first.
// Called by the runtime's heartbeat task after HeartbeatFailureThreshold
// consecutive Ping failures.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.reconnect(ctx)
}

func (c *Client) currentSession() (*mcpsdk.ClientSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, fmt.Errorf("bus: no active session for %q", c.agent)
	}
	return c.session, nil
}

// Close tears down the underlying session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

// Send publishes content as c.agent, optionally threaded under parentID.
// Fire-and-forget from the caller's perspective: failures are surfaced as
// *SendError{Kind, RetryAfter}.
func (c *Client) Send(ctx context.Context, content string, parentID string) (messageID string, err error) {
	args := map[string]any{"agent": c.agent, "content": content}
	if parentID != "" {
		args["parent_id"] = parentID
	}

	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := c.callWithRetry(ctx, toolSend, args, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

// Receive long-polls for messages directed at c.agent. timeout of zero uses
// the bus's own server-side default. Cancelling ctx returns promptly
// without consuming a message.
func (c *Client) Receive(ctx context.Context, timeout time.Duration) ([]Message, error) {
	args := map[string]any{"agent": c.agent, "wait_until_mention": true}
	if timeout > 0 {
		args["timeout_seconds"] = int(timeout.Seconds())
	}

	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.callWithRetry(ctx, toolReceive, args, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Ping is a cheap liveness probe, safe to call concurrently with an
// in-flight Receive on the same session.
func (c *Client) Ping(ctx context.Context) error {
	args := map[string]any{"agent": c.agent}
	var out struct {
		Pong bool `json:"pong"`
	}
	return c.callWithRetry(ctx, toolPing, args, &out)
}

// callWithRetry invokes tool with the kernel's uniform backoff policy:
// exponential backoff with jitter, honouring retryAfter when the bus
// reports one, up to MaxRetries attempts before surfacing Fatal.
func (c *Client) callWithRetry(ctx context.Context, tool string, args map[string]any, out any) error {
	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryAfter
			if backoff <= 0 {
				backoff = jitteredBackoff(attempt)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return &SendError{Kind: Fatal, Err: ctx.Err()}
			}
		}
		retryAfter = 0

		if err := c.limiter.Wait(ctx); err != nil {
			return &SendError{Kind: Fatal, Err: err}
		}

		result, err := c.callOnce(ctx, tool, args)
		if err == nil {
			if decodeErr := decodeResult(result, out); decodeErr != nil {
				var sendErr *SendError
				if errors.As(decodeErr, &sendErr) && sendErr.Kind == Transient {
					lastErr = decodeErr
					retryAfter = sendErr.RetryAfter
					continue
				}
				return decodeErr
			}
			return nil
		}

		lastErr = err
		action, kind := classifyError(err)
		if action == noRetry {
			return &SendError{Kind: kind, Err: err}
		}
		if action == retryNewSession {
			if rerr := c.reconnect(ctx); rerr != nil {
				lastErr = rerr
				continue
			}
		}
	}
	return &SendError{Kind: Fatal, Err: fmt.Errorf("bus: %s: gave up after %d attempts: %w", tool, MaxRetries, lastErr)}
}

func (c *Client) callOnce(ctx context.Context, tool string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}
	return session.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool, Arguments: args})
}

// toolErrorBody is the shape of an IsError tool result's JSON text, when it
// has one. A rate-limited bus_send/bus_receive/bus_ping call succeeds at
// the transport level but fails at the tool level, so this is the only
// place a retry-after hint can come from.
type toolErrorBody struct {
	Error             string  `json:"error"`
	RetryAfterSeconds float64 `json:"retry_after_seconds"`
}

func decodeResult(result *mcpsdk.CallToolResult, out any) error {
	if result == nil {
		return nil
	}
	text := extractTextContent(result)
	if result.IsError {
		if text == "" {
			text = "bus tool call failed"
		}

		kind := Fatal
		var retryAfter time.Duration
		var body toolErrorBody
		if err := json.Unmarshal([]byte(text), &body); err == nil && body.RetryAfterSeconds > 0 {
			kind = Transient
			retryAfter = time.Duration(body.RetryAfterSeconds * float64(time.Second))
		} else if isConnectionError(errors.New(text)) {
			kind = Transient
		}
		return &SendError{Kind: kind, RetryAfter: retryAfter, Err: fmt.Errorf("%s", text)}
	}
	if text == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("bus: decode tool result: %w", err)
	}
	return nil
}

// extractTextContent concatenates the TextContent parts of a tool result;
// bus tools reply with a single JSON-encoded text part.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func jitteredBackoff(attempt int) time.Duration {
	base := RetryBackoffMin << uint(attempt-1)
	if base > RetryBackoffMax {
		base = RetryBackoffMax
	}
	jitter := time.Duration(rand.Int64N(int64(RetryFloor)))
	return base + jitter
}
