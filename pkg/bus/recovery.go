package bus

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// recoveryAction determines how classifyError advises the caller to react.
type recoveryAction int

const (
	// noRetry — not recoverable (bad request, auth failure, deadline).
	noRetry recoveryAction = iota
	// retryNewSession — transport failure, recreate the session and retry.
	retryNewSession
)

// Backoff and timeout constants shared by every bus operation, per the
// kernel's uniform backoff policy: exponential with jitter, 700ms floor
// between retried calls to the same agent channel.
const (
	MaxRetries      = 5
	RetryFloor      = 700 * time.Millisecond
	RetryBackoffMin = 700 * time.Millisecond
	RetryBackoffMax = 4 * time.Second
	ReinitTimeout   = 10 * time.Second
)

// classifyError determines the recovery action and SendError kind for a
// bus operation failure.
func classifyError(err error) (recoveryAction, ErrorKind) {
	if err == nil {
		return noRetry, Transient
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return noRetry, Fatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return retryNewSession, Transient
		}
		return retryNewSession, Transient
	}

	if isConnectionError(err) {
		return retryNewSession, Transient
	}

	if isMCPProtocolError(err) {
		return noRetry, Fatal
	}

	return noRetry, Fatal
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused", "connection reset", "broken pipe",
		"connection closed", "no such host", "rate limit", "429",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func isMCPProtocolError(err error) bool {
	var wireErr *jsonrpc.Error
	if !errors.As(err, &wireErr) {
		return false
	}
	switch wireErr.Code {
	case jsonrpc.CodeParseError, jsonrpc.CodeInvalidRequest, jsonrpc.CodeMethodNotFound, jsonrpc.CodeInvalidParams:
		return true
	default:
		return false
	}
}
