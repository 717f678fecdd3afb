package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantAction recoveryAction
		wantKind   ErrorKind
	}{
		{"context canceled", context.Canceled, noRetry, Fatal},
		{"context deadline exceeded", context.DeadlineExceeded, noRetry, Fatal},
		{"io.EOF", io.EOF, retryNewSession, Transient},
		{"io.ErrUnexpectedEOF", io.ErrUnexpectedEOF, retryNewSession, Transient},
		{"connection refused", errors.New("dial tcp: connection refused"), retryNewSession, Transient},
		{"connection reset", errors.New("read: connection reset by peer"), retryNewSession, Transient},
		{"rate limited", errors.New("429 too many requests: rate limit exceeded"), retryNewSession, Transient},
		{"net.ErrClosed", net.ErrClosed, retryNewSession, Transient},
		{"wrapped net.ErrClosed", fmt.Errorf("op failed: %w", net.ErrClosed), retryNewSession, Transient},
		{"mcp method not found", &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "nope"}, noRetry, Fatal},
		{"mcp invalid params", &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: "nope"}, noRetry, Fatal},
		{"unknown error", errors.New("something unexpected"), noRetry, Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, kind := classifyError(tt.err)
			assert.Equal(t, tt.wantAction, action)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

type mockNetError struct {
	msg     string
	timeout bool
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return false }

var _ net.Error = (*mockNetError)(nil)

func TestClassifyErrorNetTimeoutIsTransient(t *testing.T) {
	action, kind := classifyError(&mockNetError{msg: "i/o timeout", timeout: true})
	assert.Equal(t, retryNewSession, action)
	assert.Equal(t, Transient, kind)
}
