package platform

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecervera/temario/internal/errors"
)

// fakeBridge answers one JSON-RPC request per connection with a scripted
// response.
type fakeBridge struct {
	listener net.Listener
	handler  func(req Request) Response
}

func newFakeBridge(t *testing.T, handler func(req Request) Response) *fakeBridge {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "bridge.sock")
	ln, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	b := &fakeBridge{listener: ln, handler: handler}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				var req Request
				if err := json.NewDecoder(conn).Decode(&req); err != nil {
					return
				}
				resp := b.handler(req)
				resp.JSONRPC = "2.0"
				resp.ID = req.ID
				_ = json.NewEncoder(conn).Encode(resp)
			}(conn)
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return b
}

func (b *fakeBridge) path() string {
	return b.listener.Addr().String()
}

func successResult(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestSocketClient_RelaySuccess(t *testing.T) {
	var gotParams RelayParams
	bridge := newFakeBridge(t, func(req Request) Response {
		raw, _ := json.Marshal(req.Params)
		_ = json.Unmarshal(raw, &gotParams)
		return Response{Result: json.RawMessage(`{}`)}
	})

	c := NewSocketClient(bridge.path(), time.Second, nil)
	err := c.RelayOneItem(context.Background(), "-100555", "42", 101, ModeForward)

	require.NoError(t, err)
	assert.Equal(t, "-100555", gotParams.OriginChat)
	assert.Equal(t, "42", gotParams.Destination)
	assert.Equal(t, int64(101), gotParams.MessageID)
	assert.Equal(t, "forward", gotParams.Mode)
}

func TestSocketClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		respErr *Error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "rate limited carries wait",
			respErr: &Error{Code: ErrCodeRateLimited, Message: "slow down", RetryAfter: 5},
			check: func(t *testing.T, err error) {
				require.True(t, errors.IsRateLimited(err))
				wait, ok := errors.WaitDuration(err)
				require.True(t, ok)
				assert.Equal(t, 5*time.Second, wait)
			},
		},
		{
			name:    "timeout is transient",
			respErr: &Error{Code: ErrCodeTimeout, Message: "timed out"},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsTransient(err))
			},
		},
		{
			name:    "network is transient",
			respErr: &Error{Code: ErrCodeNetwork, Message: "connection reset"},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsTransient(err))
			},
		},
		{
			name:    "gone is permanent",
			respErr: &Error{Code: ErrCodeGone, Message: "message deleted"},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsPermanent(err))
			},
		},
		{
			name:    "unknown code is transient",
			respErr: &Error{Code: -39999, Message: "???"},
			check: func(t *testing.T, err error) {
				assert.True(t, errors.IsTransient(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := newFakeBridge(t, func(Request) Response {
				return Response{Error: tt.respErr}
			})
			c := NewSocketClient(bridge.path(), time.Second, nil)

			err := c.RelayOneItem(context.Background(), "o", "d", 1, ModeCopy)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestSocketClient_SendText(t *testing.T) {
	bridge := newFakeBridge(t, func(req Request) Response {
		if req.Method != MethodSendText {
			return Response{Error: &Error{Code: ErrCodeMethodNotFound, Message: req.Method}}
		}
		return Response{Result: successResult(t, SendTextResult{MessageID: 77})}
	})
	c := NewSocketClient(bridge.path(), time.Second, nil)

	id, err := c.SendText(context.Background(), "42", "hola")
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
}

func TestSocketClient_UnreachableBridgeIsTransient(t *testing.T) {
	c := NewSocketClient(filepath.Join(t.TempDir(), "nope.sock"), 100*time.Millisecond, nil)

	err := c.RelayOneItem(context.Background(), "o", "d", 1, ModeForward)
	assert.True(t, errors.IsTransient(err))
}

func TestSocketClient_Events(t *testing.T) {
	queue := make(chan EventResult, 3)
	queue <- EventResult{Event: &ArrivalEvent{TopicID: "t1", TopicName: "Nuevo", MessageID: 9, Caption: "hola"}}
	queue <- EventResult{Action: &ActionEvent{Actor: "user7", Destination: "chat1", Data: "t:t1"}}

	bridge := newFakeBridge(t, func(req Request) Response {
		if req.Method != MethodNextEvent {
			return Response{Error: &Error{Code: ErrCodeMethodNotFound, Message: req.Method}}
		}
		select {
		case res := <-queue:
			return Response{Result: successResult(t, res)}
		default:
			return Response{Result: successResult(t, EventResult{})}
		}
	})
	c := NewSocketClient(bridge.path(), time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Events(ctx)
	require.NoError(t, err)

	select {
	case got := <-events:
		require.NotNil(t, got.Arrival)
		assert.Equal(t, "t1", got.Arrival.TopicID)
		assert.Equal(t, "Nuevo", got.Arrival.TopicName)
		assert.Equal(t, int64(9), got.Arrival.MessageID)
		assert.Equal(t, "hola", got.Arrival.Caption)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for arrival")
	}

	select {
	case got := <-events:
		require.NotNil(t, got.Action)
		assert.Equal(t, "user7", got.Action.Actor)
		assert.Equal(t, "chat1", got.Action.Destination)
		assert.Equal(t, "t:t1", got.Action.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action request")
	}
}

func TestParseRelayMode(t *testing.T) {
	assert.Equal(t, ModeCopy, ParseRelayMode("copy"))
	assert.Equal(t, ModeForward, ParseRelayMode("forward"))
	assert.Equal(t, ModeForward, ParseRelayMode(""))
	assert.Equal(t, ModeForward, ParseRelayMode("whatever"))
}
