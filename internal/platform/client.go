package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/ecervera/temario/internal/errors"
)

// SocketClient talks JSON-RPC over a unix socket to the provider bridge
// process that owns the actual chat-platform session.
type SocketClient struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
	log        *slog.Logger
	closed     atomic.Bool
}

var _ Client = (*SocketClient)(nil)

// NewSocketClient creates a client for the bridge at socketPath.
func NewSocketClient(socketPath string, timeout time.Duration, log *slog.Logger) *SocketClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &SocketClient{socketPath: socketPath, timeout: timeout, log: log}
}

// RelayOneItem re-presents one message to the destination, mapping provider
// error codes onto the delivery taxonomy.
func (c *SocketClient) RelayOneItem(ctx context.Context, originChat, destination string, messageID int64, mode RelayMode) error {
	_, err := c.call(ctx, MethodRelayItem, RelayParams{
		OriginChat:  originChat,
		Destination: destination,
		MessageID:   messageID,
		Mode:        string(mode),
	})
	return err
}

// NotifyTopicDiscovered announces a new topic. Best-effort.
func (c *SocketClient) NotifyTopicDiscovered(ctx context.Context, topicID, name string) error {
	_, err := c.call(ctx, MethodNotify, NotifyParams{TopicID: topicID, Name: name})
	return err
}

// SendText sends user-facing text and returns the sent message id.
func (c *SocketClient) SendText(ctx context.Context, destination, text string) (int64, error) {
	raw, err := c.call(ctx, MethodSendText, SendTextParams{Destination: destination, Text: text})
	if err != nil {
		return 0, err
	}
	var res SendTextResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, errors.Transient(fmt.Errorf("decoding send result: %w", err))
	}
	return res.MessageID, nil
}

// EditText replaces the text of a previously sent message.
func (c *SocketClient) EditText(ctx context.Context, destination string, messageID int64, text string) error {
	_, err := c.call(ctx, MethodEditText, EditTextParams{
		Destination: destination,
		MessageID:   messageID,
		Text:        text,
	})
	return err
}

// Events long-polls events.next and delivers arrivals and action requests
// until ctx is done. Transient poll failures back off briefly and keep
// polling.
func (c *SocketClient) Events(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil || c.closed.Load() {
				return
			}
			raw, err := c.call(ctx, MethodNextEvent, nil)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.Warn("event poll failed", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(2 * time.Second):
				}
				continue
			}
			var res EventResult
			if err := json.Unmarshal(raw, &res); err != nil {
				c.log.Warn("event malformed", "error", err)
				continue
			}
			var ev Event
			switch {
			case res.Event != nil:
				ev.Arrival = &Arrival{
					TopicID:   res.Event.TopicID,
					TopicName: res.Event.TopicName,
					MessageID: res.Event.MessageID,
					Caption:   res.Event.Caption,
				}
			case res.Action != nil:
				ev.Action = &ActionRequest{
					Actor:       res.Action.Actor,
					Destination: res.Action.Destination,
					Data:        res.Action.Data,
				}
			default:
				continue // long poll expired without an event
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close marks the client closed; in-flight calls finish on their own
// deadlines.
func (c *SocketClient) Close() error {
	c.closed.Store(true)
	return nil
}

// call performs one request/response exchange on a fresh connection.
func (c *SocketClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, errors.Transient(fmt.Errorf("connecting to provider bridge: %w", err))
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.Transient(fmt.Errorf("setting deadline: %w", err))
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      fmt.Sprintf("%d", c.requestID.Add(1)),
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, errors.Transient(fmt.Errorf("sending request: %w", err))
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, errors.Transient(fmt.Errorf("reading response: %w", err))
	}
	if resp.Error != nil {
		return nil, classifyProviderError(resp.Error)
	}
	return resp.Result, nil
}

// classifyProviderError maps a provider error onto the delivery taxonomy.
// Unknown codes are treated as transient: the reference behavior retries
// anything it cannot name.
func classifyProviderError(pe *Error) error {
	switch pe.Code {
	case ErrCodeRateLimited:
		return errors.RateLimited(time.Duration(pe.RetryAfter) * time.Second)
	case ErrCodeGone:
		return errors.Permanent(pe)
	case ErrCodeTimeout, ErrCodeNetwork:
		return errors.Transient(pe)
	case ErrCodeInvalidParams, ErrCodeInvalidRequest, ErrCodeMethodNotFound:
		return errors.Permanent(pe)
	default:
		return errors.Transient(pe)
	}
}
