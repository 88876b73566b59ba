package platform

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 method names understood by the provider bridge.
const (
	MethodRelayItem = "relay.item"
	MethodNotify    = "topic.discovered"
	MethodSendText  = "message.send"
	MethodEditText  = "message.edit"
	MethodNextEvent = "events.next"
	MethodPing      = "ping"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Provider-specific error codes, mirroring the upstream platform's failure
// modes.
const (
	// ErrCodeRateLimited asks the caller to wait; Error.RetryAfter carries
	// the wait in seconds.
	ErrCodeRateLimited = -32010
	// ErrCodeTimeout and ErrCodeNetwork are transient and safe to retry.
	ErrCodeTimeout = -32011
	ErrCodeNetwork = -32012
	// ErrCodeGone means the underlying content no longer exists.
	ErrCodeGone = -32013
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error with the provider's retry-after
// extension.
type Error struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// RelayParams are the parameters for relay.item.
type RelayParams struct {
	OriginChat  string `json:"origin_chat"`
	Destination string `json:"destination"`
	MessageID   int64  `json:"message_id"`
	Mode        string `json:"mode"`
}

// NotifyParams are the parameters for topic.discovered.
type NotifyParams struct {
	TopicID string `json:"topic_id"`
	Name    string `json:"name"`
}

// SendTextParams are the parameters for message.send.
type SendTextParams struct {
	Destination string `json:"destination"`
	Text        string `json:"text"`
}

// SendTextResult is the result of message.send.
type SendTextResult struct {
	MessageID int64 `json:"message_id"`
}

// EditTextParams are the parameters for message.edit.
type EditTextParams struct {
	Destination string `json:"destination"`
	MessageID   int64  `json:"message_id"`
	Text        string `json:"text"`
}

// EventResult is the result of events.next: the next arrival or action, or
// neither when the long poll timed out.
type EventResult struct {
	Event  *ArrivalEvent `json:"event,omitempty"`
	Action *ActionEvent  `json:"action,omitempty"`
}

// ArrivalEvent is the wire form of one content arrival.
type ArrivalEvent struct {
	TopicID   string `json:"topic_id"`
	TopicName string `json:"topic_name,omitempty"`
	MessageID int64  `json:"message_id"`
	Caption   string `json:"caption,omitempty"`
}

// ActionEvent is the wire form of one user action request.
type ActionEvent struct {
	Actor       string `json:"actor"`
	Destination string `json:"destination"`
	Data        string `json:"data"`
}
