// Package platform defines the consumed interface of the external chat
// platform: relaying single items, best-effort notifications and text
// feedback, and the inbound event stream of content arrivals and user
// action requests. The concrete binding
// lives in the socket client; engines depend only on the narrow interfaces
// here so tests can script provider behavior.
package platform

import "context"

// RelayMode selects how RelayOneItem re-presents a message.
type RelayMode string

const (
	// ModeForward preserves origin attribution.
	ModeForward RelayMode = "forward"
	// ModeCopy re-sends the content without attribution.
	ModeCopy RelayMode = "copy"
)

// ParseRelayMode validates a mode string, defaulting to forward.
func ParseRelayMode(s string) RelayMode {
	if s == string(ModeCopy) {
		return ModeCopy
	}
	return ModeForward
}

// Arrival is one inbound content event: a message landed in a topic.
// TopicName is only set when the platform announces a previously unseen
// topic; Caption carries the free-text attached to media, when any.
type Arrival struct {
	TopicID   string
	TopicName string
	MessageID int64
	Caption   string
}

// ActionRequest is one inbound user interaction: the raw action identifier
// plus who triggered it and the chat the reply belongs in.
type ActionRequest struct {
	Actor       string
	Destination string
	Data        string
}

// Event is one inbound platform event. Exactly one field is set.
type Event struct {
	Arrival *Arrival
	Action  *ActionRequest
}

// Relayer re-presents one message from the origin chat to a destination.
// Errors are classified into the delivery taxonomy: rate-limit errors carry
// a wait duration, transient errors are retryable, permanent errors resolve
// the item to skipped.
type Relayer interface {
	RelayOneItem(ctx context.Context, originChat, destination string, messageID int64, mode RelayMode) error
}

// Notifier announces a newly discovered topic. Best-effort; failures are
// logged and ignored.
type Notifier interface {
	NotifyTopicDiscovered(ctx context.Context, topicID, name string) error
}

// Messenger sends user-facing text feedback. Best-effort; not part of the
// relay correctness contract.
type Messenger interface {
	SendText(ctx context.Context, destination, text string) (int64, error)
	EditText(ctx context.Context, destination string, messageID int64, text string) error
}

// Client is the full consumed capability of the chat platform.
type Client interface {
	Relayer
	Notifier
	Messenger

	// Events delivers inbound arrivals and action requests until ctx is
	// done.
	Events(ctx context.Context) (<-chan Event, error)

	Close() error
}
