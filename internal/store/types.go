// Package store provides the persistence layer for topic records. Topics are
// stored as whole documents keyed by the platform-assigned topic id; every
// mutation is a read-modify-write executed under a per-topic lock, so
// concurrent arrivals to the same topic never lose an appended entry.
package store

import (
	"context"
	"time"
)

// Kind classifies a topic.
type Kind string

const (
	// KindGeneric is an ordinary content topic.
	KindGeneric Kind = "generic"
	// KindCatalogedMedia is the single topic whose entries are additionally
	// indexed by free-text title for search. At most one topic may carry
	// this kind at a time.
	KindCatalogedMedia Kind = "cataloged_media"
)

// State keys for the store's key-value state table.
const (
	// StateKeyOriginChat stores the chat id messages are relayed from.
	StateKeyOriginChat = "origin_chat"
	// StateKeyRelayMode stores the relay mode ("forward" or "copy").
	StateKeyRelayMode = "relay_mode"
)

// Message is one content item belonging to a topic, identified by a
// platform-assigned id. Messages are created once at arrival and never
// mutated.
type Message struct {
	ID int64 `json:"id"`
}

// TitleEntry maps a message id to the free-text caption observed at arrival.
// Only the cataloged-media topic maintains a title index.
type TitleEntry struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Topic is a named grouping of content items. The store exclusively owns
// topic records; other components read snapshots and write complete records
// back through Mutate.
type Topic struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"display_name"`
	CreatedAt   time.Time    `json:"created_at"`
	Kind        Kind         `json:"kind"`
	Muted       bool         `json:"muted"`
	Entries     []Message    `json:"entries"`
	Titles      []TitleEntry `json:"titles,omitempty"`
}

// HasEntry reports whether the topic already holds the given message id.
// Arrival is idempotent per id; Entries never contains duplicates.
func (t *Topic) HasEntry(id int64) bool {
	for _, m := range t.Entries {
		if m.ID == id {
			return true
		}
	}
	return false
}

// AppendEntry appends a message in arrival order, skipping duplicates.
// Returns true if the entry was added.
func (t *Topic) AppendEntry(id int64) bool {
	if t.HasEntry(id) {
		return false
	}
	t.Entries = append(t.Entries, Message{ID: id})
	return true
}

// AppendTitle records a title-index entry for a message id.
func (t *Topic) AppendTitle(id int64, title string) {
	t.Titles = append(t.Titles, TitleEntry{ID: id, Title: title})
}

// Clone returns a deep copy safe to hand out as a snapshot.
func (t *Topic) Clone() *Topic {
	c := *t
	c.Entries = make([]Message, len(t.Entries))
	copy(c.Entries, t.Entries)
	if t.Titles != nil {
		c.Titles = make([]TitleEntry, len(t.Titles))
		copy(c.Titles, t.Titles)
	}
	return &c
}

// MutateFunc transforms a topic record inside a read-modify-write section.
// current is nil when the topic does not exist yet; the returned topic is
// persisted as one atomic unit. Returning an error aborts without writing.
type MutateFunc func(current *Topic) (*Topic, error)

// TopicStore is the abstract persistent mapping from topic id to topic
// record. Implementations must guarantee per-topic atomicity for Mutate.
type TopicStore interface {
	// Get returns a snapshot of one topic. Fails with a not-found error
	// when the id is unknown.
	Get(ctx context.Context, id string) (*Topic, error)

	// All returns snapshots of every topic, in unspecified order.
	All(ctx context.Context) ([]*Topic, error)

	// Mutate runs fn inside the topic's read-modify-write section and
	// persists the returned record atomically.
	Mutate(ctx context.Context, id string, fn MutateFunc) error

	// Delete removes one topic and all of its entries.
	Delete(ctx context.Context, id string) error

	// Reset drops every topic and all state.
	Reset(ctx context.Context) error

	// GetState reads a value from the key-value state table.
	// Returns empty string when the key is unset.
	GetState(ctx context.Context, key string) (string, error)

	// SetState writes a value to the key-value state table.
	SetState(ctx context.Context, key, value string) error

	// Generation returns a counter that increases on every write. Read
	// paths use it to key cached views.
	Generation() uint64

	// Close releases the underlying resources.
	Close() error
}
