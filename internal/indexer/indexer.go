// Package indexer consumes content-arrival events and maintains the topic
// records in the store. It is the only component that mutates topic state.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ecervera/temario/internal/errors"
	"github.com/ecervera/temario/internal/platform"
	"github.com/ecervera/temario/internal/store"
)

// Indexer applies arrival events to the store. Every mutation runs inside
// the store's per-topic read-modify-write section, so concurrent arrivals
// to one topic serialize instead of racing.
type Indexer struct {
	store    store.TopicStore
	notifier platform.Notifier
	log      *slog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// New creates an indexer. notifier may be nil when topic-discovery
// notifications are not wanted.
func New(st store.TopicStore, notifier platform.Notifier, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{store: st, notifier: notifier, log: log, now: time.Now}
}

// OnArrival records one content arrival. Unknown topics are created with
// the announced display name (or a synthesized one); muted topics ignore
// arrivals; duplicate message ids are skipped. For the cataloged-media
// topic a non-empty caption is additionally recorded in the title index.
func (ix *Indexer) OnArrival(ctx context.Context, ev platform.Arrival) error {
	created := false

	err := ix.store.Mutate(ctx, ev.TopicID, func(current *store.Topic) (*store.Topic, error) {
		if current == nil {
			created = true
			current = &store.Topic{
				ID:          ev.TopicID,
				DisplayName: displayName(ev),
				CreatedAt:   ix.now(),
				Kind:        store.KindGeneric,
			}
		}
		if current.Muted {
			return nil, nil
		}
		if !current.AppendEntry(ev.MessageID) {
			// Duplicate arrival; idempotent per message id.
			return nil, nil
		}
		if current.Kind == store.KindCatalogedMedia && strings.TrimSpace(ev.Caption) != "" {
			current.AppendTitle(ev.MessageID, ev.Caption)
		}
		return current, nil
	})
	if err != nil {
		return err
	}

	if created {
		ix.log.Info("topic discovered", "topic_id", ev.TopicID, "name", displayName(ev))
		if ix.notifier != nil {
			// Best-effort; a failed notification never fails the arrival.
			if nerr := ix.notifier.NotifyTopicDiscovered(ctx, ev.TopicID, displayName(ev)); nerr != nil {
				ix.log.Warn("topic discovery notification failed",
					"topic_id", ev.TopicID, "error", nerr)
			}
		}
	}
	return nil
}

// MarkAsCatalog designates topicID as the single cataloged-media topic.
// Fails when another topic already holds the designation. An unknown topic
// is created when the caller supplies a name from its context; otherwise
// the operation fails with not-found. Marking the current catalog topic
// again is a no-op.
func (ix *Indexer) MarkAsCatalog(ctx context.Context, topicID, nameIfNew string) error {
	topics, err := ix.store.All(ctx)
	if err != nil {
		return err
	}
	for _, t := range topics {
		if t.Kind == store.KindCatalogedMedia {
			if t.ID == topicID {
				return nil
			}
			return errors.AlreadyConfigured(t.ID)
		}
	}

	return ix.store.Mutate(ctx, topicID, func(current *store.Topic) (*store.Topic, error) {
		if current == nil {
			if strings.TrimSpace(nameIfNew) == "" {
				return nil, errors.NotFound(topicID)
			}
			current = &store.Topic{
				ID:          topicID,
				DisplayName: nameIfNew,
				CreatedAt:   ix.now(),
			}
		}
		current.Kind = store.KindCatalogedMedia
		return current, nil
	})
}

// SetMuted toggles whether the topic accepts further arrivals.
func (ix *Indexer) SetMuted(ctx context.Context, topicID string, muted bool) error {
	return ix.store.Mutate(ctx, topicID, func(current *store.Topic) (*store.Topic, error) {
		if current == nil {
			return nil, errors.NotFound(topicID)
		}
		if current.Muted == muted {
			return nil, nil
		}
		current.Muted = muted
		return current, nil
	})
}

// DeleteTopic removes a topic and all of its entries.
func (ix *Indexer) DeleteTopic(ctx context.Context, topicID string) error {
	return ix.store.Delete(ctx, topicID)
}

// Reset drops every topic. Admin-gated at the service layer.
func (ix *Indexer) Reset(ctx context.Context) error {
	ix.log.Warn("resetting all topic data")
	return ix.store.Reset(ctx)
}

// displayName resolves the name for a new topic, synthesizing one when the
// platform did not announce any.
func displayName(ev platform.Arrival) string {
	if strings.TrimSpace(ev.TopicName) != "" {
		return ev.TopicName
	}
	return fmt.Sprintf("Topic %s", ev.TopicID)
}
