// Package service wires the store, indexer, catalog queries, and relay
// engine into one long-running event loop: inbound arrivals are indexed as
// they land, decoded actions are dispatched to the right engine, and config
// edits are picked up without a restart.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ecervera/temario/internal/action"
	"github.com/ecervera/temario/internal/catalog"
	"github.com/ecervera/temario/internal/config"
	"github.com/ecervera/temario/internal/errors"
	"github.com/ecervera/temario/internal/indexer"
	"github.com/ecervera/temario/internal/platform"
	"github.com/ecervera/temario/internal/relay"
	"github.com/ecervera/temario/internal/store"
)

// progressEditInterval is how often a running relay job's feedback message
// is edited in place.
const progressEditInterval = 2 * time.Second

// Service owns the engines and the event loop.
type Service struct {
	cfgPath string
	store   store.TopicStore
	client  platform.Client
	indexer *indexer.Indexer
	queries *catalog.Engine
	log     *slog.Logger

	mu     sync.RWMutex
	cfg    *config.Config
	relays *relay.Registry
}

// New assembles a service over an open store and a connected platform
// client. cfgPath is re-read on hot reloads; pass "" to disable reloading.
func New(cfg *config.Config, cfgPath string, st store.TopicStore, client platform.Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		cfgPath: cfgPath,
		store:   st,
		client:  client,
		indexer: indexer.New(st, client, log),
		queries: catalog.NewEngine(st),
		log:     log,
		cfg:     cfg,
	}
	s.relays = relay.NewRegistry(relay.NewEngine(st, client, relayConfig(cfg), log))
	return s
}

// Indexer exposes the arrival indexer for CLI admin commands.
func (s *Service) Indexer() *indexer.Indexer { return s.indexer }

// Queries exposes the catalog query engine.
func (s *Service) Queries() *catalog.Engine { return s.queries }

// Relays returns the current relay job registry.
func (s *Service) Relays() *relay.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relays
}

// Config returns the currently active configuration.
func (s *Service) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Run drives the event loop until ctx is done: one goroutine consumes
// inbound events, another watches the config file. Returns once both have
// stopped.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.consumeEvents(ctx) })

	if s.cfgPath != "" {
		watcher := NewConfigWatcher(s.cfgPath, s.log)
		g.Go(func() error { return watcher.Run(ctx) })
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-watcher.Reloads():
					if err := s.Reconfigure(ctx); err != nil {
						s.log.Warn("config reload failed, keeping previous config", "error", err)
					}
				}
			}
		})
	}

	return g.Wait()
}

// consumeEvents drains the platform event stream: arrivals are indexed,
// action requests are decoded and dispatched. Per-event failures are
// logged and skipped; the stream must keep draining.
func (s *Service) consumeEvents(ctx context.Context) error {
	events, err := s.client.Events(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch {
			case ev.Arrival != nil:
				if err := s.indexer.OnArrival(ctx, *ev.Arrival); err != nil {
					s.log.Error("failed to index arrival",
						"topic_id", ev.Arrival.TopicID,
						"message_id", ev.Arrival.MessageID, "error", err)
				}
			case ev.Action != nil:
				s.handleAction(ctx, *ev.Action)
			}
		}
	}
}

// handleAction decodes one wire action and dispatches it. Failures resolve
// to a short feedback line; relay jobs detach into their own goroutines
// inside Dispatch.
func (s *Service) handleAction(ctx context.Context, req platform.ActionRequest) {
	act, err := action.Decode(req.Data)
	if err != nil {
		s.log.Warn("undecodable action", "data", req.Data, "actor", req.Actor, "error", err)
		return
	}
	if err := s.Dispatch(ctx, req.Actor, req.Destination, act); err != nil {
		s.log.Warn("action dispatch failed",
			"kind", string(act.Kind), "actor", req.Actor, "error", err)
		if derr := s.reply(ctx, req.Destination, errors.UserMessage(err)); derr != nil {
			s.log.Debug("action feedback failed", "error", derr)
		}
	}
}

// Reconfigure re-reads the config file and applies the hot-swappable
// settings: the origin chat and relay mode are persisted to store state,
// and new relay jobs pick up the new policy. Running jobs keep the policy
// they started with.
func (s *Service) Reconfigure(ctx context.Context) error {
	cfg, err := config.Load(s.cfgPath)
	if err != nil {
		return err
	}

	if cfg.Relay.OriginChat != "" {
		if err := s.store.SetState(ctx, store.StateKeyOriginChat, cfg.Relay.OriginChat); err != nil {
			return err
		}
	}
	if err := s.store.SetState(ctx, store.StateKeyRelayMode, cfg.Relay.Mode); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.relays = relay.NewRegistry(relay.NewEngine(s.store, s.client, relayConfig(cfg), s.log))
	s.mu.Unlock()

	s.log.Info("configuration reloaded",
		"origin_chat", cfg.Relay.OriginChat, "relay_mode", cfg.Relay.Mode)
	return nil
}

// Dispatch executes one decoded action on behalf of actor and sends the
// reply to destination. Admin actions are rejected for everyone but the
// configured admin user.
func (s *Service) Dispatch(ctx context.Context, actor, destination string, act action.Action) error {
	cfg := s.Config()
	if act.AdminOnly() && actor != cfg.Platform.AdminUser {
		return errors.New(errors.ErrCodeUnauthorized,
			fmt.Sprintf("action %s requires the admin user", act.Kind), nil)
	}

	switch act.Kind {
	case action.KindMainMenu:
		return s.replyMenu(ctx, destination)

	case action.KindLetterPage:
		page, err := s.queries.ListByLetter(ctx, act.Letter, act.Page, cfg.Catalog.PageSize)
		if err != nil {
			return err
		}
		return s.reply(ctx, destination, formatPage(act.Letter, page))

	case action.KindRecent:
		topics, err := s.queries.ListRecent(ctx, cfg.Catalog.RecentLimit)
		if err != nil {
			return err
		}
		return s.reply(ctx, destination, formatTopicList("Recent topics", topics))

	case action.KindSearch:
		topics, err := s.queries.SearchByName(ctx, act.Query, cfg.Catalog.SearchLimit)
		if err != nil {
			return err
		}
		heading := fmt.Sprintf("Topics matching %q", act.Query)
		return s.reply(ctx, destination, formatTopicList(heading, topics))

	case action.KindSendTopic:
		return s.startRelay(ctx, act.TopicID, destination)

	case action.KindDeleteTopic:
		if err := s.indexer.DeleteTopic(ctx, act.TopicID); err != nil {
			return err
		}
		return s.reply(ctx, destination, "Topic deleted.")

	case action.KindMarkCatalog:
		if err := s.indexer.MarkAsCatalog(ctx, act.TopicID, ""); err != nil {
			return err
		}
		return s.reply(ctx, destination, "Media catalog configured.")

	case action.KindMute:
		if err := s.indexer.SetMuted(ctx, act.TopicID, act.Muted); err != nil {
			return err
		}
		if act.Muted {
			return s.reply(ctx, destination, "Topic muted.")
		}
		return s.reply(ctx, destination, "Topic unmuted.")

	case action.KindReset:
		if err := s.indexer.Reset(ctx); err != nil {
			return err
		}
		return s.reply(ctx, destination, "All topics removed.")

	default:
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown action kind %q", act.Kind), nil)
	}
}

// startRelay launches a relay job for topicID and keeps one feedback
// message updated until the job reaches its terminal summary.
func (s *Service) startRelay(ctx context.Context, topicID, destination string) error {
	origin, err := s.ResolveOriginChat(ctx)
	if err != nil {
		return err
	}

	topic, err := s.store.Get(ctx, topicID)
	if err != nil {
		return err
	}

	job, err := s.Relays().Start(ctx, topicID, origin, destination, s.ResolveRelayMode(ctx))
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Sending %s: 0/%d", topic.DisplayName, len(topic.Entries))
	msgID, sendErr := s.client.SendText(ctx, destination, text)
	go s.monitorRelay(ctx, job, destination, topic.DisplayName, msgID, sendErr == nil)
	return nil
}

// monitorRelay edits the feedback message on a fixed cadence and always
// posts the terminal summary, even after cancellation.
func (s *Service) monitorRelay(ctx context.Context, job *relay.Job, destination, topicName string, msgID int64, canEdit bool) {
	defer s.Relays().Remove(job.ID)

	ticker := time.NewTicker(progressEditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-job.Done():
			summary, err := job.Result()
			if err != nil {
				s.log.Error("relay job failed to run", "job_id", job.ID, "error", err)
				return
			}
			text := fmt.Sprintf("Done sending %s: %d/%d delivered, %d skipped",
				topicName, summary.Delivered, summary.Total, summary.Skipped)
			s.editOrSend(ctx, destination, msgID, canEdit, text)
			return
		case <-ticker.C:
			snap := job.Progress.Snapshot()
			text := fmt.Sprintf("Sending %s: %d/%d",
				topicName, snap.Delivered+snap.Skipped, snap.Total)
			s.editOrSend(ctx, destination, msgID, canEdit, text)
		}
	}
}

// editOrSend is best-effort feedback: edit the pinned progress message when
// we have one, otherwise send a fresh line. Failures are logged only.
func (s *Service) editOrSend(ctx context.Context, destination string, msgID int64, canEdit bool, text string) {
	if canEdit {
		if err := s.client.EditText(ctx, destination, msgID, text); err != nil {
			s.log.Debug("progress edit failed", "error", err)
		}
		return
	}
	if _, err := s.client.SendText(ctx, destination, text); err != nil {
		s.log.Debug("progress send failed", "error", err)
	}
}

// ResolveOriginChat prefers the store state (set at runtime) over the
// static config value.
func (s *Service) ResolveOriginChat(ctx context.Context) (string, error) {
	if origin, err := s.store.GetState(ctx, store.StateKeyOriginChat); err == nil && origin != "" {
		return origin, nil
	}
	if origin := s.Config().Relay.OriginChat; origin != "" {
		return origin, nil
	}
	return "", errors.New(errors.ErrCodeConfigInvalid, "no origin chat configured", nil)
}

// ResolveRelayMode prefers the store state (set at runtime) over the
// static config value. The resolved mode is fixed per job at start.
func (s *Service) ResolveRelayMode(ctx context.Context) platform.RelayMode {
	if v, err := s.store.GetState(ctx, store.StateKeyRelayMode); err == nil && v != "" {
		return platform.ParseRelayMode(v)
	}
	return platform.ParseRelayMode(s.Config().Relay.Mode)
}

// replyMenu lists the letter buckets that currently hold topics.
func (s *Service) replyMenu(ctx context.Context, destination string) error {
	topics, err := s.store.All(ctx)
	if err != nil {
		return err
	}

	present := make(map[catalog.Bucket]bool)
	for _, t := range topics {
		if t.Kind == store.KindCatalogedMedia {
			continue
		}
		present[catalog.SortKey(t.DisplayName).Bucket] = true
	}

	var letters []string
	for _, label := range menuLabels() {
		if b, ok := catalog.LetterBucket(label); ok && present[b] {
			letters = append(letters, label)
		}
	}

	if len(letters) == 0 {
		return s.reply(ctx, destination, "The catalog is empty.")
	}
	return s.reply(ctx, destination, "Topics: "+strings.Join(letters, " "))
}

func (s *Service) reply(ctx context.Context, destination, text string) error {
	_, err := s.client.SendText(ctx, destination, text)
	return err
}

// menuLabels returns every letter bucket label in catalog order.
func menuLabels() []string {
	labels := []string{"#"}
	for r := 'A'; r <= 'N'; r++ {
		labels = append(labels, string(r))
	}
	labels = append(labels, "Ñ")
	for r := 'O'; r <= 'Z'; r++ {
		labels = append(labels, string(r))
	}
	return labels
}

// relayConfig maps the app config onto the engine policy. Zero durations
// fall back to the engine defaults, except the cutover, where zero means
// retry forever.
func relayConfig(cfg *config.Config) relay.Config {
	rc := relay.DefaultConfig()
	rc.Mode = platform.ParseRelayMode(cfg.Relay.Mode)
	if cfg.Relay.PaceEvery > 0 {
		rc.PaceEvery = cfg.Relay.PaceEvery
	}
	if cfg.Relay.PaceDelay > 0 {
		rc.PaceDelay = cfg.Relay.PaceDelay
	}
	if cfg.Relay.TransientDelay > 0 {
		rc.TransientDelay = cfg.Relay.TransientDelay
	}
	rc.TransientCutover = cfg.Relay.TransientCutover
	return rc
}

// formatPage renders a letter page as plain chat text.
func formatPage(letter string, page catalog.Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topics: %s\n", letter)
	if len(page.Items) == 0 {
		b.WriteString("(no topics)")
		return b.String()
	}
	for i, t := range page.Items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.DisplayName)
	}
	if page.TotalPages > 1 {
		fmt.Fprintf(&b, "Page %d/%d", page.Page, page.TotalPages)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatTopicList renders a flat topic list as plain chat text.
func formatTopicList(heading string, topics []*store.Topic) string {
	var b strings.Builder
	b.WriteString(heading)
	if len(topics) == 0 {
		b.WriteString("\n(no topics)")
		return b.String()
	}
	for _, t := range topics {
		b.WriteString("\n- ")
		b.WriteString(t.DisplayName)
	}
	return b.String()
}
