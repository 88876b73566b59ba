package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecervera/temario/internal/errors"
	"github.com/ecervera/temario/internal/platform"
	"github.com/ecervera/temario/internal/store"
)

// Config tunes the retry and pacing policy of the engine.
type Config struct {
	// Mode selects forward or copy semantics for each item.
	Mode platform.RelayMode

	// RateLimitSlack is added on top of every provider-announced wait.
	RateLimitSlack time.Duration

	// TransientDelay is the fixed sleep between attempts after a
	// transient failure.
	TransientDelay time.Duration

	// TransientCutover bounds continuous transient failure on one item;
	// once exceeded the item is skipped. Zero retries forever.
	TransientCutover time.Duration

	// PaceEvery inserts a pause after this many successful deliveries.
	PaceEvery int

	// PaceDelay is the length of that pause.
	PaceDelay time.Duration
}

// DefaultConfig returns the policy observed to stay under typical provider
// throughput ceilings.
func DefaultConfig() Config {
	return Config{
		Mode:             platform.ModeForward,
		RateLimitSlack:   time.Second,
		TransientDelay:   2 * time.Second,
		TransientCutover: 30 * time.Second,
		PaceEvery:        70,
		PaceDelay:        2 * time.Second,
	}
}

// Engine drives relay jobs. Within one job items are emitted strictly in
// the topic's insertion order, one at a time; the engine reads the topic
// snapshot once at job start, so writes landing mid-job do not change the
// in-flight item list.
type Engine struct {
	store   store.TopicStore
	relayer platform.Relayer
	cfg     Config
	log     *slog.Logger

	// sleep is injectable for tests; it must honor ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a relay engine.
func NewEngine(st store.TopicStore, relayer platform.Relayer, cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:   st,
		relayer: relayer,
		cfg:     cfg,
		log:     log,
		sleep:   sleepCtx,
	}
}

// Run relays every entry of topicID from originChat to destination and
// returns the terminal summary. mode selects forward or copy semantics for
// this job; empty falls back to the configured default. The only failure
// mode is an unresolvable topic; per-item errors resolve to delivered or
// skipped and never fail the job. Cancellation finishes the in-flight
// attempt, stops before the next item, and still returns a partial summary.
func (e *Engine) Run(ctx context.Context, topicID, originChat, destination string, mode platform.RelayMode, progress *Progress) (Summary, error) {
	if mode == "" {
		mode = e.cfg.Mode
	}
	topic, err := e.store.Get(ctx, topicID)
	if err != nil {
		if progress != nil {
			progress.Finish(StatusFailed)
		}
		return Summary{}, err
	}

	if progress == nil {
		progress = NewProgress(len(topic.Entries))
	}

	e.log.Info("relay job started",
		"topic_id", topicID, "destination", destination, "items", len(topic.Entries))

	status := StatusDone
	for i, entry := range topic.Entries {
		if ctx.Err() != nil {
			status = StatusCancelled
			break
		}

		delivered, err := e.deliverOne(ctx, i, entry.ID, originChat, destination, mode, progress)
		if err != nil {
			// Only cancellation escapes deliverOne.
			status = StatusCancelled
			break
		}
		if delivered {
			progress.MarkDelivered()
			if e.cfg.PaceEvery > 0 && progress.Summary().Delivered%e.cfg.PaceEvery == 0 {
				// The item stays delivered while the job sleeps out the pace.
				if e.sleep(ctx, e.cfg.PaceDelay) != nil {
					status = StatusCancelled
					break
				}
			}
		} else {
			progress.MarkSkipped()
		}
	}

	progress.Finish(status)
	summary := progress.Summary()
	e.log.Info("relay job finished",
		"topic_id", topicID, "status", string(status),
		"delivered", summary.Delivered, "skipped", summary.Skipped, "total", summary.Total)
	return summary, nil
}

// deliverOne drives a single item to delivered or skipped. Rate-limit waits
// are honored in full and retried without limit; transient failures retry
// every TransientDelay until TransientCutover of continuous failure, after
// which the item is skipped. A context error aborts the loop.
func (e *Engine) deliverOne(ctx context.Context, index int, messageID int64, originChat, destination string, mode platform.RelayMode, progress *Progress) (bool, error) {
	var firstTransient time.Time

	for {
		progress.SetItemState(index, StateAttempting)
		err := e.relayer.RelayOneItem(ctx, originChat, destination, messageID, mode)
		if err == nil {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		switch {
		case errors.IsRateLimited(err):
			wait, _ := errors.WaitDuration(err)
			wait += e.cfg.RateLimitSlack
			e.log.Warn("rate limited", "message_id", messageID, "wait", wait)
			progress.SetItemState(index, StateRetryWait)
			if serr := e.sleep(ctx, wait); serr != nil {
				return false, serr
			}
			// A served rate-limit wait resets the transient window; the
			// provider answered, the link is alive.
			firstTransient = time.Time{}

		case errors.IsPermanent(err):
			e.log.Warn("item permanently failed", "message_id", messageID, "error", err)
			return false, nil

		default:
			// Transient and unclassified errors are retried alike.
			now := time.Now()
			if firstTransient.IsZero() {
				firstTransient = now
			}
			if e.cfg.TransientCutover > 0 && now.Sub(firstTransient) >= e.cfg.TransientCutover {
				e.log.Warn("item gave up after continuous transient failure",
					"message_id", messageID, "cutover", e.cfg.TransientCutover)
				return false, nil
			}
			e.log.Debug("transient failure, retrying", "message_id", messageID, "error", err)
			progress.SetItemState(index, StateRetryWait)
			if serr := e.sleep(ctx, e.cfg.TransientDelay); serr != nil {
				return false, serr
			}
		}
	}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
