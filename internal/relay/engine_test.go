package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecervera/temario/internal/errors"
	"github.com/ecervera/temario/internal/platform"
	"github.com/ecervera/temario/internal/store"
)

// scriptedRelayer returns, per message id, the scripted errors in order and
// succeeds once the script is exhausted.
type scriptedRelayer struct {
	mu       sync.Mutex
	script   map[int64][]error
	attempts []int64
	modes    []platform.RelayMode
}

func (f *scriptedRelayer) RelayOneItem(ctx context.Context, origin, dest string, messageID int64, mode platform.RelayMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, messageID)
	f.modes = append(f.modes, mode)
	if queue := f.script[messageID]; len(queue) > 0 {
		err := queue[0]
		f.script[messageID] = queue[1:]
		return err
	}
	return nil
}

func (f *scriptedRelayer) attemptLog() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.attempts))
	copy(out, f.attempts)
	return out
}

func (f *scriptedRelayer) modeLog() []platform.RelayMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platform.RelayMode, len(f.modes))
	copy(out, f.modes)
	return out
}

// sleepRecorder captures every sleep the engine requests without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.sleeps))
	copy(out, s.sleeps)
	return out
}

func seedTopic(t *testing.T, entries ...int64) store.TopicStore {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.Mutate(context.Background(), "t1", func(*store.Topic) (*store.Topic, error) {
		topic := &store.Topic{ID: "t1", DisplayName: "Cine", Kind: store.KindGeneric}
		for _, id := range entries {
			topic.AppendEntry(id)
		}
		return topic, nil
	}))
	return st
}

func newTestEngine(t *testing.T, st store.TopicStore, relayer platform.Relayer, cfg Config) (*Engine, *sleepRecorder) {
	t.Helper()
	e := NewEngine(st, relayer, cfg, nil)
	rec := &sleepRecorder{}
	e.sleep = rec.sleep
	return e, rec
}

func TestRun_AllItemsSucceed(t *testing.T) {
	st := seedTopic(t, 101, 102, 103)
	relayer := &scriptedRelayer{script: map[int64][]error{}}
	e, _ := newTestEngine(t, st, relayer, DefaultConfig())

	summary, err := e.Run(context.Background(), "t1", "-100555", "42", "", nil)

	require.NoError(t, err)
	assert.Equal(t, Summary{Delivered: 3, Skipped: 0, Total: 3}, summary)
	assert.Equal(t, []int64{101, 102, 103}, relayer.attemptLog(), "strict insertion order, one attempt each")
}

func TestRun_TopicNotFound(t *testing.T) {
	st := store.NewMemoryStore()
	e, _ := newTestEngine(t, st, &scriptedRelayer{}, DefaultConfig())

	progress := NewProgress(0)
	_, err := e.Run(context.Background(), "ghost", "o", "d", "", progress)

	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, StatusFailed, progress.Snapshot().Status)
}

func TestRun_PermanentItemIsSkippedOthersDeliver(t *testing.T) {
	st := seedTopic(t, 101, 102, 103)
	relayer := &scriptedRelayer{script: map[int64][]error{
		102: {errors.Permanent(nil), errors.Permanent(nil)},
	}}
	e, _ := newTestEngine(t, st, relayer, DefaultConfig())

	summary, err := e.Run(context.Background(), "t1", "o", "d", "", nil)

	require.NoError(t, err)
	assert.Equal(t, Summary{Delivered: 2, Skipped: 1, Total: 3}, summary)
	// Exactly one attempt for the permanent item; no retries.
	assert.Equal(t, []int64{101, 102, 103}, relayer.attemptLog())
}

// A rate-limited item waits the announced duration plus slack, then retries
// the same item; exactly one RetryWait before Delivered.
func TestRun_RateLimitedOnceThenSucceeds(t *testing.T) {
	st := seedTopic(t, 101, 102, 103)
	relayer := &scriptedRelayer{script: map[int64][]error{
		102: {errors.RateLimited(5 * time.Second)},
	}}
	cfg := DefaultConfig()
	e, rec := newTestEngine(t, st, relayer, cfg)

	summary, err := e.Run(context.Background(), "t1", "o", "d", "", nil)

	require.NoError(t, err)
	assert.Equal(t, Summary{Delivered: 3, Skipped: 0, Total: 3}, summary)
	assert.Equal(t, []int64{101, 102, 102, 103}, relayer.attemptLog())
	assert.Equal(t, []time.Duration{5*time.Second + cfg.RateLimitSlack}, rec.all(),
		"announced wait plus one slack unit, honored in full")
}

func TestRun_RateLimitRetriesUnbounded(t *testing.T) {
	st := seedTopic(t, 101)
	script := make([]error, 40)
	for i := range script {
		script[i] = errors.RateLimited(time.Second)
	}
	relayer := &scriptedRelayer{script: map[int64][]error{101: script}}
	e, rec := newTestEngine(t, st, relayer, DefaultConfig())

	summary, err := e.Run(context.Background(), "t1", "o", "d", "", nil)

	require.NoError(t, err)
	assert.Equal(t, Summary{Delivered: 1, Skipped: 0, Total: 1}, summary)
	assert.Len(t, rec.all(), 40, "rate-limit waits are never time-boxed")
}

func TestRun_TransientRetriesThenSucceeds(t *testing.T) {
	st := seedTopic(t, 101)
	relayer := &scriptedRelayer{script: map[int64][]error{
		101: {errors.Transient(nil), errors.Transient(nil)},
	}}
	cfg := DefaultConfig()
	e, rec := newTestEngine(t, st, relayer, cfg)

	summary, err := e.Run(context.Background(), "t1", "o", "d", "", nil)

	require.NoError(t, err)
	assert.Equal(t, Summary{Delivered: 1, Skipped: 0, Total: 1}, summary)
	assert.Equal(t, []time.Duration{cfg.TransientDelay, cfg.TransientDelay}, rec.all())
}

// Continuous transient failure on one item gives up after the cutover and
// the item counts as skipped; the job itself never fails.
func TestRun_TransientCutoverSkipsItem(t *testing.T) {
	st := seedTopic(t, 101, 102)
	endless := make([]error, 1000)
	for i := range endless {
		endless[i] = errors.Transient(nil)
	}
	relayer := &scriptedRelayer{script: map[int64][]error{101: endless}}
	cfg := DefaultConfig()
	cfg.TransientCutover = time.Nanosecond // expire immediately
	e, _ := newTestEngine(t, st, relayer, cfg)

	summary, err := e.Run(context.Background(), "t1", "o", "d", "", nil)

	require.NoError(t, err)
	assert.Equal(t, Summary{Delivered: 1, Skipped: 1, Total: 2}, summary)
}

func TestRun_UnclassifiedErrorsRetryLikeTransient(t *testing.T) {
	st := seedTopic(t, 101)
	relayer := &scriptedRelayer{script: map[int64][]error{
		101: {assert.AnError},
	}}
	e, _ := newTestEngine(t, st, relayer, DefaultConfig())

	summary, err := e.Run(context.Background(), "t1", "o", "d", "", nil)

	require.NoError(t, err)
	assert.Equal(t, Summary{Delivered: 1, Skipped: 0, Total: 1}, summary)
}

func TestRun_PacingPausesEveryN(t *testing.T) {
	ids := make([]int64, 150)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	st := seedTopic(t, ids...)
	cfg := DefaultConfig()
	e, rec := newTestEngine(t, st, &scriptedRelayer{}, cfg)

	summary, err := e.Run(context.Background(), "t1", "o", "d", "", nil)

	require.NoError(t, err)
	assert.Equal(t, 150, summary.Delivered)
	// Pauses after deliveries 70 and 140.
	assert.Equal(t, []time.Duration{cfg.PaceDelay, cfg.PaceDelay}, rec.all())
}

func TestRun_CancellationStopsBetweenItemsWithPartialSummary(t *testing.T) {
	st := seedTopic(t, 101, 102, 103)
	ctx, cancel := context.WithCancel(context.Background())

	relayer := &cancelAfterRelayer{cancel: cancel, after: 2}
	e, _ := newTestEngine(t, st, relayer, DefaultConfig())

	progress := NewProgress(3)
	summary, err := e.Run(ctx, "t1", "o", "d", "", progress)

	require.NoError(t, err, "cancellation is not a job failure")
	assert.Equal(t, Summary{Delivered: 2, Skipped: 0, Total: 3}, summary)
	assert.Equal(t, StatusCancelled, progress.Snapshot().Status)
	assert.Equal(t, 2, relayer.calls, "in-flight item finishes, next item never starts")
}

// cancelAfterRelayer succeeds every call and cancels the context during the
// Nth delivery.
type cancelAfterRelayer struct {
	cancel context.CancelFunc
	after  int
	calls  int
}

func (c *cancelAfterRelayer) RelayOneItem(ctx context.Context, origin, dest string, messageID int64, mode platform.RelayMode) error {
	c.calls++
	if c.calls == c.after {
		c.cancel()
	}
	return nil
}

func TestRun_SnapshotTakenAtJobStart(t *testing.T) {
	st := seedTopic(t, 101, 102)
	relayer := &appendingRelayer{st: st}
	e, _ := newTestEngine(t, st, relayer, DefaultConfig())

	summary, err := e.Run(context.Background(), "t1", "o", "d", "", nil)

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total, "entries appended mid-job are not picked up")
}

// appendingRelayer appends a new entry to the topic while the job runs.
type appendingRelayer struct {
	st   store.TopicStore
	once sync.Once
}

func (a *appendingRelayer) RelayOneItem(ctx context.Context, origin, dest string, messageID int64, mode platform.RelayMode) error {
	a.once.Do(func() {
		_ = a.st.Mutate(ctx, "t1", func(current *store.Topic) (*store.Topic, error) {
			current.AppendEntry(999)
			return current, nil
		})
	})
	return nil
}

func TestProgress_Timeline(t *testing.T) {
	p := NewProgress(2)

	assert.Equal(t, StatusRunning, p.Snapshot().Status)
	assert.Equal(t, StatePending, p.Snapshot().ItemState)

	p.SetItemState(0, StateAttempting)
	assert.Equal(t, StateAttempting, p.Snapshot().ItemState)

	p.SetItemState(0, StateRetryWait)
	assert.Equal(t, StateRetryWait, p.Snapshot().ItemState)

	p.MarkDelivered()
	p.MarkSkipped()
	p.Finish(StatusDone)

	snap := p.Snapshot()
	assert.Equal(t, StatusDone, snap.Status)
	assert.Equal(t, Summary{Delivered: 1, Skipped: 1, Total: 2}, p.Summary())
}

func TestRun_ModeOverridesConfigDefault(t *testing.T) {
	st := seedTopic(t, 101, 102)
	relayer := &scriptedRelayer{}
	cfg := DefaultConfig()
	cfg.Mode = platform.ModeForward
	e, _ := newTestEngine(t, st, relayer, cfg)

	_, err := e.Run(context.Background(), "t1", "o", "d", platform.ModeCopy, nil)

	require.NoError(t, err)
	assert.Equal(t, []platform.RelayMode{platform.ModeCopy, platform.ModeCopy}, relayer.modeLog())
}

func TestRun_EmptyModeFallsBackToConfig(t *testing.T) {
	st := seedTopic(t, 101)
	relayer := &scriptedRelayer{}
	cfg := DefaultConfig()
	cfg.Mode = platform.ModeCopy
	e, _ := newTestEngine(t, st, relayer, cfg)

	_, err := e.Run(context.Background(), "t1", "o", "d", "", nil)

	require.NoError(t, err)
	assert.Equal(t, []platform.RelayMode{platform.ModeCopy}, relayer.modeLog())
}

func TestRun_PacingKeepsItemDelivered(t *testing.T) {
	st := seedTopic(t, 101, 102)
	cfg := DefaultConfig()
	cfg.PaceEvery = 1
	e := NewEngine(st, &scriptedRelayer{}, cfg, nil)

	progress := NewProgress(2)
	var paceStates []ItemState
	e.sleep = func(ctx context.Context, d time.Duration) error {
		paceStates = append(paceStates, progress.Snapshot().ItemState)
		return ctx.Err()
	}

	_, err := e.Run(context.Background(), "t1", "o", "d", "", progress)

	require.NoError(t, err)
	require.Len(t, paceStates, 2)
	for _, s := range paceStates {
		assert.Equal(t, StateDelivered, s, "a delivered item must not regress during a pacing pause")
	}
}

func TestRegistry_StartAndCollect(t *testing.T) {
	st := seedTopic(t, 101, 102)
	e, _ := newTestEngine(t, st, &scriptedRelayer{}, DefaultConfig())
	reg := NewRegistry(e)

	job, err := reg.Start(context.Background(), "t1", "o", "d", platform.ModeForward)
	require.NoError(t, err)

	got, ok := reg.Get(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)

	select {
	case <-job.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}

	summary, runErr := job.Result()
	require.NoError(t, runErr)
	assert.Equal(t, Summary{Delivered: 2, Skipped: 0, Total: 2}, summary)

	reg.Remove(job.ID)
	_, ok = reg.Get(job.ID)
	assert.False(t, ok)
}

func TestRegistry_StartUnknownTopic(t *testing.T) {
	st := store.NewMemoryStore()
	e, _ := newTestEngine(t, st, &scriptedRelayer{}, DefaultConfig())
	reg := NewRegistry(e)

	_, err := reg.Start(context.Background(), "ghost", "o", "d", platform.ModeForward)
	assert.True(t, errors.IsNotFound(err))
	assert.Empty(t, reg.Active())
}
