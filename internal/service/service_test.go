package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecervera/temario/internal/action"
	"github.com/ecervera/temario/internal/catalog"
	"github.com/ecervera/temario/internal/config"
	"github.com/ecervera/temario/internal/errors"
	"github.com/ecervera/temario/internal/platform"
	"github.com/ecervera/temario/internal/store"
)

type sentText struct {
	destination string
	text        string
}

// fakeClient scripts the platform for service tests.
type fakeClient struct {
	mu        sync.Mutex
	sent      []sentText
	edits     []sentText
	relayed   []int64
	modes     []platform.RelayMode
	relayErrs map[int64]error
	notified  []string
	nextMsgID int64
	events    chan platform.Event
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		relayErrs: make(map[int64]error),
		events:    make(chan platform.Event, 16),
	}
}

func (f *fakeClient) RelayOneItem(ctx context.Context, originChat, destination string, messageID int64, mode platform.RelayMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relayed = append(f.relayed, messageID)
	f.modes = append(f.modes, mode)
	return f.relayErrs[messageID]
}

func (f *fakeClient) NotifyTopicDiscovered(ctx context.Context, topicID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, topicID)
	return nil
}

func (f *fakeClient) SendText(ctx context.Context, destination, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	f.sent = append(f.sent, sentText{destination: destination, text: text})
	return f.nextMsgID, nil
}

func (f *fakeClient) EditText(ctx context.Context, destination string, messageID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, sentText{destination: destination, text: text})
	return nil
}

func (f *fakeClient) Events(ctx context.Context) (<-chan platform.Event, error) {
	return f.events, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.text
	}
	return out
}

func (f *fakeClient) editTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.edits))
	for i, s := range f.edits {
		out[i] = s.text
	}
	return out
}

func (f *fakeClient) relayedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.relayed...)
}

func (f *fakeClient) relayModes() []platform.RelayMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.RelayMode(nil), f.modes...)
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Platform.AdminUser = "admin"
	cfg.Relay.OriginChat = "-100origin"
	return cfg
}

func seedTopic(t *testing.T, st store.TopicStore, id, name string, messageIDs ...int64) {
	t.Helper()
	err := st.Mutate(context.Background(), id, func(current *store.Topic) (*store.Topic, error) {
		topic := &store.Topic{
			ID:          id,
			DisplayName: name,
			CreatedAt:   time.Now(),
			Kind:        store.KindGeneric,
		}
		for _, mid := range messageIDs {
			topic.AppendEntry(mid)
		}
		return topic, nil
	})
	require.NoError(t, err)
}

func newTestService(t *testing.T) (*Service, *fakeClient, store.TopicStore) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	client := newFakeClient()
	svc := New(testConfig(), "", st, client, nil)
	return svc, client, st
}

func TestDispatch_AdminGate(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Dispatch(context.Background(), "mallory", "chat1", action.Action{Kind: action.KindReset})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.GetCode(err))

	err = svc.Dispatch(context.Background(), "admin", "chat1", action.Action{Kind: action.KindReset})
	assert.NoError(t, err)
}

func TestDispatch_LetterPage(t *testing.T) {
	svc, client, st := newTestService(t)
	seedTopic(t, st, "t1", "Antonio")
	seedTopic(t, st, "t2", "Ángela")
	seedTopic(t, st, "t3", "Zulema")

	err := svc.Dispatch(context.Background(), "user", "chat1",
		action.Action{Kind: action.KindLetterPage, Letter: "A", Page: 1})
	require.NoError(t, err)

	texts := client.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Ángela")
	assert.Contains(t, texts[0], "Antonio")
	assert.NotContains(t, texts[0], "Zulema")
	// Accented name sorts before the plain one.
	assert.Less(t, strings.Index(texts[0], "Ángela"), strings.Index(texts[0], "Antonio"))
}

func TestDispatch_Search(t *testing.T) {
	svc, client, st := newTestService(t)
	seedTopic(t, st, "t1", "Antonio")
	seedTopic(t, st, "t2", "Natalia")

	err := svc.Dispatch(context.Background(), "user", "chat1",
		action.Action{Kind: action.KindSearch, Query: "nat"})
	require.NoError(t, err)

	texts := client.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Natalia")
	assert.NotContains(t, texts[0], "Antonio")
}

func TestDispatch_MainMenu(t *testing.T) {
	svc, client, st := newTestService(t)
	seedTopic(t, st, "t1", "Antonio")
	seedTopic(t, st, "t2", "Ñoño")
	seedTopic(t, st, "t3", "1. Intro")

	err := svc.Dispatch(context.Background(), "user", "chat1", action.Action{Kind: action.KindMainMenu})
	require.NoError(t, err)

	texts := client.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "#")
	assert.Contains(t, texts[0], "A")
	assert.Contains(t, texts[0], "Ñ")
	assert.NotContains(t, texts[0], " B ")
}

func TestDispatch_MainMenu_Empty(t *testing.T) {
	svc, client, _ := newTestService(t)

	err := svc.Dispatch(context.Background(), "user", "chat1", action.Action{Kind: action.KindMainMenu})
	require.NoError(t, err)

	texts := client.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "empty")
}

func TestDispatch_SendTopic_RelaysAllAndReportsSummary(t *testing.T) {
	svc, client, st := newTestService(t)
	seedTopic(t, st, "t1", "Antonio", 101, 102, 103)

	err := svc.Dispatch(context.Background(), "user", "chat1",
		action.Action{Kind: action.KindSendTopic, TopicID: "t1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, text := range client.editTexts() {
			if strings.Contains(text, "Done sending Antonio: 3/3 delivered, 0 skipped") {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []int64{101, 102, 103}, client.relayedIDs())

	// Initial feedback message was sent before the job ran.
	texts := client.sentTexts()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[0], "Sending Antonio: 0/3")
}

func TestDispatch_SendTopic_UnknownTopic(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Dispatch(context.Background(), "user", "chat1",
		action.Action{Kind: action.KindSendTopic, TopicID: "missing"})
	assert.True(t, errors.IsNotFound(err))
}

func TestDispatch_SendTopic_NoOriginConfigured(t *testing.T) {
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	client := newFakeClient()
	cfg := testConfig()
	cfg.Relay.OriginChat = ""
	svc := New(cfg, "", st, client, nil)
	seedTopic(t, st, "t1", "Antonio", 101)

	err := svc.Dispatch(context.Background(), "user", "chat1",
		action.Action{Kind: action.KindSendTopic, TopicID: "t1"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestDispatch_SendTopic_RelayModeFromStateOverridesConfig(t *testing.T) {
	svc, client, st := newTestService(t)
	seedTopic(t, st, "t1", "Antonio", 101)
	require.NoError(t, st.SetState(context.Background(), store.StateKeyRelayMode, "copy"))

	err := svc.Dispatch(context.Background(), "user", "chat1",
		action.Action{Kind: action.KindSendTopic, TopicID: "t1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(client.relayedIDs()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []platform.RelayMode{platform.ModeCopy}, client.relayModes())
}

func TestDispatch_SendTopic_RelayModeDefaultsToConfig(t *testing.T) {
	svc, client, st := newTestService(t)
	seedTopic(t, st, "t1", "Antonio", 101)

	err := svc.Dispatch(context.Background(), "user", "chat1",
		action.Action{Kind: action.KindSendTopic, TopicID: "t1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(client.relayedIDs()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []platform.RelayMode{platform.ModeForward}, client.relayModes())
}

func TestDispatch_OriginStateOverridesConfig(t *testing.T) {
	svc, _, st := newTestService(t)
	require.NoError(t, st.SetState(context.Background(), store.StateKeyOriginChat, "-100state"))

	origin, err := svc.ResolveOriginChat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "-100state", origin)
}

func TestDispatch_AdminActions(t *testing.T) {
	svc, _, st := newTestService(t)
	seedTopic(t, st, "t1", "Antonio", 101)

	ctx := context.Background()
	require.NoError(t, svc.Dispatch(ctx, "admin", "chat1",
		action.Action{Kind: action.KindMute, TopicID: "t1", Muted: true}))

	topic, err := st.Get(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, topic.Muted)

	require.NoError(t, svc.Dispatch(ctx, "admin", "chat1",
		action.Action{Kind: action.KindDeleteTopic, TopicID: "t1"}))
	_, err = st.Get(ctx, "t1")
	assert.True(t, errors.IsNotFound(err))
}

func TestRun_IndexesArrivals(t *testing.T) {
	svc, client, st := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	client.events <- platform.Event{Arrival: &platform.Arrival{TopicID: "t1", TopicName: "Antonio", MessageID: 11}}

	require.Eventually(t, func() bool {
		topic, err := st.Get(context.Background(), "t1")
		return err == nil && topic.HasEntry(11)
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_DispatchesActionRequests(t *testing.T) {
	svc, client, st := newTestService(t)
	seedTopic(t, st, "t1", "Antonio", 101)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	client.events <- platform.Event{Action: &platform.ActionRequest{
		Actor: "user", Destination: "chat1", Data: "t:t1",
	}}

	require.Eventually(t, func() bool {
		return len(client.relayedIDs()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{101}, client.relayedIDs())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRun_RejectedActionRepliesWithMessage(t *testing.T) {
	svc, client, _ := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	// Admin action from a regular user: no state change, one feedback line.
	client.events <- platform.Event{Action: &platform.ActionRequest{
		Actor: "mallory", Destination: "chat1", Data: "reset",
	}}

	require.Eventually(t, func() bool {
		return len(client.sentTexts()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, client.sentTexts()[0], "admin")
}

func TestReconfigure_PersistsHotSettings(t *testing.T) {
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	client := newFakeClient()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("relay:\n  mode: copy\n  origin_chat: \"-100new\"\n"), 0o644))

	svc := New(testConfig(), cfgPath, st, client, nil)
	require.NoError(t, svc.Reconfigure(context.Background()))

	ctx := context.Background()
	origin, err := st.GetState(ctx, store.StateKeyOriginChat)
	require.NoError(t, err)
	assert.Equal(t, "-100new", origin)

	mode, err := st.GetState(ctx, store.StateKeyRelayMode)
	require.NoError(t, err)
	assert.Equal(t, "copy", mode)

	assert.Equal(t, "copy", svc.Config().Relay.Mode)
}

func TestReconfigure_InvalidFileKeepsPrevious(t *testing.T) {
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("catalog:\n  page_size: 0\n"), 0o644))

	svc := New(testConfig(), cfgPath, st, newFakeClient(), nil)
	err := svc.Reconfigure(context.Background())
	require.Error(t, err)
	assert.Equal(t, 10, svc.Config().Catalog.PageSize)
}

func TestInstanceLock_SecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temario.lock")

	first := NewInstanceLock(path)
	acquired, err := first.TryAcquire()
	require.NoError(t, err)
	require.True(t, acquired)

	second := NewInstanceLock(path)
	acquired, err = second.TryAcquire()
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, first.Release())
	acquired, err = second.TryAcquire()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, second.Release())
}

func TestConfigWatcher_SignalsAfterEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	w := NewConfigWatcher(path, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to install before editing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("version: 2\n"), 0o644))

	select {
	case <-w.Reloads():
	case <-time.After(5 * time.Second):
		t.Fatal("no reload signal after config edit")
	}

	// Edits to sibling files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	select {
	case <-w.Reloads():
		t.Fatal("unexpected reload signal for unrelated file")
	case <-time.After(time.Second):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}
}

func TestFormatPage(t *testing.T) {
	page := formatPage("A", pageOf("Ángela", "Antonio"))
	assert.Contains(t, page, "1. Ángela")
	assert.Contains(t, page, "2. Antonio")
}

func pageOf(names ...string) (p catalog.Page) {
	for i, n := range names {
		p.Items = append(p.Items, &store.Topic{ID: fmt.Sprintf("t%d", i), DisplayName: n})
	}
	p.Page = 1
	p.TotalPages = 1
	return p
}
