package conversation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/local/outreach/internal/config"
	"github.com/local/outreach/internal/messaging"
	"github.com/local/outreach/internal/pool"
	"github.com/local/outreach/internal/store"
)

// fakeSender satisfies messaging.Sender with no-ops.
type fakeSender struct{}

func (f *fakeSender) Connect(ctx context.Context) error { return nil }
func (f *fakeSender) Close() error                      { return nil }
func (f *fakeSender) SendText(ctx context.Context, peer messaging.Peer, text string, replyTo int64, first bool) (int64, error) {
	return 1, nil
}
func (f *fakeSender) SendDocument(ctx context.Context, peer messaging.Peer, path, caption string, first bool) error {
	return nil
}
func (f *fakeSender) SendTyping(ctx context.Context, peer messaging.Peer) error { return nil }
func (f *fakeSender) MarkRead(ctx context.Context, peer messaging.Peer) error   { return nil }
func (f *fakeSender) ResolvePeer(ctx context.Context, userID int64) (messaging.Peer, error) {
	return messaging.Peer{UserID: userID, AccessHash: 1}, nil
}
func (f *fakeSender) GetUsers(ctx context.Context, peer messaging.Peer) (messaging.Peer, error) {
	return peer, nil
}
func (f *fakeSender) GetDiscussionMessage(ctx context.Context, channelID, postID int64) (int64, error) {
	return 0, nil
}
func (f *fakeSender) GetMessagesByID(ctx context.Context, channelID int64, ids []int64) ([]messaging.Message, error) {
	return nil, nil
}
func (f *fakeSender) ExportSession(ctx context.Context) (string, error)        { return "", nil }
func (f *fakeSender) SendCode(ctx context.Context, phone string) (string, error) { return "", nil }
func (f *fakeSender) SignIn(ctx context.Context, phone, code, codeHash string) error { return nil }
func (f *fakeSender) CheckPassword(ctx context.Context, password string) error { return nil }

// fakePool satisfies ClientPool, recording sends.
type fakePool struct {
	mu       sync.Mutex
	sent     []string
	sleeping bool
	deferred []func(context.Context)
}

func (f *fakePool) EnsureClient(ctx context.Context, executorID int64) (messaging.Sender, error) {
	return &fakeSender{}, nil
}
func (f *fakePool) ConnectUser(ctx context.Context, client messaging.Sender, userID int64) (messaging.Peer, error) {
	return messaging.Peer{UserID: userID, AccessHash: 1}, nil
}
func (f *fakePool) SendText(ctx context.Context, userID int64, text string, opts pool.SendOptions) (bool, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return true, nil
}
func (f *fakePool) SendDocument(ctx context.Context, userID int64, path, caption string, opts pool.SendOptions) (bool, error) {
	return true, nil
}
func (f *fakePool) IsSleeping(executorID int64) bool { return f.sleeping }
func (f *fakePool) Defer(executorID int64, job func(context.Context)) {
	f.mu.Lock()
	f.deferred = append(f.deferred, job)
	f.mu.Unlock()
}

func (f *fakePool) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeUsers satisfies Users.
type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]store.User
}

func (f *fakeUsers) GetUser(ctx context.Context, userID int64) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}
func (f *fakeUsers) UserTimestamp(ctx context.Context, userID int64) error { return nil }

// fakeAssistant records prompts and replies with a fixed directive.
type fakeAssistant struct {
	mu      sync.Mutex
	prompts []string
	reply   Reply
}

func (f *fakeAssistant) Respond(ctx context.Context, userID int64, prompt string) (Reply, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply, nil
}
func (f *fakeAssistant) Nudge(ctx context.Context, userID int64) (Reply, error) {
	return f.reply, nil
}

func (f *fakeAssistant) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func testConfig(t *testing.T) *config.Store {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.Update(func(v *config.Values) {
		v.BufferTime = 0.1
		v.Delay = 0
		v.TypingDelay = 0
		v.InactivityTimeout = 1
	}); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func testUser(executorID int64) store.User {
	hash := int64(12345)
	return store.User{UserID: 7, ExecutorID: &executorID, AccessHash: &hash}
}

// A burst of inbound messages coalesces into a single assistant call
// carrying every line in order.
func TestBurstCoalescesIntoOneAssistantCall(t *testing.T) {
	fp := &fakePool{}
	fa := &fakeAssistant{reply: Reply{Answer: "ответ", Send: true}}
	users := &fakeUsers{users: map[int64]store.User{7: testUser(1)}}
	r := New(fp, users, fa, testConfig(t), "catalog.pdf", nil)

	ctx := context.Background()
	for i, text := range []string{"первое", "второе", "третье"} {
		r.HandleInbound(ctx, 1, messaging.Update{UserID: 7, MessageID: int64(i + 1), Text: text})
		time.Sleep(20 * time.Millisecond)
	}

	deadline := time.After(5 * time.Second)
	for {
		if calls := fa.calls(); len(calls) > 0 {
			if len(calls) != 1 {
				t.Fatalf("expected exactly one assistant call, got %d", len(calls))
			}
			want := "первое\n---\nвторое\n---\nтретье"
			if calls[0] != want {
				t.Fatalf("prompt = %q, want %q", calls[0], want)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("assistant was never called")
		case <-time.After(20 * time.Millisecond):
		}
	}

	deadline = time.After(5 * time.Second)
	for {
		if sent := fp.sentTexts(); len(sent) == 1 && sent[0] == "ответ" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("reply was not sent, sent=%v", fp.sentTexts())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestUnknownSenderDropped(t *testing.T) {
	fp := &fakePool{}
	fa := &fakeAssistant{reply: Reply{Answer: "x", Send: true}}
	users := &fakeUsers{users: map[int64]store.User{}}
	r := New(fp, users, fa, testConfig(t), "", nil)

	r.HandleInbound(context.Background(), 1, messaging.Update{UserID: 99, MessageID: 1, Text: "hi"})
	time.Sleep(50 * time.Millisecond)
	if len(fa.calls()) != 0 {
		t.Fatal("unknown sender must be dropped")
	}
}

func TestCrossTalkGuard(t *testing.T) {
	fp := &fakePool{}
	fa := &fakeAssistant{reply: Reply{Answer: "x", Send: true}}
	users := &fakeUsers{users: map[int64]store.User{7: testUser(1)}}
	r := New(fp, users, fa, testConfig(t), "", nil)

	// Message arrives on executor 2, but the prospect is pinned to 1.
	r.HandleInbound(context.Background(), 2, messaging.Update{UserID: 7, MessageID: 1, Text: "hi"})
	time.Sleep(50 * time.Millisecond)
	if len(fa.calls()) != 0 {
		t.Fatal("cross-executor message must be dropped")
	}
}

func TestBannedSenderDropped(t *testing.T) {
	fp := &fakePool{}
	fa := &fakeAssistant{reply: Reply{Answer: "x", Send: true}}
	u := testUser(1)
	u.Banned = true
	users := &fakeUsers{users: map[int64]store.User{7: u}}
	r := New(fp, users, fa, testConfig(t), "", nil)

	r.HandleInbound(context.Background(), 1, messaging.Update{UserID: 7, MessageID: 1, Text: "hi"})
	time.Sleep(50 * time.Millisecond)
	if len(fa.calls()) != 0 {
		t.Fatal("banned sender must be dropped")
	}
}

// When the executor is sleeping, the buffer handler goes onto the defer
// queue instead of starting a response task.
func TestSleepingExecutorDefers(t *testing.T) {
	fp := &fakePool{sleeping: true}
	fa := &fakeAssistant{reply: Reply{Answer: "x", Send: true}}
	users := &fakeUsers{users: map[int64]store.User{7: testUser(1)}}
	r := New(fp, users, fa, testConfig(t), "", nil)

	r.HandleInbound(context.Background(), 1, messaging.Update{UserID: 7, MessageID: 1, Text: "hi"})

	fp.mu.Lock()
	deferred := len(fp.deferred)
	fp.mu.Unlock()
	if deferred != 1 {
		t.Fatalf("expected 1 deferred job, got %d", deferred)
	}
	if len(fa.calls()) != 0 {
		t.Fatal("assistant must not be called while the executor sleeps")
	}
}
