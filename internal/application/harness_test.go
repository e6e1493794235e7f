package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskquest/internal/models"
	jwtutil "taskquest/pkg/jwt"
)

type nopLogger struct{}

func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

type sentMessage struct {
	chatID int64
	text   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *recordingNotifier) NotifyChat(chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{chatID, text})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.Notification
}

func (s *recordingSink) Publish(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, n)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeVerifier struct {
	identities map[string]*ExternalIdentity
}

func (v fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*ExternalIdentity, error) {
	ident, ok := v.identities[idToken]
	if !ok {
		return nil, errors.New("token rejected")
	}
	return ident, nil
}

type testEnv struct {
	store    *memStore
	svc      *Service
	notifier *recordingNotifier
	sink     *recordingSink
}

func newTestEnv(t *testing.T, opts Options, deps Deps) *testEnv {
	t.Helper()
	if opts.BotUsername == "" {
		opts.BotUsername = "quest_bot"
	}
	if len(opts.JWT.Secret) == 0 {
		opts.JWT = jwtutil.Config{Secret: []byte("test-secret"), ExpireDuration: time.Hour}
	}
	sink := &recordingSink{}
	deps.Sinks = append(deps.Sinks, sink)

	store := newMemStore()
	svc := NewService(store.repos(), deps, opts, nopLogger{})
	notifier := &recordingNotifier{}
	svc.SetChatNotifier(notifier)
	return &testEnv{store: store, svc: svc, notifier: notifier, sink: sink}
}

func (e *testEnv) account(t *testing.T, username, email string) *models.Account {
	t.Helper()
	a, err := e.svc.Accounts.Create(context.Background(), AccountInput{Username: username, Email: email})
	if err != nil {
		t.Fatalf("create account %s: %v", username, err)
	}
	return a
}

func (e *testEnv) quest(t *testing.T, creatorID int64, title string) *models.Quest {
	t.Helper()
	q, err := e.svc.Quests.Create(context.Background(), creatorID, QuestInput{Title: title})
	if err != nil {
		t.Fatalf("create quest %s: %v", title, err)
	}
	return q
}

// setNow pins the clock of every time-aware service.
func (e *testEnv) setNow(now time.Time) {
	clock := func() time.Time { return now }
	e.svc.links.now = clock
	e.svc.Notifications.now = clock
	if a, ok := e.svc.Accounts.(*AccountServiceImpl); ok {
		a.now = clock
	}
	if i, ok := e.svc.Identity.(*IdentityServiceImpl); ok {
		i.now = clock
	}
}

func date(s string) *time.Time {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &d
}
