package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/claude"
	"github.com/ryadomlab/ryadom/internal/config"
	"github.com/ryadomlab/ryadom/internal/memory"
	"github.com/ryadomlab/ryadom/internal/quota"
	"github.com/ryadomlab/ryadom/internal/store"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) SendMessage(chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID, text})
	return nil
}

func (f *fakeSender) last() *sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	m := f.sent[len(f.sent)-1]
	return &m
}

type fakeCompleter struct {
	mood       *claude.MoodResult
	extraction *claude.Extraction
}

func (f *fakeCompleter) InferMood(ctx context.Context, message string, recent []claude.Turn) (*claude.MoodResult, error) {
	return f.mood, nil
}

func (f *fakeCompleter) ExtractMemory(ctx context.Context, message string, window []claude.Turn, knownFacts, knownPersons []string) (*claude.Extraction, error) {
	return f.extraction, nil
}

func (f *fakeCompleter) Summarize(ctx context.Context, window []claude.Turn) (string, error) {
	return "", nil
}

type fakeResponder struct {
	reply *claude.Reply
	err   error
	calls int
}

func (f *fakeResponder) Respond(ctx context.Context, req claude.RespondRequest) (*claude.Reply, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

type fakeEscalator struct {
	mu         sync.Mutex
	calls      int
	indicators []string
	message    string
}

func (f *fakeEscalator) NotifyCrisis(user *store.User, indicators []string, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.indicators = indicators
	f.message = message
}

type pipelineFixture struct {
	pipeline  *Pipeline
	store     *store.Store
	sender    *fakeSender
	responder *fakeResponder
	escalator *fakeEscalator
	completer *fakeCompleter
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	completer := &fakeCompleter{extraction: &claude.Extraction{}}
	sender := &fakeSender{}
	responder := &fakeResponder{reply: &claude.Reply{Content: "я здесь", TokensUsed: 42}}
	escalator := &fakeEscalator{}

	limits := config.LimitsConfig{FreeMessagesPerDay: 3, BasicMessagesPerDay: 100, PremiumMessagesPerDay: 1000}
	p := NewPipeline(
		s,
		memory.NewManager(s, completer, zerolog.Nop()),
		responder,
		quota.NewChecker(s, limits, zerolog.Nop()),
		sender,
		escalator,
		zerolog.Nop(),
	)
	return &pipelineFixture{pipeline: p, store: s, sender: sender, responder: responder, escalator: escalator, completer: completer}
}

func onboardedUser(t *testing.T, f *pipelineFixture, chatID int64) *store.User {
	t.Helper()
	u, err := f.store.GetOrCreateUser(chatID)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.store.UpdateUserName(u.ID, "Игорь"); err != nil {
		t.Fatalf("set name: %v", err)
	}
	if err := f.store.CompleteOnboarding(u.ID); err != nil {
		t.Fatalf("onboard: %v", err)
	}
	return u
}

func TestFirstMessageCapturesName(t *testing.T) {
	f := newPipelineFixture(t)

	f.pipeline.HandleMessage(context.Background(), 500, "меня зовут Игорь")

	u, _ := f.store.UserByChatID(500)
	if u.Name != "Игорь" {
		t.Fatalf("name not captured: %q", u.Name)
	}
	if !u.OnboardingCompleted {
		t.Fatalf("onboarding not completed")
	}
	last := f.sender.last()
	if last == nil || !strings.Contains(last.text, "Игорь") {
		t.Fatalf("welcome with name expected, got %+v", last)
	}
	if f.responder.calls != 0 {
		t.Fatalf("no model reply during onboarding, calls=%d", f.responder.calls)
	}
}

func TestNormalTurnPersistsEverything(t *testing.T) {
	f := newPipelineFixture(t)
	u := onboardedUser(t, f, 500)

	f.pipeline.HandleMessage(context.Background(), 500, "привет, как дела?")

	msgs, err := f.store.RecentMessages(u.ID, 10)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("expected user+assistant pair, got %+v", msgs)
	}
	if msgs[1].Content != "я здесь" || msgs[1].TokensUsed != 42 {
		t.Fatalf("reply not persisted with usage: %+v", msgs[1])
	}

	refreshed, _ := f.store.UserByID(u.ID)
	if refreshed.LastActiveAt == nil {
		t.Fatalf("last active not bumped")
	}
	used, tokens, _ := f.store.UsageForDay(u.ID, time.Now())
	if used != 1 || tokens != 42 {
		t.Fatalf("usage not incremented: %d msgs %d tokens", used, tokens)
	}
	if last := f.sender.last(); last == nil || last.text != "я здесь" {
		t.Fatalf("reply not delivered: %+v", last)
	}
}

func TestQuotaBlocksBeforeAnything(t *testing.T) {
	f := newPipelineFixture(t)
	u := onboardedUser(t, f, 500)

	for i := 0; i < 3; i++ {
		if _, err := f.store.SaveMessage(&store.Message{UserID: u.ID, Role: "user", Content: "x"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	f.pipeline.HandleMessage(context.Background(), 500, "ещё одно")

	if f.responder.calls != 0 {
		t.Fatalf("blocked turn must not reach the model")
	}
	total, _ := f.store.TotalMessages(u.ID)
	if total != 3 {
		t.Fatalf("blocked message must not be stored, total=%d", total)
	}
	if last := f.sender.last(); last == nil || last.text != limitReply {
		t.Fatalf("limit reply expected, got %+v", last)
	}
}

func TestCrisisTurn(t *testing.T) {
	f := newPipelineFixture(t)
	u := onboardedUser(t, f, 500)
	f.completer.mood = &claude.MoodResult{
		MoodScore:         1,
		PrimaryEmotion:    "отчаяние",
		RequiresAttention: true,
		CrisisIndicators:  []string{"безнадёжность", "мысли о самоповреждении"},
	}

	f.pipeline.HandleMessage(context.Background(), 500, "я больше не могу")

	if last := f.sender.last(); last == nil || last.text != claude.CrisisResponse {
		t.Fatalf("crisis response expected, got %+v", last)
	}
	if f.escalator.calls != 1 {
		t.Fatalf("escalation expected once, got %d", f.escalator.calls)
	}
	if len(f.escalator.indicators) != 2 || f.escalator.indicators[0] != "безнадёжность" {
		t.Fatalf("indicators not passed to escalation: %+v", f.escalator.indicators)
	}
	if f.escalator.message != "я больше не могу" {
		t.Fatalf("triggering message not passed to escalation: %q", f.escalator.message)
	}
	if f.responder.calls != 0 {
		t.Fatalf("crisis turn must not generate a model reply")
	}

	msgs, _ := f.store.RecentMessages(u.ID, 10)
	if len(msgs) != 2 || msgs[1].Content != claude.CrisisResponse {
		t.Fatalf("crisis reply must be persisted: %+v", msgs)
	}
}

func TestReplyFallbackOnModelFailure(t *testing.T) {
	f := newPipelineFixture(t)
	u := onboardedUser(t, f, 500)
	f.responder.err = errors.New("model down")

	f.pipeline.HandleMessage(context.Background(), 500, "привет")

	last := f.sender.last()
	if last == nil {
		t.Fatalf("fallback reply expected")
	}
	found := false
	for _, fb := range fallbackReplies {
		if last.text == fb {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected one of the fallback replies, got %q", last.text)
	}
	msgs, _ := f.store.RecentMessages(u.ID, 10)
	if len(msgs) != 2 {
		t.Fatalf("failed turn must still store both messages, got %d", len(msgs))
	}
}

func TestStartCommand(t *testing.T) {
	f := newPipelineFixture(t)

	f.pipeline.HandleMessage(context.Background(), 500, "/start")
	if last := f.sender.last(); last == nil || last.text != startGreeting {
		t.Fatalf("onboarding greeting expected, got %+v", last)
	}

	u, _ := f.store.UserByChatID(500)
	if total, _ := f.store.TotalMessages(u.ID); total != 0 {
		t.Fatalf("commands must not be stored as messages")
	}

	onboardedUser(t, f, 501)
	f.pipeline.HandleMessage(context.Background(), 501, "/start")
	if last := f.sender.last(); last == nil || !strings.Contains(last.text, "Игорь") {
		t.Fatalf("returning greeting with name expected, got %+v", last)
	}
}

func TestExtractName(t *testing.T) {
	cases := map[string]string{
		"меня зовут Игорь":  "Игорь",
		"Оля":               "Оля",
		"можно просто Саша": "Саша",
		"!!!":               "",
	}
	for in, want := range cases {
		if got := extractName(in); got != want {
			t.Fatalf("extractName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUserLocksSerializePerUser(t *testing.T) {
	locks := newUserLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(7)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("lost updates under per-user lock: %d", counter)
	}
}
