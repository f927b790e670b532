package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/claude"
	"github.com/ryadomlab/ryadom/internal/store"
)

type fakeLLM struct {
	mood       *claude.MoodResult
	extraction *claude.Extraction
	summary    string

	moodCalls    int
	extractCalls int
}

func (f *fakeLLM) InferMood(ctx context.Context, message string, recent []claude.Turn) (*claude.MoodResult, error) {
	f.moodCalls++
	return f.mood, nil
}

func (f *fakeLLM) ExtractMemory(ctx context.Context, message string, window []claude.Turn, knownFacts, knownPersons []string) (*claude.Extraction, error) {
	f.extractCalls++
	return f.extraction, nil
}

func (f *fakeLLM) Summarize(ctx context.Context, window []claude.Turn) (string, error) {
	return f.summary, nil
}

func newTestManager(t *testing.T, llm *fakeLLM) (*Manager, *store.Store, *store.User) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	u, err := s.GetOrCreateUser(100)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return NewManager(s, llm, zerolog.Nop()), s, u
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("Я сегодня говорил с мамой про работу и отпуск")
	want := []string{"говорил", "мамой", "про", "работу", "отпуск"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("keywords = %v, want %v", got, want)
	}
}

func TestExtractKeywordsCap(t *testing.T) {
	text := ""
	for i := 0; i < 15; i++ {
		text += fmt.Sprintf("слово%d ", i)
	}
	if got := ExtractKeywords(text); len(got) != 10 {
		t.Fatalf("expected 10 keywords, got %d", len(got))
	}
}

func TestProcessMessageSavesMood(t *testing.T) {
	llm := &fakeLLM{
		mood:       &claude.MoodResult{MoodScore: 4, PrimaryEmotion: "усталость"},
		extraction: &claude.Extraction{},
	}
	m, s, u := newTestManager(t, llm)

	res, err := m.ProcessMessage(context.Background(), u.ID, "устал на работе")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.RequiresAttention {
		t.Fatalf("unexpected attention flag")
	}

	mood, err := s.LatestMoodEntry(u.ID)
	if err != nil {
		t.Fatalf("latest mood: %v", err)
	}
	if mood == nil || mood.MoodScore != 4 || mood.Source != "auto" {
		t.Fatalf("mood not persisted: %+v", mood)
	}
	if llm.extractCalls != 1 {
		t.Fatalf("expected extraction to run, calls=%d", llm.extractCalls)
	}
}

func TestProcessMessageCrisisSkipsExtraction(t *testing.T) {
	llm := &fakeLLM{
		mood: &claude.MoodResult{MoodScore: 1, RequiresAttention: true},
		extraction: &claude.Extraction{
			Facts: []claude.FactCandidate{{Fact: "не должно сохраниться"}},
		},
	}
	m, s, u := newTestManager(t, llm)

	res, err := m.ProcessMessage(context.Background(), u.ID, "не могу больше")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.RequiresAttention {
		t.Fatalf("expected attention flag")
	}
	if llm.extractCalls != 0 {
		t.Fatalf("extraction must be skipped in crisis, calls=%d", llm.extractCalls)
	}

	mood, _ := s.LatestMoodEntry(u.ID)
	if mood == nil || !mood.RequiresAttention {
		t.Fatalf("crisis mood entry must still be persisted: %+v", mood)
	}
	mems, _ := s.AllMemories(u.ID)
	if len(mems) != 0 {
		t.Fatalf("no memories expected, got %d", len(mems))
	}
}

func TestProcessMessageNilMoodContinues(t *testing.T) {
	llm := &fakeLLM{
		extraction: &claude.Extraction{
			Facts: []claude.FactCandidate{{Fact: "любит кофе", Category: "preference"}},
		},
	}
	m, s, u := newTestManager(t, llm)

	if _, err := m.ProcessMessage(context.Background(), u.ID, "обожаю кофе"); err != nil {
		t.Fatalf("process: %v", err)
	}
	mems, _ := s.AllMemories(u.ID)
	if len(mems) != 1 {
		t.Fatalf("extraction should run without mood, got %d memories", len(mems))
	}
}

func TestApplyFactKeyedUpsert(t *testing.T) {
	llm := &fakeLLM{
		extraction: &claude.Extraction{
			Facts: []claude.FactCandidate{{Fact: "работает в школе", MemoryKey: "job", Importance: 7}},
		},
	}
	m, s, u := newTestManager(t, llm)

	if _, err := m.ProcessMessage(context.Background(), u.ID, "я учитель"); err != nil {
		t.Fatalf("process: %v", err)
	}
	first, _ := s.CurrentMemoryByKey(u.ID, "job")
	if first == nil {
		t.Fatalf("keyed fact not stored")
	}

	llm.extraction = &claude.Extraction{
		Facts: []claude.FactCandidate{{Fact: "работает в банке", MemoryKey: "job"}},
	}
	if _, err := m.ProcessMessage(context.Background(), u.ID, "сменил работу"); err != nil {
		t.Fatalf("process: %v", err)
	}

	second, _ := s.CurrentMemoryByKey(u.ID, "job")
	if second.ID != first.ID {
		t.Fatalf("keyed restatement must keep row id: %d vs %d", first.ID, second.ID)
	}
	if second.Fact != "работает в банке" || len(second.History) != 1 {
		t.Fatalf("expected rewritten fact with history: %+v", second)
	}
	all, _ := s.AllMemories(u.ID)
	if len(all) != 1 {
		t.Fatalf("expected single current row for key, got %d", len(all))
	}
}

func TestApplyFactUserNameUpdatesUser(t *testing.T) {
	llm := &fakeLLM{
		extraction: &claude.Extraction{
			Facts: []claude.FactCandidate{{Fact: "Зовут Игорь", MemoryKey: "user_name"}},
		},
	}
	m, s, u := newTestManager(t, llm)

	if _, err := m.ProcessMessage(context.Background(), u.ID, "меня зовут Игорь"); err != nil {
		t.Fatalf("process: %v", err)
	}
	refreshed, _ := s.UserByID(u.ID)
	if refreshed.Name != "Игорь" {
		t.Fatalf("user name not captured: %q", refreshed.Name)
	}
}

func TestApplyPersonMerge(t *testing.T) {
	llm := &fakeLLM{
		extraction: &claude.Extraction{
			Persons: []claude.PersonCandidate{{Name: "Мама", Relation: "мать", EmotionalTone: "тёплый"}},
		},
	}
	m, s, u := newTestManager(t, llm)

	if _, err := m.ProcessMessage(context.Background(), u.ID, "говорил с мамой"); err != nil {
		t.Fatalf("process: %v", err)
	}

	llm.extraction = &claude.Extraction{
		Persons: []claude.PersonCandidate{{Name: "мама", Notes: "переехала в Казань"}},
	}
	if _, err := m.ProcessMessage(context.Background(), u.ID, "мама переехала"); err != nil {
		t.Fatalf("process: %v", err)
	}

	persons, _ := s.AllPersons(u.ID)
	if len(persons) != 1 {
		t.Fatalf("restatement must merge, got %d persons", len(persons))
	}
	if persons[0].Notes != "переехала в Казань" {
		t.Fatalf("notes not merged: %q", persons[0].Notes)
	}
	if persons[0].EmotionalTone != "тёплый" {
		t.Fatalf("absent tone must not erase existing one: %q", persons[0].EmotionalTone)
	}
}

func TestApplyEventDateAndPersonLink(t *testing.T) {
	llm := &fakeLLM{
		extraction: &claude.Extraction{
			Persons: []claude.PersonCandidate{{Name: "Анна", Relation: "сестра"}},
			Events: []claude.EventCandidate{
				{Title: "свадьба сестры", Date: "2026-09-12", PersonName: "Анна"},
				{Title: "что-то скоро", Date: "в следующем месяце"},
			},
		},
	}
	m, s, u := newTestManager(t, llm)

	if _, err := m.ProcessMessage(context.Background(), u.ID, "у Анны свадьба"); err != nil {
		t.Fatalf("process: %v", err)
	}

	events, _ := s.RecentLifeEvents(u.ID, 30, 10)
	if len(events) != 2 {
		t.Fatalf("expected both events stored, got %d", len(events))
	}
	byTitle := map[string]*store.LifeEvent{}
	for _, e := range events {
		byTitle[e.Title] = e
	}
	wedding := byTitle["свадьба сестры"]
	if wedding.EventDate == nil || wedding.EventDate.Format("2006-01-02") != "2026-09-12" {
		t.Fatalf("date not parsed: %+v", wedding.EventDate)
	}
	if wedding.RelatedPersonID == nil {
		t.Fatalf("person link not resolved")
	}
	vague := byTitle["что-то скоро"]
	if vague.EventDate != nil {
		t.Fatalf("vague date must be dropped, got %v", vague.EventDate)
	}
}

func TestApplyUpdateTargeting(t *testing.T) {
	llm := &fakeLLM{extraction: &claude.Extraction{
		Facts: []claude.FactCandidate{
			{Fact: "живёт в Москве", MemoryKey: "city"},
			{Fact: "играет на гитаре по выходным", Category: "hobby"},
		},
	}}
	m, s, u := newTestManager(t, llm)
	if _, err := m.ProcessMessage(context.Background(), u.ID, "о себе"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	llm.extraction = &claude.Extraction{Updates: []claude.UpdateCandidate{
		{MemoryKey: "city", NewFact: "живёт в Казани"},
		{OldFactContains: "гитаре", NewFact: "забросил гитару"},
		{OldFactContains: "про это никто не говорил", NewFact: "не должно появиться"},
	}}
	res := &ProcessResult{}
	existing, _ := s.AllMemories(u.ID)
	m.applyExtraction(u.ID, llm.extraction, existing, res)

	if res.UpdatesApplied != 2 {
		t.Fatalf("expected 2 applied updates, got %d", res.UpdatesApplied)
	}
	city, _ := s.CurrentMemoryByKey(u.ID, "city")
	if city.Fact != "живёт в Казани" {
		t.Fatalf("keyed update not applied: %q", city.Fact)
	}
	all, _ := s.AllMemories(u.ID)
	if len(all) != 2 {
		t.Fatalf("unmatched update must not create rows, got %d", len(all))
	}
	for _, mem := range all {
		if mem.Fact == "не должно появиться" {
			t.Fatalf("dropped update leaked into store")
		}
	}
}

func TestExtractNameFromFact(t *testing.T) {
	cases := map[string]string{
		"Имя: Игорь":      "Игорь",
		"Зовут Маша":      "Маша",
		"Меня зовут Олег": "Олег",
		"просто текст":    "",
	}
	for fact, want := range cases {
		if got := extractNameFromFact(fact); got != want {
			t.Fatalf("extractNameFromFact(%q) = %q, want %q", fact, got, want)
		}
	}
}
