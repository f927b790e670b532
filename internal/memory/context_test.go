package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/ryadomlab/ryadom/internal/store"
)

func TestAssembleContextRelevanceAndAccess(t *testing.T) {
	m, s, u := newTestManager(t, &fakeLLM{})

	tagged, _ := s.AddMemory(&store.Memory{
		UserID: u.ID, Fact: "работает в банке", Category: "work",
		Importance: 7, Tags: []string{"работа", "банк"},
	})
	byText, _ := s.AddMemory(&store.Memory{
		UserID: u.ID, Fact: "говорит «работа спасает кофе», когда устал", Category: "preference", Importance: 3,
	})
	unrelated, _ := s.AddMemory(&store.Memory{
		UserID: u.ID, Fact: "боится высоты", Category: "other", Importance: 5,
	})

	ctx, err := m.AssembleContext(u.ID, "работа спасает кофе", u)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if len(ctx.AllMemories) != 3 {
		t.Fatalf("expected all memories, got %d", len(ctx.AllMemories))
	}
	if len(ctx.RelevantMemories) != 1 || ctx.RelevantMemories[0].ID != tagged {
		t.Fatalf("expected tag-matched memory, got %+v", ctx.RelevantMemories)
	}

	all, _ := s.AllMemories(u.ID)
	accessed := map[int64]bool{}
	for _, mem := range all {
		accessed[mem.ID] = mem.LastAccessedAt != nil
	}
	if !accessed[tagged] || !accessed[byText] {
		t.Fatalf("matched memories must be marked accessed: %+v", accessed)
	}
	if accessed[unrelated] {
		t.Fatalf("unmatched memory must not be touched")
	}
}

func TestAssembleContextDefaults(t *testing.T) {
	m, _, u := newTestManager(t, &fakeLLM{})

	ctx, err := m.AssembleContext(u.ID, "привет", u)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if ctx.DaysSinceLastChat != 0 {
		t.Fatalf("no last-active must mean 0 days, got %d", ctx.DaysSinceLastChat)
	}
	if ctx.CurrentMood != nil {
		t.Fatalf("no moods yet, got %+v", ctx.CurrentMood)
	}
	switch ctx.TimeOfDay {
	case "morning", "afternoon", "evening", "night":
	default:
		t.Fatalf("unexpected time of day %q", ctx.TimeOfDay)
	}
}

func TestTimeOfDayBuckets(t *testing.T) {
	cases := map[int]string{
		5: "morning", 11: "morning",
		12: "afternoon", 16: "afternoon",
		17: "evening", 21: "evening",
		22: "night", 3: "night",
	}
	for hour, want := range cases {
		if got := timeOfDay(hour); got != want {
			t.Fatalf("timeOfDay(%d) = %q, want %q", hour, got, want)
		}
	}
}

func TestRenderMentionsPainfulTopics(t *testing.T) {
	m, s, u := newTestManager(t, &fakeLLM{})
	if _, err := s.AddMemory(&store.Memory{
		UserID: u.ID, Fact: "недавно умер отец", Category: "family",
		Importance: 10, EmotionalWeight: store.WeightPainful,
	}); err != nil {
		t.Fatalf("add memory: %v", err)
	}

	ctx, err := m.AssembleContext(u.ID, "привет", u)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	rendered := ctx.Render()
	if !strings.Contains(rendered, "недавно умер отец") {
		t.Fatalf("fact missing from rendered context:\n%s", rendered)
	}
	if !strings.Contains(rendered, "болезненная тема") {
		t.Fatalf("painful marker missing:\n%s", rendered)
	}
}

func seedMessages(t *testing.T, s *store.Store, userID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if _, err := s.SaveMessage(&store.Message{
			UserID: userID, Role: role, Content: fmt.Sprintf("сообщение %d", i),
		}); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}
}

func TestShouldSummarizeThresholds(t *testing.T) {
	m, s, u := newTestManager(t, &fakeLLM{summary: "сводка"})

	seedMessages(t, s, u.ID, 49)
	if due, _ := m.ShouldSummarize(u.ID); due {
		t.Fatalf("49 messages must not trigger")
	}
	seedMessages(t, s, u.ID, 1)
	if due, _ := m.ShouldSummarize(u.ID); !due {
		t.Fatalf("50 messages must trigger")
	}

	if _, err := m.CreateSummary(context.Background(), u.ID); err != nil {
		t.Fatalf("create summary: %v", err)
	}
	if due, _ := m.ShouldSummarize(u.ID); due {
		t.Fatalf("fresh summary must reset the trigger")
	}

	seedMessages(t, s, u.ID, 49)
	if due, _ := m.ShouldSummarize(u.ID); due {
		t.Fatalf("49 since last summary must not trigger")
	}
	seedMessages(t, s, u.ID, 1)
	if due, _ := m.ShouldSummarize(u.ID); !due {
		t.Fatalf("50 since last summary must trigger")
	}
}

func TestCreateSummaryContiguousRanges(t *testing.T) {
	m, s, u := newTestManager(t, &fakeLLM{summary: "сводка"})

	seedMessages(t, s, u.ID, 100)
	if _, err := m.CreateSummary(context.Background(), u.ID); err != nil {
		t.Fatalf("first summary: %v", err)
	}
	if _, err := m.CreateSummary(context.Background(), u.ID); err != nil {
		t.Fatalf("second summary: %v", err)
	}

	sums, err := s.RecentSummaries(u.ID, 5)
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(sums))
	}
	if sums[1].FromMessageID != sums[0].ToMessageID+1 {
		t.Fatalf("ranges must be contiguous: %+v then %+v", sums[0], sums[1])
	}

	left, _ := s.OldestUnsummarized(u.ID, 200)
	if len(left) != 0 {
		t.Fatalf("all 100 messages should be flagged, %d left", len(left))
	}
}

func TestCreateSummarySkipsSmallWindow(t *testing.T) {
	m, s, u := newTestManager(t, &fakeLLM{summary: "сводка"})

	seedMessages(t, s, u.ID, 9)
	got, err := m.CreateSummary(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("create summary: %v", err)
	}
	if got != "" {
		t.Fatalf("expected skip below minimum, got %q", got)
	}
	if last, _ := s.LastSummary(u.ID); last != nil {
		t.Fatalf("no summary row expected: %+v", last)
	}
}

func TestCreateSummaryEmptyResultLeavesNoPartialState(t *testing.T) {
	m, s, u := newTestManager(t, &fakeLLM{summary: ""})

	seedMessages(t, s, u.ID, 50)
	if _, err := m.CreateSummary(context.Background(), u.ID); err != nil {
		t.Fatalf("create summary: %v", err)
	}
	if last, _ := s.LastSummary(u.ID); last != nil {
		t.Fatalf("failed summarize must not persist a row")
	}
	left, _ := s.OldestUnsummarized(u.ID, 100)
	if len(left) != 50 {
		t.Fatalf("messages must stay unsummarized, %d left", len(left))
	}
}
