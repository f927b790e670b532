package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/ryadomlab/ryadom/internal/claude"
	"github.com/ryadomlab/ryadom/internal/store"
)

const (
	relevantMemoryCap = 10
	personSummaryCap  = 15
	recentEventDays   = 30
	recentEventCap    = 10
	upcomingHorizon   = 14
	moodHistoryDays   = 7
	summaryCount      = 3
	recentMessageCap  = 20
)

// AssembledContext is everything the reply generator should "remember"
// for one turn.
type AssembledContext struct {
	Messages          []claude.Turn
	AllMemories       []*store.Memory
	RelevantMemories  []*store.Memory
	Persons           []*store.Person
	RecentEvents      []*store.LifeEvent
	UpcomingDates     []store.UpcomingDate
	MoodHistory       []*store.MoodEntry
	CurrentMood       *store.MoodEntry
	Summaries         []*store.ConversationSummary
	TimeOfDay         string
	DaysSinceLastChat int
}

// AssembleContext gathers the full context for responding to a message.
// Memories matched by keyword or text get their access time touched;
// nothing else writes that column.
func (m *Manager) AssembleContext(userID int64, message string, user *store.User) (*AssembledContext, error) {
	now := time.Now()

	allMemories, err := m.store.AllMemories(userID)
	if err != nil {
		return nil, fmt.Errorf("assemble memories: %w", err)
	}

	var relevant []*store.Memory
	if keywords := ExtractKeywords(message); len(keywords) > 0 {
		byTags := searchByTags(allMemories, keywords)
		byText := searchByText(allMemories, message)

		seen := make(map[int64]struct{})
		var accessed []int64
		for _, mem := range append(byTags, byText...) {
			if _, dup := seen[mem.ID]; dup {
				continue
			}
			seen[mem.ID] = struct{}{}
			accessed = append(accessed, mem.ID)
		}
		if len(accessed) > 0 {
			if err := m.store.MarkMemoriesAccessed(accessed); err != nil {
				m.log.Warn().Err(err).Int64("user_id", userID).Msg("mark accessed failed")
			}
		}

		relevant = byTags
		if len(relevant) > relevantMemoryCap {
			relevant = relevant[:relevantMemoryCap]
		}
	}

	persons, err := m.store.AllPersons(userID)
	if err != nil {
		return nil, fmt.Errorf("assemble persons: %w", err)
	}
	events, err := m.store.RecentLifeEvents(userID, recentEventDays, recentEventCap)
	if err != nil {
		return nil, fmt.Errorf("assemble events: %w", err)
	}
	upcoming, err := m.store.UpcomingDates(userID, now, upcomingHorizon)
	if err != nil {
		return nil, fmt.Errorf("assemble upcoming dates: %w", err)
	}
	moods, err := m.store.RecentMoodEntries(userID, moodHistoryDays)
	if err != nil {
		return nil, fmt.Errorf("assemble moods: %w", err)
	}
	summaries, err := m.store.RecentSummaries(userID, summaryCount)
	if err != nil {
		return nil, fmt.Errorf("assemble summaries: %w", err)
	}
	messages, err := m.store.RecentMessages(userID, recentMessageCap)
	if err != nil {
		return nil, fmt.Errorf("assemble messages: %w", err)
	}

	var currentMood *store.MoodEntry
	if len(moods) > 0 {
		currentMood = moods[0]
	}

	daysSince := 0
	if user != nil && user.LastActiveAt != nil {
		daysSince = int(now.UTC().Sub(user.LastActiveAt.UTC()).Hours() / 24)
		if daysSince < 0 {
			daysSince = 0
		}
	}

	return &AssembledContext{
		Messages:          toTurns(messages),
		AllMemories:       allMemories,
		RelevantMemories:  relevant,
		Persons:           persons,
		RecentEvents:      events,
		UpcomingDates:     upcoming,
		MoodHistory:       moods,
		CurrentMood:       currentMood,
		Summaries:         summaries,
		TimeOfDay:         timeOfDay(now.Hour()),
		DaysSinceLastChat: daysSince,
	}, nil
}

func timeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

var timeOfDayRu = map[string]string{
	"morning":   "утро",
	"afternoon": "день",
	"evening":   "вечер",
	"night":     "ночь",
}

// Render formats the context as the prompt block the reply generator
// receives.
func (a *AssembledContext) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Сейчас: %s.", timeOfDayRu[a.TimeOfDay])
	if a.DaysSinceLastChat > 0 {
		fmt.Fprintf(&b, " Человек не писал %d дн.", a.DaysSinceLastChat)
	}
	b.WriteString("\n")

	if a.CurrentMood != nil {
		fmt.Fprintf(&b, "\nТекущее состояние: %d/10", a.CurrentMood.MoodScore)
		if a.CurrentMood.PrimaryEmotion != "" {
			fmt.Fprintf(&b, ", %s", a.CurrentMood.PrimaryEmotion)
		}
		if a.CurrentMood.EmotionalNeed != "" {
			fmt.Fprintf(&b, "; нужно: %s", a.CurrentMood.EmotionalNeed)
		}
		b.WriteString("\n")
	}

	if len(a.AllMemories) > 0 {
		b.WriteString("\nЧто ты знаешь о человеке:\n")
		for _, m := range a.AllMemories {
			fmt.Fprintf(&b, "- %s", m.Fact)
			if m.EmotionalWeight == store.WeightPainful {
				b.WriteString(" [болезненная тема]")
			}
			b.WriteString("\n")
		}
	}

	if len(a.RelevantMemories) > 0 {
		b.WriteString("\nОсобенно относится к этому сообщению:\n")
		for _, m := range a.RelevantMemories {
			fmt.Fprintf(&b, "- %s\n", m.Fact)
		}
	}

	if len(a.Persons) > 0 {
		b.WriteString("\nЛюди в его жизни:\n")
		persons := a.Persons
		if len(persons) > personSummaryCap {
			persons = persons[:personSummaryCap]
		}
		for _, p := range persons {
			fmt.Fprintf(&b, "- %s (%s)", p.Name, p.Relation)
			if p.Notes != "" {
				fmt.Fprintf(&b, ": %s", p.Notes)
			}
			if p.EmotionalTone != "" && p.EmotionalTone != "neutral" {
				fmt.Fprintf(&b, " [%s]", p.EmotionalTone)
			}
			b.WriteString("\n")
		}
	}

	if len(a.RecentEvents) > 0 {
		b.WriteString("\nНедавние события:\n")
		for _, e := range a.RecentEvents {
			fmt.Fprintf(&b, "- %s", e.Title)
			if e.Description != "" {
				fmt.Fprintf(&b, ": %s", e.Description)
			}
			b.WriteString("\n")
		}
	}

	if len(a.UpcomingDates) > 0 {
		b.WriteString("\nБлижайшие даты:\n")
		for _, d := range a.UpcomingDates {
			fmt.Fprintf(&b, "- %s у %s через %d дн. (%s)\n",
				d.DateType, d.PersonName, d.DaysUntil, d.Date.Format("2006-01-02"))
		}
	}

	if len(a.Summaries) > 0 {
		b.WriteString("\nО чём говорили раньше:\n")
		for _, s := range a.Summaries {
			fmt.Fprintf(&b, "- %s\n", s.Summary)
		}
	}

	return strings.TrimSpace(b.String())
}
