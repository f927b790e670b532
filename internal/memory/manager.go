package memory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/claude"
	"github.com/ryadomlab/ryadom/internal/store"
)

// Completer is the slice of the completion client the memory layer
// depends on.
type Completer interface {
	InferMood(ctx context.Context, message string, recent []claude.Turn) (*claude.MoodResult, error)
	ExtractMemory(ctx context.Context, message string, window []claude.Turn, knownFacts, knownPersons []string) (*claude.Extraction, error)
	Summarize(ctx context.Context, window []claude.Turn) (string, error)
}

// Manager runs the per-message memory work: mood inference, extraction
// and merge, context assembly, summarization.
type Manager struct {
	store *store.Store
	llm   Completer
	log   zerolog.Logger
}

func NewManager(s *store.Store, llm Completer, logger zerolog.Logger) *Manager {
	return &Manager{
		store: s,
		llm:   llm,
		log:   logger.With().Str("component", "memory").Logger(),
	}
}

// ProcessResult reports what one user message produced.
type ProcessResult struct {
	Mood              *claude.MoodResult
	RequiresAttention bool
	FactsAdded        int
	PersonsTouched    int
	EventsAdded       int
	UpdatesApplied    int
}

// ProcessMessage infers mood and extracts memories from one user
// message. A crisis signal short-circuits extraction: the turn belongs
// to the crisis response, not to bookkeeping. Inference failures
// degrade to "no mood detected" and never block.
func (m *Manager) ProcessMessage(ctx context.Context, userID int64, message string) (*ProcessResult, error) {
	result := &ProcessResult{}

	recent, err := m.store.RecentMessages(userID, 10)
	if err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	window := toTurns(recent)

	mood, err := m.llm.InferMood(ctx, message, window)
	if err != nil {
		m.log.Warn().Err(err).Int64("user_id", userID).Msg("mood inference error")
	}
	if mood != nil {
		result.Mood = mood
		if _, err := m.store.AddMoodEntry(&store.MoodEntry{
			UserID:            userID,
			MoodScore:         mood.MoodScore,
			EnergyLevel:       mood.EnergyLevel,
			AnxietyLevel:      mood.AnxietyLevel,
			PrimaryEmotion:    mood.PrimaryEmotion,
			SecondaryEmotions: mood.SecondaryEmotions,
			EmotionalNeed:     mood.EmotionalNeed,
			Source:            "auto",
			RequiresAttention: mood.RequiresAttention,
		}); err != nil {
			m.log.Warn().Err(err).Int64("user_id", userID).Msg("save mood failed")
		}
		if mood.RequiresAttention {
			result.RequiresAttention = true
			m.log.Warn().Int64("user_id", userID).
				Str("emotion", mood.PrimaryEmotion).
				Msg("message requires attention")
			return result, nil
		}
	}

	if err := m.extractAndMerge(ctx, userID, message, window, result); err != nil {
		m.log.Warn().Err(err).Int64("user_id", userID).Msg("extraction skipped")
	}
	return result, nil
}

func (m *Manager) extractAndMerge(ctx context.Context, userID int64, message string, window []claude.Turn, result *ProcessResult) error {
	memories, err := m.store.AllMemories(userID)
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}
	persons, err := m.store.AllPersons(userID)
	if err != nil {
		return fmt.Errorf("load persons: %w", err)
	}

	knownFacts := make([]string, 0, len(memories))
	for _, mem := range memories {
		knownFacts = append(knownFacts, mem.Fact)
	}
	knownPersons := make([]string, 0, len(persons))
	for _, p := range persons {
		knownPersons = append(knownPersons, fmt.Sprintf("%s (%s)", p.Name, p.Relation))
	}

	if len(window) > 5 {
		window = window[len(window)-5:]
	}
	ext, err := m.llm.ExtractMemory(ctx, message, window, knownFacts, knownPersons)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if ext == nil {
		return nil
	}

	m.applyExtraction(userID, ext, memories, result)
	return nil
}

func toTurns(msgs []*store.Message) []claude.Turn {
	turns := make([]claude.Turn, 0, len(msgs))
	for _, msg := range msgs {
		turns = append(turns, claude.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}
