package memory

import (
	"context"
	"fmt"

	"github.com/ryadomlab/ryadom/internal/store"
)

const (
	// summaryThreshold is how many messages accumulate before a
	// summary is due.
	summaryThreshold = 50
	// summaryMinMessages is the least worth summarizing.
	summaryMinMessages = 10
)

// ShouldSummarize reports whether enough conversation has accumulated
// since the last summary (or since the beginning).
func (m *Manager) ShouldSummarize(userID int64) (bool, error) {
	last, err := m.store.LastSummary(userID)
	if err != nil {
		return false, fmt.Errorf("should summarize: %w", err)
	}
	if last == nil {
		total, err := m.store.TotalMessages(userID)
		if err != nil {
			return false, fmt.Errorf("should summarize: %w", err)
		}
		return total >= summaryThreshold, nil
	}

	since, err := m.store.CountMessagesAfter(userID, last.ToMessageID)
	if err != nil {
		return false, fmt.Errorf("should summarize: %w", err)
	}
	return since >= summaryThreshold, nil
}

// CreateSummary condenses the oldest unsummarized window. Too few
// messages or an empty model result skips cleanly, leaving no partial
// state. The summary row is written before the messages are flagged,
// so a crash between the two leaves re-summarizable messages, never a
// summary gap.
func (m *Manager) CreateSummary(ctx context.Context, userID int64) (string, error) {
	msgs, err := m.store.OldestUnsummarized(userID, summaryThreshold)
	if err != nil {
		return "", fmt.Errorf("create summary: %w", err)
	}
	if len(msgs) < summaryMinMessages {
		return "", nil
	}

	summary, err := m.llm.Summarize(ctx, toTurns(msgs))
	if err != nil {
		m.log.Warn().Err(err).Int64("user_id", userID).Msg("summarize failed")
		return "", nil
	}
	if summary == "" {
		return "", nil
	}

	ids := make([]int64, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	if _, err := m.store.AddSummary(&store.ConversationSummary{
		UserID:        userID,
		Summary:       summary,
		FromMessageID: msgs[0].ID,
		ToMessageID:   msgs[len(msgs)-1].ID,
		MessagesCount: len(msgs),
	}); err != nil {
		return "", fmt.Errorf("save summary: %w", err)
	}
	if err := m.store.MarkMessagesSummarized(ids); err != nil {
		return "", fmt.Errorf("flag summarized: %w", err)
	}

	m.log.Info().Int64("user_id", userID).Int("messages", len(msgs)).Msg("conversation summarized")
	return summary, nil
}
