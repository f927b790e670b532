package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSummaryOverlap is returned when a summary's message range overlaps
// the user's previous summary.
var ErrSummaryOverlap = errors.New("summary range overlaps previous summary")

// AddSummary persists a conversation summary after verifying its range
// starts after the previous summary's end.
func (s *Store) AddSummary(sum *ConversationSummary) (int64, error) {
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("add summary: %w", err)
	}
	defer tx.Rollback()

	var lastTo sql.NullInt64
	err = tx.QueryRow(`
		SELECT MAX(to_message_id) FROM conversation_summaries WHERE user_id = ?
	`, sum.UserID).Scan(&lastTo)
	if err != nil {
		return 0, fmt.Errorf("add summary check: %w", err)
	}
	if lastTo.Valid && sum.FromMessageID <= lastTo.Int64 {
		return 0, ErrSummaryOverlap
	}

	res, err := tx.Exec(`
		INSERT INTO conversation_summaries (user_id, summary, from_message_id,
			to_message_id, messages_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sum.UserID, sum.Summary, sum.FromMessageID, sum.ToMessageID,
		sum.MessagesCount, fmtTime(sum.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("add summary: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add summary id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add summary commit: %w", err)
	}
	sum.ID = id
	return id, nil
}

// RecentSummaries returns the user's last n summaries, oldest first.
func (s *Store) RecentSummaries(userID int64, n int) ([]*ConversationSummary, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, summary, from_message_id, to_message_id, messages_count, created_at
		FROM conversation_summaries
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("recent summaries: %w", err)
	}
	defer rows.Close()

	var sums []*ConversationSummary
	for rows.Next() {
		var (
			cs      ConversationSummary
			created string
		)
		if err := rows.Scan(&cs.ID, &cs.UserID, &cs.Summary, &cs.FromMessageID,
			&cs.ToMessageID, &cs.MessagesCount, &created); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		cs.CreatedAt = parseTime(created)
		sums = append(sums, &cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	for i, j := 0, len(sums)-1; i < j; i, j = i+1, j-1 {
		sums[i], sums[j] = sums[j], sums[i]
	}
	return sums, nil
}

// LastSummary returns the user's newest summary, or nil.
func (s *Store) LastSummary(userID int64) (*ConversationSummary, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, summary, from_message_id, to_message_id, messages_count, created_at
		FROM conversation_summaries
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, userID)

	var (
		cs      ConversationSummary
		created string
	)
	err := row.Scan(&cs.ID, &cs.UserID, &cs.Summary, &cs.FromMessageID,
		&cs.ToMessageID, &cs.MessagesCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last summary: %w", err)
	}
	cs.CreatedAt = parseTime(created)
	return &cs, nil
}
