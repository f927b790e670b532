package store

import (
	"fmt"
	"strings"
	"time"
)

func (s *Store) SaveMessage(m *Message) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`
		INSERT INTO messages (user_id, role, content, tokens_used, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.UserID, m.Role, m.Content, m.TokensUsed, m.ResponseTimeMs, fmtTime(m.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save message id: %w", err)
	}
	m.ID = id
	return id, nil
}

// RecentMessages returns the last n messages in chronological order.
func (s *Store) RecentMessages(userID int64, n int) ([]*Message, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, role, content, tokens_used, response_time_ms, is_summarized, created_at
		FROM messages
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			m       Message
			created string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content,
			&m.TokensUsed, &m.ResponseTimeMs, &m.IsSummarized, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseTime(created)
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	// reverse into chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountUserMessagesToday counts the user's own messages for the current
// UTC day.
func (s *Store) CountUserMessagesToday(userID int64, now time.Time) (int, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM messages
		WHERE user_id = ? AND role = 'user' AND created_at >= ?
	`, userID, fmtTime(dayStart)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages today: %w", err)
	}
	return count, nil
}

func (s *Store) TotalMessages(userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM messages WHERE user_id = ?
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("total messages: %w", err)
	}
	return count, nil
}

// CountMessagesAfter counts messages with id strictly greater than afterID.
func (s *Store) CountMessagesAfter(userID, afterID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM messages WHERE user_id = ? AND id > ?
	`, userID, afterID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages after: %w", err)
	}
	return count, nil
}

// OldestUnsummarized returns up to n not-yet-summarized messages,
// oldest first.
func (s *Store) OldestUnsummarized(userID int64, n int) ([]*Message, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, role, content, tokens_used, response_time_ms, is_summarized, created_at
		FROM messages
		WHERE user_id = ? AND is_summarized = 0
		ORDER BY id ASC
		LIMIT ?
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("oldest unsummarized: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var (
			m       Message
			created string
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content,
			&m.TokensUsed, &m.ResponseTimeMs, &m.IsSummarized, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseTime(created)
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func (s *Store) MarkMessagesSummarized(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`UPDATE messages SET is_summarized = 1 WHERE id IN (%s)`,
		placeholders(len(ids)))
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("mark summarized: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
