package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Store) AddMemory(m *Memory) (int64, error) {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.EmotionalWeight == "" {
		m.EmotionalWeight = WeightNeutral
	}
	var key any
	if m.MemoryKey != "" {
		key = m.MemoryKey
	}
	res, err := s.db.Exec(`
		INSERT INTO memories (user_id, fact, category, importance, emotional_weight,
			tags, memory_key, history, is_current, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '[]', 1, ?, ?)
	`, m.UserID, m.Fact, m.Category, m.Importance, m.EmotionalWeight,
		marshalJSON(m.Tags), key, fmtTime(m.CreatedAt), fmtTime(now))
	if err != nil {
		return 0, fmt.Errorf("add memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add memory id: %w", err)
	}
	m.ID = id
	m.IsCurrent = true
	return id, nil
}

// CurrentMemoryByKey returns the single current memory for a key, or
// nil when the key is unknown.
func (s *Store) CurrentMemoryByKey(userID int64, key string) (*Memory, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, fact, category, importance, emotional_weight,
			tags, memory_key, history, is_current, created_at, updated_at, last_accessed_at
		FROM memories
		WHERE user_id = ? AND memory_key = ? AND is_current = 1
	`, userID, key)
	m, err := scanMemoryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory by key: %w", err)
	}
	return m, nil
}

// UpdateMemoryFact rewrites a memory's fact in place, appending the old
// value to its history. The row id never changes.
func (s *Store) UpdateMemoryFact(memoryID int64, newFact string) error {
	var (
		oldFact    string
		historyRaw string
	)
	err := s.db.QueryRow(`
		SELECT fact, history FROM memories WHERE id = ?
	`, memoryID).Scan(&oldFact, &historyRaw)
	if err != nil {
		return fmt.Errorf("update memory load: %w", err)
	}

	var history []MemoryRevision
	if err := jsonUnmarshal(historyRaw, &history); err != nil {
		history = nil
	}
	now := time.Now()
	history = append(history, MemoryRevision{OldValue: oldFact, ChangedAt: now.UTC()})

	_, err = s.db.Exec(`
		UPDATE memories SET fact = ?, history = ?, updated_at = ? WHERE id = ?
	`, newFact, marshalJSON(history), fmtTime(now), memoryID)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	return nil
}

// AllMemories returns the user's current memories, most important and
// newest first.
func (s *Store) AllMemories(userID int64) ([]*Memory, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, fact, category, importance, emotional_weight,
			tags, memory_key, history, is_current, created_at, updated_at, last_accessed_at
		FROM memories
		WHERE user_id = ? AND is_current = 1
		ORDER BY importance DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("all memories: %w", err)
	}
	defer rows.Close()

	var memories []*Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return memories, nil
}

// MarkMemoriesAccessed touches last_accessed_at for the given rows.
// This is the only writer of that column.
func (s *Store) MarkMemoriesAccessed(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, fmtTime(time.Now()))
	for _, id := range ids {
		args = append(args, id)
	}
	query := fmt.Sprintf(`UPDATE memories SET last_accessed_at = ? WHERE id IN (%s)`,
		placeholders(len(ids)))
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("mark accessed: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(sc rowScanner) (*Memory, error) {
	var (
		m            Memory
		tags         string
		key          sql.NullString
		history      string
		createdAt    string
		updatedAt    string
		lastAccessed sql.NullString
	)
	err := sc.Scan(&m.ID, &m.UserID, &m.Fact, &m.Category, &m.Importance,
		&m.EmotionalWeight, &tags, &key, &history, &m.IsCurrent,
		&createdAt, &updatedAt, &lastAccessed)
	if err != nil {
		return nil, err
	}
	m.Tags = unmarshalStrings(tags)
	m.MemoryKey = key.String
	_ = jsonUnmarshal(history, &m.History)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	m.LastAccessedAt = parseNullTime(lastAccessed)
	return &m, nil
}

func scanMemoryRow(row *sql.Row) (*Memory, error) {
	return scanMemory(row)
}

func scanMemoryRows(rows *sql.Rows) (*Memory, error) {
	m, err := scanMemory(rows)
	if err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	return m, nil
}
