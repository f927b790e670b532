package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Store) AddMoodEntry(m *MoodEntry) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Source == "" {
		m.Source = "auto"
	}
	res, err := s.db.Exec(`
		INSERT INTO mood_entries (user_id, mood_score, energy_level, anxiety_level,
			primary_emotion, secondary_emotions, emotional_need, source,
			requires_attention, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.UserID, m.MoodScore, m.EnergyLevel, m.AnxietyLevel,
		m.PrimaryEmotion, marshalJSON(m.SecondaryEmotions), m.EmotionalNeed,
		m.Source, m.RequiresAttention, fmtTime(m.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("add mood: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add mood id: %w", err)
	}
	m.ID = id
	return id, nil
}

// RecentMoodEntries returns mood entries within the last `days`,
// newest first.
func (s *Store) RecentMoodEntries(userID int64, days int) ([]*MoodEntry, error) {
	since := time.Now().AddDate(0, 0, -days)
	rows, err := s.db.Query(`
		SELECT id, user_id, mood_score, energy_level, anxiety_level,
			primary_emotion, secondary_emotions, emotional_need, source,
			requires_attention, created_at
		FROM mood_entries
		WHERE user_id = ? AND created_at >= ?
		ORDER BY id DESC
	`, userID, fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("recent moods: %w", err)
	}
	defer rows.Close()

	var moods []*MoodEntry
	for rows.Next() {
		m, err := scanMoodRows(rows)
		if err != nil {
			return nil, err
		}
		moods = append(moods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moods: %w", err)
	}
	return moods, nil
}

func (s *Store) LatestMoodEntry(userID int64) (*MoodEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, mood_score, energy_level, anxiety_level,
			primary_emotion, secondary_emotions, emotional_need, source,
			requires_attention, created_at
		FROM mood_entries
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, userID)
	m, err := scanMoodRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest mood: %w", err)
	}
	return m, nil
}

// CrisisFollowUpUsers returns users whose newest mood entry requires
// attention and falls inside the [oldest, newest] age window.
func (s *Store) CrisisFollowUpUsers(now time.Time, minAge, maxAge time.Duration) ([]*User, error) {
	newest := fmtTime(now.Add(-minAge))
	oldest := fmtTime(now.Add(-maxAge))
	rows, err := s.db.Query(`
		SELECT `+userColumns+` FROM users
		WHERE is_active = 1 AND is_blocked = 0 AND id IN (
			SELECT m.user_id FROM mood_entries m
			WHERE m.id = (SELECT MAX(id) FROM mood_entries WHERE user_id = m.user_id)
			  AND m.requires_attention = 1
			  AND m.created_at >= ? AND m.created_at <= ?
		)
	`, oldest, newest)
	if err != nil {
		return nil, fmt.Errorf("crisis follow-up users: %w", err)
	}
	defer rows.Close()
	return s.collectUsers(rows)
}

func scanMood(sc rowScanner) (*MoodEntry, error) {
	var (
		m         MoodEntry
		secondary string
		createdAt string
	)
	err := sc.Scan(&m.ID, &m.UserID, &m.MoodScore, &m.EnergyLevel,
		&m.AnxietyLevel, &m.PrimaryEmotion, &secondary, &m.EmotionalNeed,
		&m.Source, &m.RequiresAttention, &createdAt)
	if err != nil {
		return nil, err
	}
	m.SecondaryEmotions = unmarshalStrings(secondary)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func scanMoodRow(row *sql.Row) (*MoodEntry, error) {
	return scanMood(row)
}

func scanMoodRows(rows *sql.Rows) (*MoodEntry, error) {
	m, err := scanMood(rows)
	if err != nil {
		return nil, fmt.Errorf("scan mood: %w", err)
	}
	return m, nil
}
