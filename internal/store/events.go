package store

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) AddLifeEvent(e *LifeEvent) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.EmotionalWeight == "" {
		e.EmotionalWeight = WeightNeutral
	}
	var personID any
	if e.RelatedPersonID != nil {
		personID = *e.RelatedPersonID
	}
	res, err := s.db.Exec(`
		INSERT INTO life_events (user_id, title, description, event_date,
			is_recurring, emotional_weight, related_person_id, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.UserID, e.Title, e.Description, fmtNullTime(e.EventDate),
		e.IsRecurring, e.EmotionalWeight, personID, marshalJSON(e.Tags),
		fmtTime(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("add life event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add life event id: %w", err)
	}
	e.ID = id
	return id, nil
}

// RecentLifeEvents returns events recorded within the last `days`,
// newest first, capped at limit.
func (s *Store) RecentLifeEvents(userID int64, days, limit int) ([]*LifeEvent, error) {
	since := time.Now().AddDate(0, 0, -days)
	rows, err := s.db.Query(`
		SELECT id, user_id, title, description, event_date, is_recurring,
			emotional_weight, related_person_id, tags, created_at
		FROM life_events
		WHERE user_id = ? AND created_at >= ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, fmtTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("recent life events: %w", err)
	}
	defer rows.Close()

	var events []*LifeEvent
	for rows.Next() {
		var (
			e         LifeEvent
			eventDate sql.NullString
			personID  sql.NullInt64
			tags      string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Title, &e.Description,
			&eventDate, &e.IsRecurring, &e.EmotionalWeight, &personID,
			&tags, &createdAt); err != nil {
			return nil, fmt.Errorf("scan life event: %w", err)
		}
		e.EventDate = parseNullTime(eventDate)
		if personID.Valid {
			id := personID.Int64
			e.RelatedPersonID = &id
		}
		e.Tags = unmarshalStrings(tags)
		e.CreatedAt = parseTime(createdAt)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate life events: %w", err)
	}
	return events, nil
}
