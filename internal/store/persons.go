package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

func (s *Store) AddPerson(p *Person) (int64, error) {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.ImportantDates == nil {
		p.ImportantDates = map[string]string{}
	}
	res, err := s.db.Exec(`
		INSERT INTO persons (user_id, name, relation, notes, emotional_tone,
			important_dates, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, p.UserID, p.Name, p.Relation, p.Notes, p.EmotionalTone,
		marshalJSON(p.ImportantDates), fmtTime(p.CreatedAt), fmtTime(now))
	if err != nil {
		return 0, fmt.Errorf("add person: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add person id: %w", err)
	}
	p.ID = id
	p.IsActive = true
	return id, nil
}

// AllPersons returns the user's active persons, newest first.
func (s *Store) AllPersons(userID int64) ([]*Person, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, name, relation, notes, emotional_tone,
			important_dates, is_active, created_at, updated_at
		FROM persons
		WHERE user_id = ? AND is_active = 1
		ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("all persons: %w", err)
	}
	defer rows.Close()

	var persons []*Person
	for rows.Next() {
		var (
			p         Person
			dates     string
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Relation, &p.Notes,
			&p.EmotionalTone, &dates, &p.IsActive, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		p.ImportantDates = unmarshalStringMap(dates)
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		persons = append(persons, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// FindPersonByName resolves a name by case-insensitive substring match
// over active persons, newest first: the needle must occur inside the
// stored name, never the other way around. A longer extracted name
// ("Аня Иванова") does not collapse into a stored "Аня". The first
// match wins; ambiguity is accepted.
func (s *Store) FindPersonByName(userID int64, name string) (*Person, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, nil
	}
	persons, err := s.AllPersons(userID)
	if err != nil {
		return nil, err
	}
	for _, p := range persons {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			return p, nil
		}
	}
	return nil, nil
}

// PersonUpdate carries partial fields; nil means leave unchanged.
type PersonUpdate struct {
	Relation       *string
	Notes          *string
	EmotionalTone  *string
	ImportantDates map[string]string
}

func (s *Store) UpdatePerson(personID int64, upd PersonUpdate) error {
	var (
		relation string
		notes    string
		tone     string
		dates    string
	)
	err := s.db.QueryRow(`
		SELECT relation, notes, emotional_tone, important_dates FROM persons WHERE id = ?
	`, personID).Scan(&relation, &notes, &tone, &dates)
	if err != nil {
		return fmt.Errorf("update person load: %w", err)
	}

	if upd.Relation != nil {
		relation = *upd.Relation
	}
	if upd.Notes != nil {
		notes = *upd.Notes
	}
	if upd.EmotionalTone != nil {
		tone = *upd.EmotionalTone
	}
	merged := unmarshalStringMap(dates)
	for k, v := range upd.ImportantDates {
		merged[k] = v
	}

	_, err = s.db.Exec(`
		UPDATE persons SET relation = ?, notes = ?, emotional_tone = ?,
			important_dates = ?, updated_at = ?
		WHERE id = ?
	`, relation, notes, tone, marshalJSON(merged), fmtTime(time.Now()), personID)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	return nil
}

func (s *Store) PersonByID(id int64) (*Person, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, name, relation, notes, emotional_tone,
			important_dates, is_active, created_at, updated_at
		FROM persons WHERE id = ?
	`, id)
	var (
		p         Person
		dates     string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Relation, &p.Notes,
		&p.EmotionalTone, &dates, &p.IsActive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("person by id: %w", err)
	}
	p.ImportantDates = unmarshalStringMap(dates)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// UpcomingDates computes occurrences of persons' important dates within
// the horizon, rolling month-day into next year when this year's
// occurrence already passed. Unparsable dates are skipped.
func (s *Store) UpcomingDates(userID int64, now time.Time, horizonDays int) ([]UpcomingDate, error) {
	persons, err := s.AllPersons(userID)
	if err != nil {
		return nil, err
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var upcoming []UpcomingDate
	for _, p := range persons {
		for dateType, raw := range p.ImportantDates {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				continue
			}
			next := time.Date(today.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
			if next.Before(today) {
				next = next.AddDate(1, 0, 0)
			}
			daysUntil := int(next.Sub(today).Hours() / 24)
			if daysUntil <= horizonDays {
				upcoming = append(upcoming, UpcomingDate{
					PersonName: p.Name,
					DateType:   dateType,
					Date:       next,
					DaysUntil:  daysUntil,
				})
			}
		}
	}
	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].DaysUntil < upcoming[j].DaysUntil
	})
	return upcoming, nil
}
