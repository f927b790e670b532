package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var (
		u          User
		name       sql.NullString
		prefs      string
		profile    string
		createdAt  string
		updatedAt  string
		lastActive sql.NullString
	)
	err := row.Scan(&u.ID, &u.ChatID, &name, &prefs, &profile,
		&u.OnboardingCompleted, &u.IsActive, &u.IsBlocked,
		&createdAt, &updatedAt, &lastActive)
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	u.Preferences = unmarshalAnyMap(prefs)
	u.Profile = unmarshalAnyMap(profile)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	u.LastActiveAt = parseNullTime(lastActive)
	return &u, nil
}

const userColumns = `id, chat_id, name, preferences, profile,
	onboarding_completed, is_active, is_blocked,
	created_at, updated_at, last_active_at`

func (s *Store) UserByChatID(chatID int64) (*User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE chat_id = ?`, chatID)
	u, err := s.scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user by chat id: %w", err)
	}
	return u, nil
}

func (s *Store) UserByID(id int64) (*User, error) {
	row := s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := s.scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user by id: %w", err)
	}
	return u, nil
}

// GetOrCreateUser returns the user for a chat, creating it together
// with an active free subscription on first contact.
func (s *Store) GetOrCreateUser(chatID int64) (*User, error) {
	if u, err := s.UserByChatID(chatID); err != nil {
		return nil, err
	} else if u != nil {
		return u, nil
	}

	now := fmtTime(time.Now())
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO users (chat_id, created_at, updated_at)
		VALUES (?, ?, ?)
	`, chatID, now, now)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create user id: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO subscriptions (user_id, plan, status, started_at)
		VALUES (?, 'free', 'active', ?)
	`, userID, now); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create user commit: %w", err)
	}

	s.log.Info().Int64("user_id", userID).Int64("chat_id", chatID).Msg("new user")
	return s.UserByChatID(chatID)
}

func (s *Store) UpdateUserName(userID int64, name string) error {
	_, err := s.db.Exec(`
		UPDATE users SET name = ?, updated_at = ? WHERE id = ?
	`, name, fmtTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return nil
}

func (s *Store) CompleteOnboarding(userID int64) error {
	_, err := s.db.Exec(`
		UPDATE users SET onboarding_completed = 1, updated_at = ? WHERE id = ?
	`, fmtTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	return nil
}

func (s *Store) TouchLastActive(userID int64) error {
	now := fmtTime(time.Now())
	_, err := s.db.Exec(`
		UPDATE users SET last_active_at = ?, updated_at = ? WHERE id = ?
	`, now, now, userID)
	if err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	return nil
}

// SetLastActive pins the activity timestamp to an explicit time.
func (s *Store) SetLastActive(userID int64, at time.Time) error {
	_, err := s.db.Exec(`
		UPDATE users SET last_active_at = ?, updated_at = ? WHERE id = ?
	`, fmtTime(at), fmtTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("set last active: %w", err)
	}
	return nil
}

func (s *Store) SetUserPreference(userID int64, key string, value any) error {
	u, err := s.UserByID(userID)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("set preference: user %d not found", userID)
	}
	prefs := u.Preferences
	if prefs == nil {
		prefs = map[string]any{}
	}
	prefs[key] = value
	_, err = s.db.Exec(`
		UPDATE users SET preferences = ?, updated_at = ? WHERE id = ?
	`, marshalJSON(prefs), fmtTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

func (s *Store) SetUserBlocked(userID int64, blocked bool) error {
	_, err := s.db.Exec(`
		UPDATE users SET is_blocked = ?, updated_at = ? WHERE id = ?
	`, blocked, fmtTime(time.Now()), userID)
	if err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	return nil
}

// DeleteUser removes the user row; all owned rows follow via cascade.
func (s *Store) DeleteUser(userID int64) error {
	if _, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// InactiveUsers returns onboarded, active, unblocked users whose last
// activity is older than the cutoff, oldest first.
func (s *Store) InactiveUsers(cutoff time.Time, limit int) ([]*User, error) {
	rows, err := s.db.Query(`
		SELECT `+userColumns+` FROM users
		WHERE onboarding_completed = 1
		  AND is_active = 1
		  AND is_blocked = 0
		  AND last_active_at IS NOT NULL
		  AND last_active_at < ?
		ORDER BY last_active_at ASC
		LIMIT ?
	`, fmtTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("inactive users: %w", err)
	}
	defer rows.Close()
	return s.collectUsers(rows)
}

func (s *Store) collectUsers(rows *sql.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		var (
			u          User
			name       sql.NullString
			prefs      string
			profile    string
			createdAt  string
			updatedAt  string
			lastActive sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.ChatID, &name, &prefs, &profile,
			&u.OnboardingCompleted, &u.IsActive, &u.IsBlocked,
			&createdAt, &updatedAt, &lastActive); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Name = name.String
		u.Preferences = unmarshalAnyMap(prefs)
		u.Profile = unmarshalAnyMap(profile)
		u.CreatedAt = parseTime(createdAt)
		u.UpdatedAt = parseTime(updatedAt)
		u.LastActiveAt = parseNullTime(lastActive)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
