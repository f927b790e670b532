package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SubscriptionByUserID returns the user's newest subscription row.
func (s *Store) SubscriptionByUserID(userID int64) (*Subscription, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, plan, status, started_at, expires_at, cancelled_at, auto_renew
		FROM subscriptions
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, userID)

	var (
		sub         Subscription
		startedAt   string
		expiresAt   sql.NullString
		cancelledAt sql.NullString
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.Status,
		&startedAt, &expiresAt, &cancelledAt, &sub.AutoRenew)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subscription by user: %w", err)
	}
	sub.StartedAt = parseTime(startedAt)
	sub.ExpiresAt = parseNullTime(expiresAt)
	sub.CancelledAt = parseNullTime(cancelledAt)
	return &sub, nil
}

// UpgradeSubscription switches the user's subscription to a paid plan
// with the given expiry.
func (s *Store) UpgradeSubscription(userID int64, plan string, expiresAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE subscriptions
		SET plan = ?, status = 'active', expires_at = ?, cancelled_at = NULL
		WHERE id = (SELECT MAX(id) FROM subscriptions WHERE user_id = ?)
	`, plan, fmtTime(expiresAt), userID)
	if err != nil {
		return fmt.Errorf("upgrade subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("upgrade subscription: user %d has no subscription", userID)
	}
	return nil
}

// ExpireSubscriptions marks overdue active paid subscriptions expired
// and returns how many rows changed.
func (s *Store) ExpireSubscriptions(now time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE subscriptions
		SET status = 'expired'
		WHERE status = 'active'
		  AND plan != 'free'
		  AND expires_at IS NOT NULL
		  AND expires_at < ?
	`, fmtTime(now))
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions count: %w", err)
	}
	return int(n), nil
}

// IncrementUsage upserts the per-day counters for a user.
func (s *Store) IncrementUsage(userID int64, day time.Time, messages, tokens int) error {
	_, err := s.db.Exec(`
		INSERT INTO usage_logs (user_id, day, messages_count, tokens_used)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET
			messages_count = messages_count + excluded.messages_count,
			tokens_used = tokens_used + excluded.tokens_used
	`, userID, day.UTC().Format("2006-01-02"), messages, tokens)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// UsageForDay returns the counters recorded for a UTC day, zero when
// absent.
func (s *Store) UsageForDay(userID int64, day time.Time) (messages, tokens int, err error) {
	err = s.db.QueryRow(`
		SELECT messages_count, tokens_used FROM usage_logs
		WHERE user_id = ? AND day = ?
	`, userID, day.UTC().Format("2006-01-02")).Scan(&messages, &tokens)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("usage for day: %w", err)
	}
	return messages, tokens, nil
}
