package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed fact store. All user data hangs off the
// users table with ON DELETE CASCADE.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func Open(dbPath string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db, log: logger.With().Str("component", "store").Logger()}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL UNIQUE,
			name TEXT,
			preferences TEXT NOT NULL DEFAULT '{}',
			profile TEXT NOT NULL DEFAULT '{}',
			onboarding_completed INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			is_blocked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			last_active_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_last_active ON users(last_active_at)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			plan TEXT NOT NULL DEFAULT 'free',
			status TEXT NOT NULL DEFAULT 'active',
			started_at TEXT NOT NULL,
			expires_at TEXT,
			cancelled_at TEXT,
			auto_renew INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			response_time_ms INTEGER NOT NULL DEFAULT 0,
			is_summarized INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_summarized ON messages(user_id, is_summarized)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			fact TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'other',
			importance INTEGER NOT NULL DEFAULT 5,
			emotional_weight TEXT NOT NULL DEFAULT 'neutral',
			tags TEXT NOT NULL DEFAULT '[]',
			memory_key TEXT,
			history TEXT NOT NULL DEFAULT '[]',
			is_current INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			last_accessed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_current ON memories(user_id, is_current)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_key ON memories(user_id, memory_key, is_current)`,
		`CREATE TABLE IF NOT EXISTS persons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			relation TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			emotional_tone TEXT NOT NULL DEFAULT '',
			important_dates TEXT NOT NULL DEFAULT '{}',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_persons_user_active ON persons(user_id, is_active)`,
		`CREATE TABLE IF NOT EXISTS life_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			event_date TEXT,
			is_recurring INTEGER NOT NULL DEFAULT 0,
			emotional_weight TEXT NOT NULL DEFAULT 'neutral',
			related_person_id INTEGER,
			tags TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_life_events_user_created ON life_events(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS mood_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			mood_score INTEGER NOT NULL,
			energy_level INTEGER NOT NULL DEFAULT 0,
			anxiety_level INTEGER NOT NULL DEFAULT 0,
			primary_emotion TEXT NOT NULL DEFAULT '',
			secondary_emotions TEXT NOT NULL DEFAULT '[]',
			emotional_need TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'auto',
			requires_attention INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_moods_user_created ON mood_entries(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS usage_logs (
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			day TEXT NOT NULL,
			messages_count INTEGER NOT NULL DEFAULT 0,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			summary TEXT NOT NULL,
			from_message_id INTEGER NOT NULL,
			to_message_id INTEGER NOT NULL,
			messages_count INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_user ON conversation_summaries(user_id, to_message_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// timeLayout is fixed-width on purpose: RFC3339Nano trims trailing
// zeros, which breaks lexical ordering for sub-second values
// ("...00.5Z" would sort before "...00Z").
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamps are stored as fixed-width UTC strings so lexical ordering
// in SQL matches chronological ordering.
func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func fmtNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func jsonUnmarshal(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func unmarshalStrings(raw string) []string {
	var out []string
	if raw == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func unmarshalStringMap(raw string) map[string]string {
	out := map[string]string{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &out)
	}
	return out
}

func unmarshalAnyMap(raw string) map[string]any {
	out := map[string]any{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &out)
	}
	return out
}
