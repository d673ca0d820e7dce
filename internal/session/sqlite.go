package session

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore is a session store backed by SQLite, for deployments
// that must survive process restarts with live sessions. Expiry is
// enforced lazily on access and by Sweep.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore creates a session store over an open database handle.
// The schema is created automatically on first use. The caller owns
// the handle's driver choice; tests use modernc.org/sqlite, the server
// uses mattn/go-sqlite3.
func NewSQLiteStore(db *sql.DB, ttl time.Duration) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, ttl: ttl}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id      TEXT PRIMARY KEY,
		credential      TEXT NOT NULL,
		conversation_id TEXT NOT NULL DEFAULT '',
		expires_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions (expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Create implements Store.
func (s *SQLiteStore) Create(rec Record) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, credential, conversation_id, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE
		 SET credential = excluded.credential,
		     conversation_id = excluded.conversation_id,
		     expires_at = excluded.expires_at`,
		rec.SessionID, rec.Credential, rec.ConversationID, s.expiry().Unix(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(sessionID string) (Record, error) {
	var rec Record
	var expires int64
	err := s.db.QueryRow(
		`SELECT session_id, credential, conversation_id, expires_at
		 FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&rec.SessionID, &rec.Credential, &rec.ConversationID, &expires)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get session: %w", err)
	}

	rec.ExpiresAt = time.Unix(expires, 0)
	if s.ttl > 0 && time.Now().After(rec.ExpiresAt) {
		_, _ = s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
		return Record{}, ErrNotFound
	}

	if s.ttl > 0 {
		rec.ExpiresAt = s.expiry()
		_, _ = s.db.Exec(
			`UPDATE sessions SET expires_at = ? WHERE session_id = ?`,
			rec.ExpiresAt.Unix(), sessionID,
		)
	}
	return rec, nil
}

// AttachConversation implements Store.
func (s *SQLiteStore) AttachConversation(sessionID, conversationID string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET conversation_id = ? WHERE session_id = ?`,
		conversationID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("attach conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach conversation: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Sweep removes all expired sessions and returns how many were evicted.
func (s *SQLiteStore) Sweep() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(affected), nil
}

func (s *SQLiteStore) expiry() time.Time {
	if s.ttl <= 0 {
		// Far-future sentinel when expiry is disabled.
		return time.Now().AddDate(100, 0, 0)
	}
	return time.Now().Add(s.ttl)
}
