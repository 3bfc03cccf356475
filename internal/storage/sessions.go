package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// maxHistory caps how many recent messages LoadMessages returns per session.
const maxHistory = 50

// CreateSession creates a session with the given ID, generating one when id
// is empty. Creating an existing session is a no-op; the ID is returned
// either way.
func (s *Store) CreateSession(id string) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)",
		id, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return id, nil
}

// AppendMessage adds a message to the session's log, creating the session on
// first contact. The message receives the next per-session sequence number
// inside the same transaction, so the log stays append-only and ordered even
// under concurrent callers.
func (s *Store) AppendMessage(sessionID string, msg Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)",
		sessionID, now, now,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("ensuring session: %w", err)
	}

	var seq int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?",
		sessionID,
	).Scan(&seq); err != nil {
		tx.Rollback()
		return fmt.Errorf("computing next sequence: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO messages (id, session_id, seq, role, content, provenance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, sessionID, seq, msg.Role, msg.Content, msg.Provenance,
		createdAt.Format(time.RFC3339),
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", now, sessionID); err != nil {
		tx.Rollback()
		return fmt.Errorf("touching session: %w", err)
	}

	return tx.Commit()
}

// LoadMessages returns the most recent messages of a session (capped at 50)
// in append order. An unknown session yields an empty slice, not an error.
func (s *Store) LoadMessages(sessionID string) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, role, content, provenance, created_at
		FROM messages WHERE session_id = ?
		ORDER BY seq DESC LIMIT ?`,
		sessionID, maxHistory,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Provenance, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for message %s: %w", m.ID, err)
		}
		m.CreatedAt = t
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest-first; reverse into append order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeleteSession removes a session and its messages. Returns ErrNotFound if
// the session does not exist.
func (s *Store) DeleteSession(sessionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting messages: %w", err)
	}

	res, err := tx.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if n == 0 {
		tx.Rollback()
		return ErrNotFound
	}

	return tx.Commit()
}

// GetSession returns session metadata. Returns ErrNotFound if absent.
func (s *Store) GetSession(sessionID string) (Session, error) {
	var sess Session
	var createdAt, updatedAt string
	err := s.db.QueryRow(
		"SELECT id, created_at, updated_at FROM sessions WHERE id = ?", sessionID,
	).Scan(&sess.ID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if sess.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Session{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return sess, nil
}
