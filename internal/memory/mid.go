package memory

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MidTermRecord pairs one user turn with the assistant's response for a
// session.
type MidTermRecord struct {
	ID                string
	SessionID         string
	UserInput         string
	AssistantResponse string
	Timestamp         time.Time
	Promoted          bool
}

// MidTermStore persists MidTermRecord rows in SQLite.
type MidTermStore struct {
	db *sql.DB
}

// NewMidTermStore opens (creating if necessary) the mid-term table at
// dbPath, using the pure-Go modernc.org/sqlite driver.
func NewMidTermStore(dbPath string) (*MidTermStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open mid-term store: %w", err)
	}
	s := &MidTermStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MidTermStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS mid_term_records (
			id                 TEXT PRIMARY KEY,
			session_id         TEXT NOT NULL,
			user_input         TEXT NOT NULL,
			assistant_response TEXT NOT NULL,
			timestamp          TEXT NOT NULL,
			promoted           INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *MidTermStore) Close() error {
	return s.db.Close()
}

// Add inserts a new mid-term record and returns its id.
func (s *MidTermStore) Add(sessionID, userInput, assistantResponse string) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := s.db.Exec(`
		INSERT INTO mid_term_records (id, session_id, user_input, assistant_response, timestamp, promoted)
		VALUES (?, ?, ?, ?, ?, 0)
	`, id, sessionID, userInput, assistantResponse, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("add mid-term record: %w", err)
	}
	return id, nil
}

// Search performs a case-insensitive substring match over user_input
// and assistant_response, most recent first.
func (s *MidTermStore) Search(query string, limit int) ([]MidTermRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, user_input, assistant_response, timestamp, promoted
		FROM mid_term_records
		ORDER BY timestamp DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("search mid-term records: %w", err)
	}
	defer rows.Close()

	lower := strings.ToLower(query)
	var out []MidTermRecord
	for rows.Next() {
		rec, ts, err := scanMidTermRow(rows)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = ts
		if query == "" || strings.Contains(strings.ToLower(rec.UserInput), lower) ||
			strings.Contains(strings.ToLower(rec.AssistantResponse), lower) {
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, rows.Err()
}

// UnpromotedOlderThan returns mid-term records older than the given
// cutoff that have not yet been promoted to long-term.
func (s *MidTermStore) UnpromotedOlderThan(cutoff time.Time) ([]MidTermRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, user_input, assistant_response, timestamp, promoted
		FROM mid_term_records
		WHERE promoted = 0 AND timestamp < ?
	`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("query unpromoted records: %w", err)
	}
	defer rows.Close()

	var out []MidTermRecord
	for rows.Next() {
		rec, ts, err := scanMidTermRow(rows)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = ts
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkPromoted flags a mid-term record as promoted to long-term.
func (s *MidTermStore) MarkPromoted(id string) error {
	_, err := s.db.Exec(`UPDATE mid_term_records SET promoted = 1 WHERE id = ?`, id)
	return err
}

// All returns every mid-term record for a session, oldest first.
func (s *MidTermStore) All(sessionID string) ([]MidTermRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, user_input, assistant_response, timestamp, promoted
		FROM mid_term_records
		WHERE session_id = ?
		ORDER BY timestamp ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list mid-term records: %w", err)
	}
	defer rows.Close()

	var out []MidTermRecord
	for rows.Next() {
		rec, ts, err := scanMidTermRow(rows)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = ts
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMidTermRow(rows rowScanner) (MidTermRecord, time.Time, error) {
	var rec MidTermRecord
	var tsStr string
	var promoted int
	if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserInput, &rec.AssistantResponse, &tsStr, &promoted); err != nil {
		return MidTermRecord{}, time.Time{}, fmt.Errorf("scan mid-term record: %w", err)
	}
	ts, _ := time.Parse(time.RFC3339Nano, tsStr)
	rec.Promoted = promoted != 0
	return rec, ts, nil
}
