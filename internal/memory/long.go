package memory

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KnowledgeCategory classifies a long-term knowledge entry.
type KnowledgeCategory string

const (
	CategoryBestPractice KnowledgeCategory = "BestPractice"
	CategoryFact         KnowledgeCategory = "Fact"
	CategoryProcedure    KnowledgeCategory = "Procedure"
	CategoryPreference   KnowledgeCategory = "Preference"
)

// KnowledgeEntry is a durable, categorised piece of long-term memory.
type KnowledgeEntry struct {
	ID          string
	Category    KnowledgeCategory
	Title       string
	Content     string
	Tags        []string
	CreatedAt   time.Time
	AccessCount int
}

// LongTermStore persists KnowledgeEntry rows in SQLite.
type LongTermStore struct {
	db *sql.DB
}

// NewLongTermStore opens (creating if necessary) the long-term table on
// an existing database connection, typically shared with [MidTermStore].
func NewLongTermStore(db *sql.DB) (*LongTermStore, error) {
	s := &LongTermStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("long-term migration: %w", err)
	}
	return s, nil
}

func (s *LongTermStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS knowledge_entries (
			id           TEXT PRIMARY KEY,
			category     TEXT NOT NULL,
			title        TEXT NOT NULL,
			content      TEXT NOT NULL,
			tags         TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// Add inserts a new knowledge entry and returns its id.
func (s *LongTermStore) Add(entry KnowledgeEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.Must(uuid.NewV7()).String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO knowledge_entries (id, category, title, content, tags, created_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, entry.ID, string(entry.Category), entry.Title, entry.Content,
		strings.Join(entry.Tags, ","), entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("add knowledge entry: %w", err)
	}
	return entry.ID, nil
}

// Search returns entries whose title, content, or tags contain query
// (case-insensitive), most recently created first. Matching entries
// have their access_count incremented.
func (s *LongTermStore) Search(query string, limit int) ([]KnowledgeEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, category, title, content, tags, created_at, access_count
		FROM knowledge_entries
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("search knowledge entries: %w", err)
	}
	defer rows.Close()

	lower := strings.ToLower(query)
	var out []KnowledgeEntry
	for rows.Next() {
		e, err := scanKnowledgeRow(rows)
		if err != nil {
			return nil, err
		}
		if query == "" || strings.Contains(strings.ToLower(e.Title), lower) ||
			strings.Contains(strings.ToLower(e.Content), lower) ||
			containsTag(e.Tags, lower) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range out {
		_, _ = s.db.Exec(`UPDATE knowledge_entries SET access_count = access_count + 1 WHERE id = ?`, e.ID)
	}
	return out, nil
}

func containsTag(tags []string, lowerQuery string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), lowerQuery) {
			return true
		}
	}
	return false
}

// Get retrieves a single entry by id, incrementing its access count.
func (s *LongTermStore) Get(id string) (KnowledgeEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, category, title, content, tags, created_at, access_count
		FROM knowledge_entries WHERE id = ?
	`, id)
	e, err := scanKnowledgeRow(row)
	if err != nil {
		return KnowledgeEntry{}, fmt.Errorf("get knowledge entry: %w", err)
	}
	_, _ = s.db.Exec(`UPDATE knowledge_entries SET access_count = access_count + 1 WHERE id = ?`, id)
	return e, nil
}

func scanKnowledgeRow(row rowScanner) (KnowledgeEntry, error) {
	var e KnowledgeEntry
	var category, tags, createdAt string
	if err := row.Scan(&e.ID, &category, &e.Title, &e.Content, &tags, &createdAt, &e.AccessCount); err != nil {
		return KnowledgeEntry{}, err
	}
	e.Category = KnowledgeCategory(category)
	if tags != "" {
		e.Tags = strings.Split(tags, ",")
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return e, nil
}
