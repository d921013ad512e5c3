package vectorindex

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrDimensionMismatch is returned by Insert when a document's
// embedding length disagrees with the store's observed dimension.
var ErrDimensionMismatch = errors.New("vectorindex: embedding dimension mismatch")

// Document is a single embedded item in the store.
type Document struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Category  string         `json:"category,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Result is one scored hit from Search.
type Result struct {
	Document Document
	Score    float64
}

// SearchOptions configures Search.
type SearchOptions struct {
	TopK      int
	MinScore  float64
	Category  string // optional exact-match metadata filter
	Keyword   string // optional hybrid keyword boost
	KeywordW  float64 // boost weight in [0,1], applied when Keyword is set
}

// Store is an in-memory vector index. All reads and writes acquire a
// reader-writer lock (spec.md §5): writes are exclusive, reads shared.
// The zero value is not usable; construct with New.
type Store struct {
	metric Metric

	mu        sync.RWMutex
	dimension int // 0 until the first insert fixes it
	docs      map[string]Document
}

// Config configures a Store.
type Config struct {
	Metric Metric
	// ExpectedDimension, if non-zero, is enforced from the very first
	// insert instead of being learned from it.
	ExpectedDimension int
}

// New creates an empty store using the given metric (cosine if unset).
func New(cfg Config) *Store {
	m := cfg.Metric
	if m == "" {
		m = MetricCosine
	}
	return &Store{
		metric:    m,
		dimension: cfg.ExpectedDimension,
		docs:      make(map[string]Document),
	}
}

// Insert adds or replaces doc. Fails with ErrDimensionMismatch if its
// embedding length disagrees with the first observed (or configured)
// dimension; the store is left unchanged on failure (spec.md §8
// property 8).
func (s *Store) Insert(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		s.dimension = len(doc.Embedding)
	} else if len(doc.Embedding) != s.dimension {
		return fmt.Errorf("%w: store dimension %d, got %d", ErrDimensionMismatch, s.dimension, len(doc.Embedding))
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	s.docs[doc.ID] = doc
	return nil
}

// Delete removes a document by id. Deleting an absent id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
}

// Len returns the number of indexed documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Search returns up to opts.TopK results for query, descending by
// score, filtered by opts.MinScore. Ordering is deterministic for a
// fixed store state: ties break on document id, lexicographically
// (spec.md §4.2). Implemented as a linear scan — the specification
// explicitly permits this in place of true HNSW (see DESIGN.md Open
// Question decisions).
func (s *Store) Search(query []float32, opts SearchOptions) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(query) != s.dimension {
		return nil, fmt.Errorf("%w: store dimension %d, query %d", ErrDimensionMismatch, s.dimension, len(query))
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	results := make([]Result, 0, len(s.docs))
	for _, doc := range s.docs {
		if opts.Category != "" && doc.Category != opts.Category {
			continue
		}
		score := similarity(s.metric, query, doc.Embedding)
		if opts.Keyword != "" {
			score = boostForKeyword(score, doc, opts.Keyword, opts.KeywordW)
		}
		if score < opts.MinScore {
			continue
		}
		results = append(results, Result{Document: doc, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// boostForKeyword raises score by w (clamped into [0,1] overall) when
// keyword appears case-insensitively in any stringified metadata value,
// the category, or the tags. Grounded on spec.md §4.2's hybrid search
// contract.
func boostForKeyword(score float64, doc Document, keyword string, w float64) float64 {
	kw := strings.ToLower(keyword)
	hit := strings.Contains(strings.ToLower(doc.Category), kw)
	if !hit {
		for _, tag := range doc.Tags {
			if strings.Contains(strings.ToLower(tag), kw) {
				hit = true
				break
			}
		}
	}
	if !hit {
		for _, v := range doc.Metadata {
			if strings.Contains(strings.ToLower(fmt.Sprint(v)), kw) {
				hit = true
				break
			}
		}
	}
	if !hit {
		return score
	}
	boosted := score + w
	if boosted > 1.0 {
		boosted = 1.0
	}
	return boosted
}
