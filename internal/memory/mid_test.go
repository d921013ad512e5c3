package memory

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestMidTermStore(t *testing.T) *MidTermStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mid.db")
	s, err := NewMidTermStore(path)
	if err != nil {
		t.Fatalf("NewMidTermStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMidTermStoreAddAndSearch(t *testing.T) {
	s := newTestMidTermStore(t)

	if _, err := s.Add("sess-1", "turn the kitchen light on", "done, kitchen light is on"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add("sess-1", "what's the weather", "sunny and 72 degrees"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := s.Search("kitchen", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].SessionID != "sess-1" {
		t.Errorf("Search(kitchen) = %+v, want one sess-1 match", results)
	}
}

func TestMidTermStoreUnpromotedOlderThan(t *testing.T) {
	s := newTestMidTermStore(t)
	id, err := s.Add("sess-1", "a", "b")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	future := time.Now().Add(time.Hour)
	recs, err := s.UnpromotedOlderThan(future)
	if err != nil {
		t.Fatalf("UnpromotedOlderThan: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != id {
		t.Fatalf("UnpromotedOlderThan = %+v, want one record %s", recs, id)
	}

	if err := s.MarkPromoted(id); err != nil {
		t.Fatalf("MarkPromoted: %v", err)
	}
	recs, err = s.UnpromotedOlderThan(future)
	if err != nil {
		t.Fatalf("UnpromotedOlderThan after promote: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("UnpromotedOlderThan after promote = %+v, want none", recs)
	}
}

func TestMidTermStoreAll(t *testing.T) {
	s := newTestMidTermStore(t)
	s.Add("sess-1", "a", "b")
	s.Add("sess-2", "x", "y")
	s.Add("sess-1", "c", "d")

	recs, err := s.All("sess-1")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("All(sess-1) returned %d records, want 2", len(recs))
	}
}
