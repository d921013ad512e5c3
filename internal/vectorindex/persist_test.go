package vectorindex

import (
	"path/filepath"
	"testing"
)

func TestPersistentStoreReplayOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")

	p, err := Open(path, Config{Metric: MetricCosine})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p.Insert(Document{ID: "a", Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := Open(path, Config{Metric: MetricCosine})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()

	if p2.Len() != 1 {
		t.Fatalf("Len() after replay = %d, want 1", p2.Len())
	}
	results, err := p2.Search([]float32{1, 0}, SearchOptions{TopK: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Document.ID != "a" {
		t.Errorf("got %+v", results)
	}
}

func TestPersistentStoreSingletonGuard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")

	p, err := Open(path, Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if _, err := Open(path, Config{}); err == nil {
		t.Fatal("expected second Open of the same path to fail while the first is held")
	}
}

func TestPersistentStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	p, err := Open(path, Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	if err := p.Insert(Document{ID: "a", Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := p.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len() after delete = %d, want 0", p.Len())
	}
}
