package vectorindex

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/edgemind/internal/store"
)

// openPaths guards against opening the same backing file twice in the
// same process (spec.md §4.2): a per-path singleton.
var (
	openPathsMu sync.Mutex
	openPaths   = make(map[string]struct{})
)

// PersistentStore pairs an in-memory Store with a bbolt-backed table
// keyed by document id. On Open, every row is replayed into memory
// before the store is considered ready.
type PersistentStore struct {
	*Store
	path string
	kv   *store.Store
}

// Open opens (or creates) the backing file at path and replays its
// vectors table into a fresh in-memory Store. Returns an error if path
// is already open in this process.
func Open(path string, cfg Config) (*PersistentStore, error) {
	openPathsMu.Lock()
	if _, ok := openPaths[path]; ok {
		openPathsMu.Unlock()
		return nil, fmt.Errorf("vectorindex: %s is already open in this process", path)
	}
	openPaths[path] = struct{}{}
	openPathsMu.Unlock()

	kv, err := store.Open(path)
	if err != nil {
		openPathsMu.Lock()
		delete(openPaths, path)
		openPathsMu.Unlock()
		return nil, err
	}

	idx := New(cfg)
	replayErr := kv.ForEach(store.TableVectors, func(key string, value []byte) error {
		var doc Document
		if err := json.Unmarshal(value, &doc); err != nil {
			return fmt.Errorf("decode document %s: %w", key, err)
		}
		return idx.Insert(doc)
	})
	if replayErr != nil {
		_ = kv.Close()
		openPathsMu.Lock()
		delete(openPaths, path)
		openPathsMu.Unlock()
		return nil, fmt.Errorf("replay vectors: %w", replayErr)
	}

	return &PersistentStore{Store: idx, path: path, kv: kv}, nil
}

// Close releases the backing file and the per-path singleton guard.
func (p *PersistentStore) Close() error {
	openPathsMu.Lock()
	delete(openPaths, p.path)
	openPathsMu.Unlock()
	return p.kv.Close()
}

// Insert writes doc to the in-memory index and persists it, keyed by
// document id (spec.md §6).
func (p *PersistentStore) Insert(doc Document) error {
	if err := p.Store.Insert(doc); err != nil {
		return err
	}
	blob, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return p.kv.Put(store.TableVectors, doc.ID, blob)
}

// Delete removes doc from both the in-memory index and the backing store.
func (p *PersistentStore) Delete(id string) error {
	p.Store.Delete(id)
	return p.kv.Delete(store.TableVectors, id)
}
