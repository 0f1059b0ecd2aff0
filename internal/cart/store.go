package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/natefinch/atomic"
)

// Store is the durable key-value slot holding the cart.
type Store interface {
	Load() (map[string]Entry, error)
	Save(entries map[string]Entry) error
}

// FileStore keeps the cart as a JSON document in a single file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type itemsDocument struct {
	Items []Entry `json:"items"`
}

// Load reads the cart file. A missing file is an empty cart.
func (s *FileStore) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: read %s: %w", s.path, err)
	}
	return Decode(data)
}

// Save replaces the cart file atomically.
func (s *FileStore) Save(entries map[string]Entry) error {
	data, err := Encode(entries)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("cart: write %s: %w", s.path, err)
	}
	return nil
}

// Encode writes the {"items": [...]} form ordered by id.
func Encode(entries map[string]Entry) ([]byte, error) {
	doc := itemsDocument{Items: make([]Entry, 0, len(entries))}
	for id, e := range entries {
		e.ID = id
		doc.Items = append(doc.Items, e)
	}
	sort.Slice(doc.Items, func(i, j int) bool { return doc.Items[i].ID < doc.Items[j].ID })
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("cart: encode: %w", err)
	}
	return data, nil
}

// Decode accepts both {"items": [...]} and {"<id>": entry}.
func Decode(data []byte) (map[string]Entry, error) {
	out := make(map[string]Entry)
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cart: decode: %w", err)
	}

	if items, ok := raw["items"]; ok && bytes.HasPrefix(bytes.TrimSpace(items), []byte("[")) {
		var list []Entry
		if err := json.Unmarshal(items, &list); err != nil {
			return nil, fmt.Errorf("cart: decode items: %w", err)
		}
		for _, e := range list {
			out[e.ID] = e
		}
		return out, nil
	}

	for id, msg := range raw {
		var e Entry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, fmt.Errorf("cart: decode entry %q: %w", id, err)
		}
		e.ID = id
		out[id] = e
	}
	return out, nil
}

// MemoryStore keeps the encoded cart in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
	err  error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Decode(s.data)
}

func (s *MemoryStore) Save(entries map[string]Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	data, err := Encode(entries)
	if err != nil {
		return err
	}
	s.data = data
	return nil
}

// FailWith makes subsequent saves return err; nil restores normal behaviour.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
