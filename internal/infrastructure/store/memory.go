package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps collections in process memory. Nothing survives the
// process; it backs tests and the "memory" store driver.
type MemoryBackend struct {
	mu          sync.Mutex
	collections map[string]*Snapshot
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*Snapshot)}
}

func (m *MemoryBackend) snapshot(collection string) *Snapshot {
	s := m.collections[collection]
	if s == nil {
		s = &Snapshot{Rows: make(map[int64][]byte), NextID: 1}
		m.collections[collection] = s
	}
	return s
}

func (m *MemoryBackend) Load(ctx context.Context, collection string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snapshot(collection)
	rows := make(map[int64][]byte, len(s.Rows))
	for id, data := range s.Rows {
		rows[id] = append([]byte(nil), data...)
	}
	return Snapshot{Rows: rows, NextID: s.NextID}, nil
}

func (m *MemoryBackend) Put(ctx context.Context, collection string, id int64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.snapshot(collection)
	s.Rows[id] = append([]byte(nil), data...)
	if id >= s.NextID {
		s.NextID = id + 1
	}
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, collection string, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshot(collection).Rows, id)
	return nil
}

func (m *MemoryBackend) ReplaceAll(ctx context.Context, sets map[string]Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for collection, set := range sets {
		s := m.snapshot(collection)
		rows := make(map[int64][]byte, len(set.Rows))
		for id, data := range set.Rows {
			rows[id] = append([]byte(nil), data...)
		}
		s.Rows = rows
		if set.NextID > s.NextID {
			s.NextID = set.NextID
		}
	}
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
