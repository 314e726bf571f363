package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/servicedesk/requests/internal/pkg/metrics"
)

// Engine owns the collections opened over one Backend.
type Engine struct {
	backend Backend
	log     zerolog.Logger

	mu     sync.Mutex
	tables map[string]*table
}

// NewEngine returns an engine writing through to backend.
func NewEngine(backend Backend, log zerolog.Logger) *Engine {
	return &Engine{
		backend: backend,
		log:     log,
		tables:  make(map[string]*table),
	}
}

// Close releases the backend.
func (e *Engine) Close() error {
	return e.backend.Close()
}

// Collections returns the names of the opened collections, sorted.
func (e *Engine) Collections() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) register(t *table) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tables[t.name]; exists {
		return fmt.Errorf("store: collection %q already opened", t.name)
	}
	e.tables[t.name] = t
	return nil
}

// table is the untyped state of one collection. rows hold the encoded
// records; keys remember the index keys each row was filed under so updates
// and deletes can unfile them.
type table struct {
	name    string
	backend Backend

	mu      sync.RWMutex
	rows    map[int64][]byte
	keys    map[int64]map[string]string
	indexes map[string]*index
	nextID  int64
}

type index struct {
	unique  bool
	entries map[string]map[int64]struct{}
}

func newTable(name string, backend Backend, fields map[string]bool) *table {
	t := &table{
		name:    name,
		backend: backend,
		rows:    make(map[int64][]byte),
		keys:    make(map[int64]map[string]string),
		indexes: make(map[string]*index, len(fields)),
		nextID:  1,
	}
	for field, unique := range fields {
		t.indexes[field] = &index{unique: unique, entries: make(map[string]map[int64]struct{})}
	}
	return t
}

// conflictFor returns the first unique field whose value is already filed
// under a different id.
func (t *table) conflictFor(id int64, keys map[string]string) (string, string, bool) {
	for field, value := range keys {
		idx := t.indexes[field]
		if idx == nil || !idx.unique || value == "" {
			continue
		}
		for other := range idx.entries[value] {
			if other != id {
				return field, value, true
			}
		}
	}
	return "", "", false
}

func (t *table) file(id int64, data []byte, keys map[string]string) {
	t.unfile(id)
	t.rows[id] = data
	t.keys[id] = keys
	for field, value := range keys {
		idx := t.indexes[field]
		if idx == nil {
			continue
		}
		set := idx.entries[value]
		if set == nil {
			set = make(map[int64]struct{})
			idx.entries[value] = set
		}
		set[id] = struct{}{}
	}
	if id >= t.nextID {
		t.nextID = id + 1
	}
}

func (t *table) unfile(id int64) {
	for field, value := range t.keys[id] {
		idx := t.indexes[field]
		if idx == nil {
			continue
		}
		delete(idx.entries[value], id)
		if len(idx.entries[value]) == 0 {
			delete(idx.entries, value)
		}
	}
	delete(t.keys, id)
	delete(t.rows, id)
}

func (t *table) reset() {
	for id := range t.rows {
		t.unfile(id)
	}
}

// lookup returns the ids filed under field=value in ascending order.
func (t *table) lookup(field, value string) ([]int64, error) {
	idx := t.indexes[field]
	if idx == nil {
		return nil, ErrUnknownIndex
	}
	ids := make([]int64, 0, len(idx.entries[value]))
	for id := range idx.entries[value] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *table) ids() []int64 {
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// persist writes through to the backend and records the write latency.
func (t *table) persist(ctx context.Context, op string, id int64, data []byte) error {
	start := time.Now()
	var err error
	if data == nil {
		err = t.backend.Delete(ctx, t.name, id)
	} else {
		err = t.backend.Put(ctx, t.name, id, data)
	}
	metrics.StoreWriteDuration.WithLabelValues(t.name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		return backendErr(ctx, op, t.name, err)
	}
	return nil
}

func backendErr(ctx context.Context, op, collection string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if cerr := ctxErr(ctx, op, collection); cerr != nil {
			return cerr
		}
	}
	return unavailable(op, collection, err)
}
