package store

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Index declares a secondary key of a collection. Key extracts the indexed
// value; an empty value is never filed as unique.
type Index[T any] struct {
	Field  string
	Unique bool
	Key    func(*T) string
}

// Schema names a collection and declares its secondary keys.
type Schema[T any] struct {
	Name    string
	Indexes []Index[T]
}

type recordPtr[T any] interface {
	*T
	Record
}

// Collection is the typed view over one table. Records handed out are always
// fresh copies decoded from the stored bytes, so callers may mutate them
// freely without touching the store.
type Collection[T any, P recordPtr[T]] struct {
	schema Schema[T]
	t      *table
}

// Open loads the collection described by schema from the engine's backend,
// rebuilding its indexes, and registers it with the engine. A backend that
// cannot be read yields domain.ErrStorageUnavailable; persisted data that
// violates a unique index yields domain.ErrConstraintViolation.
func Open[T any, P recordPtr[T]](ctx context.Context, e *Engine, schema Schema[T]) (*Collection[T, P], error) {
	const op = "load"
	if err := ctxErr(ctx, op, schema.Name); err != nil {
		return nil, err
	}

	fields := make(map[string]bool, len(schema.Indexes))
	for _, ix := range schema.Indexes {
		fields[ix.Field] = ix.Unique
	}
	c := &Collection[T, P]{schema: schema, t: newTable(schema.Name, e.backend, fields)}

	snap, err := e.backend.Load(ctx, schema.Name)
	if err != nil {
		return nil, backendErr(ctx, op, schema.Name, err)
	}
	for id, data := range snap.Rows {
		rec, err := c.decode(data)
		if err != nil {
			return nil, unavailable(op, schema.Name, fmt.Errorf("decode record %d: %w", id, err))
		}
		P(rec).SetID(id)
		keys := c.keys(rec)
		if field, value, dup := c.t.conflictFor(id, keys); dup {
			return nil, conflict(op, schema.Name, field, value)
		}
		c.t.file(id, data, keys)
	}
	if snap.NextID > c.t.nextID {
		c.t.nextID = snap.NextID
	}

	if err := e.register(c.t); err != nil {
		return nil, err
	}
	e.log.Debug().Str("collection", schema.Name).Int("records", len(snap.Rows)).Msg("collection loaded")
	return c, nil
}

// Name returns the collection name.
func (c *Collection[T, P]) Name() string { return c.schema.Name }

// Create assigns the next identifier to a copy of rec and stores it.
func (c *Collection[T, P]) Create(ctx context.Context, rec *T) (*T, error) {
	const op = "create"
	if err := ctxErr(ctx, op, c.t.name); err != nil {
		return nil, err
	}
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	return c.write(ctx, op, c.t.nextID, rec)
}

// Put stores rec under its own identifier, replacing any record with that id.
// A record without an identifier is created.
func (c *Collection[T, P]) Put(ctx context.Context, rec *T) (*T, error) {
	const op = "put"
	if err := ctxErr(ctx, op, c.t.name); err != nil {
		return nil, err
	}
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	id := P(rec).GetID()
	if id <= 0 {
		id = c.t.nextID
	}
	return c.write(ctx, op, id, rec)
}

// Get returns the record with the given id.
func (c *Collection[T, P]) Get(ctx context.Context, id int64) (*T, error) {
	const op = "get"
	if err := ctxErr(ctx, op, c.t.name); err != nil {
		return nil, err
	}
	c.t.mu.RLock()
	defer c.t.mu.RUnlock()
	data, ok := c.t.rows[id]
	if !ok {
		return nil, notFound(op, c.t.name)
	}
	return c.decode(data)
}

// GetBy returns the record filed under field=value. On a non-unique index the
// lowest id wins.
func (c *Collection[T, P]) GetBy(ctx context.Context, field, value string) (*T, error) {
	const op = "get_by"
	if err := ctxErr(ctx, op, c.t.name); err != nil {
		return nil, err
	}
	c.t.mu.RLock()
	defer c.t.mu.RUnlock()
	ids, err := c.t.lookup(field, value)
	if err != nil {
		return nil, &Error{Op: op, Collection: c.t.name, Sentinel: err, Field: field}
	}
	if len(ids) == 0 {
		return nil, notFound(op, c.t.name)
	}
	return c.decode(c.t.rows[ids[0]])
}

// List returns every record ordered by id. ctx is checked on entry and again
// once the collection lock is held.
func (c *Collection[T, P]) List(ctx context.Context) ([]*T, error) {
	const op = "list"
	if err := ctxErr(ctx, op, c.t.name); err != nil {
		return nil, err
	}
	c.t.mu.RLock()
	defer c.t.mu.RUnlock()
	// The lock wait itself cannot be interrupted; an overrun still fails.
	if err := ctxErr(ctx, op, c.t.name); err != nil {
		return nil, err
	}
	return c.decodeAll(c.t.ids())
}

// ListWhere returns the records filed under field=value ordered by id.
func (c *Collection[T, P]) ListWhere(ctx context.Context, field, value string) ([]*T, error) {
	const op = "list_where"
	if err := ctxErr(ctx, op, c.t.name); err != nil {
		return nil, err
	}
	c.t.mu.RLock()
	defer c.t.mu.RUnlock()
	if err := ctxErr(ctx, op, c.t.name); err != nil {
		return nil, err
	}
	ids, err := c.t.lookup(field, value)
	if err != nil {
		return nil, &Error{Op: op, Collection: c.t.name, Sentinel: err, Field: field}
	}
	return c.decodeAll(ids)
}

// Count returns the number of records.
func (c *Collection[T, P]) Count(ctx context.Context) (int, error) {
	if err := ctxErr(ctx, "count", c.t.name); err != nil {
		return 0, err
	}
	c.t.mu.RLock()
	defer c.t.mu.RUnlock()
	return len(c.t.rows), nil
}

// Update applies patch to a copy of the record and stores the result. The
// identifier cannot be changed by patch. When patch returns an error nothing
// is written and the error is returned unchanged.
func (c *Collection[T, P]) Update(ctx context.Context, id int64, patch func(*T) error) (*T, error) {
	const op = "update"
	if err := ctxErr(ctx, op, c.t.name); err != nil {
		return nil, err
	}
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	data, ok := c.t.rows[id]
	if !ok {
		return nil, notFound(op, c.t.name)
	}
	cur, err := c.decode(data)
	if err != nil {
		return nil, err
	}
	if err := patch(cur); err != nil {
		return nil, err
	}
	return c.write(ctx, op, id, cur)
}

// Delete removes the record with the given id.
func (c *Collection[T, P]) Delete(ctx context.Context, id int64) error {
	const op = "delete"
	if err := ctxErr(ctx, op, c.t.name); err != nil {
		return err
	}
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if _, ok := c.t.rows[id]; !ok {
		return notFound(op, c.t.name)
	}
	if err := c.t.persist(ctx, op, id, nil); err != nil {
		return err
	}
	c.t.unfile(id)
	return nil
}

// write must be called with the table lock held.
func (c *Collection[T, P]) write(ctx context.Context, op string, id int64, rec *T) (*T, error) {
	clone := *rec
	P(&clone).SetID(id)
	data, err := json.Marshal(&clone)
	if err != nil {
		return nil, fmt.Errorf("store %s %s: encode: %w", op, c.t.name, err)
	}
	keys := c.keys(&clone)
	if field, value, dup := c.t.conflictFor(id, keys); dup {
		return nil, conflict(op, c.t.name, field, value)
	}
	if err := c.t.persist(ctx, op, id, data); err != nil {
		return nil, err
	}
	c.t.file(id, data, keys)
	return c.decode(data)
}

func (c *Collection[T, P]) keys(rec *T) map[string]string {
	keys := make(map[string]string, len(c.schema.Indexes))
	for _, ix := range c.schema.Indexes {
		keys[ix.Field] = ix.Key(rec)
	}
	return keys
}

func (c *Collection[T, P]) decode(data []byte) (*T, error) {
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("store %s: decode: %w", c.t.name, err)
	}
	return &rec, nil
}

func (c *Collection[T, P]) decodeAll(ids []int64) ([]*T, error) {
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		rec, err := c.decode(c.t.rows[id])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
