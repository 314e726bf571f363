package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/servicedesk/requests/internal/pkg/metrics"
)

// Batch collects writes over several collections that must land together.
// Nothing is checked or written until Engine.Apply.
type Batch struct {
	stages map[string]*stage
}

type stage struct {
	t       *table
	replace bool
	ops     []func(nt *table) error
}

func (b *Batch) stage(t *table) *stage {
	if b.stages == nil {
		b.stages = make(map[string]*stage)
	}
	s := b.stages[t.name]
	if s == nil {
		s = &stage{t: t}
		b.stages[t.name] = s
	}
	return s
}

// Len returns the number of collections the batch touches.
func (b *Batch) Len() int { return len(b.stages) }

// StageReplace makes recs the whole content of the collection. Records keep
// their ids; records without one get the next id. Writes staged earlier on
// the same collection are dropped.
func (c *Collection[T, P]) StageReplace(b *Batch, recs []*T) {
	s := b.stage(c.t)
	s.replace = true
	s.ops = []func(*table) error{func(nt *table) error { return c.fileAll(nt, recs) }}
}

// StageUpsert stores recs under their own ids next to the existing records.
// Keys are checked against the final state, so two records may swap a unique
// value within one batch.
func (c *Collection[T, P]) StageUpsert(b *Batch, recs []*T) {
	s := b.stage(c.t)
	s.ops = append(s.ops, func(nt *table) error { return c.fileAll(nt, recs) })
}

// StageDeleteWhere removes every record filed under field=value for any of
// values.
func (c *Collection[T, P]) StageDeleteWhere(b *Batch, field string, values ...string) {
	s := b.stage(c.t)
	s.ops = append(s.ops, func(nt *table) error {
		for _, value := range values {
			ids, err := nt.lookup(field, value)
			if err != nil {
				return &Error{Op: "batch", Collection: nt.name, Sentinel: err, Field: field}
			}
			for _, id := range ids {
				nt.unfile(id)
			}
		}
		return nil
	})
}

// fileAll files recs into the staging table nt.
func (c *Collection[T, P]) fileAll(nt *table, recs []*T) error {
	const op = "batch"
	explicit := make(map[int64]bool, len(recs))
	for _, rec := range recs {
		id := P(rec).GetID()
		if id <= 0 {
			continue
		}
		if explicit[id] {
			return conflict(op, nt.name, "id", idKey(id))
		}
		explicit[id] = true
		if id >= nt.nextID {
			nt.nextID = id + 1
		}
	}
	for id := range explicit {
		nt.unfile(id)
	}

	for _, rec := range recs {
		id := P(rec).GetID()
		if id <= 0 {
			id = nt.nextID
		}
		clone := *rec
		P(&clone).SetID(id)
		data, err := json.Marshal(&clone)
		if err != nil {
			return fmt.Errorf("store %s %s: encode: %w", op, nt.name, err)
		}
		keys := c.keys(&clone)
		if field, value, dup := nt.conflictFor(id, keys); dup {
			return conflict(op, nt.name, field, value)
		}
		nt.file(id, data, keys)
	}
	return nil
}

// staging returns a detached copy of t to apply a batch to. A replacing
// stage starts empty but keeps the sequence.
func (t *table) staging(replace bool) *table {
	nt := &table{
		name:    t.name,
		backend: t.backend,
		rows:    make(map[int64][]byte, len(t.rows)),
		keys:    make(map[int64]map[string]string, len(t.keys)),
		indexes: make(map[string]*index, len(t.indexes)),
		nextID:  t.nextID,
	}
	for field, idx := range t.indexes {
		nt.indexes[field] = &index{unique: idx.unique, entries: make(map[string]map[int64]struct{})}
	}
	if !replace {
		for id, data := range t.rows {
			nt.file(id, data, t.keys[id])
		}
	}
	return nt
}

func (t *table) adopt(nt *table) {
	t.rows, t.keys, t.indexes = nt.rows, nt.keys, nt.indexes
	if nt.nextID > t.nextID {
		t.nextID = nt.nextID
	}
}

// Apply runs every staged write of b as one unit. All involved collections
// are locked in name order, the result is checked against their unique
// indexes and written with a single Backend.ReplaceAll; the in-memory
// collections only change once the backend accepted it. A constraint
// violation or backend failure leaves every collection untouched.
func (e *Engine) Apply(ctx context.Context, b *Batch) error {
	const op = "batch"
	if b.Len() == 0 {
		return nil
	}
	names := make([]string, 0, len(b.stages))
	for name := range b.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	label := strings.Join(names, ",")

	if err := ctxErr(ctx, op, label); err != nil {
		return err
	}
	for _, name := range names {
		t := b.stages[name].t
		t.mu.Lock()
		defer t.mu.Unlock()
	}

	staged := make(map[string]*table, len(names))
	sets := make(map[string]Snapshot, len(names))
	for _, name := range names {
		s := b.stages[name]
		nt := s.t.staging(s.replace)
		for _, fn := range s.ops {
			if err := fn(nt); err != nil {
				return err
			}
		}
		staged[name] = nt
		sets[name] = Snapshot{Rows: nt.rows, NextID: nt.nextID}
	}

	start := time.Now()
	err := e.backend.ReplaceAll(ctx, sets)
	elapsed := time.Since(start).Seconds()
	for _, name := range names {
		metrics.StoreWriteDuration.WithLabelValues(name, op).Observe(elapsed)
	}
	if err != nil {
		return backendErr(ctx, op, label, err)
	}

	for _, name := range names {
		b.stages[name].t.adopt(staged[name])
	}
	e.log.Debug().Strs("collections", names).Msg("batch applied")
	return nil
}
