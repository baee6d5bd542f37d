package memory

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapdb/pkg/core"
)

// table holds records by id and remembers insertion order.
type table struct {
	rows  map[string]core.RawRecord
	order []string
}

func newTable() *table {
	return &table{rows: make(map[string]core.RawRecord)}
}

func (t *table) all() []core.RawRecord {
	out := make([]core.RawRecord, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id])
	}
	return out
}

func (t *table) insert(raw core.RawRecord) (undo func(), err error) {
	id := raw.ID()
	if _, ok := t.rows[id]; ok {
		return nil, fmt.Errorf("record %s already exists", id)
	}
	t.rows[id] = raw
	t.order = append(t.order, id)
	return func() {
		delete(t.rows, id)
		t.order = t.order[:len(t.order)-1]
	}, nil
}

func (t *table) replace(id string, raw core.RawRecord) (undo func()) {
	prev, ok := t.rows[id]
	if !ok {
		return func() {}
	}
	t.rows[id] = raw
	return func() { t.rows[id] = prev }
}

func (t *table) remove(id string) (undo func()) {
	prev, ok := t.rows[id]
	if !ok {
		return func() {}
	}
	i := slices.Index(t.order, id)
	delete(t.rows, id)
	t.order = slices.Delete(t.order, i, i+1)
	return func() {
		t.rows[id] = prev
		t.order = slices.Insert(t.order, i, id)
	}
}

func (t *table) clone() *table {
	c := &table{rows: make(map[string]core.RawRecord, len(t.rows)), order: slices.Clone(t.order)}
	for id, raw := range t.rows {
		c.rows[id] = raw.Clone()
	}
	return c
}
