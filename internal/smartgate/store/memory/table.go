package memory

import (
	"cmp"
	"slices"
)

type row[T any] struct {
	seq int64
	v   T
}

// table is an insertion-ordered map. A clone shares nothing mutable with its
// source, so it can be discarded on rollback.
type table[T any] struct {
	rows map[string]row[T]
	next int64
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]row[T])}
}

func (t *table[T]) clone() *table[T] {
	c := &table[T]{rows: make(map[string]row[T], len(t.rows)), next: t.next}
	for k, r := range t.rows {
		c.rows[k] = r
	}
	return c
}

func (t *table[T]) get(id string) (T, bool) {
	r, ok := t.rows[id]
	return r.v, ok
}

func (t *table[T]) put(id string, v T) {
	if r, ok := t.rows[id]; ok {
		r.v = v
		t.rows[id] = r
		return
	}
	t.next++
	t.rows[id] = row[T]{seq: t.next, v: v}
}

func (t *table[T]) del(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	return true
}

// list returns matching values in insertion order (newest last).
func (t *table[T]) list(match func(T) bool) []T {
	rs := make([]row[T], 0, len(t.rows))
	for _, r := range t.rows {
		if match == nil || match(r.v) {
			rs = append(rs, r)
		}
	}
	slices.SortFunc(rs, func(a, b row[T]) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]T, len(rs))
	for i, r := range rs {
		out[i] = r.v
	}
	return out
}

func (t *table[T]) find(match func(T) bool) (T, bool) {
	vs := t.list(match)
	if len(vs) == 0 {
		var zero T
		return zero, false
	}
	return vs[0], true
}

func newestFirst[T any](s []T) []T {
	slices.Reverse(s)
	return s
}
