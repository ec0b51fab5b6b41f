package mstore

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// hash is a field -> value map, the in-memory counterpart of a remote hash
type hash = *xsync.MapOf[string, string]

// Backend is an in-process stand-in for the remote hash store. Several stores may
// share one Backend, just like several processes share one remote database.
//
// Writes to a hash run inside the Compute callback of the outer map, so they are
// serialized per hash. Reads are lock-free. A hash without fields does not exist.
type Backend struct {
	hashes *xsync.MapOf[string, hash]
}

// NewBackend creates a new empty backend.
func NewBackend() *Backend {
	return &Backend{
		hashes: xsync.NewMapOf[string, hash](),
	}
}

// HMGet returns the values for fields of hash name, ok[i] is false for missing fields.
func (b *Backend) HMGet(name string, fields []string) (values []string, ok []bool) {
	values = make([]string, len(fields))
	ok = make([]bool, len(fields))

	h, loaded := b.hashes.Load(name)
	if !loaded {
		return values, ok
	}
	for i, field := range fields {
		values[i], ok[i] = h.Load(field)
	}
	return values, ok
}

// HSet writes fields[i] = values[i] for all i into hash name.
func (b *Backend) HSet(name string, fields []string, values []string) {
	b.hashes.Compute(name, func(h hash, loaded bool) (hash, bool) {
		if !loaded {
			h = xsync.NewMapOf[string, string]()
		}
		for i, field := range fields {
			h.Store(field, values[i])
		}
		return h, h.Size() == 0
	})
}

// HDel removes fields from hash name. The hash is removed once it has no fields left.
func (b *Backend) HDel(name string, fields []string) {
	b.hashes.Compute(name, func(h hash, loaded bool) (hash, bool) {
		if !loaded {
			return h, true
		}
		for _, field := range fields {
			h.Delete(field)
		}
		return h, h.Size() == 0
	})
}

// HKeys returns the fields of hash name in no particular order.
func (b *Backend) HKeys(name string) []string {
	h, loaded := b.hashes.Load(name)
	if !loaded {
		return []string{}
	}
	fields := make([]string, 0, h.Size())
	h.Range(func(field string, _ string) bool {
		fields = append(fields, field)
		return true
	})
	return fields
}

// Del removes hash name.
func (b *Backend) Del(name string) {
	b.hashes.Delete(name)
}

// Exists reports whether hash name has at least one field.
func (b *Backend) Exists(name string) bool {
	_, loaded := b.hashes.Load(name)
	return loaded
}

// Len returns the number of hashes.
func (b *Backend) Len() int {
	return b.hashes.Size()
}
