// Package transform implements the node's pluggable content-hash registry:
// an ordered list of named init/update/final hashers used to derive object
// IDs from file paths and file contents.
//
// Grounded on the teacher's component-registration idiom seen throughout the
// corpus (a named, orderable collection guarded by one lock), adapted here
// to the spec's dual-convention Apply loop: a failing transform means "try
// the next one", and running off the end of the list is reported as the
// distinguished ErrExhausted sentinel rather than as any one transform's
// error. Apply swallows per-transform failures, so a call in which every
// remaining transform failed also ends in ErrExhausted.
package transform

import (
	"errors"
	"os"
	"sync"
	"syscall"
)

// Transform is a stateful hasher plugged into a Registry.
type Transform interface {
	Name() string
	Init() error
	Update(p []byte) error
	Final() ([]byte, error)
}

var (
	// ErrExists is returned by Add when name is already registered.
	ErrExists = errors.New("transform: name already registered")

	// ErrNotFound is returned by Remove when name is not registered.
	ErrNotFound = errors.New("transform: not found")

	// ErrExhausted is the positive terminal sentinel: Apply tried every
	// transform starting at the given cursor and none succeeded. This is
	// not a failure in the usual sense -- it is how a driver loop detects
	// "nothing left to try".
	ErrExhausted = errors.New("transform: no more transforms to try")
)

type entry struct {
	name string
	t    Transform
}

// Registry holds an ordered, named list of transforms.
type Registry struct {
	mu    sync.Mutex
	items []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a transform to the end of the ordered list.
func (r *Registry) Add(name string, t Transform) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.items {
		if e.name == name {
			return ErrExists
		}
	}

	r.items = append(r.items, entry{name: name, t: t})
	return nil
}

// Remove deletes a transform by name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.items {
		if e.name == name {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}

	return ErrNotFound
}

// Len reports how many transforms are registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Apply tries each transform starting at *cursor, in order. A transform is
// "tried" by calling Init, then Update(input), then Final. Any step failing
// moves on to the next transform. On success, *cursor is advanced to the
// index after the consumed transform and the transform's output is
// returned. If no transform at or after *cursor succeeds, Apply returns
// ErrExhausted and leaves *cursor at len(items).
//
// transform_lock is this registry's own r.mu, held for the full duration of
// Apply: transforms may hold private state mid-Init/Update/Final, so
// concurrent Apply calls are serialized here.
func (r *Registry) Apply(input []byte, cursor *int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for *cursor < len(r.items) {
		t := r.items[*cursor].t
		idx := *cursor
		*cursor++

		if err := t.Init(); err != nil {
			continue
		}
		if err := t.Update(input); err != nil {
			continue
		}
		id, err := t.Final()
		if err != nil {
			continue
		}

		_ = idx // consumed index, kept for clarity/debugging
		return id, nil
	}

	return nil, ErrExhausted
}

// ApplyFile memory-maps the file region [offset, offset+size) (size == 0
// means "whole file", determined via Stat) and runs Apply over the mapping,
// unmapping on every exit path. encoding/binary-style libraries in the pack
// have no mmap wrapper, so this uses syscall directly, matching how the
// spec's reference design (and Go's own x/exp/mmap) handles it.
func ApplyFile(r *Registry, path string, offset, size int64, cursor *int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if size == 0 {
		fi, err := f.Stat()
		if err != nil {
			return nil, err
		}
		size = fi.Size() - offset
	}

	if size == 0 {
		// empty file/region: apply over a zero-length input.
		return r.Apply(nil, cursor)
	}

	data, err := syscall.Mmap(int(f.Fd()), offset, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	defer syscall.Munmap(data)

	return r.Apply(data, cursor)
}
