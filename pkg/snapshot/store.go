// Package snapshot keeps the last observed immutable snapshot of every tracked
// entity. Values stored here must never be mutated after Put; callers store
// deep copies (model.Member.Clone and friends).
package snapshot

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Kind is the category of a tracked entity.
type Kind string

const (
	KindMember   Kind = "member"
	KindPresence Kind = "presence"
	KindUser     Kind = "user"
	KindChannel  Kind = "channel"
)

// Kinds lists every kind the store tracks.
var Kinds = []Kind{KindMember, KindPresence, KindUser, KindChannel}

// Observer is notified of every committed write. Calls happen while the
// entity's shard lock is held, so notifications for one entity arrive in
// commit order. Implementations must not block or call back into the Store.
type Observer interface {
	OnPut(kind Kind, id string, snap any)
	OnRemove(kind Kind, id string)
}

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	entries map[Kind]map[string]any
}

// Store is a sharded in-memory snapshot table.
type Store struct {
	shards   [shardCount]*shard
	observer Observer
}

// NewStore creates an empty Store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[Kind]map[string]any)}
	}
	return s
}

// SetObserver installs the write observer. Call before the store is shared.
func (s *Store) SetObserver(o Observer) {
	s.observer = o
}

func (s *Store) shardFor(kind Kind, id string) *shard {
	h := xxhash.Sum64String(string(kind) + ":" + id)
	return s.shards[h%shardCount]
}

// Get returns the snapshot for (kind, id).
func (s *Store) Get(kind Kind, id string) (any, bool) {
	sh := s.shardFor(kind, id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.entries[kind][id]
	return v, ok
}

// Put replaces the snapshot for (kind, id).
func (s *Store) Put(kind Kind, id string, snap any) {
	sh := s.shardFor(kind, id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s.putLocked(sh, kind, id, snap)
}

// PutIfAbsent stores snap only when (kind, id) has no snapshot yet. It
// reports whether snap was stored.
func (s *Store) PutIfAbsent(kind Kind, id string, snap any) bool {
	sh := s.shardFor(kind, id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.entries[kind][id]; ok {
		return false
	}
	s.putLocked(sh, kind, id, snap)
	return true
}

// Remove deletes the snapshot for (kind, id). It reports whether one existed.
func (s *Store) Remove(kind Kind, id string) bool {
	sh := s.shardFor(kind, id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return s.removeLocked(sh, kind, id)
}

// Update runs fn with the current snapshot while holding the entity's lock,
// so concurrent updates of one entity are linearized. fn returns the next
// snapshot and whether to keep it; keep == false removes the entry.
func (s *Store) Update(kind Kind, id string, fn func(old any, ok bool) (next any, keep bool)) {
	sh := s.shardFor(kind, id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	old, ok := sh.entries[kind][id]
	next, keep := fn(old, ok)
	if !keep {
		s.removeLocked(sh, kind, id)
		return
	}
	s.putLocked(sh, kind, id, next)
}

// load stores snap without notifying the observer.
func (s *Store) load(kind Kind, id string, snap any) {
	sh := s.shardFor(kind, id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	m := sh.entries[kind]
	if m == nil {
		m = make(map[string]any)
		sh.entries[kind] = m
	}
	m[id] = snap
}

func (s *Store) putLocked(sh *shard, kind Kind, id string, snap any) {
	m := sh.entries[kind]
	if m == nil {
		m = make(map[string]any)
		sh.entries[kind] = m
	}
	m[id] = snap
	if s.observer != nil {
		s.observer.OnPut(kind, id, snap)
	}
}

func (s *Store) removeLocked(sh *shard, kind Kind, id string) bool {
	m := sh.entries[kind]
	if _, ok := m[id]; !ok {
		return false
	}
	delete(m, id)
	if s.observer != nil {
		s.observer.OnRemove(kind, id)
	}
	return true
}

// Len returns the number of snapshots of the given kind.
func (s *Store) Len(kind Kind) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries[kind])
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn for every snapshot of kind until fn returns false. Shards are
// visited one at a time; fn must not call back into the Store.
func (s *Store) Range(kind Kind, fn func(id string, snap any) bool) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, v := range sh.entries[kind] {
			if !fn(id, v) {
				sh.mu.RUnlock()
				return
			}
		}
		sh.mu.RUnlock()
	}
}

// RemoveIf deletes every snapshot of kind matching pred and returns the count.
func (s *Store) RemoveIf(kind Kind, pred func(id string, snap any) bool) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, v := range sh.entries[kind] {
			if pred(id, v) {
				s.removeLocked(sh, kind, id)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// Lookup is a typed Get. A snapshot of a different type reports false.
func Lookup[S any](s *Store, kind Kind, id string) (S, bool) {
	v, ok := s.Get(kind, id)
	if !ok {
		var zero S
		return zero, false
	}
	snap, ok := v.(S)
	return snap, ok
}
