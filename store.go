package main

import (
	"context"
	"sync"
)

// StateReader is a read-only view of the two persisted partitions:
// puzzles (hash -> record) and unsolved_puzzles (set of hashes).
type StateReader interface {
	// Puzzle returns the record stored under hash.
	Puzzle(hash string) (Puzzle, bool, error)
	// UnsolvedHashes returns the unsolved index in its iteration order.
	UnsolvedHashes() ([]string, error)
}

// State is the mutable aggregate handed to a single Update call. All writes
// made through it commit together or not at all.
type State interface {
	StateReader
	PutPuzzle(hash string, p Puzzle) error
	AddUnsolved(hash string) error
	RemoveUnsolved(hash string) error
}

// Store persists registry state. View and Update run fn against a consistent
// snapshot; an error returned by fn from Update discards its writes.
type Store interface {
	View(ctx context.Context, fn func(StateReader) error) error
	Update(ctx context.Context, fn func(State) error) error
	Close() error
}

// MemoryStore holds all registry state in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	puzzles  map[string]Puzzle
	unsolved orderedSet
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		puzzles:  make(map[string]Puzzle),
		unsolved: newOrderedSet(),
	}
}

func (s *MemoryStore) View(ctx context.Context, fn func(StateReader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{s: s})
}

func (s *MemoryStore) Update(ctx context.Context, fn func(State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, puts: make(map[string]Puzzle), staged: s.unsolved.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	for hash, p := range tx.puts {
		s.puzzles[hash] = p
	}
	s.unsolved = *tx.staged
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// memTx stages writes until Update commits them.
type memTx struct {
	s      *MemoryStore
	puts   map[string]Puzzle
	staged *orderedSet
}

func (t *memTx) Puzzle(hash string) (Puzzle, bool, error) {
	if p, ok := t.puts[hash]; ok {
		return clonePuzzle(p), true, nil
	}
	p, ok := t.s.puzzles[hash]
	if !ok {
		return Puzzle{}, false, nil
	}
	return clonePuzzle(p), true, nil
}

func (t *memTx) UnsolvedHashes() ([]string, error) {
	if t.staged != nil {
		return t.staged.values(), nil
	}
	return t.s.unsolved.values(), nil
}

func (t *memTx) PutPuzzle(hash string, p Puzzle) error {
	t.puts[hash] = clonePuzzle(p)
	return nil
}

func (t *memTx) AddUnsolved(hash string) error {
	t.staged.add(hash)
	return nil
}

func (t *memTx) RemoveUnsolved(hash string) error {
	t.staged.remove(hash)
	return nil
}

func clonePuzzle(p Puzzle) Puzzle {
	return Puzzle{Status: p.Status, Answers: cloneAnswers(p.Answers)}
}

// orderedSet is a set with a stable iteration order. Removal swaps the last
// element into the freed slot.
type orderedSet struct {
	items []string
	index map[string]int
}

func newOrderedSet() orderedSet {
	return orderedSet{index: make(map[string]int)}
}

func (o *orderedSet) add(v string) bool {
	if _, ok := o.index[v]; ok {
		return false
	}
	o.index[v] = len(o.items)
	o.items = append(o.items, v)
	return true
}

func (o *orderedSet) remove(v string) bool {
	i, ok := o.index[v]
	if !ok {
		return false
	}
	last := len(o.items) - 1
	if i != last {
		o.items[i] = o.items[last]
		o.index[o.items[i]] = i
	}
	o.items = o.items[:last]
	delete(o.index, v)
	return true
}

func (o *orderedSet) values() []string {
	cp := make([]string, len(o.items))
	copy(cp, o.items)
	return cp
}

func (o *orderedSet) clone() *orderedSet {
	c := &orderedSet{
		items: o.values(),
		index: make(map[string]int, len(o.index)),
	}
	for k, v := range o.index {
		c.index[k] = v
	}
	return c
}
