package main

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedSet(t *testing.T) {
	s := newOrderedSet()
	assert.True(t, s.add("a"))
	assert.True(t, s.add("b"))
	assert.True(t, s.add("c"))
	assert.False(t, s.add("b"))
	assert.Equal(t, []string{"a", "b", "c"}, s.values())

	// Removal swaps the last element into the gap.
	assert.True(t, s.remove("a"))
	assert.Equal(t, []string{"c", "b"}, s.values())
	assert.False(t, s.remove("a"))

	assert.True(t, s.remove("b"))
	assert.True(t, s.remove("c"))
	assert.Empty(t, s.values())
}

func TestOrderedSetCloneIsIndependent(t *testing.T) {
	s := newOrderedSet()
	s.add("a")
	c := s.clone()
	c.add("b")
	c.remove("a")

	assert.Equal(t, []string{"a"}, s.values())
	assert.Equal(t, []string{"b"}, c.values())
}

func TestStoreUpdateDiscardsOnError(t *testing.T) {
	boom := errors.New("boom")
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			err := s.Update(ctx, func(st State) error {
				require.NoError(t, st.PutPuzzle("h", Puzzle{Status: Unsolved{}, Answers: sampleAnswers()}))
				require.NoError(t, st.AddUnsolved("h"))
				return boom
			})
			require.ErrorIs(t, err, boom)

			require.NoError(t, s.View(ctx, func(st StateReader) error {
				_, ok, err := st.Puzzle("h")
				require.NoError(t, err)
				assert.False(t, ok)
				hashes, err := st.UnsolvedHashes()
				require.NoError(t, err)
				assert.Empty(t, hashes)
				return nil
			}))
		})
	}
}

func TestStoreReadsOwnWrites(t *testing.T) {
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			require.NoError(t, s.Update(ctx, func(st State) error {
				require.NoError(t, st.PutPuzzle("h1", Puzzle{Status: Unsolved{}, Answers: sampleAnswers()}))
				require.NoError(t, st.AddUnsolved("h1"))

				p, ok, err := st.Puzzle("h1")
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, Unsolved{}, p.Status)

				hashes, err := st.UnsolvedHashes()
				require.NoError(t, err)
				assert.Equal(t, []string{"h1"}, hashes)
				return nil
			}))

			require.NoError(t, s.Update(ctx, func(st State) error {
				require.NoError(t, st.PutPuzzle("h1", Puzzle{Status: Solved{Memo: "m"}, Answers: sampleAnswers()}))
				return st.RemoveUnsolved("h1")
			}))

			require.NoError(t, s.View(ctx, func(st StateReader) error {
				p, ok, err := st.Puzzle("h1")
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, Solved{Memo: "m"}, p.Status)
				assert.Equal(t, sampleAnswers(), p.Answers)
				hashes, err := st.UnsolvedHashes()
				require.NoError(t, err)
				assert.Empty(t, hashes)
				return nil
			}))
		})
	}
}

func TestStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	assert.ErrorIs(t, s.View(ctx, func(StateReader) error { return nil }), context.Canceled)
	assert.ErrorIs(t, s.Update(ctx, func(State) error { return nil }), context.Canceled)
}

func TestPersistentStoresSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	hash := HashSolution("ABC")

	openers := map[string]func() (Store, error){
		"badger": func() (Store, error) { return OpenBadgerStore(filepath.Join(dir, "badger"), nil) },
		"sqlite": func() (Store, error) { return OpenSQLiteStore(filepath.Join(dir, "crossword.db")) },
	}
	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			s, err := open()
			require.NoError(t, err)
			c := NewContract(testOwner, s, nil, WithLogger(discardLogger()))
			require.NoError(t, c.CreatePuzzle(ctx, testOwner, hash, sampleAnswers()))
			_, err = c.SubmitSolution(ctx, testSolver, "ABC", "persisted")
			require.NoError(t, err)
			require.NoError(t, c.CreatePuzzle(ctx, testOwner, HashSolution("DEF"), sampleAnswers()))
			require.NoError(t, s.Close())

			s, err = open()
			require.NoError(t, err)
			defer s.Close()
			c = NewContract(testOwner, s, nil, WithLogger(discardLogger()))

			status, ok, err := c.PuzzleStatus(ctx, hash)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, Solved{Memo: "persisted"}, status)

			list, err := c.UnsolvedPuzzles(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, HashSolution("DEF"), list[0].SolutionHash)
		})
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestContract(t, NewMemoryStore())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			solution := string(rune('A' + i%26))
			_ = c.CreatePuzzle(ctx, testOwner, HashSolution(solution), sampleAnswers())
			_, _ = c.SubmitSolution(ctx, testSolver, solution, "memo")
			_, _ = c.UnsolvedPuzzles(ctx)
		}(i)
	}
	wg.Wait()

	var hashes []string
	for i := range 26 {
		hashes = append(hashes, HashSolution(string(rune('A'+i))))
	}
	requireIndexConsistent(t, c, hashes...)
}

func TestOpenSQLiteStoreRequiresPath(t *testing.T) {
	_, err := OpenSQLiteStore("  ")
	assert.Error(t, err)
}
