package main

import (
	"fmt"
	"strings"
)

// normalizeHash lowercases a hex solution hash so it matches HashSolution.
func normalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// Registry applies the puzzle lifecycle rules to an explicit State. It owns
// no storage itself; every call is handed the aggregate it works on.
type Registry struct {
	owner string
}

// NewRegistry creates a registry whose puzzles may only be created by owner.
func NewRegistry(owner string) *Registry {
	return &Registry{owner: owner}
}

// Owner returns the identity allowed to create puzzles.
func (r *Registry) Owner() string {
	return r.owner
}

// Create stores a new unsolved puzzle under solutionHash, lowercased, and
// indexes it.
func (r *Registry) Create(st State, caller, solutionHash string, answers []Answer) error {
	if caller != r.owner {
		return ErrUnauthorized
	}
	solutionHash = normalizeHash(solutionHash)

	_, exists, err := st.Puzzle(solutionHash)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, solutionHash)
	}

	if err := st.PutPuzzle(solutionHash, Puzzle{Status: Unsolved{}, Answers: cloneAnswers(answers)}); err != nil {
		return err
	}
	return st.AddUnsolved(solutionHash)
}

// markSolved moves an unsolved puzzle to Solved and drops it from the index
// in the same State.
func (r *Registry) markSolved(st State, solutionHash string, p Puzzle, memo string) error {
	p.Status = Solved{Memo: memo}
	if err := st.PutPuzzle(solutionHash, p); err != nil {
		return err
	}
	return st.RemoveUnsolved(solutionHash)
}

// StatusOf returns the status of the puzzle stored under solutionHash.
func StatusOf(st StateReader, solutionHash string) (PuzzleStatus, bool, error) {
	p, ok, err := st.Puzzle(solutionHash)
	if err != nil || !ok {
		return nil, false, err
	}
	return p.Status, true, nil
}

// ListUnsolved resolves every entry of the unsolved index. An index entry
// without a puzzle record fails with ErrCorruptIndex.
func ListUnsolved(st StateReader) ([]UnsolvedPuzzle, error) {
	hashes, err := st.UnsolvedHashes()
	if err != nil {
		return nil, err
	}

	list := make([]UnsolvedPuzzle, 0, len(hashes))
	for _, hash := range hashes {
		p, ok, err := st.Puzzle(hash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCorruptIndex, hash)
		}
		list = append(list, UnsolvedPuzzle{
			SolutionHash: hash,
			Status:       StatusJSON{p.Status},
			Answer:       p.Answers,
		})
	}
	return list, nil
}
