package main

import "context"

// QueryService answers read-only questions about the registry.
type QueryService struct {
	store Store
}

// NewQueryService returns a read-only facade over store.
func NewQueryService(store Store) *QueryService {
	return &QueryService{store: store}
}

// Status returns the status of a puzzle, or ok=false for an unknown hash.
func (q *QueryService) Status(ctx context.Context, solutionHash string) (status PuzzleStatus, ok bool, err error) {
	err = q.store.View(ctx, func(st StateReader) error {
		status, ok, err = StatusOf(st, solutionHash)
		return err
	})
	return status, ok, err
}

// Unsolved lists every puzzle that has not been solved yet.
func (q *QueryService) Unsolved(ctx context.Context) (list []UnsolvedPuzzle, err error) {
	err = q.store.View(ctx, func(st StateReader) error {
		list, err = ListUnsolved(st)
		return err
	})
	return list, err
}
