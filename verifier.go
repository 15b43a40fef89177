package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// HashSolution returns the hex-encoded SHA-256 digest of a plaintext solution.
func HashSolution(solution string) string {
	sum := sha256.Sum256([]byte(solution))
	return hex.EncodeToString(sum[:])
}

// Verifier checks solution guesses and performs the Unsolved to Solved
// transition.
type Verifier struct {
	store    Store
	registry *Registry
	rewards  RewardScheduler
	observer Observer
	logger   *slog.Logger
}

// Submit hashes solution and, when it names an unsolved puzzle, marks that
// puzzle solved with memo and requests the prize for caller. The reward is
// requested only after the state change has been committed.
func (v *Verifier) Submit(ctx context.Context, caller, solution, memo string) (string, error) {
	hash := HashSolution(solution)

	err := v.store.Update(ctx, func(st State) error {
		p, ok, err := st.Puzzle(hash)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}

		switch s := p.Status.(type) {
		case Unsolved:
			return v.registry.markSolved(st, hash, p, memo)
		case Solved:
			return ErrAlreadySolved
		default:
			return fmt.Errorf("puzzle %s has unknown status %T", hash, s)
		}
	})
	if err != nil {
		return hash, err
	}

	v.logger.Info("puzzle solved", "solution_hash", hash, "memo", memo)
	v.observer.PuzzleSolved(hash, memo)
	v.rewards.Request(ctx, caller, hash)
	return hash, nil
}
