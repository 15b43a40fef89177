package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Observer is told about committed state changes.
type Observer interface {
	PuzzleCreated(solutionHash string, answers []Answer)
	PuzzleSolved(solutionHash, memo string)
}

type nopObserver struct{}

func (nopObserver) PuzzleCreated(string, []Answer) {}
func (nopObserver) PuzzleSolved(string, string)    {}

type nopRewards struct{}

func (nopRewards) Request(context.Context, string, string) {}

// Contract is the boundary of the puzzle registry. Mutating calls run one at
// a time; each runs inside a single Store.Update so the puzzle map and the
// unsolved index change together. Reads go straight to the store.
type Contract struct {
	mu       sync.Mutex
	store    Store
	registry *Registry
	verifier *Verifier
	query    *QueryService
	observer Observer
	metrics  *Metrics
	logger   *slog.Logger
}

// ContractOption configures optional collaborators.
type ContractOption func(*Contract)

// WithObserver registers o for created and solved notifications.
func WithObserver(o Observer) ContractOption {
	return func(c *Contract) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithMetrics records registry activity in m.
func WithMetrics(m *Metrics) ContractOption {
	return func(c *Contract) { c.metrics = m }
}

// WithLogger sets the logger used for audit records.
func WithLogger(l *slog.Logger) ContractOption {
	return func(c *Contract) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewContract initializes a registry owned by owner over store. Rewards for
// solved puzzles are handed to rewards.
func NewContract(owner string, store Store, rewards RewardScheduler, opts ...ContractOption) *Contract {
	c := &Contract{
		store:    store,
		registry: NewRegistry(owner),
		query:    NewQueryService(store),
		observer: nopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if rewards == nil {
		rewards = nopRewards{}
	}
	c.verifier = &Verifier{
		store:    store,
		registry: c.registry,
		rewards:  rewards,
		observer: c.observer,
		logger:   c.logger,
	}
	return c
}

// Owner returns the identity allowed to create puzzles.
func (c *Contract) Owner() string {
	return c.registry.Owner()
}

// Query returns the read-only facade over the registry.
func (c *Contract) Query() *QueryService {
	return c.query
}

// CreatePuzzle registers a new unsolved puzzle. Only the owner may call it.
func (c *Contract) CreatePuzzle(ctx context.Context, caller, solutionHash string, answers []Answer) error {
	solutionHash = normalizeHash(solutionHash)
	ctx, span := tracer.Start(ctx, "Contract.CreatePuzzle", trace.WithAttributes(
		attribute.String("solution_hash", solutionHash),
		attribute.Int("answers", len(answers)),
	))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.store.Update(ctx, func(st State) error {
		return c.registry.Create(st, caller, solutionHash, answers)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, CodeOf(err))
		return err
	}

	c.metrics.puzzleCreated()
	c.logger.Info("puzzle created", "solution_hash", solutionHash, "answers", len(answers))
	c.observer.PuzzleCreated(solutionHash, cloneAnswers(answers))
	return nil
}

// SubmitSolution checks a plaintext guess. The first correct guess for a
// puzzle solves it with memo and requests the prize for caller.
func (c *Contract) SubmitSolution(ctx context.Context, caller, solution, memo string) (string, error) {
	ctx, span := tracer.Start(ctx, "Contract.SubmitSolution")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	hash, err := c.verifier.Submit(ctx, caller, solution, memo)
	span.SetAttributes(attribute.String("solution_hash", hash))
	switch {
	case err == nil:
		c.metrics.submission("solved")
	case errors.Is(err, ErrNotFound):
		c.metrics.submission("not_found")
	case errors.Is(err, ErrAlreadySolved):
		c.metrics.submission("already_solved")
	default:
		c.metrics.submission("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, CodeOf(err))
	}
	return hash, err
}

// PuzzleStatus returns the status of the puzzle stored under solutionHash.
func (c *Contract) PuzzleStatus(ctx context.Context, solutionHash string) (PuzzleStatus, bool, error) {
	return c.query.Status(ctx, solutionHash)
}

// UnsolvedPuzzles lists every puzzle still waiting for a solver.
func (c *Contract) UnsolvedPuzzles(ctx context.Context) ([]UnsolvedPuzzle, error) {
	ctx, span := tracer.Start(ctx, "Contract.UnsolvedPuzzles")
	defer span.End()

	list, err := c.query.Unsolved(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, CodeOf(err))
		if errors.Is(err, ErrCorruptIndex) {
			c.logger.Error("unsolved index is corrupt", "error", err)
		}
		return nil, err
	}
	c.metrics.setUnsolved(len(list))
	return list, nil
}
