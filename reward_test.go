package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDisburser struct {
	mu        sync.Mutex
	transfers []Transfer
	err       error
	delivered chan struct{}
}

func newFakeDisburser() *fakeDisburser {
	return &fakeDisburser{delivered: make(chan struct{}, 64)}
}

func (d *fakeDisburser) Transfer(_ context.Context, t Transfer) error {
	d.mu.Lock()
	d.transfers = append(d.transfers, t)
	err := d.err
	d.mu.Unlock()
	d.delivered <- struct{}{}
	return err
}

func (d *fakeDisburser) all() []Transfer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Transfer(nil), d.transfers...)
}

func waitDelivered(t *testing.T, d *fakeDisburser, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-d.delivered:
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d transfers delivered", i, n)
		}
	}
}

func TestPrizeAmount(t *testing.T) {
	assert.Equal(t, "5000000000000000000000000", PrizeAmount().String())

	// Callers get their own copy.
	a := PrizeAmount()
	a.SetInt64(1)
	assert.Equal(t, "5000000000000000000000000", PrizeAmount().String())
}

func TestPayoutsDeliverInOrder(t *testing.T) {
	d := newFakeDisburser()
	m := NewMetrics(prometheusTestRegistry())
	p := NewPayouts(d, 8, discardLogger(), m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Request(ctx, "alice.testnet", "h1")
	p.Request(ctx, "bob.testnet", "h2")
	waitDelivered(t, d, 2)

	cancel()
	require.NoError(t, <-done)

	got := d.all()
	require.Len(t, got, 2)
	assert.Equal(t, "alice.testnet", got[0].Recipient)
	assert.Equal(t, "h1", got[0].SolutionHash)
	assert.Equal(t, "bob.testnet", got[1].Recipient)
	assert.Equal(t, PrizeAmount(), got[0].Amount)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.Equal(t, 2.0, counterValue(t, m.Rewards.WithLabelValues("sent")))
}

func TestPayoutsDropWhenFull(t *testing.T) {
	d := newFakeDisburser()
	m := NewMetrics(prometheusTestRegistry())
	p := NewPayouts(d, 1, discardLogger(), m)

	// No worker running: the second request cannot be queued.
	p.Request(context.Background(), "alice.testnet", "h1")
	p.Request(context.Background(), "bob.testnet", "h2")

	assert.Equal(t, 1, p.Pending())
	assert.Equal(t, 1.0, counterValue(t, m.Rewards.WithLabelValues("queued")))
	assert.Equal(t, 1.0, counterValue(t, m.Rewards.WithLabelValues("dropped")))
}

func TestPayoutsFailureIsNotRetried(t *testing.T) {
	d := newFakeDisburser()
	d.err = errors.New("insufficient balance")
	m := NewMetrics(prometheusTestRegistry())
	p := NewPayouts(d, 4, discardLogger(), m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Request(ctx, "alice.testnet", "h1")
	waitDelivered(t, d, 1)
	cancel()
	require.NoError(t, <-done)

	assert.Len(t, d.all(), 1)
	assert.Equal(t, 1.0, counterValue(t, m.Rewards.WithLabelValues("failed")))
}

func TestPayoutsDrainOnShutdown(t *testing.T) {
	d := newFakeDisburser()
	p := NewPayouts(d, 4, discardLogger(), nil)

	p.Request(context.Background(), "alice.testnet", "h1")
	p.Request(context.Background(), "bob.testnet", "h2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))

	assert.Len(t, d.all(), 2)
	assert.Zero(t, p.Pending())
}

func TestSolveCommitsBeforeReward(t *testing.T) {
	// A disburser that fails must not undo the solve.
	d := newFakeDisburser()
	d.err = errors.New("transfer failed")
	p := NewPayouts(d, 4, discardLogger(), nil)
	c := NewContract(testOwner, NewMemoryStore(), p, WithLogger(discardLogger()))
	ctx := context.Background()

	hash := HashSolution("ABC")
	require.NoError(t, c.CreatePuzzle(ctx, testOwner, hash, sampleAnswers()))
	_, err := c.SubmitSolution(ctx, testSolver, "ABC", "nice")
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, p.Run(runCtx))

	status, ok, err := c.PuzzleStatus(ctx, hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Solved{Memo: "nice"}, status)
	assert.Len(t, d.all(), 1)
}

func TestWebhookDisburser(t *testing.T) {
	var got map[string]any
	var idempotencyKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idempotencyKey = r.Header.Get("Idempotency-Key")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := Transfer{
		ID:           uuid.New(),
		Recipient:    "alice.testnet",
		Amount:       PrizeAmount(),
		SolutionHash: "abc",
		RequestedAt:  time.Now(),
	}
	require.NoError(t, NewWebhookDisburser(srv.URL).Transfer(context.Background(), tr))

	assert.Equal(t, tr.ID.String(), idempotencyKey)
	assert.Equal(t, "alice.testnet", got["recipient"])
	assert.Equal(t, "5000000000000000000000000", got["amount"])
	assert.Equal(t, "abc", got["solution_hash"])
}

func TestWebhookDisburserRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookDisburser(srv.URL).Transfer(context.Background(), Transfer{ID: uuid.New(), Amount: PrizeAmount()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
