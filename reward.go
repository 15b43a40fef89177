package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// prizeAmountYocto is 5 NEAR in yoctoNEAR.
const prizeAmountYocto = "5000000000000000000000000"

const (
	defaultPayoutQueueSize = 256
	payoutDrainTimeout     = 10 * time.Second
	webhookTimeout         = 15 * time.Second
)

// PrizeAmount returns the fixed reward paid for each solved puzzle.
func PrizeAmount() *big.Int {
	amount, ok := new(big.Int).SetString(prizeAmountYocto, 10)
	if !ok {
		panic("invalid prize amount " + prizeAmountYocto)
	}
	return amount
}

// Transfer is a single reward payment request.
type Transfer struct {
	ID           uuid.UUID `json:"id"`
	Recipient    string    `json:"recipient"`
	Amount       *big.Int  `json:"-"`
	SolutionHash string    `json:"solution_hash"`
	RequestedAt  time.Time `json:"requested_at"`
}

// MarshalJSON encodes the amount as a decimal string.
func (t Transfer) MarshalJSON() ([]byte, error) {
	type alias Transfer
	return json.Marshal(struct {
		alias
		Amount string `json:"amount"`
	}{alias: alias(t), Amount: t.Amount.String()})
}

// Disburser executes value transfers. It is an external collaborator: the
// registry never waits on it and never undoes a solve when it fails.
type Disburser interface {
	Transfer(ctx context.Context, t Transfer) error
}

// RewardScheduler accepts reward requests after a solve has been committed.
type RewardScheduler interface {
	Request(ctx context.Context, recipient, solutionHash string)
}

// Payouts queues reward transfers and hands them to a Disburser from a
// single worker. Failed transfers are logged and counted, never retried.
type Payouts struct {
	queue     chan Transfer
	disburser Disburser
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
}

// NewPayouts creates a queue holding at most size pending transfers.
func NewPayouts(d Disburser, size int, logger *slog.Logger, metrics *Metrics) *Payouts {
	if size <= 0 {
		size = defaultPayoutQueueSize
	}
	return &Payouts{
		queue:     make(chan Transfer, size),
		disburser: d,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Request enqueues one prize transfer to recipient. It never blocks.
func (p *Payouts) Request(_ context.Context, recipient, solutionHash string) {
	t := Transfer{
		ID:           uuid.New(),
		Recipient:    recipient,
		Amount:       PrizeAmount(),
		SolutionHash: solutionHash,
		RequestedAt:  p.now(),
	}

	select {
	case p.queue <- t:
		p.metrics.reward("queued")
	default:
		p.metrics.reward("dropped")
		p.logger.Error("payout queue full, reward dropped",
			"transfer_id", t.ID, "recipient", recipient, "solution_hash", solutionHash)
	}
}

// Pending returns the number of queued transfers.
func (p *Payouts) Pending() int {
	return len(p.queue)
}

// Run delivers queued transfers until ctx is cancelled, then drains what is
// left with a bounded timeout.
func (p *Payouts) Run(ctx context.Context) error {
	for {
		select {
		case t := <-p.queue:
			p.deliver(ctx, t)
		case <-ctx.Done():
			p.drain(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (p *Payouts) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, payoutDrainTimeout)
	defer cancel()
	for {
		select {
		case t := <-p.queue:
			p.deliver(ctx, t)
		default:
			return
		}
	}
}

func (p *Payouts) deliver(ctx context.Context, t Transfer) {
	if err := p.disburser.Transfer(ctx, t); err != nil {
		p.metrics.reward("failed")
		p.logger.Error("reward transfer failed",
			"transfer_id", t.ID, "recipient", t.Recipient, "solution_hash", t.SolutionHash, "error", err)
		return
	}
	p.metrics.reward("sent")
	p.logger.Info("reward transfer sent",
		"transfer_id", t.ID, "recipient", t.Recipient, "amount", t.Amount.String())
}

// LogDisburser records transfers in the log only. It is the default when no
// payment backend is configured.
type LogDisburser struct {
	Logger *slog.Logger
}

func (d LogDisburser) Transfer(_ context.Context, t Transfer) error {
	d.Logger.Info("transfer requested",
		"transfer_id", t.ID, "recipient", t.Recipient, "amount", t.Amount.String(), "solution_hash", t.SolutionHash)
	return nil
}

// WebhookDisburser posts each transfer as JSON to a payment service. The
// transfer ID is sent as Idempotency-Key so the receiver can deduplicate.
type WebhookDisburser struct {
	URL    string
	Client *http.Client
}

// NewWebhookDisburser creates a disburser posting to url.
func NewWebhookDisburser(url string) *WebhookDisburser {
	return &WebhookDisburser{
		URL:    url,
		Client: &http.Client{Timeout: webhookTimeout},
	}
}

func (d *WebhookDisburser) Transfer(ctx context.Context, t Transfer) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", t.ID.String())

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transfer rejected: %s", resp.Status)
	}
	return nil
}
