package syncback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-syncback/internal/model"
	"github.com/nhle/mail-syncback/internal/store"
)

// requestTimeout bounds a single request execution.
const requestTimeout = 2 * time.Minute

// RequestQueue is the part of the store the runner drains.
type RequestQueue interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	PendingRequests(ctx context.Context, limit int) ([]model.SyncbackRequest, error)
	MarkRequest(ctx context.Context, id, status, errMsg string) error
}

// Runner drains pending syncback requests one at a time. Running requests
// strictly in sequence keeps at most one reconciliation per message in
// flight.
type Runner struct {
	queue      RequestQueue
	dispatcher *Dispatcher
	cfg        model.WorkerConfig
	log        zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	stopCh  chan struct{}
	doneCh  chan struct{}
	trigger chan struct{}
}

// NewRunner creates a runner over queue.
func NewRunner(
	queue RequestQueue,
	dispatcher *Dispatcher,
	cfg model.WorkerConfig,
	log zerolog.Logger,
) *Runner {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Runner{
		queue:      queue,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.With().Str("component", "runner").Logger(),
		trigger:    make(chan struct{}, 1),
	}
}

// Start launches the polling loop. It is a no-op when already running.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	ctx, r.cancel = context.WithCancel(ctx)
	r.log.Info().Strs("kinds", kindNames(r.dispatcher.Kinds())).Msg("runner started")

	go r.loop(ctx, r.stopCh, r.doneCh)
}

// Stop halts the polling loop, cancels the in-flight request, and waits
// for the loop to exit. A cancelled request stays queued.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.cancel()
	done := r.doneCh
	r.running = false
	r.mu.Unlock()

	<-done
}

// Trigger asks the loop to poll now instead of waiting for the next tick.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
		// A poll is already pending.
	}
}

func kindNames(kinds []Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

func (r *Runner) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	interval := time.Duration(r.cfg.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.poll(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		case <-r.trigger:
			r.poll(ctx)
		}
	}
}

func (r *Runner) poll(ctx context.Context) {
	n, err := r.RunOnce(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		r.log.Error().Err(err).Msg("polling syncback requests")
		return
	}
	if n > 0 {
		r.log.Debug().Int("processed", n).Msg("syncback batch done")
	}
}

// RunOnce processes one batch of pending requests and returns how many
// were attempted.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	reqs, err := r.queue.PendingRequests(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("loading pending requests: %w", err)
	}

	processed := 0
	for _, req := range reqs {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := r.process(ctx, req); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// process executes req and records the outcome.
func (r *Runner) process(ctx context.Context, req model.SyncbackRequest) error {
	log := r.log.With().
		Str("request_id", req.ID).
		Str("kind", req.Kind).
		Str("account_id", req.AccountID).
		Int("attempt", req.Attempts+1).
		Logger()

	acct, err := r.queue.GetAccount(ctx, req.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		// The handler reports the missing account as a configuration error.
		acct = nil
	} else if err != nil {
		return fmt.Errorf("loading account for request %s: %w", req.ID, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	_, execErr := r.dispatcher.Dispatch(execCtx, acct, req)
	cancel()

	if ctx.Err() != nil {
		log.Warn().Err(execErr).Msg("syncback request interrupted, left queued")
		return ctx.Err()
	}

	status, errMsg := r.outcome(req, execErr)
	switch {
	case execErr == nil:
		log.Info().Msg("syncback request succeeded")
	case status == model.RequestStatusFailed:
		log.Error().Err(execErr).Msg("syncback request failed")
	default:
		log.Warn().Err(execErr).Msg("syncback request will be retried")
	}

	if err := r.queue.MarkRequest(ctx, req.ID, status, errMsg); err != nil {
		return fmt.Errorf("recording outcome of request %s: %w", req.ID, err)
	}
	return nil
}

// outcome maps an execution result to the stored status. Permanent
// errors fail at once; others stay queued until attempts run out.
func (r *Runner) outcome(req model.SyncbackRequest, err error) (string, string) {
	if err == nil {
		return model.RequestStatusSucceeded, ""
	}
	if IsPermanent(err) || req.Attempts+1 >= r.cfg.MaxAttempts {
		return model.RequestStatusFailed, err.Error()
	}
	return model.RequestStatusNew, err.Error()
}
