package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"tallybook/internal/domain"
	"tallybook/internal/logging"
	"tallybook/internal/metrics"
	"tallybook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrOffline is returned when a drain is requested while the remote is unreachable.
	ErrOffline = errors.New("reconciler: offline")
	// ErrLeaseHeld is returned when another agent holds the drain lease.
	ErrLeaseHeld = errors.New("reconciler: drain lease held by another agent")
	// ErrLeaseLost is returned when the lease could not be renewed mid-pass.
	// Entries reconciled before that point stay synced.
	ErrLeaseLost = errors.New("reconciler: drain lease lost during pass")
)

const drainKey = "drain"

// Options tunes the reconciler. Zero values fall back to defaults.
type Options struct {
	SubmitTimeout  time.Duration
	Interval       time.Duration
	NotifyOnOnline bool
	LeaseTTL       time.Duration
	Retry          RetryPolicy
}

// Reconciler drains the local queue into the remote store.
type Reconciler struct {
	queue    domain.Queue
	remote   domain.RemoteStore
	conn     domain.ConnectivityReader
	notifier domain.SyncNotifier
	lease    domain.LeaseRepository
	owner    string
	opts     Options

	group         singleflight.Group
	triggers      chan string
	pendingOnline atomic.Bool
	logger        *zerolog.Logger
}

type passOutcome struct {
	result   models.DrainResult
	notified bool
}

// NewReconciler wires the reconciler to its collaborators.
func NewReconciler(
	queue domain.Queue,
	remote domain.RemoteStore,
	conn domain.ConnectivityReader,
	notifier domain.SyncNotifier,
	opts Options,
	logger *zerolog.Logger,
) *Reconciler {
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = models.DefaultSubmitTimeout
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = models.DefaultLeaseTTL
	}

	return &Reconciler{
		queue:    queue,
		remote:   remote,
		conn:     conn,
		notifier: notifier,
		owner:    uuid.NewString(),
		opts:     opts,
		triggers: make(chan string, 1),
		logger:   logging.Component(logger, "reconciler"),
	}
}

// UseLease makes every pass hold a lease shared with other agents.
func (r *Reconciler) UseLease(lease domain.LeaseRepository) {
	r.lease = lease
}

// Drain runs a pass, or joins the one already in flight.
func (r *Reconciler) Drain(ctx context.Context) (models.DrainResult, error) {
	return r.drain(ctx, models.TriggerManual)
}

// Trigger asks the background loop for a pass. It never blocks; a request made
// while another is pending is merged into it. An online request survives the
// merge so the pass still raises its notification.
func (r *Reconciler) Trigger(reason string) {
	if reason == models.TriggerOnline {
		r.pendingOnline.Store(true)
	}
	select {
	case r.triggers <- reason:
		r.logger.Debug().Str("reason", reason).Msg("Drain requested")
	default:
		r.logger.Debug().Str("reason", reason).Msg("Drain already pending")
	}
}

// Start serves triggers, the periodic interval and retry backoff until ctx
// is done.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.opts.Interval).Msg("Reconciler started")
	defer r.logger.Info().Msg("Reconciler stopped")

	var tickC <-chan time.Time
	if r.opts.Interval > 0 {
		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	var (
		retryTimer *time.Timer
		retryC     <-chan time.Time
		attempt    int
	)
	stopRetry := func() {
		if retryTimer != nil {
			retryTimer.Stop()
		}
		retryTimer, retryC = nil, nil
	}
	defer stopRetry()

	run := func(reason string) {
		res, err := r.drain(ctx, reason)
		switch {
		case err != nil:
			if !errors.Is(err, ErrOffline) && !errors.Is(err, context.Canceled) {
				r.logger.Error().Err(err).Str("reason", reason).Msg("Drain failed")
			}
			stopRetry()
		case res.Failed > 0:
			if r.opts.Retry.MaxRetries > 0 && attempt >= r.opts.Retry.MaxRetries {
				r.logger.Warn().Int("failed", res.Failed).Int("attempts", attempt).Msg("Retry budget exhausted, waiting for next trigger")
				stopRetry()
				attempt = 0
				return
			}
			attempt++
			delay := r.opts.Retry.NextDelay(attempt)
			stopRetry()
			retryTimer = time.NewTimer(delay)
			retryC = retryTimer.C
			r.logger.Debug().Dur("delay", delay).Int("attempt", attempt).Msg("Scheduled drain retry")
		default:
			attempt = 0
			stopRetry()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-r.triggers:
			if r.pendingOnline.Swap(false) {
				reason = models.TriggerOnline
			}
			run(reason)
		case <-tickC:
			run(models.TriggerInterval)
		case <-retryC:
			retryTimer, retryC = nil, nil
			run(models.TriggerRetry)
		}
	}
}

func (r *Reconciler) drain(ctx context.Context, reason string) (models.DrainResult, error) {
	// The pass outlives the caller that started it: joined callers wait on
	// the same result and accepted entries must still be marked synced.
	passCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(drainKey, func() (interface{}, error) {
		return r.pass(passCtx, reason)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return models.DrainResult{}, ctx.Err()
	case res = <-ch:
	}

	out, _ := res.Val.(passOutcome)
	if res.Err != nil {
		return out.result, res.Err
	}

	// A caller that joined someone else's pass still owes its own
	// online notification.
	if res.Shared && r.forceNotify(reason) && !out.notified {
		r.notifier.SignalCompletion(out.result)
	}
	return out.result, nil
}

func (r *Reconciler) forceNotify(reason string) bool {
	return r.opts.NotifyOnOnline && reason == models.TriggerOnline
}

func (r *Reconciler) pass(ctx context.Context, reason string) (passOutcome, error) {
	result := models.DrainResult{StartedAt: time.Now().UTC()}
	finish := func() passOutcome {
		result.FinishedAt = time.Now().UTC()
		return passOutcome{result: result}
	}

	if !r.conn.Online() {
		return finish(), ErrOffline
	}

	if r.lease != nil {
		ok, err := r.lease.Acquire(ctx, models.DrainLeaseKey, r.owner, r.opts.LeaseTTL)
		if err != nil {
			return finish(), fmt.Errorf("acquire drain lease: %w", err)
		}
		if !ok {
			return finish(), ErrLeaseHeld
		}
		defer func() {
			if err := r.lease.Release(ctx, models.DrainLeaseKey, r.owner); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to release drain lease")
			}
		}()
	}

	metrics.IncDrainPass(reason)

	entries, err := r.queue.ListUnsynced(ctx)
	if err != nil {
		return finish(), fmt.Errorf("list unsynced entries: %w", err)
	}
	result.Total = len(entries)

	var leaseErr error
	for i := range entries {
		if i > 0 && r.lease != nil {
			if leaseErr = r.renewLease(ctx); leaseErr != nil {
				r.logger.Warn().Err(leaseErr).Int("remaining", len(entries)-i).Msg("Stopping pass")
				break
			}
		}

		entry := &entries[i]
		if err := r.submit(ctx, entry); err != nil {
			result.Failed++
			r.logger.Warn().
				Err(err).
				Str("local_id", entry.LocalID).
				Msg("Entry not reconciled, will retry")
			continue
		}
		result.Synced++
	}

	result.Success = leaseErr == nil
	out := finish()

	metrics.ObserveDrain(result.Synced, result.Failed)
	if n, err := r.queue.CountUnsynced(ctx); err == nil {
		metrics.SetUnsynced(n)
	}

	r.logger.Info().
		Str("reason", reason).
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Int("total", result.Total).
		Msg("Drain finished")

	if result.Attempted() || r.forceNotify(reason) {
		r.notifier.SignalCompletion(out.result)
		out.notified = true
	}
	return out, leaseErr
}

// renewLease extends the drain lease before the next submission so a long
// pass never outlives it.
func (r *Reconciler) renewLease(ctx context.Context) error {
	ok, err := r.lease.Acquire(ctx, models.DrainLeaseKey, r.owner, r.opts.LeaseTTL)
	if err != nil {
		return fmt.Errorf("renew drain lease: %w", err)
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

func (r *Reconciler) submit(ctx context.Context, entry *models.QueueEntry) error {
	submitCtx, cancel := context.WithTimeout(ctx, r.opts.SubmitTimeout)
	defer cancel()

	serverID, err := r.remote.Create(submitCtx, entry.LocalID, entry.Payload)
	if err != nil {
		return err
	}

	if err := r.queue.MarkSynced(ctx, entry.LocalID, serverID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	r.logger.Debug().Str("local_id", entry.LocalID).Str("server_id", serverID).Msg("Entry reconciled")
	return nil
}
