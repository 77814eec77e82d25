package sprint

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devbackplane/backplane/internal/config"
	"github.com/devbackplane/backplane/pkg/metrics"
	"github.com/devbackplane/backplane/pkg/sprint/notify"
)

// Daemon is the long-running process composing Planner, Executor,
// History, ReviewChecker plus a scheduler (spec §4.L).
type Daemon struct {
	store    *StateStore
	planner  *Planner
	executor *Executor
	reviewer *ReviewChecker
	notifier *notify.Notifier
	hours    config.WorkingHours
	log      *zap.Logger

	checkInterval         time.Duration
	trackerRefreshInterval time.Duration
	reviewCheckInterval    time.Duration

	// mirror is an optional best-effort hook a caller can wire to an
	// external read-only store (internal/database.Mirror.Write); kept
	// as a plain func to avoid pkg/sprint depending on internal/database.
	mirror func(*SprintState) error

	// metrics is an optional Prometheus sink; nil disables instrumentation.
	metrics *metrics.Registry

	mu               sync.Mutex
	lastTrackerSync  time.Time
	lastReviewCheck  time.Time

	shutdownCh chan struct{}
	doneCh     chan struct{}
}

// SetMirror installs the optional external-mirror hook.
func (d *Daemon) SetMirror(mirror func(*SprintState) error) {
	d.mirror = mirror
}

// SetMetrics installs the optional Prometheus sink.
func (d *Daemon) SetMetrics(m *metrics.Registry) {
	d.metrics = m
}

func NewDaemon(store *StateStore, planner *Planner, executor *Executor, reviewer *ReviewChecker, notifier *notify.Notifier, hours config.WorkingHours, checkInterval, trackerRefreshInterval, reviewCheckInterval time.Duration, log *zap.Logger) *Daemon {
	if log == nil {
		log = zap.NewNop()
	}
	return &Daemon{
		store: store, planner: planner, executor: executor, reviewer: reviewer, notifier: notifier,
		hours: hours, log: log,
		checkInterval: checkInterval, trackerRefreshInterval: trackerRefreshInterval, reviewCheckInterval: reviewCheckInterval,
		shutdownCh: make(chan struct{}), doneCh: make(chan struct{}),
	}
}

// Run implements spec §4.L's startup/loop/shutdown contract. It
// blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Run(ctx context.Context) error {
	defer close(d.doneCh)

	if err := d.planner.RefreshFromTracker(ctx); err != nil {
		d.log.Warn("initial tracker refresh failed", zap.Error(err))
	} else {
		d.mu.Lock()
		d.lastTrackerSync = time.Now()
		d.mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.shutdownCh:
			return nil
		default:
		}

		ran := d.tick(ctx)

		sleep := d.checkInterval
		if !ran && sleep > idleSleepInterval {
			sleep = idleSleepInterval
		}
		if !d.sleepInterruptible(ctx, sleep) {
			return nil
		}
	}
}

// idleSleepInterval bounds how long the loop waits before re-checking
// the working-hours gate when a tick found nothing to do (spec §4.L
// pseudocode: idle polling uses a short interval, not the full
// check_interval used while actively processing).
const idleSleepInterval = 60 * time.Second

// Stop requests a graceful shutdown; it returns once the main loop has
// exited (spec §5: shutdown completes within one check_interval + IPC
// drain).
func (d *Daemon) Stop() {
	close(d.shutdownCh)
	<-d.doneCh
}

// OnWake implements sleep/wake recovery (spec §4.L): the host resuming
// from suspend must trigger an immediate tracker refresh before
// anything else runs, since cached tracker data may be stale.
func (d *Daemon) OnWake(ctx context.Context) {
	if err := d.planner.RefreshFromTracker(ctx); err != nil {
		d.log.Warn("post-wake tracker refresh failed", zap.Error(err))
		return
	}
	d.mu.Lock()
	d.lastTrackerSync = time.Now()
	d.mu.Unlock()
}

// tick runs one scheduling pass and reports whether it actually found
// work to do (a loaded state, gated shouldRun); the caller uses this
// to pick a shorter idle sleep instead of the full check_interval.
func (d *Daemon) tick(ctx context.Context) bool {
	if d.metrics != nil {
		d.metrics.SprintTicks.Inc()
	}

	state, err := d.store.Load()
	if err != nil {
		d.log.Error("failed to load sprint state", zap.Error(err))
		return false
	}
	if state == nil {
		return false
	}

	shouldRun := state.ManuallyStarted || (state.AutomaticMode && WithinWorkingHours(d.hours, time.Now()))
	if !shouldRun {
		return false
	}

	d.mu.Lock()
	needsTrackerRefresh := time.Since(d.lastTrackerSync) > d.trackerRefreshInterval
	needsReviewCheck := time.Since(d.lastReviewCheck) > d.reviewCheckInterval
	d.mu.Unlock()

	if needsTrackerRefresh {
		if err := d.planner.RefreshFromTracker(ctx); err != nil {
			d.log.Warn("tracker refresh failed", zap.Error(err))
		} else {
			d.mu.Lock()
			d.lastTrackerSync = time.Now()
			d.mu.Unlock()
		}
	}

	if needsReviewCheck {
		if err := d.reviewer.Check(ctx); err != nil {
			d.log.Warn("review check failed", zap.Error(err))
		} else {
			d.mu.Lock()
			d.lastReviewCheck = time.Now()
			d.mu.Unlock()
		}
	}

	state, err = d.store.Load()
	if err != nil {
		d.log.Error("failed to reload sprint state", zap.Error(err))
		return false
	}
	if state != nil && state.ProcessingIssue == "" && hasApprovedActionable(state, d.planner) {
		result, err := d.executor.ProcessNext(ctx, d.onProcessed)
		if err != nil {
			d.log.Error("process_next failed", zap.Error(err))
		} else if result.Processed {
			d.log.Info("issue processed", zap.String("issue_key", result.IssueKey), zap.String("reason", result.Reason))
			if d.metrics != nil {
				d.metrics.SprintExecutions.WithLabelValues(result.Reason).Inc()
			}
		}
	}

	if d.mirror != nil && state != nil {
		if err := d.mirror(state); err != nil {
			d.log.Warn("postgres mirror write failed", zap.Error(err))
		}
	}

	if d.metrics != nil && state != nil {
		d.metrics.SprintIssuesActive.Set(float64(len(state.Issues)))
	}

	return true
}

// LastTrackerSync reports when the tracker was last refreshed,
// exposed for get_state's runtime block (spec §4.M).
func (d *Daemon) LastTrackerSync() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTrackerSync
}

// LastReviewCheck reports when the review checker last ran.
func (d *Daemon) LastReviewCheck() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastReviewCheck
}

// WithinWorkingHoursNow reports whether now falls inside this
// daemon's configured working-hours window.
func (d *Daemon) WithinWorkingHoursNow() bool {
	return WithinWorkingHours(d.hours, time.Now())
}

func (d *Daemon) onProcessed(issue SprintIssue) {
	if d.notifier != nil {
		d.notifier.NotifyOutcome(issue.Key, string(issue.ApprovalStatus), issue.WaitingReason)
	}
}

func hasApprovedActionable(state *SprintState, planner *Planner) bool {
	for _, issue := range state.Issues {
		if issue.ApprovalStatus == ApprovalApproved && planner.IsActionable(issue) {
			return true
		}
	}
	return false
}

// sleepInterruptible sleeps for d, returning early (and reporting
// false) if ctx is cancelled or shutdown is requested (spec §5: no
// more than one check-interval of unresponsiveness on shutdown).
func (d *Daemon) sleepInterruptible(ctx context.Context, duration time.Duration) bool {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-d.shutdownCh:
		return false
	}
}
