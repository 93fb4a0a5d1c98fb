// Package scheduler drives periodic and on-demand indicator refreshes.
//
// A single loop goroutine performs every refresh, so at most one computation
// touches the store at a time; ticks that fire while a refresh is running are
// dropped by time.Ticker and on-demand triggers coalesce into one pending run.
package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"line-monitor/internal/domain"
)

var (
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrNotRunning     = errors.New("scheduler not running")
	ErrStopped        = errors.New("scheduler stopped")
)

const defaultTickTimeout = 30 * time.Second

// Computer is the part of the indicator engine the scheduler needs
type Computer interface {
	Snapshot(ctx context.Context) (*domain.IndicatorSnapshot, error)
	DailyTrend(ctx context.Context) ([]domain.DailyAggregate, error)
}

// Refresh result of one refresh run. Err is set when the run failed;
// Snapshot and Trend are then nil.
type Refresh struct {
	RunID     string                    `json:"run_id"`
	Reason    string                    `json:"reason"`
	Snapshot  *domain.IndicatorSnapshot `json:"snapshot,omitempty"`
	Trend     []domain.DailyAggregate   `json:"trend,omitempty"`
	StartedAt time.Time                 `json:"started_at"`
	Duration  time.Duration             `json:"duration"`
	Err       error                     `json:"-"`
}

// Subscriber receives every refresh, successful or not. It is called from the
// scheduler loop and must not block for long.
type Subscriber interface {
	OnRefresh(ctx context.Context, r Refresh)
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc func(ctx context.Context, r Refresh)

func (f SubscriberFunc) OnRefresh(ctx context.Context, r Refresh) { f(ctx, r) }

// Option configures a Scheduler
type Option func(*Scheduler)

// WithSubscriber registers s for refresh delivery
func WithSubscriber(s Subscriber) Option {
	return func(sc *Scheduler) { sc.subscribers = append(sc.subscribers, s) }
}

// WithCloser registers a resource (store pool, broker client) released on Stop
func WithCloser(c io.Closer) Option {
	return func(sc *Scheduler) { sc.closers = append(sc.closers, c) }
}

// WithTickTimeout bounds a single refresh
func WithTickTimeout(d time.Duration) Option {
	return func(sc *Scheduler) {
		if d > 0 {
			sc.tickTimeout = d
		}
	}
}

// Scheduler runs refreshes on a fixed interval and on demand
type Scheduler struct {
	computer    Computer
	interval    time.Duration
	tickTimeout time.Duration
	logger      *zap.Logger
	subscribers []Subscriber
	closers     []io.Closer

	trigger chan struct{}

	mu      sync.Mutex
	state   state
	cancel  context.CancelFunc
	done    chan struct{}
	latest  *Refresh
	lastErr error

	// triggers requested vs. triggers covered by a finished refresh
	requested uint64
	covered   uint64

	closeOnce      sync.Once
	closeErr       error
	closeAfterDone sync.Once
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// New creates a scheduler; interval must be positive.
func New(computer Computer, interval time.Duration, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		computer:    computer,
		interval:    interval,
		tickTimeout: defaultTickTimeout,
		logger:      logger,
		trigger:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe adds a subscriber; only valid before Start.
func (s *Scheduler) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Start launches the loop, which refreshes immediately and then every interval
// until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = stateRunning
	subscribers := append([]Subscriber(nil), s.subscribers...)

	s.logger.Info("Starting refresh scheduler", zap.Duration("interval", s.interval))
	go s.loop(loopCtx, subscribers, s.done)
	return nil
}

// TriggerNow requests an immediate refresh. Requests made while one is already
// pending are merged.
func (s *Scheduler) TriggerNow() error {
	s.mu.Lock()
	running := s.state == stateRunning
	if running {
		s.requested++
	}
	s.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	select {
	case s.trigger <- struct{}{}:
	default:
	}
	return nil
}

// Stop halts the loop and releases registered closers. It is safe to call when
// never started and more than once. A refresh already in flight is allowed to
// finish; Stop waits for it unless ctx expires first, in which case the
// closers run as soon as the loop exits.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	prev := s.state
	s.state = stateStopped
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if prev == stateRunning {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("Timed out waiting for in-flight refresh, resources released when it ends", zap.Error(ctx.Err()))
			s.closeAfterDone.Do(func() {
				go func() {
					<-done
					_ = s.closeResources()
				}()
			})
			return ctx.Err()
		}
		if prev == stateRunning {
			s.logger.Info("Refresh scheduler stopped")
		}
	}

	return s.closeResources()
}

// Pending reports whether a TriggerNow request has not yet been covered by a
// finished refresh, meaning Latest may predate the caller's last write.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning && s.requested > s.covered
}

// Latest returns the last successful refresh
func (s *Scheduler) Latest() (Refresh, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Refresh{}, false
	}
	return *s.latest, true
}

// LastError returns the error of the most recent refresh, nil if it succeeded
func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Scheduler) loop(ctx context.Context, subscribers []Subscriber, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx, "startup", subscribers)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, "interval", subscribers)
		case <-s.trigger:
			s.runOnce(ctx, "manual", subscribers)
		}
	}
}

// runOnce performs one refresh. The computation runs on a context detached
// from loop cancellation so Stop lets it finish.
func (s *Scheduler) runOnce(loopCtx context.Context, reason string, subscribers []Subscriber) {
	if loopCtx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(loopCtx), s.tickTimeout)
	defer cancel()

	s.mu.Lock()
	covers := s.requested
	s.mu.Unlock()

	r := Refresh{
		RunID:     uuid.NewString(),
		Reason:    reason,
		StartedAt: time.Now(),
	}

	snapshot, err := s.computer.Snapshot(ctx)
	if err == nil {
		var trend []domain.DailyAggregate
		trend, err = s.computer.DailyTrend(ctx)
		if err == nil {
			r.Snapshot = snapshot
			r.Trend = trend
		}
	}
	r.Duration = time.Since(r.StartedAt)
	r.Err = err

	s.mu.Lock()
	s.covered = covers
	s.lastErr = err
	if err == nil {
		latest := r
		s.latest = &latest
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Refresh failed",
			zap.String("run_id", r.RunID),
			zap.String("reason", reason),
			zap.Error(err),
		)
	} else {
		s.logger.Debug("Refresh completed",
			zap.String("run_id", r.RunID),
			zap.String("reason", reason),
			zap.Float64("goal_probability", snapshot.GoalProbabilityPercent),
			zap.Int64("total_stopped_minutes", snapshot.TotalStoppedMinutes),
			zap.Duration("duration", r.Duration),
		)
	}

	for _, sub := range subscribers {
		sub.OnRefresh(ctx, r)
	}
}

func (s *Scheduler) closeResources() error {
	s.closeOnce.Do(func() {
		var errs []error
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				s.logger.Error("Error releasing resource", zap.Error(err))
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
