package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazz-dev/checkhttp/internal/checker"
	"github.com/hazz-dev/checkhttp/internal/checking"
	"github.com/hazz-dev/checkhttp/internal/config"
	"github.com/hazz-dev/checkhttp/internal/storage"
)

// ErrUnknownCheck is returned by RunNow for a check that is not configured.
var ErrUnknownCheck = errors.New("unknown check")

// Store defines the storage operations required by the scheduler.
type Store interface {
	InsertRun(ctx context.Context, r checker.Result) error
	LatestRun(ctx context.Context, name string) (*storage.Run, error)
}

// CheckerFactory creates a Checker for a given check config.
type CheckerFactory func(config.Check) (checker.Checker, error)

// Scheduler runs each configured check in its own goroutine.
type Scheduler struct {
	checks   []config.Check
	store    Store
	factory  CheckerFactory
	onResult func(checker.Result, *checking.Severity)
	logger   *slog.Logger
	wg       sync.WaitGroup

	mu       sync.Mutex
	checkers map[string]checker.Checker
}

// New creates a new Scheduler. Pass nil logger to use the default logger.
func New(checks []config.Check, store Store, factory CheckerFactory, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		checks:   checks,
		store:    store,
		factory:  factory,
		logger:   logger,
		checkers: make(map[string]checker.Checker, len(checks)),
	}
}

// SetOnResult sets the callback invoked after each run.
// result is the current run; prev is the previous state (nil on first run).
func (s *Scheduler) SetOnResult(fn func(checker.Result, *checking.Severity)) {
	s.onResult = fn
}

// Start spawns one goroutine per check. It is non-blocking.
func (s *Scheduler) Start(ctx context.Context) {
	for _, chk := range s.checks {
		c, err := s.checkerFor(chk)
		if err != nil {
			s.logger.Error("creating checker", "check", chk.Name, "error", err)
			continue
		}
		s.wg.Add(1)
		go s.runLoop(ctx, chk, c)
	}
}

// Wait blocks until all check goroutines have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// RunNow runs the named check once, outside its schedule. The run is stored
// and reported like a scheduled one.
func (s *Scheduler) RunNow(ctx context.Context, name string) (checker.Result, error) {
	for _, chk := range s.checks {
		if chk.Name != name {
			continue
		}
		c, err := s.checkerFor(chk)
		if err != nil {
			return checker.Result{}, err
		}
		return s.runCheck(ctx, chk, c), nil
	}
	return checker.Result{}, fmt.Errorf("%w %q", ErrUnknownCheck, name)
}

func (s *Scheduler) checkerFor(chk config.Check) (checker.Checker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.checkers[chk.Name]; ok {
		return c, nil
	}
	c, err := s.factory(chk)
	if err != nil {
		return nil, err
	}
	s.checkers[chk.Name] = c
	return c, nil
}

func (s *Scheduler) runLoop(ctx context.Context, chk config.Check, c checker.Checker) {
	defer s.wg.Done()

	// Run immediately.
	s.runCheck(ctx, chk, c)

	ticker := time.NewTicker(chk.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCheck(ctx, chk, c)
		}
	}
}

func (s *Scheduler) runCheck(ctx context.Context, chk config.Check, c checker.Checker) checker.Result {
	// Fetch previous state before running the check.
	prev, err := s.store.LatestRun(ctx, chk.Name)
	if err != nil {
		s.logger.Warn("fetching previous run", "check", chk.Name, "error", err)
	}

	result := c.Check(ctx)

	s.logger.Info("check result",
		"check", chk.Name,
		"state", result.State,
		"response_time", result.ResponseTime,
		"summary", result.Report.Headline(),
	)

	if err := s.store.InsertRun(ctx, result); err != nil {
		s.logger.Error("storing run", "check", chk.Name, "error", err)
	}

	if s.onResult != nil {
		var prevState *checking.Severity
		if prev != nil {
			if st, ok := checking.ParseSeverity(prev.State); ok {
				prevState = &st
			}
		}
		s.onResult(result, prevState)
	}
	return result
}
