package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazz-dev/checkhttp/internal/checker"
	"github.com/hazz-dev/checkhttp/internal/checking"
	"github.com/hazz-dev/checkhttp/internal/config"
	"github.com/hazz-dev/checkhttp/internal/scheduler"
	"github.com/hazz-dev/checkhttp/internal/storage"
)

// mockChecker always returns a fixed result.
type mockChecker struct {
	result checker.Result
	calls  atomic.Int32
}

func (m *mockChecker) Check(ctx context.Context) checker.Result {
	m.calls.Add(1)
	return m.result
}

// mockStore records inserted runs.
type mockStore struct {
	mu     sync.Mutex
	runs   []checker.Result
	latest map[string]*storage.Run
	err    error
}

func (m *mockStore) InsertRun(_ context.Context, r checker.Result) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.runs = append(m.runs, r)
	m.mu.Unlock()
	return nil
}

func (m *mockStore) LatestRun(_ context.Context, name string) (*storage.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest != nil {
		return m.latest[name], nil
	}
	return nil, nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func makeChecks(interval time.Duration) []config.Check {
	return []config.Check{
		{
			Name:     "api",
			URL:      "http://example.com",
			Interval: config.Duration{Duration: interval},
			Timeout:  config.Duration{Duration: time.Second},
		},
	}
}

func makeFactory(c checker.Checker) scheduler.CheckerFactory {
	return func(config.Check) (checker.Checker, error) {
		return c, nil
	}
}

func okChecker(name string) *mockChecker {
	return &mockChecker{result: checker.Result{CheckName: name, State: checking.Ok}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScheduler_RunsCheckImmediately(t *testing.T) {
	store := &mockStore{}
	sched := scheduler.New(makeChecks(time.Hour), store, makeFactory(okChecker("api")), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	waitFor(t, func() bool { return store.count() >= 1 })

	if store.count() < 1 {
		t.Error("expected at least one run to happen immediately")
	}
}

func TestScheduler_RunsPeriodicChecks(t *testing.T) {
	store := &mockStore{}
	interval := 50 * time.Millisecond
	sched := scheduler.New(makeChecks(interval), store, makeFactory(okChecker("api")), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	sched.Start(ctx)
	<-ctx.Done()
	sched.Wait()

	// 1 immediate + ~5 ticks.
	if n := store.count(); n < 3 {
		t.Errorf("expected at least 3 runs in 300ms, got %d", n)
	}
}

func TestScheduler_ContextCancellation(t *testing.T) {
	store := &mockStore{}
	sched := scheduler.New(makeChecks(time.Hour), store, makeFactory(okChecker("api")), nil)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		sched.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Wait() did not return within 2s after context cancel")
	}
}

func TestScheduler_OnResultCallback(t *testing.T) {
	store := &mockStore{latest: map[string]*storage.Run{
		"api": {CheckName: "api", State: "CRITICAL"},
	}}

	var mu sync.Mutex
	var prevStates []*checking.Severity
	sched := scheduler.New(makeChecks(time.Hour), store, makeFactory(okChecker("api")), nil)
	sched.SetOnResult(func(r checker.Result, prev *checking.Severity) {
		mu.Lock()
		prevStates = append(prevStates, prev)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(prevStates) >= 1
	})
	cancel()
	sched.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(prevStates) < 1 {
		t.Fatal("expected onResult callback to be called at least once")
	}
	if prevStates[0] == nil || *prevStates[0] != checking.Crit {
		t.Errorf("expected previous state CRITICAL, got %v", prevStates[0])
	}
}

func TestScheduler_FirstRunHasNoPreviousState(t *testing.T) {
	store := &mockStore{}
	sched := scheduler.New(makeChecks(time.Hour), store, makeFactory(okChecker("api")), nil)

	var gotPrev atomic.Pointer[checking.Severity]
	var called atomic.Bool
	sched.SetOnResult(func(r checker.Result, prev *checking.Severity) {
		gotPrev.Store(prev)
		called.Store(true)
	})

	if _, err := sched.RunNow(context.Background(), "api"); err != nil {
		t.Fatal(err)
	}
	if !called.Load() {
		t.Fatal("expected callback")
	}
	if gotPrev.Load() != nil {
		t.Errorf("expected nil previous state, got %v", *gotPrev.Load())
	}
}

func TestScheduler_StoreErrorDoesNotCrash(t *testing.T) {
	store := &mockStore{err: context.DeadlineExceeded}
	sched := scheduler.New(makeChecks(time.Hour), store, makeFactory(okChecker("api")), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	sched.Start(ctx)
	<-ctx.Done()
	sched.Wait()
}

func TestScheduler_MultipleChecks(t *testing.T) {
	store := &mockStore{}
	checks := []config.Check{
		{Name: "c1", URL: "http://a.example", Interval: config.Duration{Duration: time.Hour}},
		{Name: "c2", URL: "http://b.example", Interval: config.Duration{Duration: time.Hour}},
	}
	factory := func(chk config.Check) (checker.Checker, error) {
		return okChecker(chk.Name), nil
	}

	sched := scheduler.New(checks, store, factory, nil)
	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	waitFor(t, func() bool { return store.count() >= 2 })
	cancel()
	sched.Wait()

	if n := store.count(); n < 2 {
		t.Errorf("expected at least 2 runs (one per check), got %d", n)
	}
}

func TestScheduler_FactoryErrorSkipsCheck(t *testing.T) {
	store := &mockStore{}
	factory := func(config.Check) (checker.Checker, error) {
		return nil, errors.New("bad check")
	}
	sched := scheduler.New(makeChecks(time.Millisecond), store, factory, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sched.Start(ctx)
	<-ctx.Done()
	sched.Wait()

	if n := store.count(); n != 0 {
		t.Errorf("expected no runs, got %d", n)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	store := &mockStore{}
	mc := okChecker("api")
	var built atomic.Int32
	factory := func(config.Check) (checker.Checker, error) {
		built.Add(1)
		return mc, nil
	}
	sched := scheduler.New(makeChecks(time.Hour), store, factory, nil)

	for i := 0; i < 2; i++ {
		result, err := sched.RunNow(context.Background(), "api")
		if err != nil {
			t.Fatalf("RunNow: %v", err)
		}
		if result.CheckName != "api" {
			t.Errorf("unexpected result %+v", result)
		}
	}
	if store.count() != 2 {
		t.Errorf("expected 2 stored runs, got %d", store.count())
	}
	if built.Load() != 1 {
		t.Errorf("expected checker to be built once, got %d", built.Load())
	}

	_, err := sched.RunNow(context.Background(), "missing")
	if !errors.Is(err, scheduler.ErrUnknownCheck) {
		t.Errorf("expected ErrUnknownCheck, got %v", err)
	}
}
