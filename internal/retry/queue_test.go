package retry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeStates struct {
	mu     sync.Mutex
	online bool
	cbs    []func(bool)
}

func newFakeStates(online bool) *fakeStates {
	return &fakeStates{online: online}
}

func (f *fakeStates) Current() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeStates) Start(fn func(bool)) func() {
	f.mu.Lock()
	f.cbs = append(f.cbs, fn)
	online := f.online
	f.mu.Unlock()
	fn(online)
	return func() {}
}

func (f *fakeStates) set(online bool) {
	f.mu.Lock()
	f.online = online
	cbs := make([]func(bool), len(f.cbs))
	copy(cbs, f.cbs)
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(online)
	}
}

func TestExecuteOnlineSuccess(t *testing.T) {
	q := New(Options{States: newFakeStates(true)})
	defer q.Close()

	var calls atomic.Int32
	outcome, err := q.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "applied", nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome.Queued {
		t.Fatal("expected immediate application, got queued")
	}
	if outcome.Result != "applied" {
		t.Errorf("result = %v, want applied", outcome.Result)
	}
	if calls.Load() != 1 {
		t.Errorf("operation ran %d times, want 1", calls.Load())
	}
}

func TestExecuteOfflineQueuesWithoutAttempting(t *testing.T) {
	q := New(Options{States: newFakeStates(false)})
	defer q.Close()

	var calls atomic.Int32
	outcome, err := q.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !outcome.Queued {
		t.Fatal("expected queued outcome while offline")
	}
	if outcome.ID == "" {
		t.Error("queued outcome must carry an id")
	}
	if calls.Load() != 0 {
		t.Errorf("operation ran %d times while offline, want 0", calls.Load())
	}
	if got := q.Len(); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}
}

func TestExecuteConnectivityFailureQueues(t *testing.T) {
	q := New(Options{States: newFakeStates(true)})
	defer q.Close()

	outcome, err := q.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("Failed to fetch")
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !outcome.Queued {
		t.Fatal("connectivity failure must queue, not error")
	}
	if got := q.Len(); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}
}

func TestExecuteApplicationErrorPropagates(t *testing.T) {
	q := New(Options{States: newFakeStates(true)})
	defer q.Close()

	wantErr := errors.New("validation failed")
	outcome, err := q.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v unchanged", err, wantErr)
	}
	if outcome.Queued {
		t.Fatal("application errors must not be queued")
	}
	if got := q.Len(); got != 0 {
		t.Errorf("queue length = %d, want 0", got)
	}
}

func TestDrainReplaysInFIFOOrder(t *testing.T) {
	states := newFakeStates(false)
	q := New(Options{States: states})
	defer q.Close()

	var mu sync.Mutex
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		if _, err := q.Execute(context.Background(), func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}
	if got := q.Len(); got != 3 {
		t.Fatalf("queue length = %d, want 3", got)
	}

	states.set(true)

	if got := q.Len(); got != 0 {
		t.Fatalf("queue length after drain = %d, want 0", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("replay order = %v, want [1 2 3]", order)
	}
}

func TestDrainKeepsFailuresForNextReconnect(t *testing.T) {
	states := newFakeStates(false)
	q := New(Options{States: states})
	defer q.Close()

	var calls atomic.Int32
	if _, err := q.Execute(context.Background(), func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return nil, nil
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	states.set(true)
	if got := q.Len(); got != 1 {
		t.Fatalf("failed replay should stay queued, length = %d", got)
	}

	states.set(false)
	states.set(true)
	if got := q.Len(); got != 0 {
		t.Fatalf("second reconnect should clear the queue, length = %d", got)
	}
	if calls.Load() != 2 {
		t.Errorf("operation ran %d times, want 2", calls.Load())
	}
}

func TestAttemptCapDropsOperation(t *testing.T) {
	states := newFakeStates(false)
	q := New(Options{States: states, MaxAttempts: 2})
	defer q.Close()

	var calls atomic.Int32
	if _, err := q.Execute(context.Background(), func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("upstream unavailable")
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	for i := 0; i < 4; i++ {
		states.set(false)
		states.set(true)
	}
	if got := q.Len(); got != 0 {
		t.Fatalf("capped operation should be dropped, length = %d", got)
	}
	if calls.Load() != 2 {
		t.Errorf("operation ran %d times, want exactly the 2 capped attempts", calls.Load())
	}
}

func TestSnapshotTracksAttempts(t *testing.T) {
	states := newFakeStates(false)
	q := New(Options{States: states})
	defer q.Close()

	if _, err := q.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("network is unreachable")
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	states.set(true)

	pending := q.Snapshot()
	if len(pending) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(pending))
	}
	if pending[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", pending[0].Attempts)
	}
	if pending[0].EnqueuedAt.IsZero() {
		t.Error("enqueuedAt must be set")
	}
}

func TestExecuteAfterClose(t *testing.T) {
	q := New(Options{States: newFakeStates(false)})
	q.Close()

	_, err := q.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestConcurrentExecutesInterleaveSafely(t *testing.T) {
	states := newFakeStates(false)
	q := New(Options{States: states})
	defer q.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Execute(context.Background(), func(ctx context.Context) (any, error) {
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if got := q.Len(); got != 20 {
		t.Fatalf("queue length = %d, want 20", got)
	}
	states.set(true)
	if got := q.Len(); got != 0 {
		t.Fatalf("queue length after drain = %d, want 0", got)
	}
}
