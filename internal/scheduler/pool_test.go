package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rendis/worldscript/pkg/schema"
)

func TestPool_BasicExecution(t *testing.T) {
	pool := NewPool(2, nil)
	defer pool.Shutdown()

	var ran int64
	err := pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool {
		atomic.AddInt64(&ran, 1)
		return true
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	pool.Wait()

	if atomic.LoadInt64(&ran) != 1 {
		t.Error("work did not execute")
	}
	if m := pool.Metrics(); m.Succeeded != 1 {
		t.Errorf("expected 1 succeeded, got %d", m.Succeeded)
	}
}

func TestPool_ConcurrencyLimit(t *testing.T) {
	poolSize := 3
	pool := NewPool(poolSize, nil)
	defer pool.Shutdown()

	var maxConcurrent, current int64
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		err := pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool {
			c := atomic.AddInt64(&current, 1)
			mu.Lock()
			if c > maxConcurrent {
				maxConcurrent = c
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return true
		})
		if err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}

	pool.Wait()

	if maxConcurrent > int64(poolSize) {
		t.Errorf("max concurrent %d exceeded pool size %d", maxConcurrent, poolSize)
	}
	if maxConcurrent == 0 {
		t.Error("no concurrent execution detected")
	}
}

func TestPool_Backpressure(t *testing.T) {
	pool := NewPool(1, nil)
	defer pool.Shutdown()

	started := make(chan struct{})
	block := make(chan struct{})

	err := pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool {
		close(started)
		<-block
		return true
	})
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	<-started

	submitted := make(chan struct{})
	go func() {
		_ = pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool { return true })
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Error("second submit should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)

	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Error("second submit did not unblock after first task completed")
	}

	pool.Wait()
}

func TestPool_PanicRecovery(t *testing.T) {
	pool := NewPool(2, nil)
	defer pool.Shutdown()

	if err := pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool { panic("test panic") }); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	pool.Wait()

	m := pool.Metrics()
	if m.Panics != 1 || m.Failed != 1 {
		t.Errorf("expected 1 panic and 1 failure, got %+v", m)
	}

	var ran int64
	if err := pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool {
		atomic.AddInt64(&ran, 1)
		return true
	}); err != nil {
		t.Fatalf("submit after panic failed: %v", err)
	}
	pool.Wait()

	if atomic.LoadInt64(&ran) != 1 {
		t.Error("work after panic did not execute")
	}
}

func TestPool_ContextCancellation(t *testing.T) {
	pool := NewPool(1, nil)
	defer pool.Shutdown()

	block := make(chan struct{})
	_ = pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool {
		<-block
		return true
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- pool.Submit(ctx, "action:1", func(ctx context.Context) bool { return true })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("submit did not return after context cancellation")
	}

	close(block)
	pool.Wait()
}

func TestPool_GracefulShutdown(t *testing.T) {
	pool := NewPool(2, nil)

	var completed int64
	for i := 0; i < 5; i++ {
		_ = pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&completed, 1)
			return true
		})
	}

	pool.Shutdown()

	if got := atomic.LoadInt64(&completed); got != 5 {
		t.Errorf("expected 5 completed after shutdown, got %d", got)
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(2, nil)
	pool.Shutdown()
	pool.Shutdown()

	err := pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool { return true })
	if err != ErrPoolShutdown {
		t.Errorf("expected ErrPoolShutdown, got %v", err)
	}
}

func TestPool_MetricsAccuracy(t *testing.T) {
	pool := NewPool(4, nil)
	defer pool.Shutdown()

	for i := 0; i < 3; i++ {
		_ = pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool { return true })
	}
	for i := 0; i < 2; i++ {
		_ = pool.Submit(context.Background(), "action:1", func(ctx context.Context) bool { return false })
	}
	pool.Wait()

	m := pool.Metrics()
	if m.Succeeded != 3 {
		t.Errorf("expected 3 succeeded, got %d", m.Succeeded)
	}
	if m.Failed != 2 {
		t.Errorf("expected 2 failed, got %d", m.Failed)
	}
	if m.Active != 0 {
		t.Errorf("expected 0 active after wait, got %d", m.Active)
	}
}

func TestPool_MetricsByLabel(t *testing.T) {
	pool := NewPool(2, nil)
	defer pool.Shutdown()

	_ = pool.Submit(context.Background(), "event:dawn", func(ctx context.Context) bool { return true })
	_ = pool.Submit(context.Background(), "event:dawn", func(ctx context.Context) bool { return true })
	_ = pool.Submit(context.Background(), "action:10", func(ctx context.Context) bool { return false })
	pool.Wait()

	m := pool.Metrics()
	want := []DispatchStats{
		{Label: "action:10", Failed: 1},
		{Label: "event:dawn", Succeeded: 2},
	}
	if len(m.ByLabel) != len(want) {
		t.Fatalf("expected %d labels, got %+v", len(want), m.ByLabel)
	}
	for i := range want {
		if m.ByLabel[i] != want[i] {
			t.Errorf("label %d: expected %+v, got %+v", i, want[i], m.ByLabel[i])
		}
	}
}

func TestPool_PanicHook(t *testing.T) {
	var gotLabel string
	var gotValue any
	pool := NewPool(1, func(label string, r any) {
		gotLabel, gotValue = label, r
	})
	defer pool.Shutdown()

	_ = pool.Submit(context.Background(), "action:13", func(ctx context.Context) bool { panic("cursed") })
	pool.Wait()

	if gotLabel != "action:13" || gotValue != "cursed" {
		t.Errorf("panic hook got label=%q value=%v", gotLabel, gotValue)
	}
	if m := pool.Metrics(); len(m.ByLabel) != 1 || m.ByLabel[0].Panics != 1 {
		t.Errorf("expected one panic under action:13, got %+v", m.ByLabel)
	}
}

func TestDispatchLabel(t *testing.T) {
	if got := dispatchLabel(&schema.QueuedAction{ActionID: 42}); got != "action:42" {
		t.Errorf("got %q", got)
	}
	if got := dispatchLabel(&schema.QueuedAction{ActionID: 42, Recurring: "dawn"}); got != "event:dawn" {
		t.Errorf("got %q", got)
	}
}
