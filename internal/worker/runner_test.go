package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeWorker struct {
	name  string
	runFn func(ctx context.Context) error
}

func (f *fakeWorker) Name() string { return f.name }

func (f *fakeWorker) Run(ctx context.Context) error {
	if f.runFn != nil {
		return f.runFn(ctx)
	}
	<-ctx.Done()
	return nil
}

func TestRunner_StopOnCancel(t *testing.T) {
	t.Parallel()
	r := NewRunner(&fakeWorker{name: "idle"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestRunner_CanceledIsNotFailure(t *testing.T) {
	t.Parallel()
	w := &fakeWorker{name: "ctx", runFn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewRunner(w).Run(ctx); err != nil {
		t.Errorf("Run = %v, want nil for a worker returning context.Canceled", err)
	}
}

func TestRunner_PropagateError(t *testing.T) {
	t.Parallel()
	testErr := errors.New("worker failed")
	w := &fakeWorker{name: "block_watcher", runFn: func(context.Context) error { return testErr }}

	err := NewRunner(w).Run(t.Context())
	if !errors.Is(err, testErr) {
		t.Errorf("err = %v, want %v", err, testErr)
	}
	if err == nil || !strings.HasPrefix(err.Error(), "block_watcher: ") {
		t.Errorf("err = %v, want it prefixed with the worker name", err)
	}
}

func TestRunner_ErrorStopsOthers(t *testing.T) {
	t.Parallel()
	var stopped atomic.Bool
	failing := &fakeWorker{name: "bad", runFn: func(context.Context) error { return errors.New("boom") }}
	waiting := &fakeWorker{name: "good", runFn: func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return nil
	}}

	done := make(chan error, 1)
	go func() { done <- NewRunner(failing, waiting).Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "bad: boom") {
			t.Errorf("err = %v, want bad: boom", err)
		}
		if !stopped.Load() {
			t.Error("sibling worker was not cancelled")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after a worker failed")
	}
}

func TestRunner_MultipleWorkers(t *testing.T) {
	t.Parallel()
	var count atomic.Int32
	w1 := &fakeWorker{name: "one", runFn: func(ctx context.Context) error { count.Add(1); <-ctx.Done(); return nil }}
	w2 := &fakeWorker{name: "two", runFn: func(ctx context.Context) error { count.Add(1); <-ctx.Done(); return nil }}
	r := NewRunner(w1, w2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if count.Load() != 2 {
			t.Errorf("count = %d, want 2", count.Load())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestWorkerNames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		w    Worker
		want string
	}{
		{NewBlockWatcher(nil, nil, 0, nil), "block_watcher"},
		{NewDNSRefresher(nil, 0), "dns_refresher"},
		{NewEvictor("ratelimit", nil, 0, 0), "evictor/ratelimit"},
		{NewEvictor("", nil, 0, 0), "evictor"},
	}
	for _, tt := range tests {
		if got := tt.w.Name(); got != tt.want {
			t.Errorf("%T.Name() = %q, want %q", tt.w, got, tt.want)
		}
	}
}
