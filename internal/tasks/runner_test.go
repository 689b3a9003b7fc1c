package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTask(t *testing.T) {
	r := New()
	var ran atomic.Int32
	if !r.Submit("touch", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}) {
		t.Fatal("expected task to be accepted")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ran.Load() != 1 {
		t.Fatalf("expected task to run once, ran %d", ran.Load())
	}
}

func TestSubmitDropsWhenSaturated(t *testing.T) {
	r := New(WithConcurrency(1))
	release := make(chan struct{})
	started := make(chan struct{})
	if !r.Submit("block", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}) {
		t.Fatal("expected first task to be accepted")
	}
	<-started

	if r.Submit("overflow", func(ctx context.Context) error { return nil }) {
		t.Fatal("expected saturated runner to drop the task")
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestFailuresAndPanicsAreAbsorbed(t *testing.T) {
	r := New(WithTimeout(50 * time.Millisecond))
	r.Submit("fail", func(ctx context.Context) error { return errors.New("store down") })
	r.Submit("panic", func(ctx context.Context) error { panic("boom") })

	var sawDeadline atomic.Bool
	r.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		sawDeadline.Store(true)
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !sawDeadline.Load() {
		t.Fatal("expected per-task timeout to fire")
	}
}

func TestNilRunnerRejects(t *testing.T) {
	var r *Runner
	if r.Submit("x", func(context.Context) error { return nil }) {
		t.Fatal("nil runner must not accept work")
	}
}
