package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestMapPreservesOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}
	pool := NewProcessPool(3)
	results, errs := Map(context.Background(), pool, items, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * n, nil
	}, MapOptions{})
	for i, e := range errs {
		if e != nil {
			t.Fatalf("unexpected error at %d: %v", i, e)
		}
	}
	want := []int{25, 16, 9, 4, 1}
	for i, w := range want {
		if results[i] != w {
			t.Fatalf("index %d: want %d got %d", i, w, results[i])
		}
	}
}

func TestMapRetriesThenSucceeds(t *testing.T) {
	var calls int32
	pool := NewThreadPool(2, 0)
	results, errs := Map(context.Background(), pool, []int{1}, func(_ context.Context, n int) (int, error) {
		c := atomic.AddInt32(&calls, 1)
		if c < 3 {
			return 0, errors.New("transient")
		}
		return n, nil
	}, MapOptions{MaxRetries: 3})
	if errs[0] != nil {
		t.Fatalf("expected eventual success, got %v", errs[0])
	}
	if results[0] != 1 {
		t.Fatalf("expected result 1, got %d", results[0])
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestMapExhaustsRetriesAndFails(t *testing.T) {
	pool := NewProcessPool(1)
	_, errs := Map(context.Background(), pool, []int{1, 2}, func(_ context.Context, n int) (int, error) {
		return 0, fmt.Errorf("boom %d", n)
	}, MapOptions{MaxRetries: 1})
	for _, e := range errs {
		if e == nil {
			t.Fatal("expected error for every item")
		}
	}
}

func TestProgressTrackerCounters(t *testing.T) {
	var last BatchProgress
	tracker := NewProgressTracker(3, func(p BatchProgress) { last = p })
	tracker.MarkRunning()
	tracker.MarkCompleted()
	tracker.MarkRunning()
	tracker.MarkFailed()
	if last.Completed != 1 || last.Failed != 1 {
		t.Fatalf("unexpected snapshot: %+v", last)
	}
	if last.Running != 0 {
		t.Fatalf("expected running to settle at 0, got %d", last.Running)
	}
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	p := NewPipeline()
	var order []string
	if err := p.AddStage(StageConfig{
		Name: "parse", PoolKind: "process", MaxWorkers: 2,
		Fn: func(_ context.Context, item any) (any, error) {
			order = append(order, "parse")
			return item.(int) + 1, nil
		},
	}); err != nil {
		t.Fatalf("add parse: %v", err)
	}
	if err := p.AddStage(StageConfig{
		Name: "embed", DependsOn: []string{"parse"}, PoolKind: "thread", MaxWorkers: 2,
		Fn: func(_ context.Context, item any) (any, error) {
			order = append(order, "embed")
			return item.(int) * 2, nil
		},
	}); err != nil {
		t.Fatalf("add embed: %v", err)
	}

	report, err := p.Run(context.Background(), []any{1, 2, 3}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Stages) != 2 {
		t.Fatalf("expected 2 stage results, got %d", len(report.Stages))
	}
	if report.Stages[0].Succeeded != 3 || report.Stages[1].Succeeded != 3 {
		t.Fatalf("unexpected stage results: %+v", report.Stages)
	}
}

func TestPipelineRejectsCycle(t *testing.T) {
	p := NewPipeline()
	noop := func(_ context.Context, item any) (any, error) { return item, nil }
	if err := p.AddStage(StageConfig{Name: "a", DependsOn: []string{"b"}, Fn: noop}); err == nil {
		t.Fatal("expected error adding stage with unknown dependency")
	}
	if err := p.AddStage(StageConfig{Name: "a", Fn: noop}); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := p.AddStage(StageConfig{Name: "b", DependsOn: []string{"a"}, Fn: noop}); err != nil {
		t.Fatalf("add b: %v", err)
	}
	// Attempting to re-register "a" depending on "b" would cycle; simulate
	// by building a fresh pipeline where the cycle is direct.
	cyc := NewPipeline()
	if err := cyc.AddStage(StageConfig{Name: "x", DependsOn: []string{"y"}, Fn: noop}); err == nil {
		t.Fatal("expected unknown-dependency error")
	}
}

func TestPipelineShortCircuitsOnEmptyStage(t *testing.T) {
	p := NewPipeline()
	var ranSecond bool
	if err := p.AddStage(StageConfig{
		Name: "always-fails",
		Fn:   func(_ context.Context, item any) (any, error) { return nil, errors.New("fail") },
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := p.AddStage(StageConfig{
		Name: "never-runs", DependsOn: []string{"always-fails"},
		Fn: func(_ context.Context, item any) (any, error) { ranSecond = true; return item, nil },
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	report, err := p.Run(context.Background(), []any{1, 2}, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ranSecond {
		t.Fatal("expected second stage to be skipped after first stage produced zero successes")
	}
	if len(report.Stages) != 1 {
		t.Fatalf("expected pipeline to stop after stage 1, got %d stages", len(report.Stages))
	}
}

func TestBatchProcessorGroupsAndBackpressures(t *testing.T) {
	var batchesSeen []int
	bp := NewBatchProcessor[int, int](2, 4, func(_ context.Context, batch []int) ([]int, error) {
		batchesSeen = append(batchesSeen, len(batch))
		out := make([]int, len(batch))
		for i, n := range batch {
			out[i] = n * 10
		}
		return out, nil
	})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := bp.Put(ctx, i); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	results, errs := bp.ProcessAll(ctx)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if bp.Pending() != 0 {
		t.Fatalf("expected buffer drained, got %d pending", bp.Pending())
	}
	bp.Close()
	if err := bp.Put(ctx, 99); !errors.Is(err, ErrBatchClosed) {
		t.Fatalf("expected ErrBatchClosed, got %v", err)
	}
}

func TestAsyncPoolWorkers(t *testing.T) {
	p := NewAsyncPool(0)
	if p.Workers() != 1 {
		t.Fatalf("expected default concurrency 1, got %d", p.Workers())
	}
}
