package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/distill/store"
)

// backoffDelays is the fetch retry schedule: up to 5 attempts at 2, 4,
// 8, 16, 32 seconds.
var backoffDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}

// Orchestrator drives one Adapter to a target record count, persisting
// Progress to a StateDB and bulk-inserting into a Distillation Store.
type Orchestrator struct {
	State             *StateDB
	Store             *store.Store
	RequestsPerSecond float64
}

// NewOrchestrator builds an Orchestrator bound to a state db and a
// distillation store.
func NewOrchestrator(state *StateDB, s *store.Store, requestsPerSecond float64) *Orchestrator {
	return &Orchestrator{State: state, Store: s, RequestsPerSecond: requestsPerSecond}
}

// Harvest drives adapter until target records have been fetched or the
// feed ends, persisting Progress as it goes and resuming from the stored
// cursor when resume is true.
func (o *Orchestrator) Harvest(ctx context.Context, adapter Adapter, target int, resume bool) (Progress, error) {
	source := adapter.Name()
	progress, err := o.State.Load(ctx, source)
	if err != nil {
		return Progress{}, err
	}
	if !resume || (progress.Status != StatusRunning && progress.Status != StatusPaused) {
		progress = Progress{Source: source, Status: StatusRunning, StartedAt: time.Now()}
	} else {
		progress.Status = StatusRunning
		if progress.StartedAt.IsZero() {
			progress.StartedAt = time.Now()
		}
	}
	progress.Target = target
	progress.LastError = ""

	limiter := newRateLimiter(o.RequestsPerSecond)
	batchesSinceSave := 0
	recordsSinceLog := 0

	for progress.TotalFetched < target {
		select {
		case <-ctx.Done():
			progress.Status = StatusPaused
			_ = o.State.Save(context.WithoutCancel(ctx), progress)
			return progress, ctx.Err()
		default:
		}

		if err := limiter.Wait(ctx); err != nil {
			progress.Status = StatusPaused
			_ = o.State.Save(context.WithoutCancel(ctx), progress)
			return progress, err
		}

		result, err := fetchWithRetry(ctx, adapter, progress)
		if err != nil {
			if ctx.Err() != nil {
				progress.Status = StatusPaused
			} else {
				progress.Status = StatusError
				progress.LastError = err.Error()
				progress.TotalErrors++
			}
			_ = o.State.Save(context.WithoutCancel(ctx), progress)
			return progress, fmt.Errorf("harvest: %s: %w", source, err)
		}

		inserted, err := o.Store.DistillBatchMetadata(ctx, result.Records)
		if err != nil {
			progress.Status = StatusError
			progress.LastError = err.Error()
			progress.TotalErrors++
			_ = o.State.Save(context.WithoutCancel(ctx), progress)
			return progress, fmt.Errorf("harvest: %s: bulk insert: %w", source, err)
		}

		progress.TotalFetched += len(result.Records)
		progress.TotalInserted += inserted
		progress.Cursor = result.NextCursor
		progress.Offset = result.NewOffset
		progress.LastBatchSize = len(result.Records)
		progress.LastBatchAt = time.Now()
		batchesSinceSave++
		recordsSinceLog += len(result.Records)

		if batchesSinceSave >= 5 {
			if err := o.State.Save(context.WithoutCancel(ctx), progress); err != nil {
				slog.Warn("harvest: progress save failed", "source", source, "error", err)
			}
			batchesSinceSave = 0
		}
		if recordsSinceLog >= 2000 {
			slog.Info("harvest progress", "source", source, "fetched", progress.TotalFetched, "inserted", progress.TotalInserted)
			recordsSinceLog = 0
		}

		if result.NextCursor == "" {
			break
		}
	}

	if progress.TotalFetched >= target {
		progress.Status = StatusCompleted
	} else {
		progress.Status = StatusPaused
	}
	if err := o.State.Save(context.WithoutCancel(ctx), progress); err != nil {
		return progress, fmt.Errorf("harvest: final progress save: %w", err)
	}
	return progress, nil
}

// fetchWithRetry retries a single FetchBatch call with exponential
// backoff, surfacing the last error once the schedule is exhausted.
func fetchWithRetry(ctx context.Context, adapter Adapter, progress Progress) (FetchResult, error) {
	var lastErr error
	for attempt := 0; attempt <= len(backoffDelays); attempt++ {
		result, err := adapter.FetchBatch(ctx, progress)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == len(backoffDelays) {
			break
		}
		timer := time.NewTimer(backoffDelays[attempt])
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return FetchResult{}, ctx.Err()
		}
		timer.Stop()
	}
	return FetchResult{}, fmt.Errorf("exhausted %d attempts: %w", len(backoffDelays)+1, lastErr)
}
