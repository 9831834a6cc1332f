package executor

import (
	"context"
	"time"
)

// ProcessPool is the CPU-bound pool: a goroutine worker pool sized to
// max(2, cpus-1) by default, leaving one core for the supervisor.
type ProcessPool struct {
	workers int
}

// NewProcessPool constructs a ProcessPool. maxWorkers<=0 selects the
// default width.
func NewProcessPool(maxWorkers int) *ProcessPool {
	if maxWorkers <= 0 {
		maxWorkers = defaultProcessWorkers()
	}
	return &ProcessPool{workers: maxWorkers}
}

// Workers returns the configured worker count.
func (p *ProcessPool) Workers() int { return p.workers }

// ChunkSize computes the auto chunk-size rule: len(items) / (workers*4),
// floored at 1.
func (p *ProcessPool) ChunkSize(nItems int) int {
	cs := nItems / (p.workers * 4)
	if cs < 1 {
		cs = 1
	}
	return cs
}

// ThreadPool is the I/O-bound pool: a goroutine worker pool sized to
// min(cpus*4, 64) by default, with an optional requests-per-second rate
// limit shared across all workers.
type ThreadPool struct {
	workers   int
	rateLimit float64 // 0 = unlimited
	ticker    *limiter
}

// NewThreadPool constructs a ThreadPool. maxWorkers<=0 selects the
// default width; rateLimitPerSec<=0 disables rate limiting.
func NewThreadPool(maxWorkers int, rateLimitPerSec float64) *ThreadPool {
	if maxWorkers <= 0 {
		maxWorkers = defaultThreadWorkers()
	}
	tp := &ThreadPool{workers: maxWorkers, rateLimit: rateLimitPerSec}
	if rateLimitPerSec > 0 {
		tp.ticker = newLimiter(rateLimitPerSec)
	}
	return tp
}

// Workers returns the configured worker count.
func (p *ThreadPool) Workers() int { return p.workers }

// Throttle blocks the caller until it is safe to issue the next request,
// honoring the configured requests-per-second limit. A no-op if no rate
// limit was configured.
func (p *ThreadPool) Throttle(ctx context.Context) {
	if p.ticker == nil {
		return
	}
	p.ticker.wait(ctx)
}

// AsyncPool is the cooperative-concurrency pool, bounded by a semaphore
// of maxConcurrency: a goroutine pool whose width equals the configured
// concurrency bound, for adapters that are natively non-blocking.
type AsyncPool struct {
	concurrency int
}

// NewAsyncPool constructs an AsyncPool bounded by maxConcurrency.
func NewAsyncPool(maxConcurrency int) *AsyncPool {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &AsyncPool{concurrency: maxConcurrency}
}

// Workers returns the configured concurrency bound.
func (p *AsyncPool) Workers() int { return p.concurrency }

// limiter is a minimal leaky-bucket rate limiter: one token is available
// every 1/rate seconds.
type limiter struct {
	interval time.Duration
	tokens   chan struct{}
}

func newLimiter(ratePerSec float64) *limiter {
	l := &limiter{interval: time.Duration(float64(time.Second) / ratePerSec), tokens: make(chan struct{}, 1)}
	l.tokens <- struct{}{}
	go l.refill()
	return l
}

func (l *limiter) refill() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for range ticker.C {
		select {
		case l.tokens <- struct{}{}:
		default:
		}
	}
}

func (l *limiter) wait(ctx context.Context) {
	select {
	case <-l.tokens:
	case <-ctx.Done():
	}
}
