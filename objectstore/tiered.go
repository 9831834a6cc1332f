package objectstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// Tiered composes three backends (hot/warm/cold). Get probes hot, then
// warm, then cold, promoting a key to hot once its in-process read count
// reaches 3.
type Tiered struct {
	Hot, Warm, Cold Backend

	mu         sync.Mutex
	readCounts map[string]int
}

// NewTiered composes a three-tier storage stack.
func NewTiered(hot, warm, cold Backend) *Tiered {
	return &Tiered{Hot: hot, Warm: warm, Cold: cold, readCounts: make(map[string]int)}
}

func (t *Tiered) bump(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readCounts[key]++
	return t.readCounts[key]
}

func (t *Tiered) readCount(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readCounts[key]
}

// Get probes hot -> warm -> cold, promoting to hot when a key's read count
// reaches 3.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	count := t.bump(key)

	if data, err := t.Hot.Get(ctx, key); err == nil {
		return data, nil
	}
	if data, err := t.Warm.Get(ctx, key); err == nil {
		if count >= 3 {
			_, _ = t.Hot.Put(ctx, key, data, nil)
		}
		return data, nil
	}
	data, err := t.Cold.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if count >= 3 {
		_, _ = t.Hot.Put(ctx, key, data, nil)
	}
	return data, nil
}

// Put always writes to the hot tier; warm/cold are populated by explicit
// migration or eviction.
func (t *Tiered) Put(ctx context.Context, key string, data []byte, metadata map[string]string) (Object, error) {
	return t.Hot.Put(ctx, key, data, metadata)
}

// GetStream materializes the object via Get; the promotion bookkeeping
// needs the full payload anyway, so there is no streaming fast path.
func (t *Tiered) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := t.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes key from every tier, tolerating tiers that don't have it.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	_ = t.Hot.Delete(ctx, key)
	_ = t.Warm.Delete(ctx, key)
	return t.Cold.Delete(ctx, key)
}

func (t *Tiered) Exists(ctx context.Context, key string) bool {
	return t.Hot.Exists(ctx, key) || t.Warm.Exists(ctx, key) || t.Cold.Exists(ctx, key)
}

// List reports the cold tier's contents, treated as the tier of record
// since every object eventually settles there.
func (t *Tiered) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	return t.Cold.List(ctx, prefix, limit)
}

func (t *Tiered) Head(ctx context.Context, key string) (Object, error) {
	if obj, err := t.Hot.Head(ctx, key); err == nil {
		return obj, nil
	}
	if obj, err := t.Warm.Head(ctx, key); err == nil {
		return obj, nil
	}
	return t.Cold.Head(ctx, key)
}

func (t *Tiered) Copy(ctx context.Context, srcKey, dstKey string) error {
	data, err := t.Get(ctx, srcKey)
	if err != nil {
		return err
	}
	_, err = t.Put(ctx, dstKey, data, nil)
	return err
}

// EvictCold moves objects from hot whose last-modified predates cutoff and
// whose read count is below 3 into cold storage, then removes them from
// hot. Eviction is coarse and advisory, not a global LRU.
func (t *Tiered) EvictCold(ctx context.Context, maxAgeDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	objs, err := t.Hot.List(ctx, "", 0)
	if err != nil {
		return 0, err
	}
	evicted := 0
	for _, obj := range objs {
		if obj.LastModified.After(cutoff) {
			continue
		}
		if t.readCount(obj.Key) >= 3 {
			continue
		}
		data, err := t.Hot.Get(ctx, obj.Key)
		if err != nil {
			continue
		}
		if _, err := t.Cold.Put(ctx, obj.Key, data, nil); err != nil {
			continue
		}
		_ = t.Hot.Delete(ctx, obj.Key)
		evicted++
	}
	return evicted, nil
}
