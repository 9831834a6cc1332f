package objectstore

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestLocalBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(dir)
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	ctx := context.Background()

	obj, err := b.Put(ctx, "docs/a.txt", []byte("hello"), map[string]string{"content-type": "text/plain"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if obj.Size != 5 {
		t.Fatalf("Size = %d, want 5", obj.Size)
	}

	data, err := b.Get(ctx, "docs/a.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("Get = %q, want %q", data, "hello")
	}

	if !b.Exists(ctx, "docs/a.txt") {
		t.Fatalf("Exists = false, want true")
	}
	if b.Exists(ctx, "docs/missing.txt") {
		t.Fatalf("Exists(missing) = true, want false")
	}

	if err := b.Copy(ctx, "docs/a.txt", "docs/b.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if !b.Exists(ctx, "docs/b.txt") {
		t.Fatalf("copied object missing")
	}

	objs, err := b.List(ctx, "docs/", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("List returned %d objects, want 2", len(objs))
	}

	if err := b.Delete(ctx, "docs/a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if b.Exists(ctx, "docs/a.txt") {
		t.Fatalf("Exists after delete = true")
	}
	// Deleting a nonexistent key must not error.
	if err := b.Delete(ctx, "docs/a.txt"); err != nil {
		t.Fatalf("Delete nonexistent: %v", err)
	}
}

func TestLocalBackendHead(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewLocalBackend(dir)
	ctx := context.Background()
	b.Put(ctx, "k", []byte("123"), nil)

	head, err := b.Head(ctx, "k")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Size != 3 {
		t.Fatalf("Head.Size = %d, want 3", head.Size)
	}
}

func TestLocalBackendListLimit(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewLocalBackend(dir)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		b.Put(ctx, k, []byte("x"), nil)
	}
	objs, err := b.List(ctx, "", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("List with limit returned %d, want 2", len(objs))
	}
}

func TestPutJSONGetJSON(t *testing.T) {
	dir := t.TempDir()
	b, _ := NewLocalBackend(dir)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}
	if _, err := PutJSON(ctx, b, "p.json", payload{Name: "vio83"}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	var out payload
	if err := GetJSON(ctx, b, "p.json", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Name != "vio83" {
		t.Fatalf("GetJSON = %+v, want Name=vio83", out)
	}
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return os.ErrDeadlineExceeded
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryExhaustsAndReturnsLastError(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}, func() error {
		attempts++
		return os.ErrClosed
	})
	if err == nil {
		t.Fatalf("WithRetry: want error, got nil")
	}
	if attempts != 3 { // initial attempt + 2 retries
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := WithRetry(ctx, RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond}, func() error {
		attempts++
		return os.ErrClosed
	})
	if err == nil {
		t.Fatalf("WithRetry: want error on cancelled context")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (should stop after first failure on cancelled ctx)", attempts)
	}
}

func TestTieredPromotesOnThirdRead(t *testing.T) {
	ctx := context.Background()
	hot, _ := NewLocalBackend(t.TempDir())
	warm, _ := NewLocalBackend(t.TempDir())
	cold, _ := NewLocalBackend(t.TempDir())

	cold.Put(ctx, "k", []byte("coldval"), nil)
	tiered := NewTiered(hot, warm, cold)

	for i := 0; i < 2; i++ {
		data, err := tiered.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		if string(data) != "coldval" {
			t.Fatalf("Get #%d = %q", i, data)
		}
		if hot.Exists(ctx, "k") {
			t.Fatalf("promoted to hot too early, after read #%d", i)
		}
	}

	if _, err := tiered.Get(ctx, "k"); err != nil {
		t.Fatalf("Get #3: %v", err)
	}
	if !hot.Exists(ctx, "k") {
		t.Fatalf("expected promotion to hot after 3rd read")
	}
}

func TestTieredEvictCold(t *testing.T) {
	ctx := context.Background()
	hot, _ := NewLocalBackend(t.TempDir())
	warm, _ := NewLocalBackend(t.TempDir())
	cold, _ := NewLocalBackend(t.TempDir())

	tiered := NewTiered(hot, warm, cold)
	tiered.Put(ctx, "stale", []byte("v"), nil)

	// Backdate the file so it predates the eviction cutoff.
	path := hot.path("stale")
	old := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	n, err := tiered.EvictCold(ctx, 7)
	if err != nil {
		t.Fatalf("EvictCold: %v", err)
	}
	if n != 1 {
		t.Fatalf("evicted = %d, want 1", n)
	}
	if hot.Exists(ctx, "stale") {
		t.Fatalf("expected stale object removed from hot")
	}
	if !cold.Exists(ctx, "stale") {
		t.Fatalf("expected stale object migrated to cold")
	}
}

func TestTieredSkipsFrequentlyReadObjectsOnEvict(t *testing.T) {
	ctx := context.Background()
	hot, _ := NewLocalBackend(t.TempDir())
	warm, _ := NewLocalBackend(t.TempDir())
	cold, _ := NewLocalBackend(t.TempDir())

	tiered := NewTiered(hot, warm, cold)
	tiered.Put(ctx, "hotkey", []byte("v"), nil)
	path := hot.path("hotkey")
	old := time.Now().AddDate(0, 0, -30)
	os.Chtimes(path, old, old)

	for i := 0; i < 3; i++ {
		tiered.Get(ctx, "hotkey")
	}

	n, err := tiered.EvictCold(ctx, 7)
	if err != nil {
		t.Fatalf("EvictCold: %v", err)
	}
	if n != 0 {
		t.Fatalf("evicted = %d, want 0 (read count >= 3 should protect it)", n)
	}
	if !hot.Exists(ctx, "hotkey") {
		t.Fatalf("frequently-read object should remain in hot")
	}
}

func TestFromEnvDefaultsToLocal(t *testing.T) {
	dir := t.TempDir()
	os.Unsetenv(envStorageType)
	t.Setenv(envLocalPath, dir)
	defer Reset()

	b, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if _, ok := b.(*LocalBackend); !ok {
		t.Fatalf("FromEnv backend = %T, want *LocalBackend", b)
	}
}

func TestFromEnvUnknownType(t *testing.T) {
	t.Setenv(envStorageType, "nonexistent")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("FromEnv: want error for unknown storage type")
	}
}

func TestDefaultSingletonCachesAndReset(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envStorageType, "local")
	t.Setenv(envLocalPath, dir)
	Reset()
	defer Reset()

	first, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	second, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if first != second {
		t.Fatalf("Default returned different instances without Reset")
	}

	Reset()
	third, err := Default()
	if err != nil {
		t.Fatalf("Default after Reset: %v", err)
	}
	if first == third {
		t.Fatalf("Default returned same instance after Reset")
	}
}
