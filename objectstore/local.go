package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LocalBackend stores objects as files under a base directory, the
// zero-config default backend.
type LocalBackend struct {
	BasePath string
}

// NewLocalBackend returns a LocalBackend rooted at basePath, creating it
// if necessary.
func NewLocalBackend(basePath string) (*LocalBackend, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: creating base path: %w", err)
	}
	return &LocalBackend{BasePath: basePath}, nil
}

func (b *LocalBackend) path(key string) string {
	return filepath.Join(b.BasePath, filepath.FromSlash(key))
}

func (b *LocalBackend) Put(_ context.Context, key string, data []byte, metadata map[string]string) (Object, error) {
	p := b.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Object{}, err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return Object{}, err
	}
	return Object{
		Key:          key,
		Size:         int64(len(data)),
		LastModified: time.Now(),
		ContentType:  metadata["content-type"],
		Metadata:     metadata,
	}, nil
}

func (b *LocalBackend) Get(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(b.path(key))
}

func (b *LocalBackend) GetStream(_ context.Context, key string) (io.ReadCloser, error) {
	return os.Open(b.path(key))
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *LocalBackend) Exists(_ context.Context, key string) bool {
	_, err := os.Stat(b.path(key))
	return err == nil
}

func (b *LocalBackend) List(_ context.Context, prefix string, limit int) ([]Object, error) {
	var out []Object
	root := b.BasePath
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		out = append(out, Object{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		if limit > 0 && len(out) >= limit {
			return errStopWalk
		}
		return nil
	})
	if err != nil && err != errStopWalk {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (b *LocalBackend) Head(_ context.Context, key string) (Object, error) {
	info, err := os.Stat(b.path(key))
	if err != nil {
		return Object{}, err
	}
	return Object{Key: key, Size: info.Size(), LastModified: info.ModTime()}, nil
}

func (b *LocalBackend) Copy(_ context.Context, srcKey, dstKey string) error {
	data, err := os.ReadFile(b.path(srcKey))
	if err != nil {
		return err
	}
	dst := b.path(dstKey)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

var errStopWalk = fmt.Errorf("objectstore: stop walk")
