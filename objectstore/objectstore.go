// Package objectstore implements the Storage Adapter: a uniform key/value
// object store over local disk, S3-compatible buckets, GCS, Azure Blob and
// Dropbox, plus a tiered hot/warm/cold composite.
package objectstore

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Object describes a stored item's metadata.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
	Metadata     map[string]string
}

// Backend is the capability set every storage variant implements.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) (Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool
	List(ctx context.Context, prefix string, limit int) ([]Object, error)
	Head(ctx context.Context, key string) (Object, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
}

// PutJSON marshals v and puts it under key.
func PutJSON(ctx context.Context, b Backend, key string, v any) (Object, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Object{}, err
	}
	return b.Put(ctx, key, data, map[string]string{"content-type": "application/json"})
}

// GetJSON gets key and unmarshals it into v.
func GetJSON(ctx context.Context, b Backend, key string, v any) error {
	data, err := b.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
