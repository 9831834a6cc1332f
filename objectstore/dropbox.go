package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DropboxBackend talks to the Dropbox API v2 directly over net/http.
type DropboxBackend struct {
	Token  string
	Prefix string
	client *http.Client
	retry  RetryConfig
}

// NewDropboxBackend constructs a backend authorized with an OAuth2 token.
func NewDropboxBackend(token, prefix string) *DropboxBackend {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &DropboxBackend{Token: token, Prefix: prefix, client: &http.Client{Timeout: 120 * time.Second}, retry: DefaultRetryConfig()}
}

func (b *DropboxBackend) path(key string) string {
	return b.Prefix + strings.TrimPrefix(key, "/")
}

func (b *DropboxBackend) Put(ctx context.Context, key string, data []byte, metadata map[string]string) (Object, error) {
	args := map[string]any{"path": b.path(key), "mode": "overwrite"}
	argsJSON, _ := json.Marshal(args)

	var result struct {
		Size           int64  `json:"size"`
		ContentHash    string `json:"content_hash"`
		ServerModified string `json:"server_modified"`
	}
	err := WithRetry(ctx, b.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			"https://content.dropboxapi.com/2/files/upload", bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+b.Token)
		req.Header.Set("Dropbox-API-Arg", string(argsJSON))
		req.Header.Set("Content-Type", "application/octet-stream")
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("objectstore: dropbox upload failed: %d: %s", resp.StatusCode, body)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return Object{}, err
	}
	return Object{Key: key, Size: result.Size, ETag: result.ContentHash, Metadata: metadata}, nil
}

func (b *DropboxBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := WithRetry(ctx, b.retry, func() error {
		args, _ := json.Marshal(map[string]string{"path": b.path(key)})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			"https://content.dropboxapi.com/2/files/download", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+b.Token)
		req.Header.Set("Dropbox-API-Arg", string(args))
		resp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("objectstore: dropbox download failed: %d: %s", resp.StatusCode, body)
		}
		data, err = io.ReadAll(resp.Body)
		return err
	})
	return data, err
}

func (b *DropboxBackend) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := b.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *DropboxBackend) Delete(ctx context.Context, key string) error {
	return WithRetry(ctx, b.retry, func() error {
		return b.rpc(ctx, "https://api.dropboxapi.com/2/files/delete_v2", map[string]string{"path": b.path(key)}, nil)
	})
}

func (b *DropboxBackend) Exists(ctx context.Context, key string) bool {
	var meta dropboxMetadata
	err := b.rpc(ctx, "https://api.dropboxapi.com/2/files/get_metadata", map[string]string{"path": b.path(key)}, &meta)
	return err == nil
}

func (b *DropboxBackend) Head(ctx context.Context, key string) (Object, error) {
	var meta dropboxMetadata
	if err := b.rpc(ctx, "https://api.dropboxapi.com/2/files/get_metadata", map[string]string{"path": b.path(key)}, &meta); err != nil {
		return Object{}, err
	}
	return Object{Key: key, Size: meta.Size, ETag: meta.ContentHash}, nil
}

func (b *DropboxBackend) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	var result struct {
		Entries []dropboxMetadata `json:"entries"`
	}
	args := map[string]any{"path": b.path(prefix), "recursive": true}
	if limit > 0 {
		args["limit"] = limit
	}
	if err := b.rpc(ctx, "https://api.dropboxapi.com/2/files/list_folder", args, &result); err != nil {
		return nil, err
	}
	out := make([]Object, 0, len(result.Entries))
	for _, e := range result.Entries {
		out = append(out, Object{Key: strings.TrimPrefix(e.PathDisplay, b.Prefix), Size: e.Size, ETag: e.ContentHash})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (b *DropboxBackend) Copy(ctx context.Context, srcKey, dstKey string) error {
	return b.rpc(ctx, "https://api.dropboxapi.com/2/files/copy_v2", map[string]any{
		"from_path": b.path(srcKey),
		"to_path":   b.path(dstKey),
	}, nil)
}

func (b *DropboxBackend) rpc(ctx context.Context, url string, args any, out any) error {
	body, _ := json.Marshal(args)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.Token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("objectstore: dropbox rpc %s failed: %d: %s", url, resp.StatusCode, rb)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type dropboxMetadata struct {
	PathDisplay string `json:"path_display"`
	Size        int64  `json:"size"`
	ContentHash string `json:"content_hash"`
}
