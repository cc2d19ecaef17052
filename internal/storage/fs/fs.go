// Package fs stores objects as files under a root directory, with a JSON
// sidecar carrying their metadata. Suited to single-host development where
// the builder and the proxy share a volume.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/GeneCodeSavvy/maybe-vercel/internal/storage"
)

const metaSuffix = ".meta.json"

type metadata struct {
	ContentType        string `json:"content_type,omitempty"`
	CacheControl       string `json:"cache_control,omitempty"`
	ContentEncoding    string `json:"content_encoding,omitempty"`
	ContentDisposition string `json:"content_disposition,omitempty"`
}

// Store is a directory backed object store.
type Store struct {
	root string
}

var _ storage.Store = (*Store)(nil)

// New ensures root exists and returns a store rooted there.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.HasSuffix(key, metaSuffix) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	p := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object key %q escapes storage root", key)
	}
	return p, nil
}

// Put writes body to the file for key. The object appears atomically and
// never replaces an existing one; that case returns storage.ErrExists.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	meta, err := json.Marshal(metadata{ContentType: contentType})
	if err != nil {
		return err
	}
	metaFile, err := os.OpenFile(p+metaSuffix, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("put %s: %w", key, storage.ErrExists)
		}
		return fmt.Errorf("create object metadata: %w", err)
	}
	_, werr := metaFile.Write(meta)
	if cerr := metaFile.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(p + metaSuffix)
		return fmt.Errorf("write object metadata: %w", werr)
	}
	// Link fails when p exists, unlike Rename which would replace it.
	if err := os.Link(tmp.Name(), p); err != nil {
		os.Remove(p + metaSuffix)
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("put %s: %w", key, storage.ErrExists)
		}
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

// Get opens the file for key.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(key)
	if err != nil {
		return nil, storage.ErrNotFound
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat object: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, storage.ErrNotFound
	}
	var meta metadata
	if raw, err := os.ReadFile(p + metaSuffix); err == nil {
		_ = json.Unmarshal(raw, &meta)
	}
	return &storage.Object{
		Body:               f,
		Size:               info.Size(),
		ContentType:        meta.ContentType,
		CacheControl:       meta.CacheControl,
		ContentEncoding:    meta.ContentEncoding,
		ContentDisposition: meta.ContentDisposition,
	}, nil
}
