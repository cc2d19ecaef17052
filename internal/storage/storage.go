// Package storage defines the object store used for build outputs.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound indicates the requested key does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrExists is returned by Put when the key already holds an object.
	ErrExists = errors.New("storage: object already exists")
)

// Object is a fetched object. Callers must close Body.
type Object struct {
	Body               io.ReadCloser
	Size               int64
	ContentType        string
	CacheControl       string
	ContentEncoding    string
	ContentDisposition string
}

// Store is a durable key to bytes store. Objects are write-once: Put fails
// with ErrExists rather than replace an existing key, so a published project
// can never be overwritten by a later build.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
}
