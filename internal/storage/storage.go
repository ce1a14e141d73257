package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Location     Location
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// StorageError reports a failed object store call. Not-found failures wrap
// ErrObjectNotFound.
type StorageError struct {
	Op       string
	Location Location
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Location, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

type ObjectStore interface {
	Put(ctx context.Context, loc Location, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, loc Location) (io.ReadCloser, error)
	Stat(ctx context.Context, loc Location) (ObjectInfo, error)
	List(ctx context.Context, prefix Location) ([]ObjectInfo, error)
	Delete(ctx context.Context, loc Location) error
}
