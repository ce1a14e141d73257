// Package stager persists datasets as gzip-compressed parquet objects.
package stager

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sayan-gitkid/sample-aws-tests/internal/dataset"
	"github.com/sayan-gitkid/sample-aws-tests/internal/observability"
	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
)

const ContentType = "application/vnd.apache.parquet"

type Stager struct {
	Store  storage.ObjectStore
	Logger *slog.Logger
}

// Stage writes ds to target, replacing any existing object.
func (s *Stager) Stage(ctx context.Context, ds dataset.Dataset, target storage.Location) (storage.ObjectInfo, error) {
	if s.Store == nil {
		return storage.ObjectInfo{}, fmt.Errorf("object store is required")
	}
	if target.IsPrefix() {
		return storage.ObjectInfo{}, fmt.Errorf("staging target %s must name an object", target)
	}

	data, err := EncodeParquet(ds)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("encode dataset to parquet: %w", err)
	}

	info, err := s.Store.Put(ctx, target, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: ContentType})
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	observability.ObserveStaged(len(data))

	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "dataset staged",
			slog.String("location", target.String()),
			slog.Int("columns", len(ds.Columns)),
			slog.Int("rows", ds.NumRows()),
			slog.Int("bytes", len(data)),
		)
	}
	return info, nil
}

// Fetch reads a staged object back into memory.
func (s *Stager) Fetch(ctx context.Context, target storage.Location) (dataset.Dataset, error) {
	if s.Store == nil {
		return dataset.Dataset{}, fmt.Errorf("object store is required")
	}
	reader, err := s.Store.Get(ctx, target)
	if err != nil {
		return dataset.Dataset{}, err
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return dataset.Dataset{}, &storage.StorageError{Op: "read", Location: target, Err: err}
	}
	ds, err := DecodeParquet(data)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("decode %s: %w", target, err)
	}
	return ds, nil
}
