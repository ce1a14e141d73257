// Package memory is an in-process ObjectStore used by offline runs and tests.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

type Store struct {
	mu      sync.RWMutex
	objects map[storage.Location]object
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{objects: map[storage.Location]object{}, now: time.Now}
}

func (s *Store) Put(_ context.Context, loc storage.Location, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if strings.TrimSpace(loc.Key) == "" {
		return storage.ObjectInfo{}, &storage.StorageError{Op: "put", Location: loc, Err: fmt.Errorf("object key is required")}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, &storage.StorageError{Op: "put", Location: loc, Err: err}
	}
	obj := object{data: data, contentType: opts.ContentType, modified: s.now().UTC()}

	s.mu.Lock()
	s.objects[loc] = obj
	s.mu.Unlock()
	return infoFor(loc, obj), nil
}

func (s *Store) Get(_ context.Context, loc storage.Location) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[loc]
	s.mu.RUnlock()
	if !ok {
		return nil, &storage.StorageError{Op: "get", Location: loc, Err: storage.ErrObjectNotFound}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Store) Stat(_ context.Context, loc storage.Location) (storage.ObjectInfo, error) {
	s.mu.RLock()
	obj, ok := s.objects[loc]
	s.mu.RUnlock()
	if !ok {
		return storage.ObjectInfo{}, &storage.StorageError{Op: "stat", Location: loc, Err: storage.ErrObjectNotFound}
	}
	return infoFor(loc, obj), nil
}

func (s *Store) List(_ context.Context, prefix storage.Location) ([]storage.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]storage.ObjectInfo, 0)
	for loc, obj := range s.objects {
		if loc.Bucket == prefix.Bucket && strings.HasPrefix(loc.Key, prefix.Key) {
			items = append(items, infoFor(loc, obj))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Location.Key < items[j].Location.Key })
	return items, nil
}

func (s *Store) Delete(_ context.Context, loc storage.Location) error {
	s.mu.Lock()
	delete(s.objects, loc)
	s.mu.Unlock()
	return nil
}

func infoFor(loc storage.Location, obj object) storage.ObjectInfo {
	sum := md5.Sum(obj.data)
	return storage.ObjectInfo{
		Location:     loc,
		Size:         int64(len(obj.data)),
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: obj.modified,
	}
}
