package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{bucketExists: true}
	store, err := NewWithClient("athenarun/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	loc := storage.Location{Bucket: "bucket-a", Key: "/sample_txn/new_test.parquet"}
	info, err := store.Put(context.Background(), loc, bytes.NewBufferString("abc"), 3, storage.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "athenarun/prod/sample_txn/new_test.parquet" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
	if info.Location != loc {
		t.Fatalf("info.Location = %+v", info.Location)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Put(context.Background(), storage.Location{Bucket: "bucket-a", Key: "../secrets.txt"}, bytes.NewBufferString("x"), 1, storage.PutOptions{})
	var storageErr *storage.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("error = %v, want StorageError", err)
	}
	if storageErr.Op != "put" {
		t.Fatalf("Op = %q", storageErr.Op)
	}
}

func TestPutCreatesMissingBucketOnce(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	store.autoCreate = true

	loc := storage.Location{Bucket: "bucket-a", Key: "a.parquet"}
	for i := 0; i < 2; i++ {
		if _, err := store.Put(context.Background(), loc, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	if fake.createBucketCalls != 1 {
		t.Fatalf("CreateBucket calls = %d, want 1", fake.createBucketCalls)
	}
}

func TestGetWrapsNotFound(t *testing.T) {
	fake := &fakeClient{getErr: storage.ErrObjectNotFound}
	store, err := NewWithClient("", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Get(context.Background(), storage.Location{Bucket: "bucket-a", Key: "output/missing.csv"})
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
	}
	var storageErr *storage.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("Get() error = %v, want StorageError", err)
	}
}

func TestListStripsStorePrefix(t *testing.T) {
	fake := &fakeClient{listed: []string{"root/sample_txn/a.parquet", "root/sample_txn/b.parquet"}}
	store, err := NewWithClient("root", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	items, err := store.List(context.Background(), storage.Location{Bucket: "bucket-a", Key: "sample_txn/"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastListPrefix != "root/sample_txn/" {
		t.Fatalf("list prefix = %q", fake.lastListPrefix)
	}
	if len(items) != 2 || items[0].Location.Key != "sample_txn/a.parquet" {
		t.Fatalf("items = %+v", items)
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	fake := &fakeClient{deleteErr: storage.ErrObjectNotFound}
	store, err := NewWithClient("", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Delete(context.Background(), storage.Location{Bucket: "bucket-a", Key: "missing/file.parquet"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

type fakeClient struct {
	lastPutBucket     string
	lastPutKey        string
	lastListPrefix    string
	listed            []string
	bucketExists      bool
	createBucketCalls int
	getErr            error
	deleteErr         error
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, _ string) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Location: storage.Location{Bucket: bucket, Key: key}, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) Stat(_ context.Context, bucket, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Location: storage.Location{Bucket: bucket, Key: key}, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) List(_ context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	f.lastListPrefix = prefix
	items := make([]storage.ObjectInfo, 0, len(f.listed))
	for _, key := range f.listed {
		items = append(items, storage.ObjectInfo{Location: storage.Location{Bucket: bucket, Key: key}, Size: 1})
	}
	return items, nil
}

func (f *fakeClient) Delete(_ context.Context, _, _ string) error {
	return f.deleteErr
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalls++
	return nil
}
