//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("ATHENARUN_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("ATHENARUN_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("ATHENARUN_TEST_S3_REGION", "us-east-1"),
		AccessKeyID:      envOr("ATHENARUN_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("ATHENARUN_TEST_S3_SECRET_KEY", "miniostorage"),
		UseSSL:           false,
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	loc := storage.Location{Bucket: envOr("ATHENARUN_TEST_S3_BUCKET", "athenarun-it"), Key: "sample_txn/roundtrip.parquet"}
	payload := []byte("athenarun-integration")

	if _, err := store.Put(ctx, loc, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	stat, err := store.Stat(ctx, loc)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.Size != int64(len(payload)) {
		t.Fatalf("Stat().Size = %d, want %d", stat.Size, len(payload))
	}

	listed, err := store.List(ctx, storage.Location{Bucket: loc.Bucket, Key: "sample_txn/"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 1 || listed[0].Location.Key != loc.Key {
		t.Fatalf("List() = %+v", listed)
	}

	reader, err := store.Get(ctx, loc)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	readPayload, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("reader.Close() error = %v", err)
	}
	if !bytes.Equal(readPayload, payload) {
		t.Fatalf("Get() payload = %q, want %q", string(readPayload), string(payload))
	}

	if err := store.Delete(ctx, loc); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Stat(ctx, loc); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() after delete error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
