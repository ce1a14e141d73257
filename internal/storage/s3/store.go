package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sayan-gitkid/sample-aws-tests/internal/storage"
)

const defaultEndpoint = "s3.amazonaws.com"

type Config struct {
	Endpoint         string
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type client interface {
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket, region string) error
}

// Store addresses objects by s3 location. Prefix is prepended to every key
// and stripped from listed keys.
type Store struct {
	client     client
	prefix     string
	region     string
	autoCreate bool
	ensured    map[string]bool
}

func New(cfg Config) (*Store, error) {
	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewWithClient(cfg.Prefix, mc)
	if err != nil {
		return nil, err
	}
	store.region = strings.TrimSpace(cfg.Region)
	store.autoCreate = cfg.AutoCreateBucket
	return store, nil
}

func NewWithClient(prefix string, c client) (*Store, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	return &Store{client: c, prefix: cleanPrefix(prefix), ensured: map[string]bool{}}, nil
}

func (s *Store) Put(ctx context.Context, loc storage.Location, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	key, err := s.normalizeKey(loc.Key)
	if err != nil {
		return storage.ObjectInfo{}, &storage.StorageError{Op: "put", Location: loc, Err: err}
	}
	if s.autoCreate {
		if err := s.EnsureBucket(ctx, loc.Bucket); err != nil {
			return storage.ObjectInfo{}, &storage.StorageError{Op: "put", Location: loc, Err: err}
		}
	}
	info, err := s.client.Put(ctx, loc.Bucket, key, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, &storage.StorageError{Op: "put", Location: loc, Err: err}
	}
	info.Location = loc
	return info, nil
}

func (s *Store) Get(ctx context.Context, loc storage.Location) (io.ReadCloser, error) {
	key, err := s.normalizeKey(loc.Key)
	if err != nil {
		return nil, &storage.StorageError{Op: "get", Location: loc, Err: err}
	}
	reader, err := s.client.Get(ctx, loc.Bucket, key)
	if err != nil {
		return nil, &storage.StorageError{Op: "get", Location: loc, Err: err}
	}
	return reader, nil
}

func (s *Store) Stat(ctx context.Context, loc storage.Location) (storage.ObjectInfo, error) {
	key, err := s.normalizeKey(loc.Key)
	if err != nil {
		return storage.ObjectInfo{}, &storage.StorageError{Op: "stat", Location: loc, Err: err}
	}
	info, err := s.client.Stat(ctx, loc.Bucket, key)
	if err != nil {
		return storage.ObjectInfo{}, &storage.StorageError{Op: "stat", Location: loc, Err: err}
	}
	info.Location = loc
	return info, nil
}

func (s *Store) List(ctx context.Context, prefix storage.Location) ([]storage.ObjectInfo, error) {
	listPrefix := s.prefixedListKey(prefix.Key)
	items, err := s.client.List(ctx, prefix.Bucket, listPrefix)
	if err != nil {
		return nil, &storage.StorageError{Op: "list", Location: prefix, Err: err}
	}
	out := make([]storage.ObjectInfo, 0, len(items))
	for _, item := range items {
		key := item.Location.Key
		if s.prefix != "" {
			key = strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
		}
		item.Location = storage.Location{Bucket: prefix.Bucket, Key: key}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, loc storage.Location) error {
	key, err := s.normalizeKey(loc.Key)
	if err != nil {
		return &storage.StorageError{Op: "delete", Location: loc, Err: err}
	}
	if err := s.client.Delete(ctx, loc.Bucket, key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil
		}
		return &storage.StorageError{Op: "delete", Location: loc, Err: err}
	}
	return nil
}

// EnsureBucket creates bucket when it does not exist yet. Results are
// cached per store.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	if s.ensured[bucket] {
		return nil
	}
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if !exists {
		if err := s.client.CreateBucket(ctx, bucket, s.region); err != nil {
			return fmt.Errorf("create bucket %q: %w", bucket, err)
		}
	}
	s.ensured[bucket] = true
	return nil
}

func (s *Store) normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return path.Join(s.prefix, cleaned), nil
}

func (s *Store) prefixedListKey(key string) string {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if s.prefix == "" {
		return key
	}
	if key == "" {
		return s.prefix + "/"
	}
	return s.prefix + "/" + key
}

func cleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "/"))
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}
	return prefix
}

func newMinioClient(cfg Config) (*minioClient, error) {
	rawEndpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if strings.TrimSpace(rawEndpoint) == "" {
		rawEndpoint = defaultEndpoint
		useSSL = true
	}
	endpoint, secure, err := parseEndpoint(rawEndpoint, useSSL)
	if err != nil {
		return nil, err
	}
	creds := credentials.NewEnvAWS()
	if strings.TrimSpace(cfg.AccessKeyID) != "" {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	clientImpl, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioClient{client: clientImpl}, nil
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint URL: %w", err)
		}
		if parsed.Host == "" {
			return "", false, fmt.Errorf("endpoint host is required")
		}
		if parsed.Scheme == "https" {
			return parsed.Host, true, nil
		}
		return parsed.Host, useSSL, nil
	}
	return raw, useSSL, nil
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	uploadInfo, err := m.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, mapMinioErr(err)
	}
	return storage.ObjectInfo{
		Location: storage.Location{Bucket: bucket, Key: uploadInfo.Key},
		Size:     uploadInfo.Size,
		ETag:     uploadInfo.ETag,
	}, nil
}

func (m *minioClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

func (m *minioClient) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	obj, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, mapMinioErr(err)
	}
	return storage.ObjectInfo{
		Location:     storage.Location{Bucket: bucket, Key: obj.Key},
		Size:         obj.Size,
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
	}, nil
}

func (m *minioClient) List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	var items []storage.ObjectInfo
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, mapMinioErr(obj.Err)
		}
		items = append(items, storage.ObjectInfo{
			Location:     storage.Location{Bucket: bucket, Key: obj.Key},
			Size:         obj.Size,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
		})
	}
	return items, nil
}

func (m *minioClient) Delete(ctx context.Context, bucket, key string) error {
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return mapMinioErr(err)
	}
	return nil
}

func (m *minioClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, mapMinioErr(err)
	}
	return exists, nil
}

func (m *minioClient) CreateBucket(ctx context.Context, bucket, region string) error {
	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return mapMinioErr(err)
	}
	return nil
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return storage.ErrObjectNotFound
		}
	}
	return err
}
