// Package objstore keeps world data as objects in MinIO or any S3-compatible
// bucket, one object per key.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"voxelworld.ai/internal/persistence/storage"
	"voxelworld.ai/internal/voxel"
)

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
	// Timeout bounds each object operation. Zero means 30s.
	Timeout time.Duration
}

// Store implements storage.Storage on an object bucket. Objects are
// written individually, so Begin and End are no-ops.
type Store struct {
	client  *minio.Client
	bucket  string
	prefix  string
	timeout time.Duration

	mu sync.RWMutex
}

var _ storage.Storage = (*Store)(nil)

// NewStore wraps an existing client.
func NewStore(client *minio.Client, bucket, rootPrefix string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{client: client, bucket: bucket, prefix: rootPrefix, timeout: timeout}
}

// Dial connects to the endpoint and creates the bucket when missing.
func Dial(ctx context.Context, o Options) (*Store, error) {
	if o.Endpoint == "" || o.Bucket == "" {
		return nil, fmt.Errorf("objstore: endpoint and bucket are required")
	}
	client, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: client: %w", err)
	}
	exists, err := client.BucketExists(ctx, o.Bucket)
	if err != nil {
		return nil, fmt.Errorf("objstore: bucket %s: %w", o.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, o.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("objstore: make bucket %s: %w", o.Bucket, err)
		}
	}
	return NewStore(client, o.Bucket, o.Prefix, o.Timeout), nil
}

// ObjectKey names the object holding kind at key, e.g. "world/chunk/1_-2_3".
func ObjectKey(prefix string, kind storage.Kind, key voxel.ChunkPos) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(key.X))
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(key.Y))
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(key.Z))
	return path.Join(prefix, kind.String(), b.String())
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) Store(kind storage.Kind, key voxel.ChunkPos, data []byte) error {
	ctx, cancel := s.ctx()
	defer cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.client.PutObject(ctx, s.bucket, ObjectKey(s.prefix, kind, key),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("objstore put %s %v: %w", kind, key, err)
	}
	return nil
}

func (s *Store) Retrieve(kind storage.Kind, key voxel.ChunkPos) ([]byte, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, err := s.client.GetObject(ctx, s.bucket, ObjectKey(s.prefix, kind, key), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.NotFound(kind, key)
		}
		return nil, fmt.Errorf("objstore get %s %v: %w", kind, key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.NotFound(kind, key)
		}
		return nil, fmt.Errorf("objstore read %s %v: %w", kind, key, err)
	}
	return data, nil
}

func (s *Store) IsAvailable(kind storage.Kind, key voxel.ChunkPos) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.client.StatObject(ctx, s.bucket, ObjectKey(s.prefix, kind, key), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("objstore stat %s %v: %w", kind, key, err)
	}
	return true, nil
}

func (s *Store) Begin() error   { return nil }
func (s *Store) End() error     { return nil }
func (s *Store) Cleanup() error { return nil }
func (s *Store) Close() error   { return nil }
