// Package persist provides best-effort snapshot durability for the
// pipeline's in-memory tables. Snapshots are advisory: a missing or corrupt
// snapshot means a cold start, never a startup failure.
package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load when no snapshot exists under the name.
var ErrNotFound = errors.New("snapshot not found")

// Store persists and retrieves named opaque snapshots.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

// FileStore keeps snapshots as files in one directory. Saves go through a
// temp file and rename so a crash mid-write never corrupts the previous
// snapshot.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(_ context.Context, name string, data []byte) error {
	final := filepath.Join(s.dir, name+".snapshot")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot. A missing file is ErrNotFound.
func (s *FileStore) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name+".snapshot"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// RedisStore keeps snapshots in redis under a common key prefix, with an
// optional TTL so abandoned deployments age out.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing redis client. A zero ttl means snapshots
// never expire.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "costwise:snapshot:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Save writes the snapshot.
func (s *RedisStore) Save(ctx context.Context, name string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+name, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis snapshot save: %w", err)
	}
	return nil
}

// Load reads a snapshot. A missing key is ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis snapshot load: %w", err)
	}
	return data, nil
}
