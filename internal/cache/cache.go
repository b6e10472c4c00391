package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/logpoison-tool/internal/config"
	"github.com/logpoison-tool/internal/logger"
)

// ErrCacheMiss is returned when a key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

const (
	keyPrefix   = "logpoison"
	pingTimeout = 2 * time.Second
	entryExt    = ".json"
	digestLen   = 12
)

// Cache interface defines caching operations
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Manager selects a backend and adds JSON helpers on top of it
type Manager struct {
	config  *config.Config
	log     logger.Logger
	backend Cache
}

// NewManager uses Redis when an address is configured and answers PING,
// otherwise files under cfg.Cache.Dir
func NewManager(cfg *config.Config, log logger.Logger) (*Manager, error) {
	m := &Manager{
		config: cfg,
		log:    log,
	}

	if client := m.initRedis(); client != nil {
		m.backend = NewRedisCache(client, log)
		log.Debug("Using Redis cache backend", "addr", cfg.Cache.RedisAddr)
		return m, nil
	}

	if cfg.Cache.Dir == "" {
		return nil, errors.New("no cache directory configured")
	}

	backend, err := NewFileCache(cfg.Cache.Dir, log)
	if err != nil {
		return nil, err
	}
	m.backend = backend
	log.Debug("Using file cache backend", "dir", cfg.Cache.Dir)

	return m, nil
}

// NewManagerWithBackend wraps an existing backend
func NewManagerWithBackend(cfg *config.Config, log logger.Logger, backend Cache) *Manager {
	return &Manager{config: cfg, log: log, backend: backend}
}

// Enabled reports whether lookups should be attempted at all
func (m *Manager) Enabled() bool {
	return m.config.Cache.Enabled
}

// Get retrieves a value from cache
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	return m.backend.Get(ctx, key)
}

// Set stores a value in cache
func (m *Manager) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return m.backend.Set(ctx, key, value, expiration)
}

// Delete removes a value from cache
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.backend.Delete(ctx, key)
}

// GetJSON retrieves and unmarshals JSON data from cache
func (m *Manager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	if len(data) == 0 {
		return ErrCacheMiss
	}

	return json.Unmarshal(data, dest)
}

// SetJSON marshals and stores JSON data in cache
func (m *Manager) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return m.Set(ctx, key, data, expiration)
}

// Close releases the backend
func (m *Manager) Close() error {
	return m.backend.Close()
}

// CacheKey generates a namespaced cache key
func CacheKey(kind string, parts ...string) string {
	return keyPrefix + ":" + kind + ":" + strings.Join(parts, ":")
}

// Digest fingerprints the JSON encoding of values for use as a key part
func Digest(values ...interface{}) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(h, "%#v\n", v)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:digestLen]
}

func (m *Manager) initRedis() *redis.Client {
	if m.config.Cache.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        m.config.Cache.RedisAddr,
		Password:    m.config.Cache.RedisPassword,
		DB:          m.config.Cache.RedisDB,
		DialTimeout: pingTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		m.log.Warn("Redis not available, using file cache", "addr", m.config.Cache.RedisAddr, "error", err)
		client.Close()
		return nil
	}

	return client
}

// RedisCache implements Cache interface using Redis
type RedisCache struct {
	client *redis.Client
	log    logger.Logger
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client *redis.Client, log logger.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		log:    log,
	}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return result, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// FileCache implements Cache interface with one JSON file per key, so
// entries outlive the process that wrote them
type FileCache struct {
	dir string
	log logger.Logger
	now func() time.Time
}

type fileEntry struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
	Value     []byte    `json:"value"`
}

func (e fileEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// NewFileCache creates dir if needed and drops entries that have expired
func NewFileCache(dir string, log logger.Logger) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	fc := &FileCache{
		dir: dir,
		log: log,
		now: time.Now,
	}
	fc.sweep()

	return fc, nil
}

func (f *FileCache) Get(ctx context.Context, key string) ([]byte, error) {
	path := f.path(key)

	entry, err := f.read(path)
	if err != nil {
		return nil, err
	}

	// hash collision or a file copied in by hand
	if entry.Key != key {
		return nil, ErrCacheMiss
	}

	if entry.expired(f.now()) {
		os.Remove(path)
		return nil, ErrCacheMiss
	}

	return entry.Value, nil
}

func (f *FileCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	entry := fileEntry{
		Key:   key,
		Value: value,
	}
	if expiration > 0 {
		entry.ExpiresAt = f.now().Add(expiration)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return os.Rename(tmp.Name(), f.path(key))
}

func (f *FileCache) Delete(ctx context.Context, key string) error {
	err := os.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FileCache) Close() error {
	return nil
}

func (f *FileCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, hex.EncodeToString(sum[:])+entryExt)
}

func (f *FileCache) read(path string) (fileEntry, error) {
	var entry fileEntry

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return entry, ErrCacheMiss
	}
	if err != nil {
		return entry, err
	}

	if err := json.Unmarshal(data, &entry); err != nil {
		f.log.Debug("Discarding unreadable cache entry", "path", path, "error", err)
		os.Remove(path)
		return entry, ErrCacheMiss
	}

	return entry, nil
}

func (f *FileCache) sweep() {
	files, err := os.ReadDir(f.dir)
	if err != nil {
		return
	}

	now := f.now()
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != entryExt {
			continue
		}
		path := filepath.Join(f.dir, file.Name())
		if entry, err := f.read(path); err == nil && entry.expired(now) {
			os.Remove(path)
		}
	}
}
