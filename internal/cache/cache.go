// Package cache persists per-file extraction results in a single SQLite
// file. Entries are keyed by absolute path and are only served while the
// file's modification time, size and BLAKE3 digest all still match.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `CREATE TABLE IF NOT EXISTS proc_cache (
	file_path TEXT PRIMARY KEY,
	mtime_ns  INTEGER NOT NULL,
	size      INTEGER NOT NULL,
	digest    TEXT NOT NULL,
	payload   BLOB NOT NULL
)`

// DefaultPoolSize is the number of pooled connections.
const DefaultPoolSize = 4

// Cache is a content-addressed store of per-file results. A nil *Cache is a
// valid, permanently empty cache.
type Cache struct {
	path   string
	pool   *sqlitex.Pool
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for miss diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// Fingerprint identifies the state of a file on disk.
type Fingerprint struct {
	MtimeNS int64
	Size    int64
	Digest  string
}

// Stats describes the stored entries.
type Stats struct {
	Path         string `json:"path"`
	Entries      int64  `json:"entries"`
	PayloadBytes int64  `json:"payload_bytes"`
}

// Open opens or creates the store at path. Creating the table is
// idempotent, so an existing file without it is repaired on open.
func Open(path string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:       sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL,
		PoolSize:    DefaultPoolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = pool.Close()
		_ = enc.Close()
		return nil, err
	}

	c := &Cache{
		path:   path,
		pool:   pool,
		enc:    enc,
		dec:    dec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Fail at open time rather than on the first lookup.
	conn, err := pool.Take(context.Background())
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	pool.Put(conn)
	return c, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, stmt := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		schema,
	} {
		if err := sqlitex.ExecuteTransient(conn, stmt, nil); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// Path returns the store's file path.
func (c *Cache) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// FingerprintFile stats and hashes the file at path.
func FingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Fingerprint{}, err
	}
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{
		MtimeNS: info.ModTime().UnixNano(),
		Size:    info.Size(),
		Digest:  hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// HashBytes returns the hex BLAKE3 digest of data.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type row struct {
	mtimeNS int64
	size    int64
	digest  string
	payload []byte
}

// Get decodes the stored value for path into out. It reports false for a
// missing row, a missing file, any fingerprint mismatch or an undecodable
// payload.
func (c *Cache) Get(ctx context.Context, path string, out any) bool {
	if c == nil {
		return false
	}
	key, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(key)
	if err != nil {
		return false
	}

	r, ok := c.load(ctx, key)
	if !ok {
		return false
	}
	if r.mtimeNS != info.ModTime().UnixNano() || r.size != info.Size() {
		c.logger.Debug("cache stale", "path", key, "reason", "stat")
		return false
	}
	fp, err := FingerprintFile(key)
	if err != nil || fp.Digest != r.digest {
		c.logger.Debug("cache stale", "path", key, "reason", "digest")
		return false
	}

	raw, err := c.dec.DecodeAll(r.payload, nil)
	if err != nil {
		c.logger.Debug("cache payload corrupt", "path", key, "error", err)
		return false
	}
	if err := msgpack.Unmarshal(raw, out); err != nil {
		c.logger.Debug("cache payload corrupt", "path", key, "error", err)
		return false
	}
	return true
}

func (c *Cache) load(ctx context.Context, key string) (row, bool) {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return row{}, false
	}
	defer c.pool.Put(conn)

	var r row
	found := false
	err = sqlitex.ExecuteTransient(conn,
		`SELECT mtime_ns, size, digest, payload FROM proc_cache WHERE file_path = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				r.mtimeNS = stmt.ColumnInt64(0)
				r.size = stmt.ColumnInt64(1)
				r.digest = stmt.ColumnText(2)
				r.payload = make([]byte, stmt.ColumnLen(3))
				stmt.ColumnBytes(3, r.payload)
				found = true
				return nil
			},
		})
	if err != nil {
		return row{}, false
	}
	return r, found
}

// Put stores value for path under the file's current fingerprint. A file
// that vanished or a value that cannot be serialized is skipped without
// error; only a failed write to the store is reported.
func (c *Cache) Put(ctx context.Context, path string, value any) (err error) {
	if c == nil {
		return nil
	}
	key, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	fp, err := FingerprintFile(key)
	if err != nil {
		return nil
	}
	raw, err := msgpack.Marshal(value)
	if err != nil {
		c.logger.Debug("cache value not serializable", "path", key, "error", err)
		return nil
	}
	payload := c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))

	conn, err := c.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer c.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	defer endFn(&err)

	err = sqlitex.ExecuteTransient(conn,
		`INSERT INTO proc_cache (file_path, mtime_ns, size, digest, payload)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(file_path) DO UPDATE SET
		   mtime_ns = excluded.mtime_ns,
		   size = excluded.size,
		   digest = excluded.digest,
		   payload = excluded.payload`,
		&sqlitex.ExecOptions{
			Args: []any{key, fp.MtimeNS, fp.Size, fp.Digest, payload},
		})
	if err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry for path.
func (c *Cache) Delete(ctx context.Context, path string) error {
	if c == nil {
		return nil
	}
	key, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	return c.exec(ctx, `DELETE FROM proc_cache WHERE file_path = ?`, key)
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.exec(ctx, `DELETE FROM proc_cache`)
}

func (c *Cache) exec(ctx context.Context, query string, args ...any) error {
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer c.pool.Put(conn)
	return sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{Args: args})
}

// Stats counts entries and stored payload bytes.
func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	if c == nil {
		return &Stats{}, nil
	}
	conn, err := c.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer c.pool.Put(conn)

	stats := &Stats{Path: c.path}
	err = sqlitex.ExecuteTransient(conn,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM proc_cache`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.Entries = stmt.ColumnInt64(0)
				stats.PayloadBytes = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close releases the store. Calling it again returns the first result.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.dec.Close()
		c.closeErr = errors.Join(c.pool.Close(), c.enc.Close())
	})
	return c.closeErr
}
