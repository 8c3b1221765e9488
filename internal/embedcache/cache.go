// Package embedcache implements the persistent, content-addressed store
// mapping a canonical text hash to its embedding vector.
package embedcache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is the contract the rest of the pipeline depends on. A miss is
// represented as (nil, false, nil) — it is never an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
	Flush(ctx context.Context) error
	Close() error
}

// SQLiteCache is a Cache backed by a single-file SQLite database, schema
// (key TEXT PRIMARY KEY, vector BLOB, created_at TEXT), vectors packed as
// little-endian IEEE-754 float32. Set buffers writes in memory; Flush
// commits the buffer in one transaction, serialized by mu, matching the
// spec's "get(set(k, v)); get(k) == v for the lifetime of the process and
// across processes after flush" contract.
type SQLiteCache struct {
	db  *sql.DB
	log *slog.Logger

	mu      sync.Mutex
	pending map[string][]float32
}

// Open opens or creates a SQLite-backed cache at path. Use ":memory:" for an
// ephemeral cache (tests, simulation runs).
func Open(path string, log *slog.Logger) (*SQLiteCache, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("embedcache: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite tolerates one writer; reads interleave fine via the driver's internal lock
	const schema = `CREATE TABLE IF NOT EXISTS embeddings (
		key TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		created_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("embedcache: schema: %w", err)
	}
	return &SQLiteCache{db: db, log: log}, nil
}

// Get checks the in-memory write buffer first, since an entry set earlier
// in the same process is visible to Get before it is ever flushed to disk.
// Failing that it falls back to the database, reporting a miss (not an
// error) on any lookup or decode failure, except cancellation, since the
// pipeline must make forward progress when the cache degrades.
func (c *SQLiteCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	if !isHexSHA256(key) {
		return nil, false, nil
	}

	c.mu.Lock()
	if vec, ok := c.pending[key]; ok {
		c.mu.Unlock()
		return vec, true, nil
	}
	c.mu.Unlock()

	var blob []byte
	err := c.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		c.log.Warn("embedcache.get.io_error", "key", key, "error", err)
		return nil, false, nil
	}
	vec, err := unpackFloat32(blob)
	if err != nil {
		c.log.Warn("embedcache.get.decode_error", "key", key, "error", err)
		return nil, false, nil
	}
	return vec, true, nil
}

// Set buffers the vector in memory; it becomes durable on the next Flush.
// This never fails, so an Embed worker never fails a document because the
// cache is degraded — only Flush's errors are propagated.
func (c *SQLiteCache) Set(_ context.Context, key string, vector []float32) error {
	if !isHexSHA256(key) {
		return nil
	}
	c.mu.Lock()
	if c.pending == nil {
		c.pending = make(map[string][]float32)
	}
	c.pending[key] = vector
	c.mu.Unlock()
	return nil
}

// Flush commits every buffered write in one transaction and reports
// failure to the caller — this is the one cache operation whose errors
// propagate, per the spec's flush contract. Concurrent Flush calls are
// serialized by mu, each claiming and draining whatever has accumulated
// since the last one ran.
func (c *SQLiteCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("embedcache: flush: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO embeddings (key, vector, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET vector = excluded.vector`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("embedcache: flush: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for key, vec := range batch {
		if _, err := stmt.ExecContext(ctx, key, packFloat32(vec), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("embedcache: flush: write %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("embedcache: flush: commit: %w", err)
	}
	return nil
}

// Close flushes any remaining buffered writes, then releases the
// underlying database handle. A flush failure at close is logged rather
// than returned, since by this point there is no DocumentResult left to
// attach it to.
func (c *SQLiteCache) Close() error {
	if err := c.Flush(context.Background()); err != nil {
		c.log.Warn("embedcache.close.flush_error", "error", err)
	}
	return c.db.Close()
}

func packFloat32(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func unpackFloat32(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedcache: blob length %d not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

func isHexSHA256(key string) bool {
	if len(key) != 64 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}
