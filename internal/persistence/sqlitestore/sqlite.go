// Package sqlitestore keeps world data in a single SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"voxelworld.ai/internal/persistence/storage"
	"voxelworld.ai/internal/voxel"
)

var tables = [...]string{
	storage.KindArea:    "area",
	storage.KindChunk:   "chunk",
	storage.KindSurface: "surface",
	storage.KindLight:   "lightmap",
	storage.KindHeight:  "height",
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Storage on SQLite. One connection is shared, so
// reads issued during a transaction go through that transaction.
type Store struct {
	db     *sql.DB
	logger *log.Logger

	mu    sync.RWMutex
	tx    *sql.Tx
	depth int
}

var _ storage.Storage = (*Store)(nil)

func Open(path string, logger *log.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	for _, t := range tables {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (x, y, z)
		) WITHOUT ROWID;`, t)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create %s: %w", t, err)
		}
	}
	return nil
}

func table(kind storage.Kind) (string, error) {
	if int(kind) >= len(tables) {
		return "", fmt.Errorf("sqlite: unknown kind %v", kind)
	}
	return tables[kind], nil
}

// conn returns the open transaction or the database. Callers hold mu.
func (s *Store) conn() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) Store(kind storage.Kind, key voxel.ChunkPos, data []byte) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn().ExecContext(context.Background(),
		"INSERT OR REPLACE INTO "+t+" (x, y, z, data) VALUES (?, ?, ?, ?)",
		key.X, key.Y, key.Z, data)
	if err != nil {
		return fmt.Errorf("sqlite store %s %v: %w", kind, key, err)
	}
	return nil
}

func (s *Store) Retrieve(kind storage.Kind, key voxel.ChunkPos) ([]byte, error) {
	t, err := table(kind)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var data []byte
	err = s.conn().QueryRowContext(context.Background(),
		"SELECT data FROM "+t+" WHERE x = ? AND y = ? AND z = ?",
		key.X, key.Y, key.Z).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound(kind, key)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite retrieve %s %v: %w", kind, key, err)
	}
	return data, nil
}

func (s *Store) IsAvailable(kind storage.Kind, key voxel.ChunkPos) (bool, error) {
	t, err := table(kind)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var one int
	err = s.conn().QueryRowContext(context.Background(),
		"SELECT 1 FROM "+t+" WHERE x = ? AND y = ? AND z = ?",
		key.X, key.Y, key.Z).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite lookup %s %v: %w", kind, key, err)
	}
	return true, nil
}

// Begin opens a transaction. Nested calls join the outermost one.
func (s *Store) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth > 0 {
		s.depth++
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	s.tx = tx
	s.depth = 1
	return nil
}

// End commits once the outermost Begin is matched.
func (s *Store) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth == 0 {
		return fmt.Errorf("sqlite: End without Begin")
	}
	s.depth--
	if s.depth > 0 {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	return nil
}

// Cleanup checkpoints the write-ahead log when no transaction is open.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE);"); err != nil {
		s.logger.Printf("wal checkpoint: %v", err)
		return err
	}
	return nil
}

// Count returns the number of rows stored for kind.
func (s *Store) Count(kind storage.Kind) (int, error) {
	t, err := table(kind)
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	if err := s.conn().QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		if err := s.tx.Commit(); err != nil {
			s.logger.Printf("commit on close: %v", err)
		}
		s.tx, s.depth = nil, 0
	}
	return s.db.Close()
}
