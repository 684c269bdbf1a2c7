package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLite keeps every collection as one row of an embedded database file.
type SQLite struct {
	pool *sqlitex.Pool
}

// OpenSQLite opens (creating if needed) the database at path. Use a pool
// size of 1 with ":memory:" since every in-memory connection is separate.
func OpenSQLite(path string, poolSize int) (*SQLite, error) {
	if poolSize <= 0 {
		poolSize = 4
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareSQLite,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &SQLite{pool: pool}, nil
}

func prepareSQLite(conn *sqlite.Conn) error {
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		createSQLiteCollections,
	} {
		if err := sqlitex.ExecuteTransient(conn, stmt, nil); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

const createSQLiteCollections = `
CREATE TABLE IF NOT EXISTS collections (
	key     TEXT PRIMARY KEY,
	payload TEXT NOT NULL
)`

func (s *SQLite) Load(ctx context.Context, key string) ([]byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var (
		data  []byte
		found bool
	)
	err = sqlitex.Execute(conn, loadSQLiteCollection, &sqlitex.ExecOptions{
		Args: []any{key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			data = []byte(stmt.ColumnText(0))
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotExist
	}
	return data, nil
}

const loadSQLiteCollection = `SELECT payload FROM collections WHERE key = ?`

func (s *SQLite) Save(ctx context.Context, key string, data []byte) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn, saveSQLiteCollection, &sqlitex.ExecOptions{
		Args: []any{key, string(data)},
	})
}

const saveSQLiteCollection = `
INSERT INTO collections (key, payload) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET payload = excluded.payload
`

func (s *SQLite) Close() error {
	return s.pool.Close()
}
