package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// Postgres keeps every collection as one JSONB row in the collections
// table.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the collections table if it is missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, createCollectionsTable)
	return err
}

const createCollectionsTable = `
CREATE TABLE IF NOT EXISTS collections (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func (p *Postgres) Load(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := p.db.GetContext(ctx, &payload, loadCollectionQuery, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

const loadCollectionQuery = `SELECT payload::text FROM collections WHERE key = $1`

func (p *Postgres) Save(ctx context.Context, key string, data []byte) error {
	_, err := p.db.ExecContext(ctx, saveCollectionQuery, key, string(data))
	return err
}

const saveCollectionQuery = `
INSERT INTO collections (key, payload, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
`
