package session

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isearch-project/musebag/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore persists session profiles as JSONB rows. It is the backend
// for deployments where sessions must survive restarts or be shared
// between instances.
//
// PostgresStore is safe for concurrent use; per-session serialization is
// done with row locks inside a transaction.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPostgresStore creates a store on top of an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool, logger log.Logger) *PostgresStore {
	if logger == nil {
		logger = log.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Migrate applies the embedded schema migrations. databaseURL is the
// postgres:// connection URL; the scheme is rewritten for the pgx migrate
// driver.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	url := databaseURL
	switch {
	case strings.HasPrefix(url, "postgresql://"):
		url = "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	case strings.HasPrefix(url, "postgres://"):
		url = "pgx5://" + strings.TrimPrefix(url, "postgres://")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, token string) (*Profile, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT profile FROM musebag_sessions WHERE token = $1`, token,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding session profile: %w", err)
	}
	return &p, nil
}

// Update implements Store. The row is locked for the duration of fn, so
// concurrent updates to the same session serialize on the database.
func (s *PostgresStore) Update(ctx context.Context, token string, fn func(*Profile) error) (*Profile, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning session update: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var raw []byte
	p := NewGuestProfile()
	err = tx.QueryRow(ctx,
		`SELECT profile FROM musebag_sessions WHERE token = $1 FOR UPDATE`, token,
	).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First access bootstraps a guest profile.
	case err != nil:
		return nil, fmt.Errorf("locking session: %w", err)
	default:
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decoding session profile: %w", err)
		}
	}

	if err := fn(p); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding session profile: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO musebag_sessions (token, profile, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (token) DO UPDATE SET profile = $2, updated_at = now()`,
		token, encoded,
	)
	if err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing session update: %w", err)
	}

	return p.Clone(), nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM musebag_sessions WHERE token = $1`, token,
	); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
