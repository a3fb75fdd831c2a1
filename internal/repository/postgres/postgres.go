package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.RollupRepository        = (*Repository)(nil)
	_ repository.ServiceRepository       = (*Repository)(nil)
	_ repository.SLADefinitionRepository = (*Repository)(nil)
	_ repository.SnapshotRepository      = (*Repository)(nil)
	_ repository.IncidentRepository      = (*Repository)(nil)
	_ repository.SettingsRepository      = (*Repository)(nil)
)

// FirstService returns the earliest created service.
func (r *Repository) FirstService(ctx context.Context) (*domain.Service, error) {
	const query = `SELECT id, name, created_at FROM services ORDER BY created_at ASC, id ASC LIMIT 1`
	var svc domain.Service
	if err := r.pool.QueryRow(ctx, query).Scan(&svc.ID, &svc.Name, &svc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &svc, nil
}

// GetSetting returns the raw JSON value stored under key.
func (r *Repository) GetSetting(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM settings WHERE key = $1`
	var value []byte
	if err := r.pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// PutSetting stores a JSON value under key.
func (r *Repository) PutSetting(ctx context.Context, key string, value []byte) error {
	const query = `INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, query, key, value)
	return mapError(err)
}

// DeleteSetting removes key. Deleting a missing key is not an error.
func (r *Repository) DeleteSetting(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key)
	return err
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22P02", "23514":
			return repository.ErrInvalidArgument
		case "23503", "23505":
			return repository.ErrConflict
		}
	}
	return err
}

func emptyToNil(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func timePtrToNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func bytesToNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
