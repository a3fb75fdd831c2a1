package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

const slaDefinitionColumns = `id, service_id, name, version, target, compliance_window, metric_type, active_from, active_to, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSLADefinition(row rowScanner) (domain.SLADefinition, error) {
	var (
		def        domain.SLADefinition
		serviceID  *string
		window     string
		metricType string
	)
	if err := row.Scan(&def.ID, &serviceID, &def.Name, &def.Version, &def.Target, &window, &metricType, &def.ActiveFrom, &def.ActiveTo, &def.CreatedAt); err != nil {
		return domain.SLADefinition{}, err
	}
	def.ServiceID = serviceID
	def.Window = domain.ComplianceWindow(window)
	def.MetricType = domain.MetricType(metricType)
	return def, nil
}

// GetSLADefinition fetches a definition by id.
func (r *Repository) GetSLADefinition(ctx context.Context, id string) (*domain.SLADefinition, error) {
	query := `SELECT ` + slaDefinitionColumns + ` FROM sla_definitions WHERE id = $1`
	def, err := scanSLADefinition(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &def, nil
}

// ListSLADefinitionsActiveBetween returns definitions live at any point of window.
func (r *Repository) ListSLADefinitionsActiveBetween(ctx context.Context, window domain.TimeRange) ([]domain.SLADefinition, error) {
	query := `SELECT ` + slaDefinitionColumns + ` FROM sla_definitions
	WHERE active_from <= $2 AND (active_to IS NULL OR active_to > $1)
	ORDER BY created_at ASC, id ASC`
	return r.listSLADefinitions(ctx, query, window.Start.UTC(), window.End.UTC())
}

// ListLiveSLADefinitions returns open-ended definitions for a scope and metric type.
func (r *Repository) ListLiveSLADefinitions(ctx context.Context, serviceID *string, metricType domain.MetricType) ([]domain.SLADefinition, error) {
	query := `SELECT ` + slaDefinitionColumns + ` FROM sla_definitions
	WHERE active_to IS NULL
		AND metric_type = $1
		AND service_id IS NOT DISTINCT FROM $2
	ORDER BY created_at ASC, id ASC`
	var scope any
	if serviceID != nil {
		scope = *serviceID
	}
	return r.listSLADefinitions(ctx, query, string(metricType), scope)
}

func (r *Repository) listSLADefinitions(ctx context.Context, query string, args ...any) ([]domain.SLADefinition, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	defs := make([]domain.SLADefinition, 0)
	for rows.Next() {
		def, err := scanSLADefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// CreateSLADefinition inserts a new definition version.
func (r *Repository) CreateSLADefinition(ctx context.Context, def *domain.SLADefinition) error {
	return mapError(insertSLADefinition(ctx, r.pool, def))
}

// SupersedeSLADefinition closes the current version and inserts next in one transaction.
func (r *Repository) SupersedeSLADefinition(ctx context.Context, currentID string, activeTo time.Time, next *domain.SLADefinition) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE sla_definitions SET active_to = $2 WHERE id = $1 AND active_to IS NULL`, currentID, activeTo.UTC())
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("supersede %s: %w", currentID, repository.ErrConflict)
	}
	if err := insertSLADefinition(ctx, tx, next); err != nil {
		return mapError(err)
	}
	return tx.Commit(ctx)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertSLADefinition(ctx context.Context, db queryRower, def *domain.SLADefinition) error {
	const query = `INSERT INTO sla_definitions (id, service_id, name, version, target, compliance_window, metric_type, active_from, active_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING created_at`
	var serviceID any
	if !def.IsGlobal() {
		serviceID = *def.ServiceID
	}
	return db.QueryRow(ctx, query,
		def.ID,
		serviceID,
		def.Name,
		def.Version,
		def.Target,
		string(def.Window),
		string(def.MetricType),
		def.ActiveFrom.UTC(),
		timePtrToNil(def.ActiveTo),
	).Scan(&def.CreatedAt)
}
