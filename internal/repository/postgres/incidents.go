package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

// ListIncidentsInWindow returns lifecycle timestamps of incidents whose field falls in window.
func (r *Repository) ListIncidentsInWindow(ctx context.Context, serviceID string, field domain.IncidentTimeField, window domain.TimeRange) ([]domain.IncidentTimes, error) {
	var column string
	switch field {
	case domain.IncidentAcknowledgedAt:
		column = "acknowledged_at"
	case domain.IncidentResolvedAt:
		column = "resolved_at"
	default:
		return nil, fmt.Errorf("incident time field %q: %w", field, repository.ErrInvalidArgument)
	}
	query := `SELECT created_at, acknowledged_at, resolved_at
	FROM incidents
	WHERE ($1 = '' OR service_id = $1)
		AND ` + column + ` >= $2
		AND ` + column + ` <= $3
	ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, serviceID, window.Start.UTC(), window.End.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.IncidentTimes, 0)
	for rows.Next() {
		var item domain.IncidentTimes
		if err := rows.Scan(&item.CreatedAt, &item.AcknowledgedAt, &item.ResolvedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// FindOpenIncidentByDedupKey returns the oldest non-resolved incident carrying dedupKey.
func (r *Repository) FindOpenIncidentByDedupKey(ctx context.Context, dedupKey string) (*domain.Incident, error) {
	return findOpenIncident(ctx, r.pool, dedupKey)
}

// CreateIncident inserts the incident and its first timeline event in one transaction.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident, event domain.IncidentEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertIncident(ctx, tx, incident, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ClaimAndCreateIncident serialises creators of the same dedup key with a transaction
// scoped advisory lock, then inserts only when no open incident exists.
func (r *Repository) ClaimAndCreateIncident(ctx context.Context, incident *domain.Incident, event domain.IncidentEvent) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, incident.DedupKey); err != nil {
		return false, fmt.Errorf("lock dedup key: %w", err)
	}
	if _, err := findOpenIncident(ctx, tx, incident.DedupKey); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	if err := insertIncident(ctx, tx, incident, event); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func findOpenIncident(ctx context.Context, db queryRower, dedupKey string) (*domain.Incident, error) {
	const query = `SELECT id, service_id, title, description, status, urgency, dedup_key, created_at, acknowledged_at, resolved_at
	FROM incidents
	WHERE dedup_key = $1 AND status <> 'RESOLVED'
	ORDER BY created_at ASC
	LIMIT 1`
	var (
		inc     domain.Incident
		status  string
		urgency string
	)
	err := db.QueryRow(ctx, query, dedupKey).Scan(&inc.ID, &inc.ServiceID, &inc.Title, &inc.Description, &status, &urgency, &inc.DedupKey, &inc.CreatedAt, &inc.AcknowledgedAt, &inc.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	inc.Status = domain.IncidentStatus(status)
	inc.Urgency = domain.Severity(urgency)
	return &inc, nil
}

func insertIncident(ctx context.Context, tx pgx.Tx, incident *domain.Incident, event domain.IncidentEvent) error {
	const incidentInsert = `INSERT INTO incidents (id, service_id, title, description, status, urgency, dedup_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.Exec(ctx, incidentInsert,
		incident.ID,
		incident.ServiceID,
		incident.Title,
		incident.Description,
		string(incident.Status),
		string(incident.Urgency),
		emptyToNil(incident.DedupKey),
		incident.CreatedAt.UTC(),
	); err != nil {
		return mapError(err)
	}

	const eventInsert = `INSERT INTO incident_events (id, incident_id, type, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, eventInsert,
		event.ID,
		incident.ID,
		event.Type,
		event.Message,
		bytesToNil(event.Data),
		event.CreatedAt.UTC(),
	); err != nil {
		return mapError(err)
	}
	return nil
}
