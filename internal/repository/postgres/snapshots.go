package postgres

import (
	"context"
	"fmt"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

// UpsertSLASnapshot writes a snapshot keyed on (date, sla_definition_id).
// Re-running for the same key rewrites the row in place and keeps its id.
func (r *Repository) UpsertSLASnapshot(ctx context.Context, snapshot *domain.SLASnapshot) error {
	if snapshot.ID == "" {
		return fmt.Errorf("upsert snapshot without id: %w", repository.ErrInvalidArgument)
	}
	const query = `INSERT INTO sla_snapshots (
		id,
		date,
		sla_definition_id,
		total_events,
		error_events,
		uptime_percentage,
		breach_count,
		metadata,
		created_at,
		updated_at
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()
	) ON CONFLICT (date, sla_definition_id)
	DO UPDATE SET
		total_events = EXCLUDED.total_events,
		error_events = EXCLUDED.error_events,
		uptime_percentage = EXCLUDED.uptime_percentage,
		breach_count = EXCLUDED.breach_count,
		metadata = EXCLUDED.metadata,
		updated_at = NOW()
	RETURNING id, created_at, updated_at`
	metadata := snapshot.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	err := r.pool.QueryRow(ctx, query,
		snapshot.ID,
		snapshot.Date.UTC(),
		snapshot.SLADefinitionID,
		snapshot.TotalEvents,
		snapshot.ErrorEvents,
		snapshot.UptimePercentage,
		snapshot.BreachCount,
		metadata,
	).Scan(&snapshot.ID, &snapshot.CreatedAt, &snapshot.UpdatedAt)
	return mapError(err)
}

// ListSLASnapshots returns snapshots of a definition with dates inside window, oldest first.
func (r *Repository) ListSLASnapshots(ctx context.Context, definitionID string, window domain.TimeRange) ([]domain.SLASnapshot, error) {
	const query = `SELECT id, date, sla_definition_id, total_events, error_events, uptime_percentage, breach_count, metadata, created_at, updated_at
	FROM sla_snapshots
	WHERE sla_definition_id = $1 AND date >= $2 AND date <= $3
	ORDER BY date ASC`
	rows, err := r.pool.Query(ctx, query, definitionID, window.Start.UTC(), window.End.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]domain.SLASnapshot, 0)
	for rows.Next() {
		var s domain.SLASnapshot
		if err := rows.Scan(&s.ID, &s.Date, &s.SLADefinitionID, &s.TotalEvents, &s.ErrorEvents, &s.UptimePercentage, &s.BreachCount, &s.Metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Date = s.Date.UTC()
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}
