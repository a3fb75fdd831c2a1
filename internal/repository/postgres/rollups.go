package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

// ListRollups returns rollups for a metric within an inclusive bucket range.
func (r *Repository) ListRollups(ctx context.Context, q repository.RollupQuery) ([]domain.MetricRollup, error) {
	const query = `SELECT service_id, name, bucket_start, count, sum, max, p99, tags
	FROM metric_rollups
	WHERE name = $1
		AND ($2 = '' OR service_id = $2)
		AND bucket_start >= $3
		AND bucket_start <= $4
	ORDER BY bucket_start ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, q.Name, q.ServiceID, q.Range.Start.UTC(), q.Range.End.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rollups := make([]domain.MetricRollup, 0)
	for rows.Next() {
		var (
			rollup domain.MetricRollup
			p99    sql.NullFloat64
			tags   []byte
		)
		if err := rows.Scan(&rollup.ServiceID, &rollup.Name, &rollup.BucketStart, &rollup.Count, &rollup.Sum, &rollup.Max, &p99, &tags); err != nil {
			return nil, err
		}
		if p99.Valid {
			value := p99.Float64
			rollup.P99 = &value
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &rollup.Tags); err != nil {
				return nil, fmt.Errorf("decode rollup tags: %w", err)
			}
		}
		rollups = append(rollups, rollup)
	}
	return rollups, rows.Err()
}
