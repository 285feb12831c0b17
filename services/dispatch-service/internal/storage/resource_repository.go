package storage

import (
	"context"

	"github.com/fieldserve/dispatch/libs/db"
	"github.com/fieldserve/dispatch/services/dispatch-service/internal/model"
)

type ResourceRepository struct {
	pool *db.Pool
}

func NewResourceRepository(pool *db.Pool) *ResourceRepository {
	return &ResourceRepository{pool: pool}
}

// ListActive returns the bookable resources. The admin surface owns writes;
// this service only reads.
func (r *ResourceRepository) ListActive(ctx context.Context) ([]model.Resource, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, availability_spec, home_lat, home_lng, active, created_at
		FROM resources
		WHERE active
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []model.Resource
	for rows.Next() {
		var res model.Resource
		if err := rows.Scan(
			&res.ID,
			&res.Name,
			&res.AvailabilitySpec,
			&res.HomeLat,
			&res.HomeLng,
			&res.Active,
			&res.CreatedAt,
		); err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return resources, nil
}
