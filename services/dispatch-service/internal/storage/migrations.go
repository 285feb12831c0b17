package storage

import (
	"context"

	"github.com/fieldserve/dispatch/libs/db"
)

// The exclusion constraint on assignments is the concurrency primitive for
// assignment claims: two overlapping non-terminal assignments for the same
// resource cannot both commit. Claim conflicts surface as SQLSTATE 23P01.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS resources (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	availability_spec TEXT NOT NULL DEFAULT '',
	home_lat DOUBLE PRECISION,
	home_lng DOUBLE PRECISION,
	active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	bedrooms INT NOT NULL DEFAULT 0,
	square_feet INT NOT NULL DEFAULT 0,
	customer_name TEXT NOT NULL DEFAULT '',
	scheduled_at TIMESTAMPTZ NOT NULL,
	duration_minutes INT NOT NULL,
	lat DOUBLE PRECISION,
	lng DOUBLE PRECISION,
	resource_id TEXT REFERENCES resources(id),
	status TEXT NOT NULL DEFAULT 'booked',
	cancelled_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bookings_resource_time
	ON bookings(resource_id, scheduled_at);

CREATE TABLE IF NOT EXISTS assignments (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL REFERENCES bookings(id),
	resource_id TEXT NOT NULL REFERENCES resources(id),
	status TEXT NOT NULL DEFAULT 'pending',
	job_window TSTZRANGE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT assignments_resource_window_excl
		EXCLUDE USING gist (resource_id WITH =, job_window WITH &&)
		WHERE (status IN ('pending', 'accepted', 'confirmed'))
);

CREATE INDEX IF NOT EXISTS idx_assignments_job ON assignments(job_id);

CREATE TABLE IF NOT EXISTS outbox_events (
	id BIGSERIAL PRIMARY KEY,
	event_id TEXT NOT NULL UNIQUE,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	tracestate TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
	ON outbox_events(id) WHERE published_at IS NULL;
`

func Migrate(ctx context.Context, pool *db.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
