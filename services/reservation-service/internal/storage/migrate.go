package storage

import (
	"context"

	"github.com/dinehall/tablebook/libs/db"
)

// The exclusion constraint is the cross-instance backstop for the
// check-then-write race: even if two service instances both pass the
// availability check, only one insert of an occupying reservation with an
// overlapping window can commit. Half-open tstzrange matches the in-process
// overlap algorithm, so back-to-back bookings are allowed.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS restaurant_tables (
	id TEXT PRIMARY KEY,
	capacity INT NOT NULL CHECK (capacity >= 1),
	min_party_size INT NOT NULL DEFAULT 1 CHECK (min_party_size >= 1),
	active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	table_id TEXT NOT NULL,
	customer_name TEXT NOT NULL,
	customer_email TEXT NOT NULL DEFAULT '',
	customer_phone TEXT NOT NULL DEFAULT '',
	party_size INT NOT NULL CHECK (party_size >= 1),
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	duration_minutes INT NOT NULL,
	grace_period_minutes INT NOT NULL,
	max_sitting_minutes INT NOT NULL,
	special_requests TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	actual_arrival TIMESTAMPTZ,
	actual_departure TIMESTAMPTZ,
	late_arrival BOOLEAN NOT NULL DEFAULT false,
	arrival_notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT reservations_no_overlap EXCLUDE USING gist (
		table_id WITH =,
		tstzrange(start_time, end_time) WITH &&
	) WHERE (status IN ('confirmed', 'seated'))
);

CREATE INDEX IF NOT EXISTS idx_reservations_table_start ON reservations(table_id, start_time);
CREATE INDEX IF NOT EXISTS idx_reservations_start ON reservations(start_time);

CREATE TABLE IF NOT EXISTS outbox_events (
	id BIGSERIAL PRIMARY KEY,
	event_id UUID NOT NULL DEFAULT gen_random_uuid(),
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	traceparent TEXT NOT NULL DEFAULT '',
	tracestate TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox_events(id) WHERE published_at IS NULL;
`

func Migrate(ctx context.Context, pool *db.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
