package crdb

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	venue TEXT,
	date TIMESTAMPTZ NOT NULL,
	capacity INT NOT NULL,
	free BOOL NOT NULL DEFAULT false,
	listing_fee NUMERIC(10,2) NOT NULL DEFAULT 0,
	listing_tier TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ticket_types (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL REFERENCES events (id),
	name TEXT NOT NULL,
	price NUMERIC(10,2) NOT NULL,
	quantity_available INT NOT NULL,
	quantity_sold INT NOT NULL DEFAULT 0,
	sale_starts TIMESTAMPTZ NOT NULL,
	sale_ends TIMESTAMPTZ NOT NULL,
	active BOOL NOT NULL DEFAULT true,
	CHECK (quantity_sold >= 0 AND quantity_sold <= quantity_available)
);

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	order_number TEXT NOT NULL UNIQUE,
	user_id UUID,
	email TEXT NOT NULL,
	first_name TEXT,
	last_name TEXT,
	phone TEXT,
	total_amount NUMERIC(10,2) NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'confirmed', 'cancelled', 'refunded')),
	processor_order_id TEXT,
	capture_ref TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	paid_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS orders_processor_ref_idx ON orders (processor_order_id);
CREATE INDEX IF NOT EXISTS orders_status_created_idx ON orders (status, created_at);

CREATE TABLE IF NOT EXISTS order_lines (
	id UUID PRIMARY KEY,
	order_id UUID NOT NULL REFERENCES orders (id),
	ticket_type_id UUID NOT NULL REFERENCES ticket_types (id),
	quantity INT NOT NULL CHECK (quantity > 0),
	unit_price NUMERIC(10,2) NOT NULL,
	UNIQUE (order_id, ticket_type_id)
);

CREATE TABLE IF NOT EXISTS tickets (
	id UUID PRIMARY KEY,
	order_line_id UUID NOT NULL REFERENCES order_lines (id),
	ticket_number TEXT NOT NULL UNIQUE,
	validation_token TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL CHECK (status IN ('unused', 'used', 'voided')),
	used_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json BYTES NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
