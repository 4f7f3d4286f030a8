package journal

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_events (
	event_id    UUID PRIMARY KEY,
	event       TEXT NOT NULL,
	generation  BIGINT NOT NULL,
	session_id  TEXT NOT NULL DEFAULT '',
	order_id    BIGINT,
	status      TEXT,
	payload     JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS order_events_received_at_idx ON order_events (received_at);
CREATE INDEX IF NOT EXISTS order_events_order_id_idx ON order_events (order_id) WHERE order_id IS NOT NULL;
`

// EnsureSchema creates the order_events table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create order_events: %w", err)
	}
	return nil
}
