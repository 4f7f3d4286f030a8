package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// WriterConfig holds batching configuration.
type WriterConfig struct {
	BatchSize     int           // Default: 100
	FlushInterval time.Duration // Default: 1s
}

// DefaultWriterConfig returns default configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// WriterMetrics contains runtime statistics.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// DB is the subset of pgxpool.Pool the journal needs.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// eventRow is one order_events row.
type eventRow struct {
	EventID    uuid.UUID
	Event      string
	Generation int64
	SessionID  string
	OrderID    *int64
	Status     *string
	Payload    []byte
	ReceivedAt time.Time
}
