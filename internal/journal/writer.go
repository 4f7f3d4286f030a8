package journal

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/orderboard/internal/router"
)

// eventNamespace seeds the name-based uuids of journal rows.
var eventNamespace = uuid.MustParse("6f1c9a52-3c1e-4d0b-9a57-0c2f4e8b7d11")

// Writer consumes EventRecords from the router journal buffer and writes to
// the order_events table.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from Event Router
	input *router.GrowableBuffer[router.EventRecord]

	// Database
	db DB

	// Batching
	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewWriter creates a new Writer.
func NewWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.EventRecord],
	db DB,
	logger *slog.Logger,
) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &Writer{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming records and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the input, drains what is left and flushes it.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	// Closing the buffer lets consumeLoop drain and exit.
	w.input.Close()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("journal writer stopped")
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
	}

	if w.cancel != nil {
		w.cancel()
	}

	// Final flush
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves records from the input buffer into the batch until the
// buffer is closed and empty.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		recs := w.input.ReceiveBatch(w.cfg.BatchSize)
		if recs == nil {
			return
		}
		for _, rec := range recs {
			w.handleRecord(rec)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleRecord transforms and adds a record to the batch.
func (w *Writer) handleRecord(rec router.EventRecord) {
	row := transform(rec)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts an EventRecord to an eventRow.
func transform(rec router.EventRecord) eventRow {
	row := eventRow{
		EventID:    eventID(rec),
		Event:      rec.Event,
		Generation: int64(rec.Generation),
		SessionID:  rec.SessionID,
		Payload:    rec.Payload,
		ReceivedAt: rec.ReceivedAt,
	}
	if len(row.Payload) == 0 {
		row.Payload = []byte(`{}`)
	}
	if rec.OrderID != 0 {
		id := rec.OrderID
		row.OrderID = &id
	}
	if rec.Status != "" {
		status := rec.Status
		row.Status = &status
	}
	return row
}

// eventID is a name-based uuid over the record's identity, so the same
// record always maps to the same row.
func eventID(rec router.EventRecord) uuid.UUID {
	buf := make([]byte, 0, 64+len(rec.Payload))
	buf = binary.BigEndian.AppendUint64(buf, rec.Generation)
	buf = binary.BigEndian.AppendUint64(buf, uint64(rec.ReceivedAt.UnixNano()))
	buf = append(buf, rec.SessionID...)
	buf = append(buf, 0)
	buf = append(buf, rec.Event...)
	buf = append(buf, 0)
	buf = append(buf, rec.Payload...)
	return uuid.NewSHA1(eventNamespace, buf)
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if w.db == nil {
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		w.logger.Warn("journal has no database, dropping batch", "count", len(batch))
		return
	}

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO order_events (event_id, event, generation, session_id, order_id, status, payload, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (event_id) DO NOTHING
		`, r.EventID, r.Event, r.Generation, r.SessionID, r.OrderID, r.Status, r.Payload, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
