package audit

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseWriter writes audit records to ClickHouse asynchronously.
// Write() is non-blocking — records are buffered and batch-inserted in a
// background goroutine. A full buffer drops the record with a warning; that
// is the only path on which a record can be lost, and it is never silent.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *Record
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter connects and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *Record, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues an audit record for async insertion.
func (w *ClickHouseWriter) Write(record *Record) {
	select {
	case w.buffer <- record:
	default:
		w.logger.Warn("clickhouse buffer full, dropping audit record",
			zap.String("record_id", record.ID),
			zap.String("tool_name", record.ToolName),
		)
	}
}

// Close signals the flush loop to drain remaining records.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*Record, 0, flushBatch)

	for {
		select {
		case record := <-w.buffer:
			batch = append(batch, record)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case record := <-w.buffer:
					batch = append(batch, record)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(records []*Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO audit_records (
			id, timestamp, user_id, session_id, user_query,
			tool_name, tool_params, response,
			status, error_message, execution_time_ms
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, r := range records {
		if err := batch.Append(
			r.ID,
			r.Timestamp,
			r.UserID,
			r.SessionID,
			r.UserQuery,
			r.ToolName,
			r.ParamsJSON,
			r.ResponseJSON,
			string(r.Status),
			r.ErrorMessage,
			r.ExecutionTimeMs,
		); err != nil {
			w.logger.Error("clickhouse append record failed",
				zap.String("record_id", r.ID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(records)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback Writer for local development without ClickHouse.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs records to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(record *Record) {
	w.logger.Info("audit_record",
		zap.String("record_id", record.ID),
		zap.String("user_id", record.UserID),
		zap.String("session_id", record.SessionID),
		zap.String("tool_name", record.ToolName),
		zap.String("status", string(record.Status)),
		zap.String("error_message", record.ErrorMessage),
		zap.Int64("execution_time_ms", record.ExecutionTimeMs),
	)
}

func (w *LogWriter) Close() {}
