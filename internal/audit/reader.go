package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Filter narrows a record listing. Zero values mean "no filter".
type Filter struct {
	UserID   string
	ToolName string
	Status   Status
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// Stats aggregates outcomes over a time range.
type Stats struct {
	Total   uint64            `json:"total"`
	Success uint64            `json:"success"`
	Fail    uint64            `json:"fail"`
	Denied  uint64            `json:"denied"`
	ByTool  map[string]uint64 `json:"by_tool"`
}

// Reader serves audit listings and aggregates from ClickHouse. It shares
// the writer's connection; it is nil in deployments running on the log
// writer fallback.
type Reader struct {
	conn driver.Conn
}

// NewReader creates a Reader over an existing ClickHouse connection.
func NewReader(conn driver.Conn) *Reader {
	return &Reader{conn: conn}
}

// Reader returns a Reader sharing this writer's connection.
func (w *ClickHouseWriter) Reader() *Reader {
	return NewReader(w.conn)
}

// List returns records matching the filter, newest first.
func (r *Reader) List(ctx context.Context, filter Filter) ([]*Record, error) {
	query := `
		SELECT id, timestamp, user_id, session_id, user_query,
		       tool_name, tool_params, response,
		       status, error_message, execution_time_ms
		FROM audit_records
		WHERE 1 = 1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.ToolName != "" {
		query += ` AND tool_name = ?`
		args = append(args, filter.ToolName)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		query += ` AND timestamp <= ?`
		args = append(args, *filter.Until)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.UserID, &rec.SessionID, &rec.UserQuery,
			&rec.ToolName, &rec.ParamsJSON, &rec.ResponseJSON,
			&status, &rec.ErrorMessage, &rec.ExecutionTimeMs,
		); err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		rec.Status = Status(status)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return records, nil
}

// GetStats aggregates counts by status and tool over a time range.
func (r *Reader) GetStats(ctx context.Context, since, until *time.Time) (*Stats, error) {
	query := `
		SELECT status, tool_name, count() AS n
		FROM audit_records
		WHERE 1 = 1`
	var args []any
	if since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, *since)
	}
	if until != nil {
		query += ` AND timestamp <= ?`
		args = append(args, *until)
	}
	query += ` GROUP BY status, tool_name`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetStats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{ByTool: make(map[string]uint64)}
	for rows.Next() {
		var status, toolName string
		var n uint64
		if err := rows.Scan(&status, &toolName, &n); err != nil {
			return nil, fmt.Errorf("GetStats: %w", err)
		}
		stats.Total += n
		stats.ByTool[toolName] += n
		switch Status(status) {
		case StatusSuccess:
			stats.Success += n
		case StatusFail:
			stats.Fail += n
		case StatusDenied:
			stats.Denied += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetStats: %w", err)
	}
	return stats, nil
}
