// Package mysql is the reference backend client: a pooled MySQL connection
// exposing query, list_tables and describe_table tools. When configured
// read-only it rejects any statement that is not a SELECT before the
// statement reaches the server.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/datasage-ai/toolgate/internal/backend"
)

// Kind is the connection kind this client registers under.
const Kind = "mysql"

const (
	maxOpenConns    = 5
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
	pingTimeout     = 10 * time.Second
)

func init() {
	backend.Register(Kind, func(name string, config map[string]any, creds map[string]string, logger *zap.Logger) (backend.Client, error) {
		return NewClient(name, config, creds, logger)
	})
}

// Client holds one pooled MySQL connection. The pool is bounded; callers
// block on pool exhaustion until a connection frees up or their context
// expires.
type Client struct {
	name     string
	dsn      string
	readOnly bool
	logger   *zap.Logger
	db       *sql.DB
	schemas  map[string]*compiledTool
}

// NewClient builds a Client from connection config and decrypted credentials.
// Config keys: host, port, database, read_only. Credential keys: username,
// password.
func NewClient(name string, config map[string]any, creds map[string]string, logger *zap.Logger) (*Client, error) {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", stringValue(config, "host", "localhost"), intValue(config, "port", 3306))
	cfg.DBName = stringValue(config, "database", "")
	cfg.User = creds["username"]
	cfg.Passwd = creds["password"]
	cfg.ParseTime = true

	schemas, err := compileToolSchemas()
	if err != nil {
		return nil, fmt.Errorf("NewClient: %w", err)
	}

	return &Client{
		name:     name,
		dsn:      cfg.FormatDSN(),
		readOnly: boolValue(config, "read_only", true),
		logger:   logger,
		schemas:  schemas,
	}, nil
}

// Connect opens the pool and verifies the backend is reachable.
func (c *Client) Connect(ctx context.Context) error {
	db, err := sql.Open("mysql", c.dsn)
	if err != nil {
		return fmt.Errorf("Connect: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("Connect: %w", err)
	}

	c.db = db
	return nil
}

// Disconnect releases the pool and all idle connections.
func (c *Client) Disconnect(_ context.Context) error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return fmt.Errorf("Disconnect: %w", err)
	}
	return nil
}

// ListTools returns the client's tool catalog.
func (c *Client) ListTools(_ context.Context) ([]backend.ToolDefinition, error) {
	return toolDefinitions(), nil
}

// CallTool dispatches one tool invocation. Invalid parameters and read-only
// violations come back as backend-reported failures, not Go errors.
func (c *Client) CallTool(ctx context.Context, toolName string, params map[string]any) (*backend.CallResult, error) {
	if c.db == nil {
		return &backend.CallResult{Success: false, Error: "not connected"}, nil
	}

	compiled, ok := c.schemas[toolName]
	if !ok {
		return &backend.CallResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", toolName)}, nil
	}
	if issue := compiled.validate(params); issue != "" {
		return &backend.CallResult{Success: false, Error: "invalid parameters: " + issue}, nil
	}

	switch toolName {
	case "query":
		return c.executeQuery(ctx, params)
	case "list_tables":
		return c.listTables(ctx)
	case "describe_table":
		return c.describeTable(ctx, params)
	default:
		return &backend.CallResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", toolName)}, nil
	}
}

func (c *Client) executeQuery(ctx context.Context, params map[string]any) (*backend.CallResult, error) {
	sqlText, _ := params["sql"].(string)
	args := queryArgs(params["params"])

	if c.readOnly && violatesReadOnly(sqlText) {
		return &backend.CallResult{
			Success: false,
			Error:   "read-only mode: only SELECT statements are allowed",
		}, nil
	}

	rows, err := c.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("executeQuery: %w", err)
	}
	defer rows.Close()

	columns, mapped, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("executeQuery: %w", err)
	}

	return &backend.CallResult{
		Success: true,
		Data: map[string]any{
			"columns":   columns,
			"rows":      mapped,
			"row_count": len(mapped),
		},
	}, nil
}

func (c *Client) listTables(ctx context.Context) (*backend.CallResult, error) {
	rows, err := c.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, fmt.Errorf("listTables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listTables: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listTables: %w", err)
	}

	return &backend.CallResult{
		Success: true,
		Data: map[string]any{
			"tables": tables,
			"count":  len(tables),
		},
	}, nil
}

func (c *Client) describeTable(ctx context.Context, params map[string]any) (*backend.CallResult, error) {
	table, _ := params["table"].(string)

	// information_schema takes the table name as a plain statement
	// parameter, so the identifier never has to be spliced into SQL.
	rows, err := c.db.QueryContext(ctx, `
		SELECT column_name, column_type, is_nullable, column_key, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("describeTable: %w", err)
	}
	defer rows.Close()

	columns := []map[string]any{}
	for rows.Next() {
		var field, colType, null, key string
		var def sql.NullString
		var extra string
		if err := rows.Scan(&field, &colType, &null, &key, &def, &extra); err != nil {
			return nil, fmt.Errorf("describeTable: %w", err)
		}
		var defaultVal any
		if def.Valid {
			defaultVal = def.String
		}
		columns = append(columns, map[string]any{
			"name":    field,
			"type":    colType,
			"null":    null,
			"key":     key,
			"default": defaultVal,
			"extra":   extra,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describeTable: %w", err)
	}

	// A table with zero columns does not exist.
	if len(columns) == 0 {
		return &backend.CallResult{Success: false, Error: fmt.Sprintf("table not found: %s", table)}, nil
	}

	return &backend.CallResult{
		Success: true,
		Data: map[string]any{
			"table":   table,
			"columns": columns,
		},
	}, nil
}

// violatesReadOnly reports whether a statement is anything other than a
// SELECT. The check runs before the statement is sent to the server.
func violatesReadOnly(sqlText string) bool {
	return !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlText)), "SELECT")
}

// scanRows maps a result set into column names and row maps.
func scanRows(rows *sql.Rows) ([]string, []map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	mapped := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			// Drivers hand back []byte for text columns; stringify so the
			// result serializes as JSON text rather than base64.
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		mapped = append(mapped, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, mapped, nil
}

func queryArgs(v any) []any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	return items
}

func stringValue(config map[string]any, key, fallback string) string {
	if s, ok := config[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func intValue(config map[string]any, key string, fallback int) int {
	switch n := config[key].(type) {
	case int:
		return n
	case float64: // JSON numbers decode as float64
		return int(n)
	default:
		return fallback
	}
}

func boolValue(config map[string]any, key string, fallback bool) bool {
	if b, ok := config[key].(bool); ok {
		return b
	}
	return fallback
}
