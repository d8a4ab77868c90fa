package connection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store abstracts the connection table for testability.
type Store interface {
	Insert(ctx context.Context, conn *Connection) error
	GetByID(ctx context.Context, id, userID string) (*Connection, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*Connection, error)
	Update(ctx context.Context, conn *Connection) error
	Delete(ctx context.Context, id, userID string) (bool, error)
	SetHealth(ctx context.Context, id, userID, status, checkErr string, at time.Time) error
}

// PostgresStore is the real Store backed by *sql.DB (pgx stdlib driver).
// Policy rows reference connections with ON DELETE CASCADE, so deleting a
// connection removes its permissions in the same statement.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const connectionColumns = `
	id, user_id, name, kind, COALESCE(description, ''), config,
	COALESCE(encrypted_credentials, ''), is_active,
	last_checked_at, COALESCE(last_check_status, ''), COALESCE(last_check_error, ''),
	created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, conn *Connection) error {
	configJSON, err := json.Marshal(conn.Config)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connections (
			id, user_id, name, kind, description, config,
			encrypted_credentials, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, conn.ID, conn.UserID, conn.Name, conn.Kind, nullIfEmpty(conn.Description),
		configJSON, nullIfEmpty(conn.EncryptedCredentials), conn.IsActive, conn.CreatedAt)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id, userID string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+`
		FROM connections
		WHERE id = $1 AND user_id = $2
	`, id, userID)

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return conn, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE user_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUser: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	return conns, nil
}

func (s *PostgresStore) Update(ctx context.Context, conn *Connection) error {
	configJSON, err := json.Marshal(conn.Config)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE connections SET
			name = $3,
			description = $4,
			config = $5,
			encrypted_credentials = $6,
			is_active = $7,
			updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, conn.ID, conn.UserID, conn.Name, nullIfEmpty(conn.Description),
		configJSON, nullIfEmpty(conn.EncryptedCredentials), conn.IsActive)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM connections WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return false, fmt.Errorf("Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Delete: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) SetHealth(ctx context.Context, id, userID, status, checkErr string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE connections SET
			last_checked_at = $3,
			last_check_status = $4,
			last_check_error = $5,
			updated_at = now()
		WHERE id = $1 AND user_id = $2
	`, id, userID, at, status, nullIfEmpty(checkErr))
	if err != nil {
		return fmt.Errorf("SetHealth: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*Connection, error) {
	var conn Connection
	var configJSON []byte
	var lastCheckedAt sql.NullTime

	err := row.Scan(
		&conn.ID, &conn.UserID, &conn.Name, &conn.Kind, &conn.Description, &configJSON,
		&conn.EncryptedCredentials, &conn.IsActive,
		&lastCheckedAt, &conn.LastCheckStatus, &conn.LastCheckError,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &conn.Config); err != nil {
			return nil, fmt.Errorf("scanConnection: config: %w", err)
		}
	}
	if lastCheckedAt.Valid {
		t := lastCheckedAt.Time
		conn.LastCheckedAt = &t
	}
	return &conn, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
