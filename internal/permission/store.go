package permission

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store abstracts the policy table for the evaluator.
type Store interface {
	// GetPermission returns the row for a triple, or nil if none exists.
	GetPermission(ctx context.Context, userID, connectionID, toolName string) (*Permission, error)
}

// AdminStore is the administrative surface, outside the call hot path.
type AdminStore interface {
	Store
	SetPermission(ctx context.Context, params SetParams) (*Permission, error)
	BulkSetPermissions(ctx context.Context, userID, connectionID, createdBy string, tools map[string]Kind) ([]*Permission, error)
	DeletePermission(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID, connectionID string) ([]*Permission, error)
}

// SetParams holds the fields for creating or replacing a policy row.
type SetParams struct {
	UserID           string
	ConnectionID     string
	ToolName         string
	Kind             Kind
	CreatedBy        string
	ParamConstraints json.RawMessage
	RateLimit        json.RawMessage
	ExpiresAt        *time.Time
	TimeRestrictions *TimeRestrictions
}

// PostgresStore is the real store backed by *sql.DB (pgx stdlib driver).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const permissionColumns = `
	id, user_id, connection_id, tool_name, permission_kind,
	param_constraints, rate_limit, expires_at, time_restrictions,
	COALESCE(created_by, ''), created_at, updated_at`

func (s *PostgresStore) GetPermission(ctx context.Context, userID, connectionID, toolName string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+permissionColumns+`
		FROM tool_permissions
		WHERE user_id = $1 AND connection_id = $2 AND tool_name = $3
	`, userID, connectionID, toolName)

	p, err := scanPermission(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetPermission: %w", err)
	}
	return p, nil
}

// SetPermission upserts on the unique (user, connection, tool) triple.
func (s *PostgresStore) SetPermission(ctx context.Context, params SetParams) (*Permission, error) {
	trJSON, err := marshalNullable(params.TimeRestrictions)
	if err != nil {
		return nil, fmt.Errorf("SetPermission: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tool_permissions (
			id, user_id, connection_id, tool_name, permission_kind,
			param_constraints, rate_limit, expires_at, time_restrictions,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (user_id, connection_id, tool_name) DO UPDATE SET
			permission_kind   = EXCLUDED.permission_kind,
			param_constraints = EXCLUDED.param_constraints,
			rate_limit        = EXCLUDED.rate_limit,
			expires_at        = EXCLUDED.expires_at,
			time_restrictions = EXCLUDED.time_restrictions,
			created_by        = EXCLUDED.created_by,
			updated_at        = now()
		RETURNING `+permissionColumns,
		uuid.New().String(), params.UserID, params.ConnectionID, params.ToolName, string(params.Kind),
		nullableRaw(params.ParamConstraints), nullableRaw(params.RateLimit),
		params.ExpiresAt, trJSON, nullIfEmpty(params.CreatedBy),
	)

	p, err := scanPermission(row)
	if err != nil {
		return nil, fmt.Errorf("SetPermission: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) BulkSetPermissions(ctx context.Context, userID, connectionID, createdBy string, tools map[string]Kind) ([]*Permission, error) {
	results := make([]*Permission, 0, len(tools))
	for toolName, kind := range tools {
		p, err := s.SetPermission(ctx, SetParams{
			UserID:       userID,
			ConnectionID: connectionID,
			ToolName:     toolName,
			Kind:         kind,
			CreatedBy:    createdBy,
		})
		if err != nil {
			return nil, fmt.Errorf("BulkSetPermissions: %w", err)
		}
		results = append(results, p)
	}
	return results, nil
}

func (s *PostgresStore) DeletePermission(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_permissions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("DeletePermission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("DeletePermission: %w", err)
	}
	return n > 0, nil
}

// ListByUser returns a user's policy rows, optionally scoped to one
// connection, ordered for stable admin listings.
func (s *PostgresStore) ListByUser(ctx context.Context, userID, connectionID string) ([]*Permission, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM tool_permissions
		WHERE user_id = $1`
	args := []any{userID}
	if connectionID != "" {
		query += ` AND connection_id = $2`
		args = append(args, connectionID)
	}
	query += ` ORDER BY connection_id, tool_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	defer rows.Close()

	var out []*Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUser: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(row rowScanner) (*Permission, error) {
	var p Permission
	var kind string
	var paramConstraints, rateLimit, timeRestrictions []byte
	var expiresAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.UserID, &p.ConnectionID, &p.ToolName, &kind,
		&paramConstraints, &rateLimit, &expiresAt, &timeRestrictions,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Kind = Kind(kind)
	if len(paramConstraints) > 0 {
		p.ParamConstraints = json.RawMessage(paramConstraints)
	}
	if len(rateLimit) > 0 {
		p.RateLimit = json.RawMessage(rateLimit)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
	}
	if len(timeRestrictions) > 0 {
		var tr TimeRestrictions
		if err := json.Unmarshal(timeRestrictions, &tr); err != nil {
			return nil, fmt.Errorf("scanPermission: time_restrictions: %w", err)
		}
		p.TimeRestrictions = &tr
	}
	return &p, nil
}

func marshalNullable(tr *TimeRestrictions) (any, error) {
	if tr == nil {
		return nil, nil
	}
	return json.Marshal(tr)
}

func nullableRaw(v json.RawMessage) any {
	if v == nil {
		return nil
	}
	return []byte(v)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
