package api

import (
	"encoding/json"
	"time"

	"github.com/datasage-ai/toolgate/internal/connection"
	"github.com/datasage-ai/toolgate/internal/permission"
)

// --- Tool dispatch ---

// CallToolReq is the JSON body for POST /api/gateway/call.
type CallToolReq struct {
	SessionID string         `json:"session_id,omitempty"`
	UserQuery string         `json:"user_query,omitempty"`
	ToolName  string         `json:"tool_name"`
	Params    map[string]any `json:"params,omitempty"`
}

// CallToolResp mirrors the dispatch result.
type CallToolResp struct {
	Success         bool   `json:"success"`
	Data            any    `json:"data,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// ToolResp is one entry of GET /api/gateway/tools.
type ToolResp struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// --- Connection CRUD ---

// CreateConnectionReq is the JSON body for POST /api/connections.
type CreateConnectionReq struct {
	Name        string            `json:"name"`
	Kind        string            `json:"kind"`
	Description string            `json:"description,omitempty"`
	Config      map[string]any    `json:"config,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

// UpdateConnectionReq is the JSON body for PATCH /api/connections/{id}.
// Credentials, when present, replace the stored set wholesale.
type UpdateConnectionReq struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Config      map[string]any    `json:"config,omitempty"`
	Credentials map[string]string `json:"credentials,omitempty"`
	IsActive    *bool             `json:"is_active,omitempty"`
}

// ConnectionResp never carries credentials, encrypted or otherwise.
type ConnectionResp struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Kind            string         `json:"kind"`
	Description     string         `json:"description"`
	Config          map[string]any `json:"config"`
	IsActive        bool           `json:"is_active"`
	LastCheckedAt   *time.Time     `json:"last_checked_at"`
	LastCheckStatus string         `json:"last_check_status"`
	LastCheckError  string         `json:"last_check_error"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// HealthCheckResp is the outcome of POST /api/connections/{id}/health-check.
type HealthCheckResp struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// --- Permission admin ---

// SetPermissionReq is the JSON body for PUT /api/permissions. The caller
// (from X-User-ID) is recorded as created_by; user_id is the policy target.
type SetPermissionReq struct {
	UserID           string                       `json:"user_id"`
	ConnectionID     string                       `json:"connection_id"`
	ToolName         string                       `json:"tool_name"`
	Kind             string                       `json:"kind"`
	ParamConstraints json.RawMessage              `json:"param_constraints,omitempty"`
	RateLimit        json.RawMessage              `json:"rate_limit,omitempty"`
	ExpiresAt        *time.Time                   `json:"expires_at,omitempty"`
	TimeRestrictions *permission.TimeRestrictions `json:"time_restrictions,omitempty"`
}

// BulkSetPermissionsReq is the JSON body for POST /api/permissions/bulk.
type BulkSetPermissionsReq struct {
	UserID       string            `json:"user_id"`
	ConnectionID string            `json:"connection_id"`
	Tools        map[string]string `json:"tools"` // tool name → kind
}

// PermissionResp mirrors one policy row.
type PermissionResp struct {
	ID               string                       `json:"id"`
	UserID           string                       `json:"user_id"`
	ConnectionID     string                       `json:"connection_id"`
	ToolName         string                       `json:"tool_name"`
	Kind             string                       `json:"kind"`
	ParamConstraints json.RawMessage              `json:"param_constraints,omitempty"`
	RateLimit        json.RawMessage              `json:"rate_limit,omitempty"`
	ExpiresAt        *time.Time                   `json:"expires_at,omitempty"`
	TimeRestrictions *permission.TimeRestrictions `json:"time_restrictions,omitempty"`
	CreatedBy        string                       `json:"created_by,omitempty"`
	CreatedAt        time.Time                    `json:"created_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

// --- Audit trail ---

// AuditRecordResp is one entry of GET /api/audit/records. Params and
// response are the masked JSON documents as stored.
type AuditRecordResp struct {
	ID              string          `json:"id"`
	Timestamp       time.Time       `json:"timestamp"`
	UserID          string          `json:"user_id"`
	SessionID       string          `json:"session_id,omitempty"`
	UserQuery       string          `json:"user_query,omitempty"`
	ToolName        string          `json:"tool_name"`
	Params          json.RawMessage `json:"params,omitempty"`
	Response        json.RawMessage `json:"response,omitempty"`
	Status          string          `json:"status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

func connectionToResp(c *connection.Connection) ConnectionResp {
	return ConnectionResp{
		ID:              c.ID,
		Name:            c.Name,
		Kind:            c.Kind,
		Description:     c.Description,
		Config:          c.Config,
		IsActive:        c.IsActive,
		LastCheckedAt:   c.LastCheckedAt,
		LastCheckStatus: c.LastCheckStatus,
		LastCheckError:  c.LastCheckError,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func permissionToResp(p *permission.Permission) PermissionResp {
	return PermissionResp{
		ID:               p.ID,
		UserID:           p.UserID,
		ConnectionID:     p.ConnectionID,
		ToolName:         p.ToolName,
		Kind:             string(p.Kind),
		ParamConstraints: p.ParamConstraints,
		RateLimit:        p.RateLimit,
		ExpiresAt:        p.ExpiresAt,
		TimeRestrictions: p.TimeRestrictions,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}
