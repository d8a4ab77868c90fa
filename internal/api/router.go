// Package api is the HTTP boundary: a thin layer that translates requests
// into service calls. Caller identity arrives as an X-User-ID header set by
// the authenticating proxy in front of this service.
package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/datasage-ai/toolgate/internal/audit"
	"github.com/datasage-ai/toolgate/internal/connection"
	"github.com/datasage-ai/toolgate/internal/gateway"
	"github.com/datasage-ai/toolgate/internal/permission"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Connections *connection.Service
	Permissions permission.AdminStore
	Manager     *gateway.Manager
	AuditReader *audit.Reader // nil if ClickHouse unavailable
	Logger      *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Tool dispatch
	mux.HandleFunc("POST /api/gateway/call", deps.requireUser(deps.handleCallTool))
	mux.HandleFunc("GET /api/gateway/tools", deps.requireUser(deps.handleListTools))

	// Connection CRUD + health
	mux.HandleFunc("POST /api/connections", deps.requireUser(deps.handleCreateConnection))
	mux.HandleFunc("GET /api/connections", deps.requireUser(deps.handleListConnections))
	mux.HandleFunc("GET /api/connections/{connection_id}", deps.requireUser(deps.handleGetConnection))
	mux.HandleFunc("PATCH /api/connections/{connection_id}", deps.requireUser(deps.handleUpdateConnection))
	mux.HandleFunc("DELETE /api/connections/{connection_id}", deps.requireUser(deps.handleDeleteConnection))
	mux.HandleFunc("POST /api/connections/{connection_id}/health-check", deps.requireUser(deps.handleHealthCheck))

	// Permission admin
	mux.HandleFunc("PUT /api/permissions", deps.requireUser(deps.handleSetPermission))
	mux.HandleFunc("POST /api/permissions/bulk", deps.requireUser(deps.handleBulkSetPermissions))
	mux.HandleFunc("DELETE /api/permissions/{permission_id}", deps.requireUser(deps.handleDeletePermission))
	mux.HandleFunc("GET /api/permissions", deps.requireUser(deps.handleListPermissions))

	// Audit trail
	mux.HandleFunc("GET /api/audit/records", deps.requireUser(deps.handleListAuditRecords))
	mux.HandleFunc("GET /api/audit/stats", deps.requireUser(deps.handleAuditStats))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return requestLogging(mux, deps.Logger)
}
