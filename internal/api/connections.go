package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/datasage-ai/toolgate/internal/backend"
	"github.com/datasage-ai/toolgate/internal/connection"
)

const healthCheckTimeout = 10 * time.Second

func (d *Dependencies) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	var req CreateConnectionReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}
	if !knownKind(req.Kind) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "unknown connection kind"})
		return
	}

	conn, err := d.Connections.Create(r.Context(), connection.CreateParams{
		UserID:      userID,
		Name:        req.Name,
		Kind:        req.Kind,
		Description: req.Description,
		Config:      req.Config,
		Credentials: req.Credentials,
	})
	if err != nil {
		d.Logger.Error("failed to create connection", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create connection"})
		return
	}
	writeJSON(w, http.StatusCreated, connectionToResp(conn))
}

func (d *Dependencies) handleListConnections(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	activeOnly := r.URL.Query().Get("active") == "true"

	conns, err := d.Connections.GetUserConnections(r.Context(), userID, activeOnly)
	if err != nil {
		d.Logger.Error("failed to list connections", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list connections"})
		return
	}

	resp := make([]ConnectionResp, 0, len(conns))
	for _, c := range conns {
		resp = append(resp, connectionToResp(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	id := r.PathValue("connection_id")

	conn, err := d.Connections.Get(r.Context(), id, userID)
	if err != nil {
		d.Logger.Error("failed to get connection", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get connection"})
		return
	}
	if conn == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Connection not found."})
		return
	}
	writeJSON(w, http.StatusOK, connectionToResp(conn))
}

func (d *Dependencies) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	id := r.PathValue("connection_id")

	var req UpdateConnectionReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	conn, err := d.Connections.Update(r.Context(), id, userID, connection.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Config:      req.Config,
		Credentials: req.Credentials,
		IsActive:    req.IsActive,
	})
	if err != nil {
		d.Logger.Error("failed to update connection", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update connection"})
		return
	}
	if conn == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Connection not found."})
		return
	}
	writeJSON(w, http.StatusOK, connectionToResp(conn))
}

func (d *Dependencies) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	id := r.PathValue("connection_id")

	deleted, err := d.Connections.Delete(r.Context(), id, userID)
	if err != nil {
		d.Logger.Error("failed to delete connection", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete connection"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Connection not found."})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealthCheck connects to the backend once, reports the outcome, and
// persists it on the connection row.
func (d *Dependencies) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())
	id := r.PathValue("connection_id")

	conn, err := d.Connections.Get(r.Context(), id, userID)
	if err != nil {
		d.Logger.Error("failed to get connection", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get connection"})
		return
	}
	if conn == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Connection not found."})
		return
	}

	checkErr := d.probe(r.Context(), conn)

	healthy := checkErr == nil
	errMsg := ""
	if checkErr != nil {
		errMsg = checkErr.Error()
	}
	if err := d.Connections.RecordHealth(r.Context(), id, userID, healthy, errMsg); err != nil {
		d.Logger.Warn("failed to record health", zap.String("connection_id", id), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, HealthCheckResp{Healthy: healthy, Error: errMsg})
}

func (d *Dependencies) probe(ctx context.Context, conn *connection.Connection) error {
	creds, err := d.Connections.DecryptedCredentials(conn)
	if err != nil {
		return err
	}
	client, err := backend.New(conn.Kind, conn.Name, conn.Config, creds, d.Logger)
	if err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := client.Connect(probeCtx); err != nil {
		return err
	}
	return client.Disconnect(probeCtx)
}

func knownKind(kind string) bool {
	for _, k := range backend.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
