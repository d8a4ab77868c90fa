package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/datasage-ai/toolgate/internal/permission"
)

func (d *Dependencies) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	caller := userFromContext(r.Context())

	var req SetPermissionReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.UserID == "" || req.ConnectionID == "" || req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "user_id, connection_id and tool_name are required"})
		return
	}
	kind := permission.Kind(req.Kind)
	if !kind.Valid() {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "kind must be allowed, blocked or approval_required"})
		return
	}

	p, err := d.Permissions.SetPermission(r.Context(), permission.SetParams{
		UserID:           req.UserID,
		ConnectionID:     req.ConnectionID,
		ToolName:         req.ToolName,
		Kind:             kind,
		CreatedBy:        caller,
		ParamConstraints: req.ParamConstraints,
		RateLimit:        req.RateLimit,
		ExpiresAt:        req.ExpiresAt,
		TimeRestrictions: req.TimeRestrictions,
	})
	if err != nil {
		d.Logger.Error("failed to set permission", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to set permission"})
		return
	}
	writeJSON(w, http.StatusOK, permissionToResp(p))
}

func (d *Dependencies) handleBulkSetPermissions(w http.ResponseWriter, r *http.Request) {
	caller := userFromContext(r.Context())

	var req BulkSetPermissionsReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.UserID == "" || req.ConnectionID == "" || len(req.Tools) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "user_id, connection_id and tools are required"})
		return
	}

	tools := make(map[string]permission.Kind, len(req.Tools))
	for tool, kind := range req.Tools {
		k := permission.Kind(kind)
		if !k.Valid() {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "kind must be allowed, blocked or approval_required"})
			return
		}
		tools[tool] = k
	}

	perms, err := d.Permissions.BulkSetPermissions(r.Context(), req.UserID, req.ConnectionID, caller, tools)
	if err != nil {
		d.Logger.Error("failed to bulk set permissions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to set permissions"})
		return
	}

	resp := make([]PermissionResp, 0, len(perms))
	for _, p := range perms {
		resp = append(resp, permissionToResp(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("permission_id")

	deleted, err := d.Permissions.DeletePermission(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to delete permission", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete permission"})
		return
	}
	if !deleted {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Permission not found."})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListPermissions lists policy rows for a user. ?user_id= lets an
// administrator inspect another user's policy; it defaults to the caller.
func (d *Dependencies) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = userFromContext(r.Context())
	}
	connectionID := r.URL.Query().Get("connection_id")

	perms, err := d.Permissions.ListByUser(r.Context(), userID, connectionID)
	if err != nil {
		d.Logger.Error("failed to list permissions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list permissions"})
		return
	}

	resp := make([]PermissionResp, 0, len(perms))
	for _, p := range perms {
		resp = append(resp, permissionToResp(p))
	}
	writeJSON(w, http.StatusOK, resp)
}
