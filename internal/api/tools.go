package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/datasage-ai/toolgate/internal/gateway"
)

func (d *Dependencies) handleCallTool(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	var req CallToolReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_name is required"})
		return
	}

	g, err := d.Manager.GetOrBuild(r.Context(), userID)
	if err != nil {
		d.Logger.Error("failed to build gateway", zap.String("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to prepare gateway"})
		return
	}

	result := g.CallTool(r.Context(), gateway.CallRequest{
		SessionID: req.SessionID,
		UserQuery: req.UserQuery,
		ToolName:  req.ToolName,
		Params:    req.Params,
	})

	// Tool failures are part of the dispatch protocol, not HTTP errors.
	writeJSON(w, http.StatusOK, CallToolResp{
		Success:         result.Success,
		Data:            result.Data,
		Error:           result.Error,
		ExecutionTimeMs: result.Duration.Milliseconds(),
	})
}

func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context())

	g, err := d.Manager.GetOrBuild(r.Context(), userID)
	if err != nil {
		d.Logger.Error("failed to build gateway", zap.String("user_id", userID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to prepare gateway"})
		return
	}

	tools := g.ListTools()
	resp := make([]ToolResp, 0, len(tools))
	for _, t := range tools {
		resp = append(resp, ToolResp{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
