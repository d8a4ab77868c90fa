package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/datasage-ai/toolgate/internal/audit"
)

func (d *Dependencies) handleListAuditRecords(w http.ResponseWriter, r *http.Request) {
	if d.AuditReader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Audit store not available"})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		UserID:   q.Get("user_id"),
		ToolName: q.Get("tool_name"),
		Status:   audit.Status(q.Get("status")),
	}
	if filter.UserID == "" {
		filter.UserID = userFromContext(r.Context())
	}

	var err error
	if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "since must be RFC 3339"})
		return
	}
	if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "until must be RFC 3339"})
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	records, err := d.AuditReader.List(r.Context(), filter)
	if err != nil {
		d.Logger.Error("failed to list audit records", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list audit records"})
		return
	}

	resp := make([]AuditRecordResp, 0, len(records))
	for _, rec := range records {
		resp = append(resp, auditRecordToResp(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if d.AuditReader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Audit store not available"})
		return
	}

	q := r.URL.Query()
	since, err := parseTimeParam(q.Get("since"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "since must be RFC 3339"})
		return
	}
	until, err := parseTimeParam(q.Get("until"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "until must be RFC 3339"})
		return
	}

	stats, err := d.AuditReader.GetStats(r.Context(), since, until)
	if err != nil {
		d.Logger.Error("failed to get audit stats", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get audit stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func auditRecordToResp(rec *audit.Record) AuditRecordResp {
	return AuditRecordResp{
		ID:              rec.ID,
		Timestamp:       rec.Timestamp,
		UserID:          rec.UserID,
		SessionID:       rec.SessionID,
		UserQuery:       rec.UserQuery,
		ToolName:        rec.ToolName,
		Params:          rawOrNil(rec.ParamsJSON),
		Response:        rawOrNil(rec.ResponseJSON),
		Status:          string(rec.Status),
		ErrorMessage:    rec.ErrorMessage,
		ExecutionTimeMs: rec.ExecutionTimeMs,
	}
}

func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
