package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is what the gateway hands the recorder for one attempt.
type Entry struct {
	UserID    string
	SessionID string
	UserQuery string
	ToolName  string

	Params   map[string]any
	Response any // nil when the attempt produced no response

	Status        Status
	ErrorMessage  string
	ExecutionTime time.Duration
}

// Recorder masks an entry and hands it to the writer. It never returns an
// error: a masking or serialization failure degrades the record to a
// minimal one carrying a masking_error marker instead of losing the attempt.
type Recorder struct {
	writer Writer
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(writer Writer, logger *zap.Logger) *Recorder {
	return &Recorder{writer: writer, logger: logger}
}

// Record masks and persists one attempt.
func (r *Recorder) Record(entry Entry) {
	record := &Record{
		ID:              uuid.New().String(),
		Timestamp:       time.Now().UTC(),
		UserID:          entry.UserID,
		SessionID:       entry.SessionID,
		UserQuery:       entry.UserQuery,
		ToolName:        entry.ToolName,
		Status:          entry.Status,
		ErrorMessage:    entry.ErrorMessage,
		ExecutionTimeMs: entry.ExecutionTime.Milliseconds(),
	}

	if entry.Params != nil {
		record.ParamsJSON = r.maskedJSON(MaskValue(entry.Params), entry.ToolName)
	}
	if entry.Response != nil {
		record.ResponseJSON = r.maskedJSON(MaskResponse(entry.Response), entry.ToolName)
	}

	r.writer.Write(record)
}

// maskedJSON serializes a masked value, substituting a marker document when
// serialization fails so the record itself survives.
func (r *Recorder) maskedJSON(masked any, toolName string) string {
	raw, err := json.Marshal(masked)
	if err != nil {
		r.logger.Warn("audit payload serialization failed, storing marker",
			zap.String("tool_name", toolName),
			zap.Error(err),
		)
		marker, _ := json.Marshal(map[string]string{"masking_error": err.Error()})
		return string(marker)
	}
	return string(raw)
}
