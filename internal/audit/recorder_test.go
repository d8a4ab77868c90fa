package audit

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
)

// memoryWriter captures records for assertions.
type memoryWriter struct {
	records []*Record
}

func (m *memoryWriter) Write(record *Record) { m.records = append(m.records, record) }
func (m *memoryWriter) Close()               {}

func TestRecordMasksAndPersists(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	writer := &memoryWriter{}
	rec := NewRecorder(writer, logger)

	rec.Record(Entry{
		UserID:    "alice",
		SessionID: "sess-1",
		UserQuery: "show me kim@company.com's orders",
		ToolName:  "mysql.query",
		Params:    map[string]any{"sql": "SELECT * FROM orders WHERE email='kim@company.com'"},
		Response: map[string]any{
			"rows":      []any{map[string]any{"email": "kim@company.com"}},
			"row_count": 1,
		},
		Status:        StatusSuccess,
		ExecutionTime: 42 * time.Millisecond,
	})

	if len(writer.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(writer.records))
	}
	r := writer.records[0]

	if r.ID == "" {
		t.Fatal("expected generated record ID")
	}
	if r.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}
	if r.Status != StatusSuccess {
		t.Fatalf("unexpected status: %s", r.Status)
	}
	if r.ExecutionTimeMs != 42 {
		t.Fatalf("expected 42ms, got %d", r.ExecutionTimeMs)
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(r.ParamsJSON), &params); err != nil {
		t.Fatal(err)
	}
	sql := params["sql"].(string)
	if sql != "SELECT * FROM orders WHERE email='k**@company.com'" {
		t.Fatalf("params not masked: %s", sql)
	}

	var response map[string]any
	if err := json.Unmarshal([]byte(r.ResponseJSON), &response); err != nil {
		t.Fatal(err)
	}
	row := response["rows"].([]any)[0].(map[string]any)
	if row["email"] != "k**@company.com" {
		t.Fatalf("response not masked: %v", row["email"])
	}

	// The user query is stored as-is on the record; masking applies to
	// params and response payloads.
	if r.UserQuery == "" {
		t.Fatal("expected user query on record")
	}
}

func TestRecordWithoutResponse(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	writer := &memoryWriter{}
	rec := NewRecorder(writer, logger)

	rec.Record(Entry{
		UserID:       "alice",
		ToolName:     "mysql.query",
		Params:       map[string]any{"sql": "SELECT 1"},
		Status:       StatusDenied,
		ErrorMessage: `tool "query" is blocked`,
	})

	r := writer.records[0]
	if r.ResponseJSON != "" {
		t.Fatalf("expected empty response JSON, got %q", r.ResponseJSON)
	}
	if r.Status != StatusDenied {
		t.Fatalf("unexpected status: %s", r.Status)
	}
}

func TestRecordSerializationFailureDegrades(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	writer := &memoryWriter{}
	rec := NewRecorder(writer, logger)

	// NaN cannot be marshaled to JSON; the record must survive with a
	// masking_error marker instead of being lost.
	rec.Record(Entry{
		UserID:   "alice",
		ToolName: "mysql.query",
		Params:   map[string]any{"weird": math.NaN()},
		Status:   StatusFail,
	})

	if len(writer.records) != 1 {
		t.Fatalf("expected the record to survive, got %d records", len(writer.records))
	}
	var marker map[string]string
	if err := json.Unmarshal([]byte(writer.records[0].ParamsJSON), &marker); err != nil {
		t.Fatal(err)
	}
	if marker["masking_error"] == "" {
		t.Fatalf("expected masking_error marker, got %s", writer.records[0].ParamsJSON)
	}
}
