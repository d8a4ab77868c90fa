// Package audit persists one record per tool-call attempt, with sensitive
// values masked before they are written. Recording never fails the call it
// describes: masking or storage trouble degrades the record, it does not
// drop it.
package audit

import "time"

// Status classifies the outcome of a tool-call attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
	StatusDenied  Status = "denied"
)

// Record is one append-only audit entry. Params and Response hold masked
// JSON; Response is empty when the call produced none.
type Record struct {
	ID              string
	Timestamp       time.Time
	UserID          string
	SessionID       string
	UserQuery       string
	ToolName        string
	ParamsJSON      string
	ResponseJSON    string
	Status          Status
	ErrorMessage    string
	ExecutionTimeMs int64
}

// Writer persists audit records. Write must never block the caller; Close
// drains buffered records.
type Writer interface {
	Write(record *Record)
	Close()
}
