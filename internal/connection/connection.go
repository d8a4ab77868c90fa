// Package connection stores the backend connection records owned by users:
// kind, non-secret config, encrypted credentials, and health-check status.
// The service layer owns credential encryption; raw credential maps never
// touch the store.
package connection

import "time"

// HealthStatus values recorded after a connection check.
const (
	HealthSuccess = "success"
	HealthFailed  = "failed"
)

// Connection is one backend endpoint owned by exactly one user.
// (UserID, Name) is unique per user.
type Connection struct {
	ID          string
	UserID      string
	Name        string
	Kind        string // "mysql", "docs", "calendar", ...
	Description string

	// Config holds non-secret settings (host, port, read_only, ...).
	Config map[string]any

	// EncryptedCredentials is the vault envelope; empty when the backend
	// needs no credentials.
	EncryptedCredentials string

	IsActive bool

	LastCheckedAt   *time.Time
	LastCheckStatus string // HealthSuccess or HealthFailed, empty if never checked
	LastCheckError  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpdateParams holds optional fields for a partial connection update.
// Nil fields are left unchanged.
type UpdateParams struct {
	Name        *string
	Description *string
	Config      map[string]any
	Credentials map[string]string // re-encrypted by the service when set
	IsActive    *bool
}
