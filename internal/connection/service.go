package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datasage-ai/toolgate/internal/vault"
)

// Invalidator is notified after any mutation of a user's connections so the
// per-user gateway can be rebuilt. The gateway manager implements it.
type Invalidator interface {
	Invalidate(userID string)
}

// Service manages connection records and owns credential encryption.
type Service struct {
	store       Store
	vault       *vault.Vault
	invalidator Invalidator
	logger      *zap.Logger
}

// NewService creates a Service. invalidator may be nil until the gateway
// manager is wired in via SetInvalidator.
func NewService(store Store, v *vault.Vault, logger *zap.Logger) *Service {
	return &Service{store: store, vault: v, logger: logger}
}

// SetInvalidator wires the gateway-cache invalidation hook. The manager
// depends on this service to load connections, so the hook is attached after
// both exist.
func (s *Service) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// CreateParams holds the fields for a new connection.
type CreateParams struct {
	UserID      string
	Name        string
	Kind        string
	Description string
	Config      map[string]any
	Credentials map[string]string
}

// Create encrypts the credentials and inserts the connection record.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Connection, error) {
	var envelope string
	if len(params.Credentials) > 0 {
		var err error
		envelope, err = s.vault.Encrypt(params.Credentials)
		if err != nil {
			return nil, fmt.Errorf("Create: %w", err)
		}
	}

	now := time.Now().UTC()
	conn := &Connection{
		ID:                   uuid.New().String(),
		UserID:               params.UserID,
		Name:                 params.Name,
		Kind:                 params.Kind,
		Description:          params.Description,
		Config:               params.Config,
		EncryptedCredentials: envelope,
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.Insert(ctx, conn); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	s.invalidate(params.UserID)
	return conn, nil
}

// Get returns one connection with owner isolation, or nil if not found.
func (s *Service) Get(ctx context.Context, id, userID string) (*Connection, error) {
	return s.store.GetByID(ctx, id, userID)
}

// GetUserConnections lists a user's connections, optionally active only.
func (s *Service) GetUserConnections(ctx context.Context, userID string, activeOnly bool) ([]*Connection, error) {
	return s.store.ListByUser(ctx, userID, activeOnly)
}

// Update applies a partial update. New credentials, when provided, replace
// the stored envelope wholesale.
func (s *Service) Update(ctx context.Context, id, userID string, params UpdateParams) (*Connection, error) {
	conn, err := s.store.GetByID(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}
	if conn == nil {
		return nil, nil
	}

	if params.Name != nil {
		conn.Name = *params.Name
	}
	if params.Description != nil {
		conn.Description = *params.Description
	}
	if params.Config != nil {
		conn.Config = params.Config
	}
	if params.Credentials != nil {
		envelope, err := s.vault.Encrypt(params.Credentials)
		if err != nil {
			return nil, fmt.Errorf("Update: %w", err)
		}
		conn.EncryptedCredentials = envelope
	}
	if params.IsActive != nil {
		conn.IsActive = *params.IsActive
	}

	if err := s.store.Update(ctx, conn); err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	s.invalidate(userID)
	return conn, nil
}

// Delete removes a connection; its policy rows cascade in the store.
func (s *Service) Delete(ctx context.Context, id, userID string) (bool, error) {
	deleted, err := s.store.Delete(ctx, id, userID)
	if err != nil {
		return false, fmt.Errorf("Delete: %w", err)
	}
	if deleted {
		s.invalidate(userID)
	}
	return deleted, nil
}

// RecordHealth persists a health-check outcome for a connection.
func (s *Service) RecordHealth(ctx context.Context, id, userID string, healthy bool, checkErr string) error {
	status := HealthSuccess
	if !healthy {
		status = HealthFailed
	}
	if err := s.store.SetHealth(ctx, id, userID, status, checkErr, time.Now().UTC()); err != nil {
		return fmt.Errorf("RecordHealth: %w", err)
	}
	return nil
}

// DecryptedCredentials opens the connection's credential envelope.
// A connection without credentials yields an empty map; a vault failure is
// returned as-is and must abort the caller's operation.
func (s *Service) DecryptedCredentials(conn *Connection) (map[string]string, error) {
	if conn.EncryptedCredentials == "" {
		return map[string]string{}, nil
	}
	return s.vault.Decrypt(conn.EncryptedCredentials)
}

func (s *Service) invalidate(userID string) {
	if s.invalidator == nil {
		return
	}
	s.invalidator.Invalidate(userID)
	s.logger.Debug("gateway invalidated after connection mutation",
		zap.String("user_id", userID),
	)
}
