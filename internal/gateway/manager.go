package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/datasage-ai/toolgate/internal/audit"
	"github.com/datasage-ai/toolgate/internal/backend"
	"github.com/datasage-ai/toolgate/internal/connection"
	"github.com/datasage-ai/toolgate/internal/permission"
)

const (
	connectTimeout    = 15 * time.Second
	disconnectTimeout = 10 * time.Second
)

// ConnectionSource is what the manager needs from the connection layer:
// listing a user's enabled connections, opening credential envelopes, and
// reporting connect outcomes back as health checks. *connection.Service
// implements it.
type ConnectionSource interface {
	GetUserConnections(ctx context.Context, userID string, activeOnly bool) ([]*connection.Connection, error)
	DecryptedCredentials(conn *connection.Connection) (map[string]string, error)
	RecordHealth(ctx context.Context, id, userID string, healthy bool, checkErr string) error
}

// Manager caches one Gateway per user. Concurrent requests for a user whose
// gateway is not built yet collapse into a single build; connection
// mutations evict the cached gateway so the next call rebuilds it.
type Manager struct {
	connections ConnectionSource
	evaluator   *permission.Evaluator
	recorder    *audit.Recorder
	logger      *zap.Logger

	mu       sync.RWMutex
	gateways map[string]*Gateway
	group    singleflight.Group

	// newClient is backend.New, swappable in tests.
	newClient func(kind, name string, config map[string]any, creds map[string]string, logger *zap.Logger) (backend.Client, error)
}

// NewManager creates a Manager.
func NewManager(connections ConnectionSource, evaluator *permission.Evaluator, recorder *audit.Recorder, logger *zap.Logger) *Manager {
	return &Manager{
		connections: connections,
		evaluator:   evaluator,
		recorder:    recorder,
		logger:      logger,
		gateways:    make(map[string]*Gateway),
		newClient:   backend.New,
	}
}

// GetOrBuild returns the user's gateway, building it on first use. Builds
// for the same user are collapsed: however many callers race here, each
// backend is connected once.
func (m *Manager) GetOrBuild(ctx context.Context, userID string) (*Gateway, error) {
	m.mu.RLock()
	g, ok := m.gateways[userID]
	m.mu.RUnlock()
	if ok {
		return g, nil
	}

	v, err, _ := m.group.Do(userID, func() (any, error) {
		m.mu.RLock()
		g, ok := m.gateways[userID]
		m.mu.RUnlock()
		if ok {
			return g, nil
		}

		built, err := m.build(ctx, userID)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.gateways[userID] = built
		m.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, fmt.Errorf("GetOrBuild: %w", err)
	}
	return v.(*Gateway), nil
}

// Invalidate evicts the user's cached gateway. The old gateway's backends
// are disconnected in the background so a connection mutation never waits
// on teardown; in-flight calls on the old gateway finish against the
// still-open clients.
func (m *Manager) Invalidate(userID string) {
	m.mu.Lock()
	g := m.gateways[userID]
	delete(m.gateways, userID)
	m.mu.Unlock()

	if g == nil {
		return
	}
	m.logger.Debug("gateway evicted", zap.String("user_id", userID))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		g.Close(ctx)
	}()
}

// Close tears down every cached gateway. Called once at shutdown.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	gateways := m.gateways
	m.gateways = make(map[string]*Gateway)
	m.mu.Unlock()

	for _, g := range gateways {
		g.Close(ctx)
	}
}

// build connects every enabled connection the user owns. A connection that
// fails to decrypt, construct, connect, or list tools is skipped with a
// warning and a failed health record; one bad backend never takes down the
// rest of the user's gateway.
func (m *Manager) build(ctx context.Context, userID string) (*Gateway, error) {
	conns, err := m.connections.GetUserConnections(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}

	g := &Gateway{
		userID:    userID,
		byKind:    make(map[string]*registeredConnection),
		evaluator: m.evaluator,
		recorder:  m.recorder,
		logger:    m.logger,
	}

	for _, conn := range conns {
		rc, err := m.register(ctx, conn)
		if err != nil {
			m.logger.Warn("skipping connection",
				zap.String("user_id", userID),
				zap.String("connection_id", conn.ID),
				zap.String("kind", conn.Kind),
				zap.Error(err),
			)
			if herr := m.connections.RecordHealth(ctx, conn.ID, userID, false, err.Error()); herr != nil {
				m.logger.Warn("health record failed", zap.String("connection_id", conn.ID), zap.Error(herr))
			}
			continue
		}

		g.connections = append(g.connections, rc)
		if _, taken := g.byKind[conn.Kind]; !taken {
			g.byKind[conn.Kind] = rc
		}
		if herr := m.connections.RecordHealth(ctx, conn.ID, userID, true, ""); herr != nil {
			m.logger.Warn("health record failed", zap.String("connection_id", conn.ID), zap.Error(herr))
		}
	}

	m.logger.Info("gateway built",
		zap.String("user_id", userID),
		zap.Int("connections", len(g.connections)),
	)
	return g, nil
}

// register connects one backend and loads its tool catalog.
func (m *Manager) register(ctx context.Context, conn *connection.Connection) (*registeredConnection, error) {
	creds, err := m.connections.DecryptedCredentials(conn)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}

	client, err := m.newClient(conn.Kind, conn.Name, conn.Config, creds, m.logger)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	tools, err := client.ListTools(connectCtx)
	if err != nil {
		if derr := client.Disconnect(context.Background()); derr != nil {
			m.logger.Warn("disconnect after failed catalog load",
				zap.String("connection_id", conn.ID), zap.Error(derr))
		}
		return nil, fmt.Errorf("list tools: %w", err)
	}

	return &registeredConnection{conn: conn, client: client, tools: tools}, nil
}
