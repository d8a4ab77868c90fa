// Package backend defines the capability interface every backend client
// implements, and a factory registry keyed by connection kind. New backend
// kinds register a factory; nothing outside this package constructs clients
// directly.
package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ToolDefinition describes one operation a backend exposes.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// CallResult is the outcome of a single tool invocation against a backend.
// A backend-reported failure sets Success=false and Error; transport-level
// failures are returned as Go errors by CallTool instead.
type CallResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client is the capability set shared by all backend kinds.
// Connection pooling is internal to each implementation; Disconnect must
// release all pooled resources.
type Client interface {
	// Connect establishes the backend connection (or pool) and verifies it.
	Connect(ctx context.Context) error

	// Disconnect releases the connection and any pooled resources.
	Disconnect(ctx context.Context) error

	// ListTools returns the backend's tool catalog in a stable order.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// CallTool invokes one tool. Backend-reported failures come back as a
	// CallResult with Success=false; only infrastructure faults return err.
	CallTool(ctx context.Context, toolName string, params map[string]any) (*CallResult, error)
}

// Factory builds a Client for one connection kind from the connection's
// non-secret config and its decrypted credentials.
type Factory func(name string, config map[string]any, creds map[string]string, logger *zap.Logger) (Client, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a factory available under the given kind.
// Registering the same kind twice panics; kinds are wired once at startup.
func Register(kind string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("backend: Register called twice for kind " + kind)
	}
	factories[kind] = f
}

// New constructs a client for the given kind, or fails if no factory is
// registered for it.
func New(kind, name string, config map[string]any, creds map[string]string, logger *zap.Logger) (Client, error) {
	factoryMu.RLock()
	f, ok := factories[kind]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend: no factory registered for kind %q", kind)
	}
	return f(name, config, creds, logger)
}

// Kinds returns the registered kinds, sorted.
func Kinds() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
