// Package gateway dispatches tool calls from an agent session to the
// backends registered for one user, enforcing the user's tool policy and
// recording one audit entry per attempt.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/datasage-ai/toolgate/internal/audit"
	"github.com/datasage-ai/toolgate/internal/backend"
	"github.com/datasage-ai/toolgate/internal/connection"
	"github.com/datasage-ai/toolgate/internal/permission"
)

// registeredConnection is one live backend inside a user's gateway.
type registeredConnection struct {
	conn   *connection.Connection
	client backend.Client
	tools  []backend.ToolDefinition
}

// Gateway is the per-user dispatch table: every enabled connection the user
// owns, already connected, with its tool catalog loaded. Instances are built
// by the Manager and are safe for concurrent use; all mutation happens at
// build time.
type Gateway struct {
	userID      string
	connections []*registeredConnection
	byKind      map[string]*registeredConnection // first enabled connection per kind
	evaluator   *permission.Evaluator
	recorder    *audit.Recorder
	logger      *zap.Logger
}

// CallRequest is one tool invocation from an agent session.
type CallRequest struct {
	SessionID string
	UserQuery string
	ToolName  string // qualified "kind.tool"
	Params    map[string]any
}

// Result is the outcome handed back to the caller. Duration covers the
// backend call only; it is zero when the backend was never reached.
type Result struct {
	Success  bool
	Data     any
	Error    string
	Duration time.Duration
}

// ListTools returns the union of all registered tool catalogs. Names are
// qualified with the connection kind and descriptions carry the connection
// name, so an agent seeing two gateways can tell whose tools are whose.
func (g *Gateway) ListTools() []backend.ToolDefinition {
	var out []backend.ToolDefinition
	for _, rc := range g.connections {
		if g.byKind[rc.conn.Kind] != rc {
			continue
		}
		for _, tool := range rc.tools {
			out = append(out, backend.ToolDefinition{
				Name:        rc.conn.Kind + "." + tool.Name,
				Description: fmt.Sprintf("[%s] %s", rc.conn.Name, tool.Description),
				Parameters:  tool.Parameters,
			})
		}
	}
	return out
}

// CallTool runs one invocation end to end: name parse, connection lookup,
// policy check, backend call, audit. It never returns an error; every
// failure comes back as an unsuccessful Result. Aside from a malformed
// tool name, every attempt produces exactly one audit record, and the
// backend is reached at most once.
func (g *Gateway) CallTool(ctx context.Context, req CallRequest) *Result {
	kind, tool, ok := splitToolName(req.ToolName)
	if !ok {
		// Nothing attributable happened yet, so nothing is audited.
		return &Result{
			Error: fmt.Sprintf("invalid tool name %q, expected \"kind.tool\"", req.ToolName),
		}
	}

	entry := audit.Entry{
		UserID:    g.userID,
		SessionID: req.SessionID,
		UserQuery: req.UserQuery,
		ToolName:  req.ToolName,
		Params:    req.Params,
	}

	rc, ok := g.byKind[kind]
	if !ok {
		msg := fmt.Sprintf("no enabled connection for kind %q", kind)
		entry.Status = audit.StatusFail
		entry.ErrorMessage = msg
		g.recorder.Record(entry)
		return &Result{Error: msg}
	}

	if allowed, reason := g.evaluator.Check(ctx, g.userID, rc.conn.ID, tool, req.Params); !allowed {
		entry.Status = audit.StatusDenied
		entry.ErrorMessage = reason
		g.recorder.Record(entry)
		g.logger.Info("tool call denied",
			zap.String("user_id", g.userID),
			zap.String("tool_name", req.ToolName),
			zap.String("reason", reason),
		)
		return &Result{Error: reason}
	}

	start := time.Now()
	callResult, err := g.invoke(ctx, rc.client, tool, req.Params)
	duration := time.Since(start)
	entry.ExecutionTime = duration

	if err == nil && callResult == nil {
		err = fmt.Errorf("backend returned no result for tool %q", tool)
	}
	if err != nil {
		entry.Status = audit.StatusFail
		entry.ErrorMessage = err.Error()
		g.recorder.Record(entry)
		g.logger.Warn("tool call failed",
			zap.String("user_id", g.userID),
			zap.String("tool_name", req.ToolName),
			zap.Error(err),
		)
		return &Result{Error: err.Error(), Duration: duration}
	}

	if callResult.Success {
		entry.Status = audit.StatusSuccess
		entry.Response = callResult.Data
	} else {
		entry.Status = audit.StatusFail
		entry.ErrorMessage = callResult.Error
		entry.Response = callResult.Data
	}
	g.recorder.Record(entry)
	return &Result{
		Success:  callResult.Success,
		Data:     callResult.Data,
		Error:    callResult.Error,
		Duration: duration,
	}
}

// invoke shields the dispatcher from a panicking backend client: the panic
// is converted to an error and flows through the normal failure path.
func (g *Gateway) invoke(ctx context.Context, client backend.Client, tool string, params map[string]any) (result *backend.CallResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return client.CallTool(ctx, tool, params)
}

// Close disconnects every registered backend client.
func (g *Gateway) Close(ctx context.Context) {
	for _, rc := range g.connections {
		if err := rc.client.Disconnect(ctx); err != nil {
			g.logger.Warn("backend disconnect failed",
				zap.String("user_id", g.userID),
				zap.String("connection_id", rc.conn.ID),
				zap.Error(err),
			)
		}
	}
}

// splitToolName splits a qualified "kind.tool" name at the first dot. Tool
// names may themselves contain dots; the kind may not.
func splitToolName(qualified string) (kind, tool string, ok bool) {
	kind, tool, found := strings.Cut(qualified, ".")
	if !found || kind == "" || tool == "" {
		return "", "", false
	}
	return kind, tool, true
}
