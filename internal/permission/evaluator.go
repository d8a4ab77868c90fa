package permission

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Evaluator decides whether a user may call a tool on a connection.
//
// Rule order (first match wins):
//  1. no row            → allow (default-open)
//  2. blocked           → deny
//  3. approval required → deny (no approval workflow yet)
//  4. expired           → deny
//  5. outside time window → deny
//  6. parameter constraints, rate limits → reserved, not enforced
//  7. otherwise         → allow
//
// If the store errors, the evaluator fails OPEN: the call is allowed and a
// warning is logged. Availability over strict denial during a policy-store
// outage; every other ambiguity in the gateway fails closed.
type Evaluator struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewEvaluator creates an Evaluator using the wall clock.
func NewEvaluator(store Store, logger *zap.Logger) *Evaluator {
	return &Evaluator{store: store, logger: logger, now: time.Now}
}

// newEvaluatorWithClock creates an evaluator with a fixed clock (for testing).
func newEvaluatorWithClock(store Store, logger *zap.Logger, now func() time.Time) *Evaluator {
	return &Evaluator{store: store, logger: logger, now: now}
}

// Check evaluates the policy for one (user, connection, tool) triple.
// params is accepted for the reserved constraint step and currently unused.
func (e *Evaluator) Check(ctx context.Context, userID, connectionID, toolName string, params map[string]any) (allowed bool, reason string) {
	p, err := e.store.GetPermission(ctx, userID, connectionID, toolName)
	if err != nil {
		e.logger.Warn("permission check failed, allowing call",
			zap.String("user_id", userID),
			zap.String("connection_id", connectionID),
			zap.String("tool_name", toolName),
			zap.Error(err),
		)
		return true, ""
	}

	if p == nil {
		return true, ""
	}

	if p.Kind == KindBlocked {
		return false, fmt.Sprintf("tool %q is blocked", toolName)
	}

	if p.Kind == KindApprovalRequired {
		return false, fmt.Sprintf("tool %q requires administrator approval", toolName)
	}

	now := e.now()
	if p.IsExpired(now) {
		return false, fmt.Sprintf("permission for tool %q has expired", toolName)
	}

	if !p.IsTimeAllowed(now) {
		return false, fmt.Sprintf("tool %q is not allowed at the current time", toolName)
	}

	// Parameter constraints and rate limits are stored but not enforced.

	return true, ""
}
