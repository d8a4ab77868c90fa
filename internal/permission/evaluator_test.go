package permission

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// mockPermStore serves one row (or an error) regardless of the triple.
type mockPermStore struct {
	perm *Permission
	err  error
}

func (m *mockPermStore) GetPermission(_ context.Context, _, _, _ string) (*Permission, error) {
	return m.perm, m.err
}

// Tuesday 2026-03-10 14:30 UTC.
var tuesdayAfternoon = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func evaluatorFor(t *testing.T, store Store) *Evaluator {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return newEvaluatorWithClock(store, logger, func() time.Time { return tuesdayAfternoon })
}

func TestCheckNoRowAllows(t *testing.T) {
	e := evaluatorFor(t, &mockPermStore{})
	allowed, reason := e.Check(context.Background(), "alice", "conn-1", "list_tables", nil)
	if !allowed {
		t.Fatalf("expected allow for missing row, got reason: %s", reason)
	}
}

func TestCheckBlocked(t *testing.T) {
	e := evaluatorFor(t, &mockPermStore{perm: &Permission{Kind: KindBlocked, ToolName: "write_query"}})
	allowed, reason := e.Check(context.Background(), "alice", "conn-1", "write_query", nil)
	if allowed {
		t.Fatal("expected deny for blocked row")
	}
	if !strings.Contains(reason, "blocked") {
		t.Fatalf("reason should mention blocked, got: %s", reason)
	}
	if !strings.Contains(reason, "write_query") {
		t.Fatalf("reason should name the tool, got: %s", reason)
	}
}

func TestCheckApprovalRequired(t *testing.T) {
	e := evaluatorFor(t, &mockPermStore{perm: &Permission{Kind: KindApprovalRequired, ToolName: "query"}})
	allowed, reason := e.Check(context.Background(), "alice", "conn-1", "query", nil)
	if allowed {
		t.Fatal("expected deny for approval-required row")
	}
	if !strings.Contains(reason, "approval") {
		t.Fatalf("reason should mention approval, got: %s", reason)
	}
}

func TestCheckExpiredDeniesEvenWhenAllowed(t *testing.T) {
	expired := tuesdayAfternoon.Add(-time.Hour)
	e := evaluatorFor(t, &mockPermStore{perm: &Permission{
		Kind:      KindAllowed,
		ToolName:  "query",
		ExpiresAt: &expired,
	}})
	allowed, reason := e.Check(context.Background(), "alice", "conn-1", "query", nil)
	if allowed {
		t.Fatal("expected deny for expired row")
	}
	if !strings.Contains(reason, "expired") {
		t.Fatalf("reason should mention expiry, got: %s", reason)
	}
}

func TestCheckFutureExpiryAllows(t *testing.T) {
	future := tuesdayAfternoon.Add(time.Hour)
	e := evaluatorFor(t, &mockPermStore{perm: &Permission{
		Kind:      KindAllowed,
		ToolName:  "query",
		ExpiresAt: &future,
	}})
	allowed, _ := e.Check(context.Background(), "alice", "conn-1", "query", nil)
	if !allowed {
		t.Fatal("expected allow for unexpired row")
	}
}

func TestCheckTimeRestrictions(t *testing.T) {
	cases := []struct {
		name    string
		tr      *TimeRestrictions
		allowed bool
	}{
		{"no restrictions", nil, true},
		{"hour inside window", &TimeRestrictions{AllowedHours: []int{13, 14, 15}}, true},
		{"hour outside window", &TimeRestrictions{AllowedHours: []int{9, 10, 11}}, false},
		{"day inside window", &TimeRestrictions{AllowedDays: []string{"monday", "tuesday"}}, true},
		{"day outside window", &TimeRestrictions{AllowedDays: []string{"saturday", "sunday"}}, false},
		{"hour ok day wrong", &TimeRestrictions{AllowedHours: []int{14}, AllowedDays: []string{"friday"}}, false},
		{"both ok", &TimeRestrictions{AllowedHours: []int{14}, AllowedDays: []string{"tuesday"}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := evaluatorFor(t, &mockPermStore{perm: &Permission{
				Kind:             KindAllowed,
				ToolName:         "query",
				TimeRestrictions: tc.tr,
			}})
			allowed, reason := e.Check(context.Background(), "alice", "conn-1", "query", nil)
			if allowed != tc.allowed {
				t.Fatalf("expected allowed=%v, got %v (reason: %s)", tc.allowed, allowed, reason)
			}
		})
	}
}

func TestCheckStoreErrorFailsOpen(t *testing.T) {
	e := evaluatorFor(t, &mockPermStore{err: errors.New("connection refused")})
	allowed, reason := e.Check(context.Background(), "alice", "conn-1", "query", nil)
	if !allowed {
		t.Fatalf("expected fail-open allow on store error, got reason: %s", reason)
	}
}

func TestCheckReservedFieldsNotEnforced(t *testing.T) {
	e := evaluatorFor(t, &mockPermStore{perm: &Permission{
		Kind:             KindAllowed,
		ToolName:         "query",
		ParamConstraints: []byte(`{"sql":{"blocked_patterns":["DROP"]}}`),
		RateLimit:        []byte(`{"max_calls_per_hour":1}`),
	}})
	allowed, _ := e.Check(context.Background(), "alice", "conn-1", "query", map[string]any{"sql": "DROP TABLE x"})
	if !allowed {
		t.Fatal("reserved constraint fields must not deny")
	}
}

func TestIsTimeAllowedWeekdayNames(t *testing.T) {
	p := &Permission{TimeRestrictions: &TimeRestrictions{AllowedDays: []string{"Sunday"}}}
	sunday := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	if !p.IsTimeAllowed(sunday) {
		t.Fatal("day matching must be case-insensitive")
	}
}
