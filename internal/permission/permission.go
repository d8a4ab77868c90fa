// Package permission stores per-(user, connection, tool) policy rows and
// evaluates them before a backend is touched. Absence of a row means allow;
// evaluator infrastructure failure also allows, with a warning — that
// fail-open is a documented availability trade-off, not an accident.
package permission

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind is the policy decision stored on a row.
type Kind string

const (
	KindAllowed          Kind = "allowed"
	KindBlocked          Kind = "blocked"
	KindApprovalRequired Kind = "approval_required"
)

// Valid reports whether k is a known policy kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAllowed, KindBlocked, KindApprovalRequired:
		return true
	}
	return false
}

// TimeRestrictions limits when an allowed tool may run.
// Hours are 0–23; days are lowercase English weekday names.
type TimeRestrictions struct {
	AllowedHours []int    `json:"allowed_hours,omitempty"`
	AllowedDays  []string `json:"allowed_days,omitempty"`
}

// Permission is one policy row. At most one row exists per
// (user, connection, tool) triple.
type Permission struct {
	ID           string
	UserID       string
	ConnectionID string
	ToolName     string
	Kind         Kind

	// ParamConstraints and RateLimit are stored but not enforced.
	ParamConstraints json.RawMessage
	RateLimit        json.RawMessage

	ExpiresAt        *time.Time
	TimeRestrictions *TimeRestrictions

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired reports whether the row's expiry has passed. Expired rows stay
// in storage; expiry is evaluated at check time.
func (p *Permission) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// IsTimeAllowed reports whether now falls inside the row's time window.
// A row without restrictions is always in-window.
func (p *Permission) IsTimeAllowed(now time.Time) bool {
	tr := p.TimeRestrictions
	if tr == nil {
		return true
	}

	if len(tr.AllowedHours) > 0 {
		hourOK := false
		for _, h := range tr.AllowedHours {
			if now.Hour() == h {
				hourOK = true
				break
			}
		}
		if !hourOK {
			return false
		}
	}

	if len(tr.AllowedDays) > 0 {
		day := strings.ToLower(now.Weekday().String())
		dayOK := false
		for _, d := range tr.AllowedDays {
			if day == strings.ToLower(d) {
				dayOK = true
				break
			}
		}
		if !dayOK {
			return false
		}
	}

	return true
}
