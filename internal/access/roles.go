// Package access resolves a principal's role from the admin set and an
// access-window record. It is pure: no storage handle, no clock of its own,
// so every rule here is unit-testable without a transport harness.
package access

import (
	"strconv"
	"strings"
	"time"

	"clipvault/internal/models"
)

// Role is the resolved access class of a principal at a point in time.
// The numeric order is the gating order: a role passes a check when it is
// at least the required minimum.
type Role int

const (
	RoleUnknown Role = iota
	RoleBanned
	RoleExpired
	RoleMember
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleMember:
		return "member"
	case RoleExpired:
		return "expired"
	case RoleBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// AtLeast reports whether the role satisfies the required minimum.
func (r Role) AtLeast(min Role) bool { return r >= min }

// Resolve combines the admin set, an access record (nil when the principal
// has none) and the current time into a Role. The order of checks is fixed:
// admin membership is decided before the record is even considered, so a
// ban or expiry row can never demote a configured admin.
func Resolve(principalID int64, adminIDs map[int64]struct{}, rec *models.AccessRecord, now time.Time) Role {
	if _, ok := adminIDs[principalID]; ok {
		return RoleAdmin
	}
	if rec == nil {
		return RoleUnknown
	}
	if rec.IsBanned {
		return RoleBanned
	}
	if rec.ExpiresAt != nil && *rec.ExpiresAt <= now.Unix() {
		return RoleExpired
	}
	return RoleMember
}

// ParseAdminIDs parses a comma-separated admin ID list, silently skipping
// anything that is not a plain positive integer.
func ParseAdminIDs(raw string) map[int64]struct{} {
	ids := make(map[int64]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}
