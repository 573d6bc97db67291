package access

import (
	"errors"
	"fmt"
	"time"

	"clipvault/internal/models"
	"clipvault/internal/shared"
)

// ErrDenied is returned by Gate.Check when the resolved role is below the
// required minimum.
const ErrDenied = shared.Error("access denied")

// RecordSource is the read contract the gate needs from the access-window
// store. A missing record must surface as shared.ErrNotFound.
type RecordSource interface {
	Get(principalID int64) (*models.AccessRecord, error)
}

// Gate is the capability check evaluated at the top of every guarded
// operation. Callers invoke it explicitly, keeping the predicate itself
// free of any transport glue.
type Gate struct {
	AdminIDs map[int64]struct{}
	Records  RecordSource
	Now      func() time.Time
}

// NewGate wires a gate over an access-record source.
func NewGate(adminIDs map[int64]struct{}, records RecordSource) *Gate {
	return &Gate{AdminIDs: adminIDs, Records: records, Now: time.Now}
}

// Role resolves the current role of a principal.
func (g *Gate) Role(principalID int64) (Role, error) {
	// Admins never need a record lookup.
	if _, ok := g.AdminIDs[principalID]; ok {
		return RoleAdmin, nil
	}
	rec, err := g.Records.Get(principalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return RoleUnknown, nil
		}
		return RoleUnknown, err
	}
	return Resolve(principalID, g.AdminIDs, rec, g.Now()), nil
}

// Check returns ErrDenied unless the principal's role is at least min.
// Storage errors pass through unchanged so a StorageFault is never
// mistaken for a denial.
func (g *Gate) Check(principalID int64, min Role) error {
	role, err := g.Role(principalID)
	if err != nil {
		return err
	}
	if !role.AtLeast(min) {
		return fmt.Errorf("%w: role %s, need at least %s", ErrDenied, role, min)
	}
	return nil
}
