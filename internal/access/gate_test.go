package access

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipvault/internal/models"
	"clipvault/internal/shared"
)

type stubRecords struct {
	records map[int64]*models.AccessRecord
	err     error
}

func (s *stubRecords) Get(principalID int64) (*models.AccessRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[principalID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return rec, nil
}

func fixedClock(at int64) func() time.Time {
	return func() time.Time { return time.Unix(at, 0) }
}

func TestGateCheck(t *testing.T) {
	now := int64(1_700_000_000)
	records := &stubRecords{records: map[int64]*models.AccessRecord{
		10: {PrincipalID: 10, ExpiresAt: int64Ptr(now + 3600)},
		11: {PrincipalID: 11, ExpiresAt: int64Ptr(now - 3600)},
		12: {PrincipalID: 12, IsBanned: true},
	}}

	gate := NewGate(map[int64]struct{}{1: {}}, records)
	gate.Now = fixedClock(now)

	tests := []struct {
		name   string
		id     int64
		min    Role
		denied bool
	}{
		{"admin passes admin check", 1, RoleAdmin, false},
		{"member passes member check", 10, RoleMember, false},
		{"member fails admin check", 10, RoleAdmin, true},
		{"expired fails member check", 11, RoleMember, true},
		{"banned fails member check", 12, RoleMember, true},
		{"unknown fails member check", 99, RoleMember, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Check(tt.id, tt.min)
			if tt.denied {
				assert.ErrorIs(t, err, ErrDenied)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGateStorageFaultPassesThrough(t *testing.T) {
	records := &stubRecords{err: shared.ErrStorageFault}
	gate := NewGate(nil, records)

	err := gate.Check(7, RoleMember)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrStorageFault)
	assert.False(t, errors.Is(err, ErrDenied))
}

func TestGateAdminSkipsRecordLookup(t *testing.T) {
	// A broken record source must not matter for configured admins.
	records := &stubRecords{err: shared.ErrStorageFault}
	gate := NewGate(map[int64]struct{}{1: {}}, records)

	role, err := gate.Role(1)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)
}
